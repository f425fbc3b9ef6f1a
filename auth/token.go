// Package auth is the client side of the session: it holds the bearer token
// issued by the auth collaborator and answers questions about it. Login
// itself lives in the API client; token validation is the server's job.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/pkg/errors"

	"github.com/sabahroadcare/roadcare/localstore"
)

// Key is the local-store slot the session token lives in.
const Key = "authToken"

var (
	ErrNoToken      = errors.New("not logged in")
	ErrTokenExpired = errors.New("session expired, please log in again")
)

// TokenSource hands out the current bearer token. The submission pipeline
// consumes this; it never manages login state itself.
type TokenSource interface {
	Token() (string, error)
}

// TokenStore keeps the session token in the shared local store, the way the
// browser build kept authToken in localStorage.
type TokenStore struct {
	kv localstore.Store
}

func NewTokenStore(kv localstore.Store) *TokenStore {
	return &TokenStore{kv: kv}
}

// Token returns the stored bearer token. An expired token is treated like a
// missing one, apart from the more specific error.
func (t *TokenStore) Token() (string, error) {
	raw, ok, err := t.kv.Get(Key)
	if err != nil {
		return "", errors.Wrap(err, "reading token slot")
	}
	if !ok || raw == "" {
		return "", ErrNoToken
	}
	if expired(raw) {
		return "", ErrTokenExpired
	}
	return raw, nil
}

func (t *TokenStore) SetToken(token string) error {
	return errors.Wrap(t.kv.Set(Key, token), "storing token")
}

func (t *TokenStore) ClearToken() error {
	return errors.Wrap(t.kv.Remove(Key), "clearing token")
}

// expired inspects the token's exp claim without verifying the signature;
// verification is the server's concern, this only avoids sending a request
// doomed to 401.
func expired(tokenString string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(tokenString, claims); err != nil {
		// Opaque tokens pass through; the server decides.
		return false
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return false
	}
	return time.Now().Unix() >= int64(exp)
}

// EmailFromToken pulls the email claim the auth collaborator bakes into its
// tokens. The report endpoint wants the reporter email as a form field.
func EmailFromToken(tokenString string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(tokenString, claims); err != nil {
		return "", errors.Wrap(err, "parsing token")
	}
	email, ok := claims["email"].(string)
	if !ok || email == "" {
		return "", errors.New("token has no email claim")
	}
	return email, nil
}
