package auth

import (
	"github.com/pkg/errors"

	passwd "github.com/go-passwd/validator"
)

// ValidatePassword applies the account password policy locally before any
// credentials go over the wire.
func ValidatePassword(password string) error {
	v := passwd.New(
		passwd.MinLength(8, errors.New("password must be at least 8 characters")),
		passwd.MaxLength(64, errors.New("password must be at most 64 characters")),
	)
	return v.Validate(password)
}
