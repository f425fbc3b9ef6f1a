// Package client talks to the external report API: report submission,
// report history, dashboard statistics and login. It consumes a bearer token
// from the auth package but never manages login state itself.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/leebenson/conform"
	"github.com/pkg/errors"

	"github.com/sabahroadcare/roadcare/auth"
	"github.com/sabahroadcare/roadcare/config"
	"github.com/sabahroadcare/roadcare/models"
)

// ErrSubmissionFailed covers any non-2xx response or transport failure on
// submit. Callers show a generic retry-prompting message; the form state is
// preserved so nothing is lost.
var ErrSubmissionFailed = errors.New("failed to submit report")

// Multipart part names for the three photo slots, as the report endpoint
// declares them.
var photoPartNames = [models.PhotoSlotCount]string{"photo_top", "photo_far", "photo_close"}

// Client is the HTTP client for the report API collaborator.
type Client struct {
	baseURL  string
	http     *http.Client
	tokens   auth.TokenSource
	validate *validator.Validate
}

func New(cfg *config.Config, tokens auth.TokenSource) *Client {
	return &Client{
		baseURL:  cfg.APIBaseURL,
		http:     &http.Client{Timeout: cfg.RequestTimeout()},
		tokens:   tokens,
		validate: validator.New(),
	}
}

// submitForm is the non-photo half of the multipart payload.
type submitForm struct {
	Email       string `conform:"trim,lower" validate:"required,email"`
	Description string `conform:"trim" validate:"max=200"`
	District    string `conform:"trim,lower" validate:"required"`
	Address     string `conform:"trim" validate:"required"`
	RoadName    string `conform:"trim"`
	Latitude    float64
	Longitude   float64
}

// Submit packages a validated draft into a multipart POST. The controller has
// already validated the draft; the checks here are the wire-level contract
// (all three photos, a location, a district) and guard direct callers.
func (c *Client) Submit(ctx context.Context, d *models.ReportDraft) (*models.SubmissionReceipt, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}
	email, err := auth.EmailFromToken(token)
	if err != nil {
		return nil, err
	}
	if d.Location == nil {
		return nil, errors.Wrap(ErrSubmissionFailed, "draft has no location")
	}
	if d.BoundPhotoCount() != models.PhotoSlotCount {
		return nil, errors.Wrap(ErrSubmissionFailed, "draft is missing photos")
	}

	form := submitForm{
		Email:       email,
		Description: d.Description,
		District:    d.District,
		Address:     d.Location.Address,
		RoadName:    d.Location.RoadName,
		Latitude:    d.Location.Latitude,
		Longitude:   d.Location.Longitude,
	}
	if err := conform.Strings(&form); err != nil {
		return nil, errors.Wrap(err, "normalizing form")
	}
	if err := c.validate.Struct(form); err != nil {
		return nil, errors.Wrap(ErrSubmissionFailed, err.Error())
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fields := map[string]string{
		"email":       form.Email,
		"description": form.Description,
		"district":    form.District,
		"latitude":    strconv.FormatFloat(form.Latitude, 'f', -1, 64),
		"longitude":   strconv.FormatFloat(form.Longitude, 'f', -1, 64),
		"address":     form.Address,
		"road_name":   form.RoadName,
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, errors.Wrapf(err, "writing field %s", name)
		}
	}
	for i, photo := range d.Photos {
		part, err := writer.CreateFormFile(photoPartNames[i], photo.Filename)
		if err != nil {
			return nil, errors.Wrapf(err, "creating part %s", photoPartNames[i])
		}
		if _, err := part.Write(photo.Content); err != nil {
			return nil, errors.Wrapf(err, "writing part %s", photoPartNames[i])
		}
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "closing multipart writer")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/homepage/report", body)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrSubmissionFailed, "sending report: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Status codes are deliberately not distinguished further; the user
		// sees one retry-prompting message either way.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("report submission rejected: %d %s", resp.StatusCode, snippet)
		return nil, errors.Wrapf(ErrSubmissionFailed, "status %d", resp.StatusCode)
	}

	var receipt models.SubmissionReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, errors.Wrapf(ErrSubmissionFailed, "decoding receipt: %v", err)
	}
	if receipt.CaseID == "" {
		return nil, errors.Wrap(ErrSubmissionFailed, "receipt carries no case id")
	}
	return &receipt, nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	loginReq := models.LoginRequest{Email: email, Password: password}
	if err := conform.Strings(&loginReq); err != nil {
		return "", errors.Wrap(err, "normalizing credentials")
	}
	if err := c.validate.Struct(loginReq); err != nil {
		return "", errors.New("email and password are required")
	}

	payload, err := json.Marshal(loginReq)
	if err != nil {
		return "", errors.Wrap(err, "encoding credentials")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login", bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "sending login")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("login failed: status %d", resp.StatusCode)
	}

	var loginResp models.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", errors.Wrap(err, "decoding login response")
	}
	if loginResp.AccessToken == "" {
		return "", errors.New("login response carries no token")
	}
	return loginResp.AccessToken, nil
}

// MyReports fetches the caller's recent submissions for the history view.
func (c *Client) MyReports(ctx context.Context) ([]models.RecentSubmission, error) {
	var reports []models.RecentSubmission
	if err := c.getJSON(ctx, "/api/homepage/my-reports", nil, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// DashboardStats fetches aggregate counts. Empty filter values are dropped
// before querying, matching the dashboard front-end.
func (c *Client) DashboardStats(ctx context.Context, filters map[string]string) (*models.DashboardStats, error) {
	params := url.Values{}
	for k, v := range filters {
		if v != "" {
			params.Set(k, v)
		}
	}
	var stats models.DashboardStats
	if err := c.getJSON(ctx, "/api/dashboard/stats", params, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	token, err := c.tokens.Token()
	if err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "requesting %s", path)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	return errors.Wrapf(json.NewDecoder(resp.Body).Decode(out), "decoding %s", path)
}
