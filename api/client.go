// Package api is a thin client for the adstat backend REST API. Requests and
// responses are JSON; errors come back as `{detail: string}` and are mapped
// to *errors.HTTPError.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/azkaraz/adstat/auth"
	apperrors "github.com/azkaraz/adstat/internal/errors"
	"github.com/azkaraz/adstat/users"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	contentTypeJSON  = "application/json"
	defaultTimeout   = 30 * time.Second
	maxErrorBodySize = 64 * 1024
)

// TokenSource yields the bearer token for authenticated calls; "" sends none.
type TokenSource func() string

// Client talks to the backend. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	maxUpload  int64
	extensions []string
}

type Option func(*Client)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.token = ts
	}
}

// WithUploadLimits sets the client-side file checks applied before upload.
func WithUploadLimits(maxSize int64, extensions []string) Option {
	return func(c *Client) {
		c.maxUpload = maxSize
		c.extensions = extensions
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		token:      func() string { return "" },
		maxUpload:  10 * 1024 * 1024,
		extensions: []string{".xlsx", ".xls"},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate exchanges a credential envelope, picking the endpoint by shape.
func (c *Client) Authenticate(ctx context.Context, env auth.Envelope) (*auth.AuthResponse, error) {
	switch e := env.(type) {
	case auth.WebAppEnvelope:
		return c.TelegramWebAppAuth(ctx, e)
	case *auth.WebAppEnvelope:
		return c.TelegramWebAppAuth(ctx, *e)
	case auth.LegacyEnvelope:
		return c.TelegramAuth(ctx, e)
	case *auth.LegacyEnvelope:
		return c.TelegramAuth(ctx, *e)
	}
	return nil, fmt.Errorf("%w: unsupported envelope %T", apperrors.ErrInvalidInput, env)
}

// TelegramAuth posts the legacy field-based credential.
func (c *Client) TelegramAuth(ctx context.Context, env auth.LegacyEnvelope) (*auth.AuthResponse, error) {
	var resp auth.AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, RouteTelegramAuth, "", env, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TelegramWebAppAuth posts the host-signed init data.
func (c *Client) TelegramWebAppAuth(ctx context.Context, env auth.WebAppEnvelope) (*auth.AuthResponse, error) {
	var resp auth.AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, RouteTelegramWebAppAuth, "", env, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Profile fetches the user record for an explicit token, independent of the
// client's token source.
func (c *Client) Profile(ctx context.Context, token string) (*users.User, error) {
	var u users.User
	if err := c.doJSON(ctx, http.MethodGet, RouteUserProfile, token, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) UpdateProfile(ctx context.Context, email string) (*ProfileUpdate, error) {
	var resp ProfileUpdate
	if err := c.doJSON(ctx, http.MethodPut, RouteUserProfile, c.token(), updateProfileRequest{Email: email}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Reports(ctx context.Context) ([]Report, error) {
	var reports []Report
	if err := c.doJSON(ctx, http.MethodGet, RouteUserReports, c.token(), nil, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func (c *Client) ReportStatus(ctx context.Context, id int64) (*Report, error) {
	var r Report
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf(RouteReportStatus, id), c.token(), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) ConnectSheet(ctx context.Context, sheetID string) (*SheetConnectResult, error) {
	if strings.TrimSpace(sheetID) == "" {
		return nil, fmt.Errorf("%w: empty sheet id", apperrors.ErrInvalidInput)
	}
	var resp SheetConnectResult
	if err := c.doJSON(ctx, http.MethodPost, RouteSheetsConnect, c.token(), sheetConnectRequest{SheetID: sheetID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SheetInfo(ctx context.Context) (map[string]any, error) {
	var info map[string]any
	if err := c.doJSON(ctx, http.MethodGet, RouteSheetsInfo, c.token(), nil, &info); err != nil {
		return nil, err
	}
	return info, nil
}

func (c *Client) DisconnectSheet(ctx context.Context) (*Message, error) {
	var resp Message
	if err := c.doJSON(ctx, http.MethodDelete, RouteSheetsDisconnect, c.token(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GoogleAuthURL asks the backend for the Google consent URL.
func (c *Client) GoogleAuthURL(ctx context.Context) (string, error) {
	var resp authURLResponse
	if err := c.doJSON(ctx, http.MethodPost, RouteGoogleAuthURL, c.token(), nil, &resp); err != nil {
		return "", err
	}
	if resp.AuthURL == "" {
		return "", fmt.Errorf("%w: missing auth_url", apperrors.ErrMalformedResponse)
	}
	return resp.AuthURL, nil
}

// GoogleCallback hands the authorization code to the backend. The code is a
// query parameter, matching the backend's signature.
func (c *Client) GoogleCallback(ctx context.Context, code string) (*Message, error) {
	var resp Message
	path := RouteGoogleCallback + "?code=" + url.QueryEscape(code)
	if err := c.doJSON(ctx, http.MethodPost, path, c.token(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) VKCallback(ctx context.Context, req VKCallbackRequest) (*Message, error) {
	if req.Code == "" || req.CodeVerifier == "" {
		return nil, fmt.Errorf("%w: code and code_verifier are required", apperrors.ErrInvalidInput)
	}
	var resp Message
	if err := c.doJSON(ctx, http.MethodPost, RouteVKCallback, c.token(), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) VKCampaigns(ctx context.Context) ([]map[string]any, error) {
	var resp campaignsResponse
	if err := c.doJSON(ctx, http.MethodGet, RouteVKCampaigns, c.token(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Campaigns, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("[api %s %s] marshal request: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}
	return c.do(ctx, method, path, token, body, contentTypeJSON, out)
}

func (c *Client) do(ctx context.Context, method, path, token string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("[api %s %s] create request: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", contentTypeJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	log.Debug().Str("method", method).Str("path", path).Msg("api request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("[api %s %s] %w", method, path, ctxErr)
		}
		return fmt.Errorf("[api %s %s] %w: %w", method, path, apperrors.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("api response")
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(method, path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return fmt.Errorf("[api %s %s] %w: empty body", method, path, apperrors.ErrMalformedResponse)
		}
		return fmt.Errorf("[api %s %s] %w: %v", method, path, apperrors.ErrMalformedResponse, err)
	}
	return nil
}

// decodeError reads `{detail: ...}`. FastAPI validation errors carry a list
// in detail; anything that is not a string is kept as raw JSON text.
func decodeError(method, path string, resp *http.Response) error {
	httpErr := &apperrors.HTTPError{Method: method, Path: path, Status: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Detail) > 0 {
		var s string
		if err := json.Unmarshal(body.Detail, &s); err == nil {
			httpErr.Detail = s
		} else {
			httpErr.Detail = string(body.Detail)
		}
	} else if text := strings.TrimSpace(string(raw)); text != "" && !strings.HasPrefix(text, "<") {
		httpErr.Detail = text
	}
	return httpErr
}
