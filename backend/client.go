package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxBodyBytes = 1 << 20

// Paths holds the endpoint paths relative to the base URL.
type Paths struct {
	Health       string
	SignIn       string
	SignUp       string
	SignOut      string
	Revoke       string
	RefreshToken string
	Permissions  string
}

// DefaultPaths returns the endpoint layout served by the reference backend.
func DefaultPaths() Paths {
	return Paths{
		Health:       "/auth/health",
		SignIn:       "/auth/sign-in",
		SignUp:       "/auth/sign-up",
		SignOut:      "/auth/sign-out",
		Revoke:       "/auth/revoke",
		RefreshToken: "/auth/refresh-token",
		Permissions:  "/auth/permissions",
	}
}

// Config configures a [Client].
type Config struct {
	// BaseURL is the service root, e.g. "https://api.example.com".
	BaseURL string
	// Timeout bounds every request. Zero means 10s.
	Timeout time.Duration
	// Paths overrides individual endpoints; empty fields keep the default.
	Paths Paths
	// HTTPClient replaces the default client. Its Timeout is left alone.
	HTTPClient *http.Client
}

// Client is the HTTP implementation of [API].
type Client struct {
	baseURL    string
	paths      Paths
	httpClient *http.Client
}

var _ API = (*Client)(nil)

// NewClient creates a Client for cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backend base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		paths:      mergePaths(cfg.Paths),
		httpClient: httpClient,
	}, nil
}

func mergePaths(p Paths) Paths {
	d := DefaultPaths()
	pick := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	return Paths{
		Health:       pick(p.Health, d.Health),
		SignIn:       pick(p.SignIn, d.SignIn),
		SignUp:       pick(p.SignUp, d.SignUp),
		SignOut:      pick(p.SignOut, d.SignOut),
		Revoke:       pick(p.Revoke, d.Revoke),
		RefreshToken: pick(p.RefreshToken, d.RefreshToken),
		Permissions:  pick(p.Permissions, d.Permissions),
	}
}

// BaseURL returns the normalized service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health returns nil when the service answers below 500. Transport errors
// and 5xx responses are reported as ErrAuthServiceUnavailable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.paths.Health, nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return unreachable(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode >= 500 {
		return &Error{
			Status: resp.StatusCode,
			Code:   CodeServiceUnavailable,
			Err:    ErrAuthServiceUnavailable,
		}
	}
	return nil
}

func (c *Client) SignIn(ctx context.Context, in SignInRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, c.paths.SignIn, "", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SignUp(ctx context.Context, in SignUpRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, c.paths.SignUp, "", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, c.paths.SignOut, accessToken, nil, nil)
}

func (c *Client) Revoke(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, c.paths.Revoke, accessToken, nil, nil)
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, c.paths.RefreshToken, "", RefreshRequest{RefreshToken: refreshToken}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Permissions(ctx context.Context, accessToken string) (*PermissionsResponse, error) {
	var out PermissionsResponse
	if err := c.do(ctx, http.MethodGet, c.paths.Permissions, accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return unreachable(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return unreachable(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb ErrorBody
		_ = json.Unmarshal(raw, &eb)
		return newError(resp.StatusCode, eb)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{
			Status:  resp.StatusCode,
			Code:    CodeServerError,
			Message: "malformed response body",
			Err:     fmt.Errorf("%w: %v", ErrServerError, err),
		}
	}
	return nil
}

func unreachable(err error) *Error {
	return &Error{
		Code:    CodeServiceUnavailable,
		Message: err.Error(),
		Err:     ErrAuthServiceUnavailable,
	}
}
