package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DeviceHeader carries the install-scoped device ID on every request.
const DeviceHeader = "X-Pulse-Device"

// APIError is a non-2xx response from the Pulse API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pulse api: HTTP %d: %s", e.Status, e.Message)
}

// Client is the Pulse API transport. It injects the bearer credential and
// device ID into every request and fires the unauthorized relay when an
// authenticated call is answered with 401. The credential is installed only
// by the session manager.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	unauthorized *UnauthorizedSignal
	logger       *slog.Logger

	mu       sync.RWMutex
	token    string
	deviceID string
}

// NewClient creates a transport for the given base URL. baseURL may be empty
// when the client is unconfigured; the boot gate refuses to issue probes in
// that case, so no request is ever built against an empty base.
func NewClient(baseURL string, unauthorized *UnauthorizedSignal, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		unauthorized: unauthorized,
		logger:       logger,
	}
}

// BaseURL returns the configured API base URL, empty if unconfigured.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken installs (or with an empty string, clears) the bearer credential
// attached to subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the currently installed bearer credential.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetDeviceID installs the install-scoped device ID sent with every request.
func (c *Client) SetDeviceID(id string) {
	c.mu.Lock()
	c.deviceID = id
	c.mu.Unlock()
}

// DeviceID returns the installed device ID, or "" before SetDeviceID.
func (c *Client) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceID
}

// Login exchanges an identifier and secret for a credential and profile.
// A success payload missing the token is a hard failure. Login runs signed
// out (any prior credential is cleared before the login screen is reachable),
// so a 401 from wrong credentials does not reach the unauthorized relay.
func (c *Client) Login(ctx context.Context, identifier, secret string) (string, *Profile, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", loginRequest{
		Identifier: identifier,
		Secret:     secret,
	}, &resp)
	if err != nil {
		return "", nil, err
	}
	if resp.Token == "" {
		return "", nil, errors.New("login response missing token")
	}
	profile := resp.Profile
	return resp.Token, &profile, nil
}

// Me returns the profile behind the installed credential.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth/me", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// MetricsOverview fetches the dashboard payload.
func (c *Client) MetricsOverview(ctx context.Context) (*MetricsOverview, error) {
	var m MetricsOverview
	if err := c.do(ctx, http.MethodGet, "/api/v1/metrics/overview", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Probe issues an unauthenticated GET bounded by ctx. Any 2xx status is
// success; every other outcome (timeout, refusal, non-2xx) is a failure.
// Probes never fire the unauthorized relay.
func (c *Client) Probe(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setDeviceHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}

// AuthProbe issues a GET carrying the installed credential and reports the
// raw HTTP status code. Unlike regular requests a 401 here does not fire the
// unauthorized relay: the caller owns the classification. A transport failure
// reports status 0.
func (c *Client) AuthProbe(ctx context.Context, path string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	c.setDeviceHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// do executes a JSON request against the API. When the request carried a
// bearer credential and the response is 401, the unauthorized relay fires
// before the error is returned.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	c.setDeviceHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		if c.logger != nil {
			c.logger.Warn("credential rejected", "method", method, "path", path)
		}
		c.unauthorized.Fire()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(respBody, resp.StatusCode)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) setDeviceHeader(req *http.Request) {
	c.mu.RLock()
	device := c.deviceID
	c.mu.RUnlock()
	if device != "" {
		req.Header.Set(DeviceHeader, device)
	}
}

// errorMessage extracts the {"error": "..."} body the API uses for failures,
// falling back to the status text.
func errorMessage(body []byte, status int) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	if s := strings.TrimSpace(string(body)); s != "" && len(s) <= 200 {
		return s
	}
	return http.StatusText(status)
}
