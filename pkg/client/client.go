package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Default session cookie names, matching the server defaults
const (
	DefaultAccessCookie  = "bd_access"
	DefaultRefreshCookie = "bd_refresh"
)

// Client is the BizDesk API client
type Client struct {
	baseURL       string
	httpClient    *http.Client
	accessCookie  string
	refreshCookie string
	accessToken   string
	refreshToken  string
}

// Config holds the client configuration
type Config struct {
	BaseURL    string        // API base URL (e.g., "https://app.bizdesk.example")
	Timeout    time.Duration // HTTP client timeout (default: 30s)
	HTTPClient *http.Client  // Optional custom HTTP client
	// Session cookie names, defaulting to bd_access and bd_refresh
	AccessCookie  string
	RefreshCookie string
}

// NewClient creates a new BizDesk API client
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.AccessCookie == "" {
		cfg.AccessCookie = DefaultAccessCookie
	}
	if cfg.RefreshCookie == "" {
		cfg.RefreshCookie = DefaultRefreshCookie
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			// The access gate answers with redirects; surface them instead of following
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	return &Client{
		baseURL:       cfg.BaseURL,
		httpClient:    httpClient,
		accessCookie:  cfg.AccessCookie,
		refreshCookie: cfg.RefreshCookie,
	}
}

// SetSession sets the session tokens sent as cookies
func (c *Client) SetSession(accessToken, refreshToken string) {
	c.accessToken = accessToken
	c.refreshToken = refreshToken
}

// Session returns the current session tokens. They change when the server
// re-issues cookies on a response.
func (c *Client) Session() (accessToken, refreshToken string) {
	return c.accessToken, c.refreshToken
}

// doRequest performs an HTTP request with proper error handling
func (c *Client) doRequest(ctx context.Context, method, path string, header http.Header, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}

	if c.accessToken != "" {
		req.AddCookie(&http.Cookie{Name: c.accessCookie, Value: c.accessToken})
	}
	if c.refreshToken != "" {
		req.AddCookie(&http.Cookie{Name: c.refreshCookie, Value: c.refreshToken})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.updateSession(resp.Cookies())

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Code:       resp.Header.Get(ErrorCodeHeader),
			Location:   resp.Header.Get("Location"),
		}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

// updateSession keeps re-issued session cookies and drops cleared ones
func (c *Client) updateSession(cookies []*http.Cookie) {
	for _, ck := range cookies {
		value := ck.Value
		if ck.MaxAge < 0 {
			value = ""
		}
		switch ck.Name {
		case c.accessCookie:
			c.accessToken = value
		case c.refreshCookie:
			c.refreshToken = value
		}
	}
}
