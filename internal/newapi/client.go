package newapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxResponseBytes      = 8 << 20
	headerUserID          = "New-Api-User"
)

// ErrNotConfigured is returned when no upstream base URL is set.
var ErrNotConfigured = errors.New("newapi: upstream base url is not configured")

// APIError is a response with success=false. Message is the server text,
// surfaced verbatim.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("upstream rejected %s %s", e.Method, e.Path)
	}
	return e.Message
}

// IsAPIError reports whether err carries an upstream rejection.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// Envelope is the common response shape.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	AccessToken string
	UserID      string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client calls the upstream gateway admin API. Calls are never retried.
type Client struct {
	mu      sync.RWMutex
	baseURL string
	token   string
	userID  string
	http    *http.Client
}

// New constructs a client.
func New(opts Options) *Client {
	c := &Client{}
	c.Reconfigure(opts)
	return c
}

// Reconfigure swaps connection settings; in-flight calls keep the old ones.
func (c *Client) Reconfigure(opts Options) {
	if c == nil {
		return
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	c.mu.Lock()
	c.baseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	c.token = strings.TrimSpace(opts.AccessToken)
	c.userID = strings.TrimSpace(opts.UserID)
	c.http = client
	c.mu.Unlock()
}

// BaseURL returns the configured upstream address.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// Do sends one request and returns the envelope data on success.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	env, err := c.call(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, body any) (Envelope, error) {
	if c == nil {
		return Envelope{}, ErrNotConfigured
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.RLock()
	baseURL, token, userID, client := c.baseURL, c.token, c.userID, c.http
	c.mu.RUnlock()
	if baseURL == "" {
		return Envelope{}, ErrNotConfigured
	}

	target := baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			return Envelope{}, fmt.Errorf("newapi: encode %s %s: %w", method, path, errMarshal)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return Envelope{}, fmt.Errorf("newapi: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if userID != "" {
		req.Header.Set(headerUserID, userID)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Envelope{}, fmt.Errorf("newapi: %s %s: %w", method, path, err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("newapi: close response body failed")
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Envelope{}, fmt.Errorf("newapi: read %s %s: %w", method, path, err)
	}

	var env Envelope
	if errDecode := json.Unmarshal(raw, &env); errDecode != nil {
		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return Envelope{}, fmt.Errorf("newapi: %s %s: unexpected status %d", method, path, resp.StatusCode)
		}
		return Envelope{}, fmt.Errorf("newapi: decode %s %s: %w", method, path, errDecode)
	}
	if !env.Success {
		return env, &APIError{Method: method, Path: path, Status: resp.StatusCode, Message: env.Message}
	}
	return env, nil
}

func decodeData(data json.RawMessage, out any, what string) error {
	if len(bytes.TrimSpace(data)) == 0 || string(bytes.TrimSpace(data)) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("newapi: decode %s: %w", what, err)
	}
	return nil
}
