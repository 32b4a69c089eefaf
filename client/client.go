package client

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
	"time"

	"github.com/ValentinKolb/sKV/lib/smartstore"
	"github.com/ValentinKolb/sKV/lib/store"
)

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// Config holds all configuration parameters for the REST client.
type Config struct {
	// BaseURL is the server address, e.g. "http://localhost:8080"
	BaseURL string
	// Timeout bounds every request including the response body (0 = 30s)
	Timeout time.Duration
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

// APIError carries the status code and message of a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server responded %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is a 409 response.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// IsBusy reports whether err is a 503 response, the retryable signal
// that the store's cross-process lock is held.
func IsBusy(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable
}

// --------------------------------------------------------------------------
// Client
// --------------------------------------------------------------------------

// Client is a typed client for the REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// do runs one request and decodes the JSON response into out (nil out
// discards the body). Non-2xx responses come back as *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		msg := resp.Status
		if json.NewDecoder(resp.Body).Decode(&errBody) == nil && errBody.Error != "" {
			msg = errBody.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// --------------------------------------------------------------------------
// Key-value operations
// --------------------------------------------------------------------------

// keyPayload is the request body for create and update.
type keyPayload struct {
	Key      string      `json:"key,omitempty"`
	Value    store.Value `json:"value"`
	TTL      *int64      `json:"ttl,omitempty"`
	DataType string      `json:"data_type"`
}

func newKeyPayload(key string, value store.Value, ttl time.Duration) keyPayload {
	p := keyPayload{
		Key:      key,
		Value:    value,
		DataType: string(value.Kind),
	}
	if ttl > 0 {
		secs := int64(ttl / time.Second)
		p.TTL = &secs
	}
	return p
}

// Create stores a new key. A key that already exists yields a 409
// *APIError, see IsConflict.
func (c *Client) Create(ctx context.Context, key string, value store.Value, ttl time.Duration) error {
	return c.do(ctx, http.MethodPost, "/api/v1/keys", newKeyPayload(key, value, ttl), nil)
}

// Update overwrites an existing key. A missing key yields a 404
// *APIError, see IsNotFound.
func (c *Client) Update(ctx context.Context, key string, value store.Value, ttl time.Duration) error {
	p := newKeyPayload("", value, ttl)
	return c.do(ctx, http.MethodPut, "/api/v1/keys/"+url.PathEscape(key), p, nil)
}

// Set stores a key whether it exists or not. The API separates create
// and update, so Set may need two requests.
func (c *Client) Set(ctx context.Context, key string, value store.Value, ttl time.Duration) error {
	err := c.Update(ctx, key, value, ttl)
	if !IsNotFound(err) {
		return err
	}
	err = c.Create(ctx, key, value, ttl)
	if IsConflict(err) {
		// another writer created the key in between
		return c.Update(ctx, key, value, ttl)
	}
	return err
}

// Get reads a key. A missing key is reported via found, not as an error.
func (c *Client) Get(ctx context.Context, key string) (value store.Value, found bool, err error) {
	var body struct {
		Value    json.RawMessage `json:"value"`
		DataType string          `json:"data_type"`
	}
	err = c.do(ctx, http.MethodGet, "/api/v1/keys/"+url.PathEscape(key), nil, &body)
	if IsNotFound(err) {
		return store.Value{}, false, nil
	}
	if err != nil {
		return store.Value{}, false, err
	}

	value, err = store.FromJSON(body.DataType, body.Value)
	if err != nil {
		return store.Value{}, false, err
	}
	return value, true, nil
}

// Delete removes a key and reports whether it existed.
func (c *Client) Delete(ctx context.Context, key string) (deleted bool, err error) {
	err = c.do(ctx, http.MethodDelete, "/api/v1/keys/"+url.PathEscape(key), nil, nil)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Keys lists all live keys.
func (c *Client) Keys(ctx context.Context) ([]string, error) {
	var body struct {
		Keys []string `json:"keys"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/keys", nil, &body); err != nil {
		return nil, err
	}
	return body.Keys, nil
}

// Stats fetches the aggregated system statistics.
func (c *Client) Stats(ctx context.Context) (smartstore.SystemStats, error) {
	var body struct {
		Stats smartstore.SystemStats `json:"stats"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &body)
	return body.Stats, err
}

// Health describes the server's health probe response.
type Health struct {
	Status   string `json:"status"`
	Database struct {
		Connected bool `json:"connected"`
		TotalKeys int  `json:"total_keys"`
	} `json:"database"`
	Cache struct {
		Size    int     `json:"size"`
		HitRate float64 `json:"hit_rate"`
	} `json:"cache"`
}

// Health probes the server. An unhealthy server responds 503, which
// surfaces as an *APIError.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &h)
	return h, err
}
