// Package apiclient talks to the directory API on behalf of a signed-in user.
// It attaches the access token, and when a request is rejected with 401 it
// refreshes the token once, no matter how many requests failed concurrently,
// then retries each of them a single time.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const refreshPath = "/auth/refresh"

// ErrNoToken is returned by Refresh when the server answered without a token.
var ErrNoToken = errors.New("apiclient: refresh response missing token")

// Error is a non-2xx API response.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api: status %d", e.Status)
}

func (e *Error) StatusCode() int       { return e.Status }
func (e *Error) ServerMessage() string { return e.Message }

// Response is a buffered API response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger

	mu    sync.RWMutex
	token string
	gen   uint64

	refreshes    singleflight.Group
	onSessionEnd func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client. It should carry a cookie jar so
// the refresh cookie survives between calls.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithLogger(log *zap.Logger) Option { return func(c *Client) { c.log = log } }

// WithToken seeds the access token.
func WithToken(token string) Option { return func(c *Client) { c.token = token } }

// OnSessionEnd is called after a failed refresh has cleared the token.
func OnSessionEnd(fn func()) Option { return func(c *Client) { c.onSessionEnd = fn } }

// New builds a client for baseURL, e.g. "https://example.com/api".
func New(baseURL string, opts ...Option) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second, Jar: jar},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Token returns the current access token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the access token, e.g. after login or a role change.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.gen++
	c.mu.Unlock()
}

func (c *Client) snapshot() (string, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.gen
}

// Do sends a request with the current token and retries it once after a
// refresh when the server answers 401. body may be nil.
func (c *Client) Do(ctx context.Context, method, path, contentType string, body []byte) (*Response, error) {
	token, gen := c.snapshot()
	resp, err := c.send(ctx, method, path, contentType, body, token)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusUnauthorized || path == refreshPath {
		return checkStatus(resp)
	}

	token, err = c.refresh(ctx, gen)
	if err != nil {
		return nil, err
	}
	resp, err = c.send(ctx, method, path, contentType, body, token)
	if err != nil {
		return nil, err
	}
	return checkStatus(resp)
}

// refresh returns a token newer than generation stale. Concurrent callers
// share one refresh call; callers whose token was already replaced skip it.
func (c *Client) refresh(ctx context.Context, stale uint64) (string, error) {
	if token, gen := c.snapshot(); gen != stale && token != "" {
		return token, nil
	}
	v, err, _ := c.refreshes.Do("refresh", func() (any, error) {
		if token, gen := c.snapshot(); gen != stale && token != "" {
			return token, nil
		}
		token, err := c.Refresh(context.WithoutCancel(ctx))
		if err != nil {
			c.log.Warn("token refresh failed, clearing session", zap.Error(err))
			c.SetToken("")
			if c.onSessionEnd != nil {
				c.onSessionEnd()
			}
			return "", err
		}
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Refresh exchanges the refresh cookie for a new access token and stores it.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	resp, err := c.send(ctx, http.MethodPost, refreshPath, "", nil, "")
	if err != nil {
		return "", err
	}
	if _, err := checkStatus(resp); err != nil {
		return "", err
	}
	var out struct {
		AccessToken string `json:"accessToken"`
		Token       string `json:"token"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	token := out.AccessToken
	if token == "" {
		token = out.Token
	}
	if token == "" {
		return "", ErrNoToken
	}
	c.SetToken(token)
	return token, nil
}

func (c *Client) send(ctx context.Context, method, path, contentType string, body []byte, token string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: respBody}, nil
}

func checkStatus(resp *Response) (*Response, error) {
	if resp.Status >= 200 && resp.Status < 300 {
		return resp, nil
	}
	apiErr := &Error{Status: resp.Status}
	var payload struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if json.Unmarshal(resp.Body, &payload) == nil {
		apiErr.Message, apiErr.Code = payload.Message, payload.Code
	}
	return nil, apiErr
}
