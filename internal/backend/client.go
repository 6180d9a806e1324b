// Package backend is the HTTP client for the hosted backend: PostgREST
// tables and RPC functions under /rest/v1, object storage under /storage/v1.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/clawinfra/confessly/internal/retry"
)

// Config holds connection settings.
type Config struct {
	URL     string
	AnonKey string
	Timeout time.Duration
	Retry   retry.Options
}

// Client talks to the backend. Every request is retried in-line on
// transient failures according to Config.Retry.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	auth       *Auth
	logger     *slog.Logger

	mu    sync.RWMutex
	retry retry.Options
}

// NewClient creates a client. auth may be nil, in which case requests use
// the anon key and CurrentUser always fails.
func NewClient(cfg Config, auth *Auth, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if auth == nil {
		auth = NewAuth()
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		anonKey:    cfg.AnonKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry:      cfg.Retry,
		auth:       auth,
		logger:     logger.With("component", "backend"),
	}
	onRetry := cfg.Retry.OnRetry
	c.retry.OnRetry = func(err error, attempt int, delay time.Duration) {
		c.logger.Debug("retrying backend request", "attempt", attempt+1, "delay", delay, "error", err)
		if onRetry != nil {
			onRetry(err, attempt, delay)
		}
	}
	return c
}

// Auth returns the session holder used for requests.
func (c *Client) Auth() *Auth { return c.auth }

// SetRetryOptions replaces the in-line retry policy. Requests already
// running keep the policy they started with.
func (c *Client) SetRetryOptions(opts retry.Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	opts.OnRetry = c.retry.OnRetry
	c.retry = opts
}

func (c *Client) retryOptions() retry.Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.retry
}

// CurrentUser resolves the signed-in user from the session.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	return c.auth.CurrentUser(ctx)
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	headers     map[string]string
}

func jsonRequest(method, path string, query url.Values, body any) (request, error) {
	req := request{method: method, path: path, query: query, headers: map[string]string{}}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return req, fmt.Errorf("backend: marshal body: %w", err)
		}
		req.body = data
		req.contentType = "application/json"
	}
	return req, nil
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// do executes req with retries.
func (c *Client) do(ctx context.Context, req request) (*response, error) {
	return retry.DoValue(ctx, c.retryOptions(), func(ctx context.Context) (*response, error) {
		return c.doOnce(ctx, req)
	})
}

func (c *Client) doOnce(ctx context.Context, req request) (*response, error) {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("backend: create request: %w", err)
	}

	httpReq.Header.Set("apikey", c.anonKey)
	token := c.anonKey
	if s, ok := c.auth.Session(); ok && s.AccessToken != "" {
		token = s.AccessToken
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("backend: %s %s: %w", req.method, req.path, err)
	}
	defer httpResp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend: read response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		apiErr := &APIError{Status: httpResp.StatusCode}
		if len(respBody) > 0 {
			var storageErr struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(respBody, apiErr) != nil {
				apiErr.Message = string(respBody)
			} else if apiErr.Message == "" && json.Unmarshal(respBody, &storageErr) == nil {
				apiErr.Message = storageErr.Error
			}
			apiErr.Status = httpResp.StatusCode
		}
		return nil, apiErr
	}

	return &response{status: httpResp.StatusCode, header: httpResp.Header, body: respBody}, nil
}
