// Package backend is the client for the remote Mustody REST API. Every call
// carries the session's bearer token and a request id; a 401 from any
// endpoint is handed to the registered unauthorized handler.
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
	"sync"
	"time"

	"mustody-console/core/utils"

	"github.com/gofrs/uuid/v5"
)

const (
	headerRequestID = "X-Request-ID"
	maxErrorBody    = 64 << 10
)

var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response other than 401.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *utils.Logger

	mu             sync.RWMutex
	token          func() string
	onUnauthorized func()
}

func NewClient(baseURL string, timeout time.Duration, logger *utils.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// SetTokenSource installs the function consulted for the bearer token on
// every request.
func (c *Client) SetTokenSource(fn func() string) {
	c.mu.Lock()
	c.token = fn
	c.mu.Unlock()
}

// SetUnauthorizedHandler installs the function called on any 401 response.
func (c *Client) SetUnauthorizedHandler(fn func()) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

func (c *Client) hooks() (func() string, func()) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.onUnauthorized
}

// send performs the request and returns the response only for 2xx statuses.
func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id, err := uuid.NewV4(); err == nil {
		req.Header.Set(headerRequestID, id.String())
	}
	tokenFn, onUnauthorized := c.hooks()
	if tokenFn != nil {
		if tok := tokenFn(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	msg := readErrorMessage(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized {
		if c.logger != nil {
			c.logger.Warnf("backend %s %s unauthorized request_id=%s", method, path, req.Header.Get(headerRequestID))
		}
		if onUnauthorized != nil {
			onUnauthorized()
		}
		if msg != "" {
			return nil, fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		}
		return nil, ErrUnauthorized
	}
	return nil, &APIError{Status: resp.StatusCode, Message: msg}
}

// do sends body as JSON and decodes the response into target when set.
func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		if er.Error != "" {
			return er.Error
		}
		if er.Message != "" {
			return er.Message
		}
	}
	return strings.TrimSpace(string(body))
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
