package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Backend is the recording service the controller talks to. All
// operations are keyed by device, sessions by the identifier the
// backend assigned at start time.
type Backend interface {
	StartRecording(ctx context.Context, deviceID string) (sessionID string, err error)
	StopRecording(ctx context.Context, deviceID, sessionID string) (durationSeconds int, err error)
	Finalize(ctx context.Context, deviceID, sessionID string) (urls []string, err error)
	RecordingURLs(ctx context.Context, deviceID, sessionID string) (urls []string, err error)
	DeleteRecording(ctx context.Context, deviceID, sessionID string) error
	ListenerCount(ctx context.Context) (int, error)
}

// Client implements Backend over the service's REST interface.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

type startResponse struct {
	SessionID string `json:"sessionId"`
}

type stopResponse struct {
	DurationSeconds int `json:"durationSeconds"`
}

type urlsResponse struct {
	URLs []string `json:"urls"`
}

type countResponse struct {
	Count int `json:"count"`
}

func (c *Client) StartRecording(ctx context.Context, deviceID string) (string, error) {
	var out startResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/start-record/%s", deviceID), &out); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("backend returned no session id")
	}
	return out.SessionID, nil
}

func (c *Client) StopRecording(ctx context.Context, deviceID, sessionID string) (int, error) {
	var out stopResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/stop-record/%s/%s", deviceID, sessionID), &out); err != nil {
		return 0, err
	}
	return out.DurationSeconds, nil
}

func (c *Client) Finalize(ctx context.Context, deviceID, sessionID string) ([]string, error) {
	var out urlsResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/finalize/%s/%s", deviceID, sessionID), &out); err != nil {
		return nil, err
	}
	return out.URLs, nil
}

func (c *Client) RecordingURLs(ctx context.Context, deviceID, sessionID string) ([]string, error) {
	var out urlsResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/get-recording-urls/%s/%s", deviceID, sessionID), &out); err != nil {
		return nil, err
	}
	return out.URLs, nil
}

func (c *Client) DeleteRecording(ctx context.Context, deviceID, sessionID string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/delete-record/%s/%s", deviceID, sessionID), nil)
}

func (c *Client) ListenerCount(ctx context.Context) (int, error) {
	var out countResponse
	if err := c.do(ctx, http.MethodGet, "/listener-count", &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// do performs one request and decodes the JSON body into out when it
// is non-nil. Non-2xx responses come back as errors.
func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed",
			zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("backend returned error status",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
