// Package client calls the PromptBoost HTTP API.
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
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/promptboost/internal/domain"
	"github.com/ashureev/promptboost/internal/identity"
	"github.com/containerd/errdefs"
)

// DefaultTimeout bounds a single call. It must exceed the server's request
// timeout so a slow generation is answered rather than abandoned.
const DefaultTimeout = 60 * time.Second

// Client is a thin JSON client over /api/v1. It implements feedback.Backend.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
}

// New creates a client for baseURL. An empty userID lets the server assign
// an anonymous cookie identity, which is lost between processes.
func New(baseURL, userID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userID:     userID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Enhance submits text (or a reroll) for enhancement.
func (c *Client) Enhance(ctx context.Context, req domain.EnhanceRequest) (*domain.EnhanceResponse, error) {
	var resp domain.EnhanceResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/enhance", req, &resp); err != nil {
		return nil, fmt.Errorf("enhance: %w", err)
	}
	return &resp, nil
}

// Feedback records a verdict for sessionID.
func (c *Client) Feedback(ctx context.Context, sessionID string, action domain.UserAction) (*domain.FeedbackResponse, error) {
	req := domain.FeedbackRequest{SessionID: sessionID, UserAction: string(action)}
	var resp domain.FeedbackResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/feedback", req, &resp); err != nil {
		return nil, fmt.Errorf("feedback: %w", err)
	}
	return &resp, nil
}

// Stats returns verdict counts across the ledger.
func (c *Client) Stats(ctx context.Context) (*domain.ActionStats, error) {
	var resp domain.ActionStats
	if err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &resp); err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return &resp, nil
}

// Recent lists the newest limit attempts.
func (c *Client) Recent(ctx context.Context, limit int) ([]domain.Attempt, error) {
	path := "/api/v1/attempts?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	var resp []domain.Attempt
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("recent attempts: %w", err)
	}
	return resp, nil
}

// RejectRecent marks the newest count attempts without feedback as rejected.
func (c *Client) RejectRecent(ctx context.Context, count int) (int64, error) {
	var resp domain.RejectRecentResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/attempts/reject-recent", domain.RejectRecentRequest{Count: count}, &resp); err != nil {
		return 0, fmt.Errorf("reject recent: %w", err)
	}
	return resp.Updated, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set(identity.UserIDHeaderName, c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errdefs.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// statusError turns a non-200 reply into an error of the matching class.
func statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(raw))
	}
	msg := fmt.Sprintf("server returned %d: %s", resp.StatusCode, payload.Error)

	var class error
	switch resp.StatusCode {
	case http.StatusBadRequest:
		class = errdefs.ErrInvalidArgument
	case http.StatusNotFound:
		class = errdefs.ErrNotFound
	case http.StatusConflict:
		class = domain.ErrActionConflict
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		class = domain.ErrGenerationUnavailable
	case http.StatusGatewayTimeout:
		class = context.DeadlineExceeded
	default:
		class = errdefs.ErrUnknown
	}
	return fmt.Errorf("%w: %s", class, msg)
}

// IsUnavailable reports whether err means the server could not be reached
// or could not generate.
func IsUnavailable(err error) bool {
	return errdefs.IsUnavailable(err) || errors.Is(err, context.DeadlineExceeded)
}
