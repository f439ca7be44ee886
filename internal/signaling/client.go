package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the call API on behalf of one device user.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

func NewClient(baseURL, accessToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type ringingCall struct {
	CallID     string    `json:"call_id"`
	CallerID   string    `json:"caller_id"`
	CallerName string    `json:"caller_name"`
	Medium     string    `json:"medium"`
	ChannelRef string    `json:"channel_ref"`
	CreatedAt  time.Time `json:"created_at"`
}

type ringingResponse struct {
	Calls []ringingCall `json:"calls"`
}

// Ringing implements RingingSource.
func (c *Client) Ringing(ctx context.Context) ([]Envelope, error) {
	var out ringingResponse
	if err := c.do(ctx, http.MethodGet, "/v1/calls/ringing", nil, &out); err != nil {
		return nil, err
	}
	envs := make([]Envelope, 0, len(out.Calls))
	for _, rc := range out.Calls {
		envs = append(envs, Envelope{
			CallID:     rc.CallID,
			Type:       EventIncoming,
			CallerID:   rc.CallerID,
			CallerName: rc.CallerName,
			Medium:     rc.Medium,
			ChannelRef: rc.ChannelRef,
			Timestamp:  rc.CreatedAt,
			Source:     ChannelPolling,
		})
	}
	return envs, nil
}

// Ticket is the media session entry for a call.
type Ticket struct {
	ChannelRef   string `json:"channel_ref"`
	SessionToken string `json:"session_token"`
}

// FetchToken gets the session token lazily, for pushes that arrived without one.
func (c *Client) FetchToken(ctx context.Context, callID string) (Ticket, error) {
	var out Ticket
	err := c.do(ctx, http.MethodGet, "/v1/calls/"+url.PathEscape(callID)+"/token", nil, &out)
	return out, err
}

func (c *Client) ReportJoined(ctx context.Context, callID string) error {
	return c.do(ctx, http.MethodPost, "/v1/calls/"+url.PathEscape(callID)+"/joined", nil, nil)
}

func (c *Client) Reject(ctx context.Context, callID string) error {
	return c.do(ctx, http.MethodPost, "/v1/calls/"+url.PathEscape(callID)+"/reject", nil, nil)
}

func (c *Client) End(ctx context.Context, callID string) error {
	return c.do(ctx, http.MethodPost, "/v1/calls/"+url.PathEscape(callID)+"/end", nil, nil)
}

// ReportMissed implements MissedReporter.
func (c *Client) ReportMissed(ctx context.Context, callID string) error {
	return c.do(ctx, http.MethodPost, "/v1/calls/"+url.PathEscape(callID)+"/missed", nil, nil)
}

// StatusError is a non-2xx API response.
type StatusError struct {
	Status int
	Code   string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("call api: status %d: %s", e.Status, e.Code)
	}
	return fmt.Sprintf("call api: status %d", e.Status)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("call api base URL is not configured")
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &StatusError{Status: resp.StatusCode, Code: apiErr.Error}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
