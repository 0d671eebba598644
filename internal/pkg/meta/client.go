package meta

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
)

// APIError is a non-2xx Graph API response. 429 and 5xx are transient,
// every other status is permanent.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph API error %d: %s", e.StatusCode, e.Body)
}

// Permanent reports whether repeating the call cannot succeed.
func (e *APIError) Permanent() bool {
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 {
		return false
	}
	return e.StatusCode >= 400
}

// Platform performs moderation actions on behalf of a connected account.
type Platform interface {
	DeleteComment(ctx context.Context, commentID, accessToken string) error
	ReplyToComment(ctx context.Context, commentID, message, accessToken string) error
	SendDM(ctx context.Context, recipientID, message, accessToken string) error
}

// Client is a minimal Instagram Graph API client.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a Graph API client. Each call is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

func (c *Client) DeleteComment(ctx context.Context, commentID, accessToken string) error {
	return c.do(ctx, http.MethodDelete, "/"+url.PathEscape(commentID), accessToken, nil)
}

func (c *Client) ReplyToComment(ctx context.Context, commentID, message, accessToken string) error {
	body := map[string]string{"message": message}
	return c.do(ctx, http.MethodPost, "/"+url.PathEscape(commentID)+"/replies", accessToken, body)
}

func (c *Client) SendDM(ctx context.Context, recipientID, message, accessToken string) error {
	body := map[string]interface{}{
		"recipient":      map[string]string{"id": recipientID},
		"message":        map[string]string{"text": message},
		"messaging_type": "RESPONSE",
	}
	return c.do(ctx, http.MethodPost, "/me/messages", accessToken, body)
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, payload interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := c.baseURL + path + "?access_token=" + url.QueryEscape(accessToken)

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error embeds the URL and with it the access token
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("graph API %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
