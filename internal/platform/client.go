// Package platform is the adapter over the social publishing endpoint. All
// outbound calls carry a bounded timeout and pass through a shared circuit
// breaker; failures are mapped to *Error so callers never see raw HTTP
// error shapes.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

type PostContent struct {
	Text      string   `json:"text"`
	Title     string   `json:"title,omitempty"`
	MediaURLs []string `json:"media_urls,omitempty"`
}

type Client struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	baseURL string
	timeout time.Duration
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "social-platform",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Client{
		http:    &http.Client{},
		breaker: cb,
		baseURL: baseURL,
		timeout: timeout,
	}
}

type publishResponse struct {
	RemoteID  string `json:"remote_id"`
	CommentID string `json:"comment_id"`
	Error     *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Publish creates the post on one target and returns the remote id assigned
// by the platform.
func (c *Client) Publish(ctx context.Context, targetID, accessToken string, content PostContent) (string, error) {
	path := fmt.Sprintf("/v1/targets/%s/posts", targetID)
	resp, err := c.do(ctx, http.MethodPost, path, accessToken, content)
	if err != nil {
		return "", err
	}
	return resp.RemoteID, nil
}

func (c *Client) Edit(ctx context.Context, remoteID, accessToken, newText string) error {
	path := fmt.Sprintf("/v1/posts/%s", remoteID)
	_, err := c.do(ctx, http.MethodPut, path, accessToken, map[string]string{"text": newText})
	return err
}

func (c *Client) Delete(ctx context.Context, remoteID, accessToken string) error {
	path := fmt.Sprintf("/v1/posts/%s", remoteID)
	_, err := c.do(ctx, http.MethodDelete, path, accessToken, nil)
	return err
}

func (c *Client) Comment(ctx context.Context, remoteID, accessToken, text string) (string, error) {
	path := fmt.Sprintf("/v1/posts/%s/comments", remoteID)
	resp, err := c.do(ctx, http.MethodPost, path, accessToken, map[string]string{"text": text})
	if err != nil {
		return "", err
	}
	return resp.CommentID, nil
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, body any) (*publishResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// 5xx counts as a breaker failure; everything else the platform answers
	// with, including 429, is the platform working as intended.
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, &Error{
				Code:       ErrCodeUnavailable,
				Message:    http.StatusText(resp.StatusCode),
				StatusCode: resp.StatusCode,
				Retryable:  true,
			}
		}
		return resp, nil
	})
	if err != nil {
		return nil, mapTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Code: ErrCodeUnavailable, Message: err.Error(), Retryable: true}
	}

	var parsed publishResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil && resp.StatusCode < 300 {
			return nil, &Error{Code: ErrCodeRejected, Message: "malformed platform response", StatusCode: resp.StatusCode}
		}
	}

	if resp.StatusCode >= 300 {
		return nil, mapStatusError(resp.StatusCode, &parsed)
	}
	return &parsed, nil
}

func mapTransportError(err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &Error{Code: ErrCodeUnavailable, Message: "platform circuit open", Retryable: true}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: ErrCodeTimeout, Message: "platform call timed out", Retryable: true}
	}
	return &Error{Code: ErrCodeUnavailable, Message: err.Error(), Retryable: true}
}

func mapStatusError(status int, resp *publishResponse) error {
	code := ErrCodeRejected
	message := http.StatusText(status)
	if resp.Error != nil {
		if resp.Error.Code != "" {
			code = resp.Error.Code
		}
		if resp.Error.Message != "" {
			message = resp.Error.Message
		}
	}

	if status == http.StatusTooManyRequests {
		if resp.Error == nil || resp.Error.Code == "" {
			code = ErrCodeRateLimited
		}
		return &Error{Code: code, Message: message, StatusCode: status, Retryable: true}
	}
	return &Error{Code: code, Message: message, StatusCode: status}
}
