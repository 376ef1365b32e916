// Package verify talks to the external caller-verification service.
package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const defaultTimeout = 5 * time.Second

// Result is the verification service's answer for one attempt.
type Result struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Verifier submits a caller's verification value for a session and
// reports the outcome.
type Verifier interface {
	Submit(ctx context.Context, sessionID, method, value string) (Result, error)
}

// Client is an HTTP Verifier. A request that produces no answer within
// the configured timeout comes back as a rejection with reason
// "timeout" rather than an error, so a stuck service can never leave a
// session pending forever.
type Client struct {
	baseURL   string
	authToken string
	timeout   time.Duration
	http      *http.Client
}

func NewClient(baseURL, authToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:   baseURL,
		authToken: authToken,
		timeout:   timeout,
		http:      &http.Client{},
	}
}

type submitRequest struct {
	SessionID string `json:"sessionId"`
	Method    string `json:"method"`
	Value     string `json:"value"`
}

// Submit posts the attempt to the verification service.
func (c *Client) Submit(ctx context.Context, sessionID, method, value string) (Result, error) {
	body, err := json.Marshal(submitRequest{SessionID: sessionID, Method: method, Value: value})
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verifications", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{Accepted: false, Reason: "timeout"}, nil
		}
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("verification service: unexpected status %d", resp.StatusCode)
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Result{}, fmt.Errorf("verification service: bad response: %w", err)
	}
	return res, nil
}
