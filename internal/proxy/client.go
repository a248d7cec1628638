// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package proxy

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the proxy client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches ClientErrors by type so sentinel comparisons work.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeInvalidResponse
	ErrTypeHTTP
	ErrTypeAction
	ErrTypeNoTerminal
)

// Sentinel errors for easy checking.
var (
	// ErrNoTerminalEvent means the /chat stream closed cleanly
	// without a done or error event: the "no response" condition.
	ErrNoTerminalEvent = &ClientError{Type: ErrTypeNoTerminal, Message: "stream ended without a response"}

	// ErrUnreachable means the proxy could not be reached at all.
	ErrUnreachable = &ClientError{Type: ErrTypeConnection, Message: "proxy is unreachable"}
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the proxy client.
type ClientConfig struct {
	// BaseURL is the proxy base URL, e.g. https://pve.lan:5555
	BaseURL string

	// InsecureTLS skips certificate verification. Proxmox serves its
	// self-signed pve-ssl certificate, so this is usually on.
	InsecureTLS bool

	// ExecuteTimeout bounds a single /execute attempt. The proxy can
	// legitimately block for minutes (template downloads, deletes),
	// so the default is generous (default: 10m).
	ExecuteTimeout time.Duration

	// RetryAttempts is the total number of /execute attempts on
	// transport failure (default: 3).
	RetryAttempts int

	// RetryDelay is the fixed delay between attempts (default: 1.5s).
	RetryDelay time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:        "https://localhost:5555",
		ExecuteTimeout: 10 * time.Minute,
		RetryAttempts:  3,
		RetryDelay:     1500 * time.Millisecond,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the PVE AI proxy. It is safe for concurrent use,
// though the turn controller only ever runs one stream at a time.
type Client struct {
	config *ClientConfig

	// executeClient bounds /execute attempts; streamClient carries no
	// overall timeout because a chat turn streams for as long as the
	// backend works.
	executeClient *http.Client
	streamClient  *http.Client
}

// NewClient creates a proxy client with the given configuration.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://localhost:5555"
	}
	if config.ExecuteTimeout == 0 {
		config.ExecuteTimeout = 10 * time.Minute
	}
	if config.RetryAttempts == 0 {
		config.RetryAttempts = 3
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 1500 * time.Millisecond
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		config: config,
		executeClient: &http.Client{
			Timeout:   config.ExecuteTimeout,
			Transport: transport,
		},
		streamClient: &http.Client{
			Transport: transport,
		},
	}
}

// =============================================================================
// CHAT STREAMING
// =============================================================================

// ChatStream opens a /chat turn and dispatches each stream event to
// fn in arrival order. It blocks until a terminal event, end of
// stream, or context cancellation. A clean end of stream without a
// terminal event returns ErrNoTerminalEvent.
func (c *Client) ChatStream(ctx context.Context, model, apiKey string, messages []Message, fn func(Event)) error {
	body, err := json.Marshal(chatRequest{Model: model, APIKey: apiKey, Messages: messages})
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal chat request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ClientError{Type: ErrTypeConnection, Message: "chat request failed", Cause: err}
	}
	defer resp.Body.Close()

	// A non-200 here is a plain JSON error (missing model/key), not a
	// stream.
	if resp.StatusCode != http.StatusOK {
		return c.readHTTPError(resp)
	}

	return NewStreamReader(resp.Body).Process(ctx, fn)
}

// readHTTPError extracts the error text from a non-streaming reply.
func (c *Client) readHTTPError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	msg := "proxy returned " + resp.Status
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &ClientError{Type: ErrTypeHTTP, Message: msg}
}

// =============================================================================
// ACTION EXECUTION
// =============================================================================

// Execute performs one backend action via /execute. Transport
// failures are retried up to RetryAttempts total attempts with a
// fixed RetryDelay between them; a well-formed response is returned
// as-is even when it encodes success=false, so application-level
// failures are never retried.
func (c *Client) Execute(ctx context.Context, action string, params map[string]any) (*Result, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(executeRequest{Action: action, Params: params})
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal execute request", Cause: err}
	}

	var lastErr error
	for attempt := 0; attempt < c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.config.RetryDelay); err != nil {
				return nil, err
			}
		}

		data, err := c.executeOnce(ctx, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		var result Result
		if err := json.Unmarshal(data, &result); err != nil {
			// A reply arrived but wasn't the protocol: not a
			// transport flake, so retrying won't help.
			return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "invalid execute response", Cause: err}
		}
		return &result, nil
	}

	return nil, &ClientError{Type: ErrTypeConnection, Message: "execute failed after retries", Cause: lastErr}
}

// executeOnce performs a single /execute attempt and returns the raw
// body. The proxy wraps action failures in a JSON body even on HTTP
// 500, so the status code is not inspected here.
func (c *Client) executeOnce(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.executeClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsCancellation reports whether err is the turn's own cancellation
// (the request's context aborting) rather than a real failure.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
