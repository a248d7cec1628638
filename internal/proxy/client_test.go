// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// flakyTransport fails the first failures round trips at the
// transport level, then delegates to the real transport.
type flakyTransport struct {
	failures int32
	calls    int32
	inner    http.RoundTripper
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= atomic.LoadInt32(&f.failures) {
		return nil, errors.New("connection reset by peer")
	}
	return f.inner.RoundTrip(req)
}

func newExecuteServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(&ClientConfig{
		BaseURL:    srv.URL,
		RetryDelay: 10 * time.Millisecond, // keep tests fast; policy is attempt-count + fixed delay
	})
	return client, srv
}

func TestExecuteSuccess(t *testing.T) {
	client, _ := newExecuteServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req executeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Action != "stop_container" {
			t.Errorf("action = %q", req.Action)
		}
		fmt.Fprint(w, `{"success":true,"message":"Container 105 stopped successfully"}`)
	})

	result, err := client.Execute(context.Background(), "stop_container", map[string]any{"vmid": 105})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Success || result.Message == "" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestExecuteRetriesTransportFailures(t *testing.T) {
	client, _ := newExecuteServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true}`)
	})

	flaky := &flakyTransport{failures: 2, inner: client.executeClient.Transport}
	client.executeClient.Transport = flaky

	result, err := client.Execute(context.Background(), "list_containers", nil)
	if err != nil {
		t.Fatalf("Execute should succeed on the third attempt: %v", err)
	}
	if !result.Success {
		t.Errorf("unexpected result: %+v", result)
	}
	if got := atomic.LoadInt32(&flaky.calls); got != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", got)
	}
}

func TestExecuteExhaustsRetries(t *testing.T) {
	client, _ := newExecuteServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should never be reached")
	})

	flaky := &flakyTransport{failures: 100, inner: client.executeClient.Transport}
	client.executeClient.Transport = flaky

	start := time.Now()
	_, err := client.Execute(context.Background(), "list_vms", nil)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := atomic.LoadInt32(&flaky.calls); got != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", got)
	}
	// Two fixed delays between three attempts.
	if elapsed < 2*10*time.Millisecond {
		t.Errorf("expected at least two retry delays, elapsed %v", elapsed)
	}
	var ce *ClientError
	if !errors.As(err, &ce) || ce.Type != ErrTypeConnection {
		t.Errorf("expected connection ClientError, got %v", err)
	}
}

func TestExecuteDoesNotRetryApplicationFailure(t *testing.T) {
	var calls int32
	client, _ := newExecuteServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		// The proxy reports action failures as a well-formed payload,
		// sometimes with HTTP 500.
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"success":false,"error":"Container 105 is running. Stop it first with stop_container."}`)
	})

	result, err := client.Execute(context.Background(), "delete_container", map[string]any{"vmid": 105})
	if err != nil {
		t.Fatalf("application failure must be returned, not raised: %v", err)
	}
	if result.Success {
		t.Error("expected success=false")
	}
	if result.Err() == nil {
		t.Error("Result.Err should surface the failure")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("application failure must not be retried, got %d calls", got)
	}
}

func TestExecuteContextCancelDuringDelay(t *testing.T) {
	client, _ := newExecuteServer(t, func(w http.ResponseWriter, r *http.Request) {})
	client.config.RetryDelay = 5 * time.Second
	client.executeClient.Transport = &flakyTransport{failures: 100, inner: client.executeClient.Transport}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := client.Execute(ctx, "list_vms", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("cancel did not interrupt the retry delay")
	}
}

func TestChatStreamDeliversEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad chat body: %v", err)
		}
		if req.Model == "" || req.APIKey == "" {
			t.Errorf("model/api_key missing: %+v", req)
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, `{"type":"status","message":"Creating container"}`)
		flusher.Flush()
		fmt.Fprintln(w, `{"type":"done","response":"Done"}`)
		flusher.Flush()
	}))
	t.Cleanup(srv.Close)

	client := NewClient(&ClientConfig{BaseURL: srv.URL})

	var events []Event
	err := client.ChatStream(context.Background(), "gpt-5.2", "sk-test",
		[]Message{{Role: "user", Content: "make me a container"}},
		func(ev Event) { events = append(events, ev) })
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].(StatusEvent).Message != "Creating container" {
		t.Errorf("status = %+v", events[0])
	}
	if events[1].(DoneEvent).Response != "Done" {
		t.Errorf("done = %+v", events[1])
	}
}

func TestChatStreamHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"Missing model or api_key"}`)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(&ClientConfig{BaseURL: srv.URL})
	err := client.ChatStream(context.Background(), "", "", nil, func(Event) {})

	var ce *ClientError
	if !errors.As(err, &ce) || ce.Type != ErrTypeHTTP {
		t.Fatalf("expected HTTP ClientError, got %v", err)
	}
	if ce.Message != "Missing model or api_key" {
		t.Errorf("error message = %q", ce.Message)
	}
}

func TestChatStreamCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"type":"status","message":"Thinking..."}`)
		w.(http.Flusher).Flush()
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	client := NewClient(&ClientConfig{BaseURL: srv.URL})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.ChatStream(ctx, "gpt-5.2", "sk", nil, func(Event) {})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !IsCancellation(err) {
			t.Errorf("expected cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ChatStream did not return after cancel")
	}
}
