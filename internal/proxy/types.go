// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package proxy provides the HTTP client for the PVE AI proxy: the
// streaming /chat endpoint and the single-shot /execute endpoint.
package proxy

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// Message is one chat message on the wire.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// chatRequest is the /chat request body.
type chatRequest struct {
	Model    string    `json:"model"`
	APIKey   string    `json:"api_key"`
	Messages []Message `json:"messages"`
}

// executeRequest is the /execute request body.
type executeRequest struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

// Result is the /execute response body. Success=false with an Error
// text is an application-level failure, not a transport error.
type Result struct {
	Success  bool            `json:"success"`
	Error    string          `json:"error,omitempty"`
	Message  string          `json:"message,omitempty"`
	VMID     ID              `json:"vmid,omitempty"`
	Output   string          `json:"output,omitempty"`
	Stderr   string          `json:"stderr,omitempty"`
	ExitCode *int            `json:"exit_code,omitempty"`
	VolID    string          `json:"volid,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Err returns the application-level failure as an error, or nil.
func (r *Result) Err() error {
	if r.Success {
		return nil
	}
	msg := r.Error
	if msg == "" {
		msg = "action failed"
	}
	return &ClientError{Type: ErrTypeAction, Message: msg}
}

// =============================================================================
// FLEXIBLE IDENTIFIERS
// =============================================================================

// ID is a resource identifier (vmid) as the proxy emits it. Shell
// events carry it as a string ("105", or "host" for host shells)
// while status events carry created_vmid as a number; both decode to
// the string form.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON emits the numeric form when the ID is numeric so the
// proxy's integer-typed params keep working.
func (id ID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.Atoi(string(id)); err == nil {
		return json.Marshal(n)
	}
	return json.Marshal(string(id))
}

// String returns the identifier text.
func (id ID) String() string { return string(id) }

// =============================================================================
// STREAM EVENTS
// =============================================================================

// EventKind discriminates stream event variants.
type EventKind int

const (
	KindStatus EventKind = iota
	KindShellStart
	KindShellOutput
	KindShellEnd
	KindDone
	KindError
)

// Event is the closed sum of events a /chat stream can produce.
// Dispatch with a type switch over the variant structs.
type Event interface {
	Kind() EventKind
}

// StatusEvent updates the busy indicator; it may also announce a
// resource the backend just provisioned.
type StatusEvent struct {
	Message     string
	CreatedVMID ID     // empty when no resource was created
	CreatedType string // "ct" or "vm" when CreatedVMID is set
}

// ShellStartEvent opens a new shell entry for a resource.
type ShellStartEvent struct {
	VMID    ID
	Command string
	Node    string
	IsHost  bool
}

// ShellOutputEvent appends output to the latest shell entry.
type ShellOutputEvent struct {
	VMID   ID
	Output string
}

// ShellEndEvent closes the latest shell entry with an exit code.
type ShellEndEvent struct {
	VMID     ID
	ExitCode int
}

// DoneEvent carries the final assistant response and ends the turn.
type DoneEvent struct {
	Response string
}

// ErrorEvent carries a backend-reported failure and ends the turn.
type ErrorEvent struct {
	Message string
}

func (StatusEvent) Kind() EventKind      { return KindStatus }
func (ShellStartEvent) Kind() EventKind  { return KindShellStart }
func (ShellOutputEvent) Kind() EventKind { return KindShellOutput }
func (ShellEndEvent) Kind() EventKind    { return KindShellEnd }
func (DoneEvent) Kind() EventKind        { return KindDone }
func (ErrorEvent) Kind() EventKind       { return KindError }

// IsTerminal reports whether ev ends the turn.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case DoneEvent, ErrorEvent:
		return true
	}
	return false
}

// wireEvent is the union of all NDJSON line shapes the proxy emits.
type wireEvent struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	CreatedVMID ID     `json:"created_vmid"`
	CreatedType string `json:"created_type"`
	VMID        ID     `json:"vmid"`
	Command     string `json:"command"`
	Node        string `json:"node"`
	IsHost      bool   `json:"is_host"`
	Output      string `json:"output"`
	ExitCode    *int   `json:"exit_code"`
	Response    string `json:"response"`
	Error       string `json:"error"`
}

// parseEvent maps one NDJSON line to an Event. ok is false for
// malformed lines and unknown types; those lines are dropped.
func parseEvent(line []byte) (Event, bool) {
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, false
	}

	switch w.Type {
	case "status":
		return StatusEvent{
			Message:     w.Message,
			CreatedVMID: w.CreatedVMID,
			CreatedType: w.CreatedType,
		}, true
	case "shell_start":
		return ShellStartEvent{
			VMID:    w.VMID,
			Command: w.Command,
			Node:    w.Node,
			IsHost:  w.IsHost || w.VMID == "host",
		}, true
	case "shell_output":
		return ShellOutputEvent{VMID: w.VMID, Output: w.Output}, true
	case "shell_end":
		code := 0
		if w.ExitCode != nil {
			code = *w.ExitCode
		}
		return ShellEndEvent{VMID: w.VMID, ExitCode: code}, true
	case "done":
		return DoneEvent{Response: w.Response}, true
	case "error":
		return ErrorEvent{Message: w.Error}, true
	}
	return nil, false
}
