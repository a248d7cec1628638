// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package proxy

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func collectEvents(t *testing.T, input string) ([]Event, error) {
	t.Helper()
	var events []Event
	err := NewStreamReader(strings.NewReader(input)).Process(context.Background(), func(ev Event) {
		events = append(events, ev)
	})
	return events, err
}

func TestStreamReaderParsesEventsInOrder(t *testing.T) {
	input := `{"type":"status","message":"Reading server state..."}
{"type":"shell_start","vmid":"105","command":"ls","node":"pve"}
{"type":"shell_output","vmid":"105","output":"bin\n"}
{"type":"shell_end","vmid":"105","exit_code":0}
{"type":"done","response":"All set."}
`
	events, err := collectEvents(t, input)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	kinds := []EventKind{KindStatus, KindShellStart, KindShellOutput, KindShellEnd, KindDone}
	if len(events) != len(kinds) {
		t.Fatalf("expected %d events, got %d", len(kinds), len(events))
	}
	for i, k := range kinds {
		if events[i].Kind() != k {
			t.Errorf("event %d kind = %v, want %v", i, events[i].Kind(), k)
		}
	}

	done := events[4].(DoneEvent)
	if done.Response != "All set." {
		t.Errorf("done response = %q", done.Response)
	}
}

func TestStreamReaderDropsMalformedLines(t *testing.T) {
	// A garbage line between two valid status lines: both statuses
	// are applied and nothing blows up.
	input := `{"type":"status","message":"first"}
"not json"
{"type":"status","message":"second"}
{"type":"done","response":"ok"}
`
	events, err := collectEvents(t, input)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].(StatusEvent).Message != "first" || events[1].(StatusEvent).Message != "second" {
		t.Errorf("status messages lost: %+v", events)
	}
}

func TestStreamReaderGarbageOnlyStream(t *testing.T) {
	input := "garbage\n{{{\n\n"
	events, err := collectEvents(t, input)
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
	if !errors.Is(err, ErrNoTerminalEvent) {
		t.Errorf("expected ErrNoTerminalEvent, got %v", err)
	}
}

func TestStreamReaderNoTerminalEvent(t *testing.T) {
	input := `{"type":"status","message":"Thinking..."}` + "\n"
	events, err := collectEvents(t, input)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if !errors.Is(err, ErrNoTerminalEvent) {
		t.Errorf("expected ErrNoTerminalEvent, got %v", err)
	}
}

func TestStreamReaderTrailingFragment(t *testing.T) {
	// The final line has no newline; it is still parsed.
	input := `{"type":"status","message":"a"}` + "\n" + `{"type":"done","response":"fin"}`
	events, err := collectEvents(t, input)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(events) != 2 || events[1].(DoneEvent).Response != "fin" {
		t.Errorf("trailing fragment not parsed: %+v", events)
	}
}

func TestStreamReaderSplitAcrossReads(t *testing.T) {
	// One JSON line delivered in several chunks: the partial fragment
	// must be retained until its newline arrives.
	r := iotest{chunks: []string{
		`{"type":"sta`,
		`tus","message":"split"}` + "\n",
		`{"type":"done","resp`,
		`onse":"ok"}` + "\n",
	}}
	var events []Event
	err := NewStreamReader(&r).Process(context.Background(), func(ev Event) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].(StatusEvent).Message != "split" {
		t.Errorf("split line mangled: %+v", events[0])
	}
}

func TestStreamReaderStopsAfterTerminal(t *testing.T) {
	// Events after done are not dispatched.
	input := `{"type":"done","response":"ok"}
{"type":"status","message":"late"}
`
	events, err := collectEvents(t, input)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected dispatch to stop after done, got %d events", len(events))
	}
}

func TestStreamReaderContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewStreamReader(strings.NewReader("")).Process(ctx, func(Event) {})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestIDAcceptsNumberAndString(t *testing.T) {
	// created_vmid arrives as a number, shell vmid as a string; both
	// normalize to the same identifier.
	ev, ok := parseEvent([]byte(`{"type":"status","message":"m","created_vmid":105,"created_type":"ct"}`))
	if !ok {
		t.Fatal("status line did not parse")
	}
	if ev.(StatusEvent).CreatedVMID != "105" {
		t.Errorf("numeric created_vmid = %q, want %q", ev.(StatusEvent).CreatedVMID, "105")
	}

	ev, ok = parseEvent([]byte(`{"type":"shell_start","vmid":"host","command":"uptime","node":"pve","is_host":true}`))
	if !ok {
		t.Fatal("shell_start line did not parse")
	}
	start := ev.(ShellStartEvent)
	if start.VMID != "host" || !start.IsHost {
		t.Errorf("host shell_start mangled: %+v", start)
	}

	// Numeric vmid in shell events (Scenario B shape).
	ev, ok = parseEvent([]byte(`{"type":"shell_start","vmid":105,"command":"ls","node":"pve"}`))
	if !ok {
		t.Fatal("numeric-vmid shell_start did not parse")
	}
	if ev.(ShellStartEvent).VMID != "105" {
		t.Errorf("numeric vmid = %q", ev.(ShellStartEvent).VMID)
	}
}

func TestParseEventUnknownType(t *testing.T) {
	if _, ok := parseEvent([]byte(`{"type":"heartbeat"}`)); ok {
		t.Error("unknown event type should be dropped")
	}
}

// iotest serves pre-cut chunks one Read at a time, then EOF.
type iotest struct {
	chunks []string
	idx    int
}

func (r *iotest) Read(p []byte) (int, error) {
	if r.idx >= len(r.chunks) {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[r.idx])
	r.idx++
	return n, nil
}
