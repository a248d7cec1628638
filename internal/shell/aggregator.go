// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package shell aggregates shell_start/shell_output/shell_end stream
// events into per-resource command threads for display.
//
// Output arrives as many small fragments. Rendering each one would
// redraw the terminal hundreds of times per second, so fragment
// arrivals are coalesced: the first fragment after a quiet period
// schedules a render and every fragment inside the window rides along
// with it. Command start and end are rendered immediately.
package shell

import (
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/pvechat-tui/internal/proxy"
	"github.com/jeranaias/pvechat-tui/internal/util"
)

// =============================================================================
// AGGREGATOR
// =============================================================================

// DebounceInterval is the output coalescing window.
const DebounceInterval = 100 * time.Millisecond

// TailLimit is how many trailing output lines a snapshot keeps per
// command; everything above it is summarized as a hidden count.
const TailLimit = 8

// RenderFunc is called when the aggregated view changed and should be
// redrawn. It may be called from a timer goroutine, so implementations
// must be safe to invoke off the UI loop (post a message, don't draw).
type RenderFunc func()

// Aggregator collects shell events into threads keyed by resource.
// Thread-safety: events arrive from the streaming goroutine while
// snapshots are taken from the render loop.
type Aggregator struct {
	mu       sync.Mutex
	notify   RenderFunc
	debounce time.Duration
	threads  map[proxy.ID]*thread
	order    []proxy.ID
	timer    *time.Timer
}

type thread struct {
	node    string
	isHost  bool
	entries []*entry
}

type entry struct {
	command  string
	output   strings.Builder
	exitCode *int
}

// NewAggregator creates an aggregator that calls notify on changes.
func NewAggregator(notify RenderFunc) *Aggregator {
	if notify == nil {
		notify = func() {}
	}
	return &Aggregator{
		notify:   notify,
		debounce: DebounceInterval,
		threads:  make(map[proxy.ID]*thread),
	}
}

// Apply folds one stream event into the aggregate. Non-shell events
// are ignored so the event loop can feed everything through.
func (a *Aggregator) Apply(ev proxy.Event) {
	switch e := ev.(type) {
	case proxy.ShellStartEvent:
		a.handleStart(e)
	case proxy.ShellOutputEvent:
		a.handleOutput(e)
	case proxy.ShellEndEvent:
		a.handleEnd(e)
	}
}

func (a *Aggregator) handleStart(ev proxy.ShellStartEvent) {
	a.mu.Lock()
	th := a.threadLocked(ev.VMID)
	th.node = ev.Node
	th.isHost = ev.IsHost
	th.entries = append(th.entries, &entry{command: ev.Command})
	a.stopTimerLocked()
	a.mu.Unlock()

	a.notify()
}

func (a *Aggregator) handleOutput(ev proxy.ShellOutputEvent) {
	a.mu.Lock()
	th := a.threadLocked(ev.VMID)

	// Output with no open command (start frame lost, or output
	// straggling after shell_end) opens an implicit entry rather than
	// being dropped.
	var last *entry
	if n := len(th.entries); n > 0 && th.entries[n-1].exitCode == nil {
		last = th.entries[n-1]
	} else {
		last = &entry{}
		th.entries = append(th.entries, last)
	}
	last.output.WriteString(ev.Output)

	// One pending render per burst.
	if a.timer == nil {
		a.timer = time.AfterFunc(a.debounce, a.flushPending)
	}
	a.mu.Unlock()
}

func (a *Aggregator) handleEnd(ev proxy.ShellEndEvent) {
	a.mu.Lock()
	th, ok := a.threads[ev.VMID]
	if !ok {
		a.mu.Unlock()
		return
	}
	for i := len(th.entries) - 1; i >= 0; i-- {
		if th.entries[i].exitCode == nil {
			code := ev.ExitCode
			th.entries[i].exitCode = &code
			break
		}
	}
	a.stopTimerLocked()
	a.mu.Unlock()

	a.notify()
}

func (a *Aggregator) flushPending() {
	a.mu.Lock()
	a.timer = nil
	a.mu.Unlock()
	a.notify()
}

// threadLocked returns the thread for vmid, creating it in arrival
// order.
func (a *Aggregator) threadLocked(vmid proxy.ID) *thread {
	if th, ok := a.threads[vmid]; ok {
		return th
	}
	th := &thread{}
	a.threads[vmid] = th
	a.order = append(a.order, vmid)
	return th
}

func (a *Aggregator) stopTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// Reset drops all threads and any pending render. Used when a new
// turn starts or the current one is cancelled.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopTimerLocked()
	a.threads = make(map[proxy.ID]*thread)
	a.order = nil
}

// Running reports whether any command is still open.
func (a *Aggregator) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, th := range a.threads {
		for _, e := range th.entries {
			if e.exitCode == nil {
				return true
			}
		}
	}
	return false
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// Thread is the renderable view of one resource's commands.
type Thread struct {
	VMID    proxy.ID
	Node    string
	IsHost  bool
	Entries []Entry
}

// Entry is one command with its trailing output.
type Entry struct {
	Command  string
	Lines    []string // last TailLimit non-blank output lines
	Hidden   int      // non-blank lines above the tail
	ExitCode *int     // nil while running
	Running  bool
}

// Snapshot returns the current threads in arrival order. The result
// shares nothing with the aggregator and is safe to render while
// events keep arriving.
func (a *Aggregator) Snapshot() []Thread {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Thread, 0, len(a.order))
	for _, vmid := range a.order {
		th := a.threads[vmid]
		view := Thread{VMID: vmid, Node: th.node, IsHost: th.isHost}
		for _, e := range th.entries {
			lines, hidden := util.TailLines(e.output.String(), TailLimit)
			var code *int
			if e.exitCode != nil {
				c := *e.exitCode
				code = &c
			}
			view.Entries = append(view.Entries, Entry{
				Command:  e.command,
				Lines:    lines,
				Hidden:   hidden,
				ExitCode: code,
				Running:  e.exitCode == nil,
			})
		}
		out = append(out, view)
	}
	return out
}
