// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package shell

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jeranaias/pvechat-tui/internal/proxy"
)

// notifyCounter counts render notifications.
type notifyCounter struct {
	n int64
}

func (c *notifyCounter) fn() func()  { return func() { atomic.AddInt64(&c.n, 1) } }
func (c *notifyCounter) count() int64 { return atomic.LoadInt64(&c.n) }

func newTestAggregator(debounce time.Duration) (*Aggregator, *notifyCounter) {
	c := &notifyCounter{}
	a := NewAggregator(c.fn())
	a.debounce = debounce
	return a, c
}

func TestStartRendersImmediately(t *testing.T) {
	a, c := newTestAggregator(time.Hour)
	a.Apply(proxy.ShellStartEvent{VMID: "105", Command: "ls -la", Node: "pve"})
	if c.count() != 1 {
		t.Errorf("shell_start should render immediately, got %d renders", c.count())
	}
}

func TestOutputBurstRendersOnce(t *testing.T) {
	a, c := newTestAggregator(30 * time.Millisecond)
	a.Apply(proxy.ShellStartEvent{VMID: "105", Command: "apt update", Node: "pve"})
	base := c.count()

	// A burst of fragments inside one window.
	for i := 0; i < 20; i++ {
		a.Apply(proxy.ShellOutputEvent{VMID: "105", Output: fmt.Sprintf("line %d\n", i)})
	}
	if got := c.count(); got != base {
		t.Errorf("output must not render before the window elapses, got %d extra", got-base)
	}

	time.Sleep(100 * time.Millisecond)
	if got := c.count() - base; got != 1 {
		t.Errorf("burst should coalesce into exactly 1 render, got %d", got)
	}

	// All fragments survived the coalescing.
	snap := a.Snapshot()
	if len(snap) != 1 || len(snap[0].Entries) != 1 {
		t.Fatalf("unexpected snapshot shape: %+v", snap)
	}
	e := snap[0].Entries[0]
	if e.Hidden+len(e.Lines) != 20 {
		t.Errorf("expected 20 output lines accounted for, got %d shown + %d hidden", len(e.Lines), e.Hidden)
	}
}

func TestEndRendersImmediatelyAndCancelsPending(t *testing.T) {
	a, c := newTestAggregator(50 * time.Millisecond)
	a.Apply(proxy.ShellStartEvent{VMID: "105", Command: "true", Node: "pve"})
	a.Apply(proxy.ShellOutputEvent{VMID: "105", Output: "ok\n"})
	base := c.count()

	a.Apply(proxy.ShellEndEvent{VMID: "105", ExitCode: 0})
	if c.count() != base+1 {
		t.Errorf("shell_end should render immediately, got %d", c.count()-base)
	}

	// The pending output render was absorbed; nothing fires later.
	time.Sleep(120 * time.Millisecond)
	if c.count() != base+1 {
		t.Errorf("pending render should have been cancelled, got %d", c.count()-base)
	}
}

func TestSnapshotTailAndExit(t *testing.T) {
	a, _ := newTestAggregator(time.Hour)
	a.Apply(proxy.ShellStartEvent{VMID: "105", Command: "dmesg", Node: "pve"})
	var sb strings.Builder
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	a.Apply(proxy.ShellOutputEvent{VMID: "105", Output: sb.String()})
	a.Apply(proxy.ShellEndEvent{VMID: "105", ExitCode: 2})

	snap := a.Snapshot()
	e := snap[0].Entries[0]
	if len(e.Lines) != TailLimit || e.Hidden != 12-TailLimit {
		t.Errorf("tail = %d lines + %d hidden, want %d + %d", len(e.Lines), e.Hidden, TailLimit, 12-TailLimit)
	}
	if e.Lines[len(e.Lines)-1] != "line 11" {
		t.Errorf("last line = %q", e.Lines[len(e.Lines)-1])
	}
	if e.Running || e.ExitCode == nil || *e.ExitCode != 2 {
		t.Errorf("exit state wrong: %+v", e)
	}
}

func TestThreadsKeepArrivalOrder(t *testing.T) {
	a, _ := newTestAggregator(time.Hour)
	a.Apply(proxy.ShellStartEvent{VMID: "host", Command: "uptime", Node: "pve", IsHost: true})
	a.Apply(proxy.ShellStartEvent{VMID: "105", Command: "ls", Node: "pve"})
	a.Apply(proxy.ShellStartEvent{VMID: "host", Command: "df -h", Node: "pve", IsHost: true})

	snap := a.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(snap))
	}
	if snap[0].VMID != "host" || snap[1].VMID != "105" {
		t.Errorf("thread order = %q, %q", snap[0].VMID, snap[1].VMID)
	}
	if !snap[0].IsHost {
		t.Error("host thread lost is_host")
	}
	if len(snap[0].Entries) != 2 {
		t.Errorf("host thread has %d entries, want 2", len(snap[0].Entries))
	}
}

func TestOrphanOutputOpensImplicitEntry(t *testing.T) {
	a, _ := newTestAggregator(time.Hour)
	a.Apply(proxy.ShellOutputEvent{VMID: "105", Output: "stray\n"})

	snap := a.Snapshot()
	if len(snap) != 1 || len(snap[0].Entries) != 1 {
		t.Fatalf("orphan output should open a thread: %+v", snap)
	}
	if snap[0].Entries[0].Command != "" || !snap[0].Entries[0].Running {
		t.Errorf("implicit entry wrong: %+v", snap[0].Entries[0])
	}
}

func TestOrphanEndIgnored(t *testing.T) {
	a, c := newTestAggregator(time.Hour)
	a.Apply(proxy.ShellEndEvent{VMID: "999", ExitCode: 1})
	if c.count() != 0 {
		t.Error("shell_end for an unknown resource should be ignored")
	}
	if len(a.Snapshot()) != 0 {
		t.Error("orphan shell_end created a thread")
	}
}

func TestRunning(t *testing.T) {
	a, _ := newTestAggregator(time.Hour)
	if a.Running() {
		t.Error("empty aggregator should not be running")
	}
	a.Apply(proxy.ShellStartEvent{VMID: "105", Command: "sleep 5", Node: "pve"})
	if !a.Running() {
		t.Error("open command should report running")
	}
	a.Apply(proxy.ShellEndEvent{VMID: "105", ExitCode: 0})
	if a.Running() {
		t.Error("closed command should not report running")
	}
}

func TestResetDropsStateAndPendingRender(t *testing.T) {
	a, c := newTestAggregator(30 * time.Millisecond)
	a.Apply(proxy.ShellStartEvent{VMID: "105", Command: "ls", Node: "pve"})
	a.Apply(proxy.ShellOutputEvent{VMID: "105", Output: "bin\n"})
	base := c.count()

	a.Reset()
	if len(a.Snapshot()) != 0 {
		t.Error("Reset did not clear threads")
	}
	time.Sleep(100 * time.Millisecond)
	if c.count() != base {
		t.Error("Reset did not cancel the pending render")
	}
}
