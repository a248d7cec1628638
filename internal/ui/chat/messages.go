// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the pvechat terminal UI: the conversation
// view, live shell threads, session picker, and settings overlay.
package chat

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/pvechat-tui/internal/config"
	"github.com/jeranaias/pvechat-tui/internal/turn"
)

// =============================================================================
// MESSAGES
// =============================================================================

// Messages posted into the Bubble Tea loop from the turn controller,
// the shell aggregator, and the config watcher.

type stateMsg struct{ state turn.State }

type statusMsg struct{ text string }

type historyMsg struct{}

type shellMsg struct{}

type compensationMsg struct{ res turn.CreatedResource }

type noticeMsg struct{ text string }

type configMsg struct{ cfg *config.Config }

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher bridges goroutine-side callbacks into the Bubble Tea
// loop. It implements turn.Sink, serves as the shell aggregator's
// render callback, and receives config reloads. Events arriving
// before the program is attached are dropped; nothing meaningful can
// happen before the first Submit, which requires a running UI.
type Dispatcher struct {
	mu      sync.Mutex
	program *tea.Program
}

// NewDispatcher creates an unattached dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Attach connects the dispatcher to a running program.
func (d *Dispatcher) Attach(p *tea.Program) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.program = p
}

func (d *Dispatcher) send(msg tea.Msg) {
	d.mu.Lock()
	p := d.program
	d.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// StateChanged implements turn.Sink.
func (d *Dispatcher) StateChanged(state turn.State) {
	d.send(stateMsg{state: state})
}

// StatusChanged implements turn.Sink.
func (d *Dispatcher) StatusChanged(text string) {
	d.send(statusMsg{text: text})
}

// MessagesChanged implements turn.Sink.
func (d *Dispatcher) MessagesChanged() {
	d.send(historyMsg{})
}

// PromptCompensation implements turn.Sink.
func (d *Dispatcher) PromptCompensation(res turn.CreatedResource) {
	d.send(compensationMsg{res: res})
}

// Notify implements turn.Sink.
func (d *Dispatcher) Notify(text string) {
	d.send(noticeMsg{text: text})
}

// ShellChanged is the shell aggregator's render callback.
func (d *Dispatcher) ShellChanged() {
	d.send(shellMsg{})
}

// ConfigReloaded is the config watcher's callback.
func (d *Dispatcher) ConfigReloaded(cfg *config.Config) {
	d.send(configMsg{cfg: cfg})
}
