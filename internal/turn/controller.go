// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package turn orchestrates one conversational turn against the PVE
// AI proxy: it owns the single-in-flight-turn invariant, drives the
// /chat stream, tracks resources the backend provisions, and
// implements cancellation with compensating cleanup.
package turn

import (
	"context"
	"errors"
	"sync"

	"github.com/jeranaias/pvechat-tui/internal/proxy"
	"github.com/jeranaias/pvechat-tui/internal/session"
	"github.com/jeranaias/pvechat-tui/internal/shell"
	"github.com/jeranaias/pvechat-tui/internal/util"
)

// =============================================================================
// STATES AND TYPES
// =============================================================================

// State is the turn state machine. Cancelling is transient: it is
// entered and left inside a single Cancel call, but surfaces to the
// Sink so the UI can reflect it.
type State int

const (
	StateIdle State = iota
	StateAwaiting
	StateCancelling
)

// statusMaxRunes bounds the busy indicator text.
const statusMaxRunes = 70

// CreatedResource is a container or VM the backend provisioned during
// the current turn. The last one created is offered for cleanup on
// cancellation.
type CreatedResource struct {
	VMID proxy.ID
	Type string // "ct" or "vm"
}

// Describe returns the user-facing name, e.g. "container 105".
func (r CreatedResource) Describe() string {
	if r.Type == "vm" {
		return "VM " + r.VMID.String()
	}
	return "container " + r.VMID.String()
}

// Sink receives turn-side effects for the UI. Methods are called from
// the submit path and from the streaming goroutine; implementations
// must be safe to invoke off the UI loop (post a message, don't draw).
type Sink interface {
	// StateChanged reports a state machine transition.
	StateChanged(state State)

	// StatusChanged updates the busy indicator text; empty clears it.
	StatusChanged(text string)

	// MessagesChanged reports that the session's message list changed.
	MessagesChanged()

	// PromptCompensation asks the user to delete or keep the resource
	// created during a cancelled turn. The answer comes back through
	// Compensate.
	PromptCompensation(res CreatedResource)

	// Notify shows a transient notice line.
	Notify(text string)
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Config wires a Controller.
type Config struct {
	Client   *proxy.Client
	Store    *session.Store
	Settings *session.Settings
	Shells   *shell.Aggregator
	Sink     Sink

	// DefaultModel is used when no model is stored in settings.
	DefaultModel string

	// SystemPrompt is prepended to every /chat request. It is never
	// persisted with the session.
	SystemPrompt string
}

// Controller runs the turn state machine. Submit, Cancel, and
// Compensate are called from the UI loop; stream events arrive on the
// turn's goroutine. A generation counter invalidates callbacks from
// cancelled or superseded turns before they can touch state.
type Controller struct {
	mu sync.Mutex

	client   *proxy.Client
	store    *session.Store
	settings *session.Settings
	shells   *shell.Aggregator
	sink     Sink

	defaultModel string
	systemPrompt string

	state      State
	generation uint64
	cancelMgr  *cancelManager

	sess    *session.Session
	created []CreatedResource
}

// NewController creates a controller with a fresh session.
func NewController(cfg Config) *Controller {
	return &Controller{
		client:       cfg.Client,
		store:        cfg.Store,
		settings:     cfg.Settings,
		shells:       cfg.Shells,
		sink:         cfg.Sink,
		defaultModel: cfg.DefaultModel,
		systemPrompt: cfg.SystemPrompt,
		state:        StateIdle,
		cancelMgr:    newCancelManager(),
		sess:         session.New(),
	}
}

// State returns the current turn state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a turn is in flight.
func (c *Controller) Busy() bool {
	return c.State() != StateIdle
}

// SessionID returns the active session's identifier.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.ID
}

// Messages returns a snapshot of the active session's messages.
func (c *Controller) Messages() []session.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]session.Message, len(c.sess.Messages))
	copy(out, c.sess.Messages)
	return out
}

// NewSession starts a fresh session. Ignored while a turn is in
// flight.
func (c *Controller) NewSession() {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	c.sess = session.New()
	c.created = nil
	c.mu.Unlock()

	c.shells.Reset()
	c.sink.MessagesChanged()
}

// Resume switches to a saved session. Ignored while a turn is in
// flight.
func (c *Controller) Resume(sess *session.Session) {
	c.mu.Lock()
	if c.state != StateIdle || sess == nil {
		c.mu.Unlock()
		return
	}
	c.sess = sess
	c.created = nil
	c.mu.Unlock()

	c.shells.Reset()
	c.sink.MessagesChanged()
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit starts a turn with the user's text. While a turn is in
// flight, Submit routes to cancellation instead of starting a second
// stream. Empty input is ignored.
func (c *Controller) Submit(text string) {
	if text == "" {
		return
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		c.Cancel()
		return
	}

	model := c.settings.Model(c.defaultModel)
	apiKey, err := c.settings.APIKey(model)
	if err == nil && apiKey == "" {
		c.mu.Unlock()
		c.sink.Notify("No API key configured for " + model + ". Set one in settings.")
		return
	}
	if err != nil {
		c.mu.Unlock()
		c.sink.Notify("Stored API key for " + model + " is unreadable. Re-enter it in settings.")
		return
	}

	// New turn hygiene: fresh created-resource list and shell view.
	c.sess.Append("user", text)
	c.created = nil
	c.state = StateAwaiting
	c.generation++
	gen := c.generation

	messages := c.wireMessagesLocked()
	c.mu.Unlock()

	c.shells.Reset()
	c.sink.MessagesChanged()
	c.sink.StateChanged(StateAwaiting)
	c.sink.StatusChanged("Thinking...")

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelMgr.set(cancel)

	go c.run(ctx, gen, model, apiKey, messages)
}

// wireMessagesLocked converts the session history to wire messages,
// prepending the transient system prompt.
func (c *Controller) wireMessagesLocked() []proxy.Message {
	messages := make([]proxy.Message, 0, len(c.sess.Messages)+1)
	if c.systemPrompt != "" {
		messages = append(messages, proxy.Message{Role: "system", Content: c.systemPrompt})
	}
	for _, m := range c.sess.Messages {
		messages = append(messages, proxy.Message{Role: m.Role, Content: m.Content})
	}
	return messages
}

// run drives one /chat stream. It owns no state directly: every
// mutation goes through handleEvent or finish, both generation
// guarded.
func (c *Controller) run(ctx context.Context, gen uint64, model, apiKey string, messages []proxy.Message) {
	err := c.client.ChatStream(ctx, model, apiKey, messages, func(ev proxy.Event) {
		c.handleEvent(gen, ev)
	})
	c.finish(gen, err)
}

// =============================================================================
// EVENT DISPATCH
// =============================================================================

func (c *Controller) handleEvent(gen uint64, ev proxy.Event) {
	c.mu.Lock()
	if gen != c.generation || c.state != StateAwaiting {
		// Stale callback from a cancelled or superseded turn.
		c.mu.Unlock()
		return
	}

	switch e := ev.(type) {
	case proxy.StatusEvent:
		if e.CreatedVMID != "" {
			c.created = append(c.created, CreatedResource{VMID: e.CreatedVMID, Type: e.CreatedType})
		}
		c.mu.Unlock()
		c.sink.StatusChanged(util.TruncateRunes(e.Message, statusMaxRunes))

	case proxy.ShellStartEvent, proxy.ShellOutputEvent, proxy.ShellEndEvent:
		c.mu.Unlock()
		c.shells.Apply(ev)

	case proxy.DoneEvent:
		c.sess.Append("assistant", e.Response)
		sess := *c.sess
		c.state = StateIdle
		c.mu.Unlock()

		c.shells.Reset()
		if err := c.store.Upsert(&sess); err != nil {
			c.sink.Notify("Failed to save session: " + err.Error())
		}
		c.sink.MessagesChanged()
		c.sink.StatusChanged("")
		c.sink.StateChanged(StateIdle)

	case proxy.ErrorEvent:
		c.sess.Append("assistant", "Error: "+e.Message)
		c.state = StateIdle
		c.mu.Unlock()

		c.shells.Reset()
		c.sink.MessagesChanged()
		c.sink.StatusChanged("")
		c.sink.StateChanged(StateIdle)

	default:
		c.mu.Unlock()
	}
}

// finish handles the stream's return value after the last event.
func (c *Controller) finish(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	if err == nil || proxy.IsCancellation(err) {
		// Terminal event already finalized the turn, or the turn's own
		// abort fired; either way there is nothing to report.
		c.mu.Unlock()
		return
	}

	// Transport failure or clean EOF without a terminal event: the
	// turn ends visibly, input comes back.
	msg := "Connection error: " + err.Error()
	if errors.Is(err, proxy.ErrNoTerminalEvent) {
		msg = "No response received from the proxy."
	}
	c.sess.Append("assistant", msg)
	c.state = StateIdle
	c.mu.Unlock()

	c.shells.Reset()
	c.sink.MessagesChanged()
	c.sink.StatusChanged("")
	c.sink.StateChanged(StateIdle)
}
