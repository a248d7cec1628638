// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/pvechat-tui/internal/config"
	"github.com/jeranaias/pvechat-tui/internal/session"
	"github.com/jeranaias/pvechat-tui/internal/shell"
	"github.com/jeranaias/pvechat-tui/internal/turn"
	"github.com/jeranaias/pvechat-tui/internal/ui/styles"
)

// =============================================================================
// MODEL
// =============================================================================

// overlayMode selects which full-screen overlay is open.
type overlayMode int

const (
	overlayNone overlayMode = iota
	overlaySessions
	overlaySettings
	overlayCompensation
)

// settings overlay fields
const (
	fieldModel = iota
	fieldAPIKey
)

// Options wires the chat model.
type Options struct {
	Controller *turn.Controller
	Store      *session.Store
	Settings   *session.Settings
	Shells     *shell.Aggregator
	Config     *config.Config
}

// Model is the root Bubble Tea model for pvechat.
type Model struct {
	theme *styles.Theme

	controller *turn.Controller
	store      *session.Store
	settings   *session.Settings
	shells     *shell.Aggregator
	cfg        *config.Config

	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	width  int
	height int
	ready  bool

	state  turn.State
	status string
	notice string

	overlay       overlayMode
	sessions      []session.Session
	sessionCursor int

	pendingComp turn.CreatedResource
	compDelete  bool

	modelInput    textinput.Model
	keyInput      textinput.Model
	settingsField int
}

// New creates the chat model.
func New(opts Options) *Model {
	ta := textarea.New()
	ta.Placeholder = "Ask about your Proxmox server..."
	ta.Prompt = ""
	ta.SetHeight(3)
	ta.CharLimit = 4000
	ta.ShowLineNumbers = false
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	mi := textinput.New()
	mi.Placeholder = "model (e.g. gpt-5.2)"
	mi.CharLimit = 100

	ki := textinput.New()
	ki.Placeholder = "API key"
	ki.EchoMode = textinput.EchoPassword
	ki.CharLimit = 300

	m := &Model{
		theme:      styles.NewTheme(),
		controller: opts.Controller,
		store:      opts.Store,
		settings:   opts.Settings,
		shells:     opts.Shells,
		cfg:        opts.Config,
		textarea:   ta,
		spinner:    sp,
		modelInput: mi,
		keyInput:   ki,
		state:      turn.StateIdle,
	}
	m.spinner.Style = m.theme.Spinner
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

func (m *Model) busy() bool {
	return m.state != turn.StateIdle
}

// markdownWidth is the wrap width for assistant messages.
func (m *Model) markdownWidth() int {
	w := m.cfg.UI.MarkdownWidth
	if w <= 0 || w > m.width-4 {
		w = m.width - 4
	}
	if w < 20 {
		w = 20
	}
	return w
}

// rebuildRenderer recreates the markdown renderer for the current
// width. Glamour renderers are cheap but not resizable.
func (m *Model) rebuildRenderer() {
	style := glamour.WithAutoStyle()
	switch m.cfg.UI.Theme {
	case "dark":
		style = glamour.WithStandardStyle("dark")
	case "light":
		style = glamour.WithStandardStyle("light")
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(m.markdownWidth()))
	if err != nil {
		m.renderer = nil
		return
	}
	m.renderer = r
}

// renderMarkdown renders assistant text, falling back to the raw text
// when the renderer is unavailable.
func (m *Model) renderMarkdown(text string) string {
	if m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return out
}
