// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/pvechat-tui/internal/turn"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stateMsg:
		m.state = msg.state
		if m.state == turn.StateIdle {
			m.textarea.Focus()
		}
		m.refreshContent()
		return m, nil

	case statusMsg:
		m.status = msg.text
		return m, nil

	case historyMsg:
		m.notice = ""
		m.refreshContent()
		return m, nil

	case shellMsg:
		m.refreshContent()
		return m, nil

	case compensationMsg:
		m.pendingComp = msg.res
		m.compDelete = false
		m.overlay = overlayCompensation
		return m, nil

	case noticeMsg:
		m.notice = msg.text
		return m, nil

	case configMsg:
		m.cfg = msg.cfg
		m.rebuildRenderer()
		m.refreshContent()
		m.notice = "Configuration reloaded."
		return m, nil
	}

	return m.updateFocused(msg)
}

func (m *Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	headerHeight := 1
	footerHeight := m.textarea.Height() + 4 // border, status, help
	vpHeight := m.height - headerHeight - footerHeight
	if vpHeight < 3 {
		vpHeight = 3
	}

	if !m.ready {
		m.viewport = viewport.New(m.width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = vpHeight
	}
	m.textarea.SetWidth(m.width - 4)

	m.rebuildRenderer()
	m.refreshContent()
	return m, nil
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Overlays capture the keyboard while open.
	switch m.overlay {
	case overlaySessions:
		return m.handleSessionsKey(msg)
	case overlaySettings:
		return m.handleSettingsKey(msg)
	case overlayCompensation:
		return m.handleCompensationKey(msg)
	}

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "esc":
		if m.busy() {
			m.controller.Cancel()
			return m, nil
		}

	case "enter":
		if m.busy() {
			// The submit affordance doubles as cancel while busy.
			m.controller.Cancel()
			return m, nil
		}
		text := strings.TrimSpace(m.textarea.Value())
		if text == "" {
			return m, nil
		}
		m.textarea.Reset()
		m.notice = ""
		m.controller.Submit(text)
		return m, nil

	case "ctrl+j":
		// Newline inside the input.
		m.textarea.InsertString("\n")
		return m, nil

	case "ctrl+n":
		if !m.busy() {
			m.controller.NewSession()
			m.notice = ""
		}
		return m, nil

	case "ctrl+p":
		if !m.busy() {
			m.openSessions()
		}
		return m, nil

	case "ctrl+o":
		if !m.busy() {
			m.openSettings()
		}
		return m, nil
	}

	return m.updateFocused(msg)
}

// updateFocused routes remaining messages to the focused components.
func (m *Model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch m.overlay {
	case overlaySettings:
		m.modelInput, cmd = m.modelInput.Update(msg)
		cmds = append(cmds, cmd)
		m.keyInput, cmd = m.keyInput.Update(msg)
		cmds = append(cmds, cmd)
	case overlayNone:
		if !m.busy() {
			m.textarea, cmd = m.textarea.Update(msg)
			cmds = append(cmds, cmd)
		}
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// =============================================================================
// SESSION PICKER
// =============================================================================

func (m *Model) openSessions() {
	m.sessions = m.store.List()
	m.sessionCursor = 0
	m.overlay = overlaySessions
}

func (m *Model) handleSessionsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+p":
		m.overlay = overlayNone

	case "up", "k":
		if m.sessionCursor > 0 {
			m.sessionCursor--
		}

	case "down", "j":
		if m.sessionCursor < len(m.sessions)-1 {
			m.sessionCursor++
		}

	case "enter":
		if m.sessionCursor < len(m.sessions) {
			sess := m.sessions[m.sessionCursor]
			m.controller.Resume(&sess)
			m.overlay = overlayNone
			m.refreshContent()
		}

	case "d":
		if m.sessionCursor < len(m.sessions) {
			id := m.sessions[m.sessionCursor].ID
			if err := m.store.Delete(id); err != nil {
				m.notice = "Failed to delete session: " + err.Error()
			}
			m.sessions = m.store.List()
			if m.sessionCursor >= len(m.sessions) && m.sessionCursor > 0 {
				m.sessionCursor--
			}
		}

	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

// =============================================================================
// SETTINGS OVERLAY
// =============================================================================

func (m *Model) openSettings() {
	model := m.settings.Model(m.cfg.DefaultModel)
	m.modelInput.SetValue(model)
	m.keyInput.SetValue("")
	m.settingsField = fieldModel
	m.modelInput.Focus()
	m.keyInput.Blur()
	m.overlay = overlaySettings
}

func (m *Model) handleSettingsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.overlay = overlayNone
		m.textarea.Focus()
		return m, nil

	case "tab", "shift+tab":
		if m.settingsField == fieldModel {
			m.settingsField = fieldAPIKey
			m.modelInput.Blur()
			m.keyInput.Focus()
		} else {
			m.settingsField = fieldModel
			m.keyInput.Blur()
			m.modelInput.Focus()
		}
		return m, nil

	case "enter":
		return m.saveSettings()

	case "ctrl+c":
		return m, tea.Quit
	}

	return m.updateFocused(msg)
}

func (m *Model) saveSettings() (tea.Model, tea.Cmd) {
	model := strings.TrimSpace(m.modelInput.Value())
	if model == "" {
		m.notice = "Model must not be empty."
		return m, nil
	}
	if err := m.settings.SetModel(model); err != nil {
		m.notice = "Failed to save model: " + err.Error()
		return m, nil
	}
	if key := strings.TrimSpace(m.keyInput.Value()); key != "" {
		if err := m.settings.SetAPIKey(model, key); err != nil {
			m.notice = "Failed to save API key: " + err.Error()
			return m, nil
		}
	}
	m.overlay = overlayNone
	m.textarea.Focus()
	m.notice = "Settings saved."
	return m, nil
}

// =============================================================================
// COMPENSATION PROMPT
// =============================================================================

func (m *Model) handleCompensationKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "left", "right", "tab", "h", "l":
		m.compDelete = !m.compDelete

	case "d", "y":
		m.compDelete = true
		return m.confirmCompensation()

	case "k", "n", "esc":
		m.compDelete = false
		return m.confirmCompensation()

	case "enter":
		return m.confirmCompensation()

	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) confirmCompensation() (tea.Model, tea.Cmd) {
	m.overlay = overlayNone
	m.textarea.Focus()
	m.controller.Compensate(m.pendingComp, m.compDelete)
	return m, nil
}
