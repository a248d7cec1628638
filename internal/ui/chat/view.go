// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/pvechat-tui/internal/session"
	"github.com/jeranaias/pvechat-tui/internal/turn"
	"github.com/jeranaias/pvechat-tui/internal/ui/components"
	"github.com/jeranaias/pvechat-tui/internal/util"
)

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m *Model) View() string {
	if !m.ready {
		return "Starting pvechat..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch m.overlay {
	case overlaySessions:
		b.WriteString(m.renderSessionsOverlay())
	case overlaySettings:
		b.WriteString(m.renderSettingsOverlay())
	case overlayCompensation:
		b.WriteString(m.renderCompensationOverlay())
	default:
		b.WriteString(m.viewport.View())
		b.WriteString("\n")
		b.WriteString(m.renderStatusLine())
		b.WriteString("\n")
		b.WriteString(m.theme.InputContainer.Width(m.width - 2).Render(m.textarea.View()))
		b.WriteString("\n")
		b.WriteString(m.renderHelp())
	}

	return b.String()
}

func (m *Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("pvechat")
	meta := m.theme.HeaderMeta.Render(
		util.TruncateWidth(session.DeriveTitle(m.controller.Messages()), 40) +
			" · " + m.settings.Model(m.cfg.DefaultModel))
	return m.theme.Header.Width(m.width).Render(title + "  " + meta)
}

// =============================================================================
// CONVERSATION CONTENT
// =============================================================================

// refreshContent rebuilds the viewport from the session history and
// the live shell view, then keeps the bottom in sight.
func (m *Model) refreshContent() {
	if !m.ready {
		return
	}

	var b strings.Builder
	for _, msg := range m.controller.Messages() {
		switch msg.Role {
		case "user":
			b.WriteString(m.theme.UserBubble.Width(m.width - 4).Render(msg.Content))
		case "assistant":
			if strings.HasPrefix(msg.Content, "Error: ") ||
				strings.HasPrefix(msg.Content, "Connection error: ") ||
				msg.Content == "No response received from the proxy." {
				b.WriteString(m.theme.ErrorText.Render(msg.Content))
			} else {
				b.WriteString(m.theme.AssistantBubble.Width(m.width - 4).Render(
					strings.TrimRight(m.renderMarkdown(msg.Content), "\n")))
			}
		}
		b.WriteString("\n\n")
	}

	if threads := m.shells.Snapshot(); len(threads) > 0 {
		b.WriteString(components.RenderThreads(threads, m.width-4, m.theme))
		b.WriteString("\n")
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

// =============================================================================
// STATUS, NOTICES, HELP
// =============================================================================

func (m *Model) renderStatusLine() string {
	if m.busy() {
		status := m.status
		if m.state == turn.StateCancelling {
			status = "Cancelling..."
		}
		return " " + m.spinner.View() + " " + m.theme.StatusText.Render(status)
	}
	if m.status != "" {
		// Compensation progress shows while idle.
		return " " + m.spinner.View() + " " + m.theme.StatusText.Render(m.status)
	}
	if m.notice != "" {
		return " " + m.theme.Notice.Render(m.notice)
	}
	return ""
}

func (m *Model) renderHelp() string {
	t := m.theme
	sep := t.HelpDesc.Render(" · ")
	entries := []string{
		t.HelpKey.Render("enter") + t.HelpDesc.Render(" send"),
		t.HelpKey.Render("esc") + t.HelpDesc.Render(" cancel"),
		t.HelpKey.Render("^n") + t.HelpDesc.Render(" new"),
		t.HelpKey.Render("^p") + t.HelpDesc.Render(" sessions"),
		t.HelpKey.Render("^o") + t.HelpDesc.Render(" settings"),
		t.HelpKey.Render("^c") + t.HelpDesc.Render(" quit"),
	}
	if m.busy() {
		entries[0] = t.HelpKey.Render("enter") + t.HelpDesc.Render(" stop")
	}
	return " " + strings.Join(entries, sep)
}

// =============================================================================
// OVERLAYS
// =============================================================================

func (m *Model) placeOverlay(content string) string {
	return lipgloss.Place(m.width, m.viewport.Height+m.textarea.Height()+4,
		lipgloss.Center, lipgloss.Center, m.theme.OverlayBox.Render(content))
}

func (m *Model) renderSessionsOverlay() string {
	var b strings.Builder
	b.WriteString(m.theme.OverlayTitle.Render("Saved sessions"))
	b.WriteString("\n\n")

	if len(m.sessions) == 0 {
		b.WriteString(m.theme.SessionMeta.Render("No saved sessions yet."))
	}
	for i, sess := range m.sessions {
		line := util.TruncateWidth(sess.Title, 50)
		meta := m.theme.SessionMeta.Render(" " + sess.UpdatedAt.Format("Jan 2 15:04"))
		if i == m.sessionCursor {
			b.WriteString(m.theme.SessionItemSelected.Render("> "+line) + meta)
		} else {
			b.WriteString(m.theme.SessionItem.Render("  "+line) + meta)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.theme.HelpDesc.Render("enter resume · d delete · esc close"))
	return m.placeOverlay(b.String())
}

func (m *Model) renderSettingsOverlay() string {
	var b strings.Builder
	b.WriteString(m.theme.OverlayTitle.Render("Settings"))
	b.WriteString("\n\n")
	b.WriteString("Model:\n")
	b.WriteString(m.modelInput.View())
	b.WriteString("\n\nAPI key (blank keeps current):\n")
	b.WriteString(m.keyInput.View())
	b.WriteString("\n\n")
	b.WriteString(m.theme.HelpDesc.Render("tab switch · enter save · esc close"))
	return m.placeOverlay(b.String())
}

func (m *Model) renderCompensationOverlay() string {
	var b strings.Builder
	b.WriteString(m.theme.OverlayTitle.Render("Task cancelled"))
	b.WriteString("\n\n")
	b.WriteString("The backend created " + m.pendingComp.Describe() + " during this task.\n")
	b.WriteString("Delete it?\n\n")

	delBtn := m.theme.PromptButton.Render("Delete")
	keepBtn := m.theme.PromptButtonActive.Render("Keep")
	if m.compDelete {
		delBtn = m.theme.PromptButtonActive.Render("Delete")
		keepBtn = m.theme.PromptButton.Render("Keep")
	}
	b.WriteString(delBtn + "  " + keepBtn)
	b.WriteString("\n\n")
	b.WriteString(m.theme.HelpDesc.Render("d delete · k keep · enter confirm"))
	return m.placeOverlay(b.String())
}
