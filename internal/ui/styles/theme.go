// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components for the application. It detects
// the terminal's color capability and adjusts accordingly.
type Theme struct {
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// HEADER AND CHROME
	// ==========================================================================

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderMeta  lipgloss.Style

	// ==========================================================================
	// MESSAGES
	// ==========================================================================

	UserBubble      lipgloss.Style
	AssistantBubble lipgloss.Style
	ErrorText       lipgloss.Style

	// ==========================================================================
	// STATUS AND NOTICES
	// ==========================================================================

	Spinner    lipgloss.Style
	StatusText lipgloss.Style
	Notice     lipgloss.Style

	// ==========================================================================
	// SHELL THREADS
	// ==========================================================================

	ShellBlock   lipgloss.Style
	ShellHeader  lipgloss.Style
	ShellOutput  lipgloss.Style
	ShellHidden  lipgloss.Style
	ShellCursor  lipgloss.Style
	ShellExitOK  lipgloss.Style
	ShellExitErr lipgloss.Style

	// ==========================================================================
	// INPUT AREA
	// ==========================================================================

	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style

	// ==========================================================================
	// OVERLAYS (SESSION PICKER, SETTINGS, COMPENSATION)
	// ==========================================================================

	OverlayBox          lipgloss.Style
	OverlayTitle        lipgloss.Style
	SessionItem         lipgloss.Style
	SessionItemSelected lipgloss.Style
	SessionMeta         lipgloss.Style
	PromptButton        lipgloss.Style
	PromptButtonActive  lipgloss.Style

	// ==========================================================================
	// HELP LINE
	// ==========================================================================

	HelpKey  lipgloss.Style
	HelpDesc lipgloss.Style
}

// NewTheme creates a theme with all styles configured.
func NewTheme() *Theme {
	colorProfile := termenv.ColorProfile()
	t := &Theme{
		IsDark:       termenv.HasDarkBackground(),
		HasTrueColor: colorProfile == termenv.TrueColor,
		ColorProfile: colorProfile,
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Orange)
	t.HeaderMeta = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.UserBubble = lipgloss.NewStyle().
		Foreground(UserBubbleFg).
		BorderStyle(lipgloss.ThickBorder()).
		BorderLeft(true).
		BorderForeground(UserBubbleBorder).
		PaddingLeft(1)
	t.AssistantBubble = lipgloss.NewStyle().
		Foreground(AssistantBubbleFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(AssistantBubbleBorder).
		PaddingLeft(1)
	t.ErrorText = lipgloss.NewStyle().
		Foreground(Rose)

	t.Spinner = lipgloss.NewStyle().
		Foreground(Orange)
	t.StatusText = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)
	t.Notice = lipgloss.NewStyle().
		Foreground(Amber)

	t.ShellBlock = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.ShellHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)
	t.ShellOutput = lipgloss.NewStyle().
		Foreground(TextSecondary)
	t.ShellHidden = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)
	t.ShellCursor = lipgloss.NewStyle().
		Foreground(Orange).
		Blink(true)
	t.ShellExitOK = lipgloss.NewStyle().
		Foreground(Emerald)
	t.ShellExitErr = lipgloss.NewStyle().
		Bold(true).
		Foreground(Rose)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay)
	t.InputPrompt = lipgloss.NewStyle().
		Bold(true).
		Foreground(Orange)

	t.OverlayBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Orange).
		Padding(1, 2)
	t.OverlayTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Orange)
	t.SessionItem = lipgloss.NewStyle().
		Foreground(TextPrimary)
	t.SessionItemSelected = lipgloss.NewStyle().
		Bold(true).
		Foreground(Orange)
	t.SessionMeta = lipgloss.NewStyle().
		Foreground(TextMuted)
	t.PromptButton = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Padding(0, 2)
	t.PromptButtonActive = lipgloss.NewStyle().
		Bold(true).
		Foreground(Rose).
		Padding(0, 2)

	t.HelpKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)
	t.HelpDesc = lipgloss.NewStyle().
		Foreground(TextMuted)
}
