// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides UI components for pvechat.
package components

import (
	"strconv"
	"strings"

	"github.com/jeranaias/pvechat-tui/internal/shell"
	"github.com/jeranaias/pvechat-tui/internal/ui/styles"
	"github.com/jeranaias/pvechat-tui/internal/util"
)

// =============================================================================
// SHELL THREAD RENDERER
// =============================================================================

// RenderThreads renders the live shell view for all threads during a
// turn: one bordered block per resource with its command entries.
func RenderThreads(threads []shell.Thread, width int, theme *styles.Theme) string {
	if len(threads) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(threads))
	for _, th := range threads {
		blocks = append(blocks, renderThread(th, width, theme))
	}
	return strings.Join(blocks, "\n")
}

func renderThread(th shell.Thread, width int, theme *styles.Theme) string {
	var sb strings.Builder
	sb.WriteString(theme.ShellHeader.Render(threadLabel(th)))

	for _, e := range th.Entries {
		sb.WriteString("\n")
		sb.WriteString(renderEntry(e, width, theme))
	}

	return theme.ShellBlock.MaxWidth(width).Render(sb.String())
}

// threadLabel names the thread the way the proxy console would:
// "node/vmid" for containers and VMs, the node itself for host shells.
func threadLabel(th shell.Thread) string {
	if th.IsHost {
		if th.Node != "" {
			return th.Node + " (host)"
		}
		return "host"
	}
	if th.Node != "" {
		return th.Node + "/" + th.VMID.String()
	}
	return th.VMID.String()
}

func renderEntry(e shell.Entry, width int, theme *styles.Theme) string {
	var sb strings.Builder

	prompt := theme.InputPrompt.Render("$ ")
	sb.WriteString(prompt + HighlightBash(util.TruncateWidth(e.Command, width-6)))

	if e.Hidden > 0 {
		sb.WriteString("\n" + theme.ShellHidden.Render("... "+strconv.Itoa(e.Hidden)+" earlier lines"))
	}
	for _, line := range e.Lines {
		sb.WriteString("\n" + theme.ShellOutput.Render(util.TruncateWidth(line, width-6)))
	}

	switch {
	case e.Running:
		sb.WriteString("\n" + theme.ShellCursor.Render("▌"))
	case e.ExitCode != nil && *e.ExitCode != 0:
		sb.WriteString("\n" + theme.ShellExitErr.Render("✗ exit "+strconv.Itoa(*e.ExitCode)))
	default:
		sb.WriteString("\n" + theme.ShellExitOK.Render("✓"))
	}

	return sb.String()
}
