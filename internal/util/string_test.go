// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"
	"testing"
)

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		max      int
		expected string
	}{
		{"shorter than max", "hello", 10, "hello"},
		{"exactly max", "hello", 5, "hello"},
		{"truncated with ellipsis", "hello world", 8, "hello..."},
		{"zero max", "hello", 0, ""},
		{"tiny max keeps no ellipsis", "hello", 2, "he"},
		{"multibyte runes", "héllo wörld", 8, "héllo..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateRunes(tt.input, tt.max); got != tt.expected {
				t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.expected)
			}
		})
	}
}

func TestTruncateWidthCJK(t *testing.T) {
	// Each CJK character is 2 columns wide.
	got := TruncateWidth("日本語テスト", 7)
	if StringWidth(got) > 7 {
		t.Errorf("TruncateWidth result too wide: %q (%d cols)", got, StringWidth(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis suffix, got %q", got)
	}
}

func TestCollapseLine(t *testing.T) {
	if got := CollapseLine("a\r\nb\nc"); got != "a b c" {
		t.Errorf("CollapseLine = %q, want %q", got, "a b c")
	}
}

func TestTailLines(t *testing.T) {
	text := "one\n\ntwo\nthree\n  \nfour\nfive"

	lines, hidden := TailLines(text, 3)
	if hidden != 2 {
		t.Errorf("expected 2 hidden lines, got %d", hidden)
	}
	want := []string{"three", "four", "five"}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(lines))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}

	// Fewer non-blank lines than max: everything returned, nothing hidden.
	lines, hidden = TailLines("a\nb", 8)
	if hidden != 0 || len(lines) != 2 {
		t.Errorf("expected all lines visible, got %v hidden=%d", lines, hidden)
	}
}
