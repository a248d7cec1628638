// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session provides chat session persistence and user
// settings for pvechat.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/pvechat-tui/internal/util"
)

// =============================================================================
// SESSION TYPES
// =============================================================================

// Message is one persisted chat message.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Session is one persisted conversation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

// New creates an empty session with a fresh identifier.
func New() *Session {
	return &Session{ID: uuid.NewString()}
}

// titleMaxRunes bounds derived titles for list display.
const titleMaxRunes = 50

// DeriveTitle builds a session title from the first user message:
// flattened to one line and truncated to 50 runes. Sessions with no
// user message yet get a placeholder.
func DeriveTitle(messages []Message) string {
	for _, msg := range messages {
		if msg.Role == "user" && msg.Content != "" {
			return util.TruncateRunes(util.CollapseLine(msg.Content), titleMaxRunes)
		}
	}
	return "New chat"
}

// Append adds a message, refreshes the title and timestamp.
func (s *Session) Append(role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content})
	s.Title = DeriveTitle(s.Messages)
	s.UpdatedAt = time.Now()
}
