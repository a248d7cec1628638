// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"encoding/json"
	"fmt"

	"github.com/jeranaias/pvechat-tui/internal/kvstore"
)

// =============================================================================
// SESSION STORE
// =============================================================================

// MaxSessions is the retention cap; the oldest sessions beyond it are
// dropped on save.
const MaxSessions = 50

// Store persists the session list as a single JSON document in the
// key-value store, most recent first. A corrupt or missing document
// reads as an empty list so a damaged store never blocks startup.
type Store struct {
	kv        kvstore.Store
	namespace string
}

// NewStore creates a session store over kv with the given namespace.
func NewStore(kv kvstore.Store, namespace string) *Store {
	return &Store{kv: kv, namespace: namespace}
}

func (s *Store) key() string {
	return s.namespace + "-chats"
}

// List returns all sessions, most recent first.
func (s *Store) List() []Session {
	raw, ok := s.kv.Get(s.key())
	if !ok {
		return nil
	}
	var sessions []Session
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		return nil
	}
	return sessions
}

// Get returns the session with the given ID, if present.
func (s *Store) Get(id string) (*Session, bool) {
	for _, sess := range s.List() {
		if sess.ID == id {
			return &sess, true
		}
	}
	return nil, false
}

// Upsert saves a session: an existing ID is replaced in place, a new
// one is inserted at the front. The list is trimmed to MaxSessions,
// dropping the oldest.
func (s *Store) Upsert(sess *Session) error {
	sessions := s.List()

	replaced := false
	for i := range sessions {
		if sessions[i].ID == sess.ID {
			sessions[i] = *sess
			replaced = true
			break
		}
	}
	if !replaced {
		sessions = append([]Session{*sess}, sessions...)
	}
	if len(sessions) > MaxSessions {
		sessions = sessions[:MaxSessions]
	}

	return s.save(sessions)
}

// Delete removes the session with the given ID. Deleting an unknown
// ID is a no-op.
func (s *Store) Delete(id string) error {
	sessions := s.List()
	kept := sessions[:0]
	for _, sess := range sessions {
		if sess.ID != id {
			kept = append(kept, sess)
		}
	}
	if len(kept) == len(sessions) {
		return nil
	}
	return s.save(kept)
}

// Clear removes all sessions.
func (s *Store) Clear() error {
	if err := s.kv.Delete(s.key()); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}
	return nil
}

func (s *Store) save(sessions []Session) error {
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}
	if err := s.kv.Set(s.key(), string(data)); err != nil {
		return fmt.Errorf("failed to save sessions: %w", err)
	}
	return nil
}
