// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package kvstore provides the key-value persistence capability used
// for settings and saved sessions. The contract is deliberately
// narrow (synchronous get/set by string key, process-wide, survives
// restarts) so callers can be tested against the in-memory
// implementation and shipped with the SQLite one.
package kvstore

import "sync"

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is the persistence capability injected into session and
// settings code. Get treats any read failure as absence; callers that
// need "corrupt means empty" semantics get them for free.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool)

	// Set stores value under key, replacing any previous value.
	Set(key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}

// =============================================================================
// IN-MEMORY STORE
// =============================================================================

// Mem is an in-memory Store. It backs tests and the --ephemeral flag.
type Mem struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMem creates an empty in-memory store.
func NewMem() *Mem {
	return &Mem{values: make(map[string]string)}
}

// Get returns the value for key.
func (m *Mem) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

// Set stores value under key.
func (m *Mem) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Delete removes key.
func (m *Mem) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
