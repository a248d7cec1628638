// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"

	"github.com/jeranaias/pvechat-tui/internal/kvstore"
)

// =============================================================================
// USER SETTINGS
// =============================================================================

// Settings persists the selected model and per-model API keys in the
// key-value store. API keys are sealed at rest.
type Settings struct {
	kv        kvstore.Store
	namespace string
	sealer    *sealer
}

// NewSettings creates a settings view over kv. keyPath locates the
// sealing key file, created on first use.
func NewSettings(kv kvstore.Store, namespace, keyPath string) (*Settings, error) {
	s, err := newSealer(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key sealing: %w", err)
	}
	return &Settings{kv: kv, namespace: namespace, sealer: s}, nil
}

// Model returns the selected model, or fallback when none is stored.
func (s *Settings) Model(fallback string) string {
	if m, ok := s.kv.Get(s.namespace + "-model"); ok && m != "" {
		return m
	}
	return fallback
}

// SetModel stores the selected model.
func (s *Settings) SetModel(model string) error {
	if err := s.kv.Set(s.namespace+"-model", model); err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}
	return nil
}

func (s *Settings) apiKeyKey(model string) string {
	return s.namespace + "-apikey-" + model
}

// APIKey returns the stored key for model, unsealed. A missing key
// returns the empty string; a corrupt sealed value is an error so the
// user re-enters the key instead of sending garbage to the proxy.
func (s *Settings) APIKey(model string) (string, error) {
	raw, ok := s.kv.Get(s.apiKeyKey(model))
	if !ok {
		return "", nil
	}
	key, err := s.sealer.open(raw)
	if err != nil {
		return "", fmt.Errorf("stored API key for %s: %w", model, err)
	}
	return key, nil
}

// SetAPIKey seals and stores the key for model. An empty key removes
// the stored value.
func (s *Settings) SetAPIKey(model, key string) error {
	if key == "" {
		if err := s.kv.Delete(s.apiKeyKey(model)); err != nil {
			return fmt.Errorf("failed to remove API key: %w", err)
		}
		return nil
	}
	sealed, err := s.sealer.seal(key)
	if err != nil {
		return fmt.Errorf("failed to seal API key: %w", err)
	}
	if err := s.kv.Set(s.apiKeyKey(model), sealed); err != nil {
		return fmt.Errorf("failed to save API key: %w", err)
	}
	return nil
}
