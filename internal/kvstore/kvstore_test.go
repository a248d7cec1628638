// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package kvstore

import (
	"path/filepath"
	"testing"
)

// storeUnderTest runs the same contract checks against any Store.
func storeUnderTest(t *testing.T, s Store) {
	t.Helper()

	if _, ok := s.Get("missing"); ok {
		t.Error("Get on missing key should report absence")
	}

	if err := s.Set("a", "1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if v, ok := s.Get("a"); !ok || v != "1" {
		t.Errorf("Get after Set = (%q, %v), want (\"1\", true)", v, ok)
	}

	// Overwrite replaces.
	if err := s.Set("a", "2"); err != nil {
		t.Fatalf("Set overwrite failed: %v", err)
	}
	if v, _ := s.Get("a"); v != "2" {
		t.Errorf("Get after overwrite = %q, want %q", v, "2")
	}

	if err := s.Delete("a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := s.Get("a"); ok {
		t.Error("Get after Delete should report absence")
	}

	// Deleting a missing key is not an error.
	if err := s.Delete("never-existed"); err != nil {
		t.Errorf("Delete of missing key returned error: %v", err)
	}
}

func TestMemStore(t *testing.T) {
	storeUnderTest(t, NewMem())
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer s.Close()

	storeUnderTest(t, s)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	if err := s.Set("model", "gpt-5.2"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.Close()

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	if v, ok := s2.Get("model"); !ok || v != "gpt-5.2" {
		t.Errorf("value did not survive reopen: (%q, %v)", v, ok)
	}
}
