// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestFileSessionStoreRoundTrip(t *testing.T) {
	store := NewFileSessionStore(filepath.Join(t.TempDir(), "session"))

	if !store.Available() {
		t.Fatal("store over temp dir not available")
	}
	if store.HasStoredSession() {
		t.Fatal("fresh store reports a stored session")
	}

	if err := store.StoreSessionID("0b012345-6789-4abc-8def-0123456789ab"); err != nil {
		t.Fatalf("StoreSessionID: %v", err)
	}

	got, err := store.RetrieveSessionID()
	if err != nil {
		t.Fatalf("RetrieveSessionID: %v", err)
	}
	if got != "0b012345-6789-4abc-8def-0123456789ab" {
		t.Errorf("retrieved %q", got)
	}
	if !store.HasStoredSession() {
		t.Error("HasStoredSession false after store")
	}
}

func TestFileSessionStoreOverwrite(t *testing.T) {
	store := NewFileSessionStore(t.TempDir())

	if err := store.StoreSessionID("first"); err != nil {
		t.Fatalf("StoreSessionID: %v", err)
	}
	if err := store.StoreSessionID("second"); err != nil {
		t.Fatalf("StoreSessionID: %v", err)
	}

	got, err := store.RetrieveSessionID()
	if err != nil {
		t.Fatalf("RetrieveSessionID: %v", err)
	}
	if got != "second" {
		t.Errorf("retrieved %q, want second", got)
	}
}

func TestFileSessionStoreClear(t *testing.T) {
	store := NewFileSessionStore(t.TempDir())

	// Clearing an empty store is fine.
	if err := store.ClearSession(); err != nil {
		t.Fatalf("ClearSession on empty store: %v", err)
	}

	if err := store.StoreSessionID("token"); err != nil {
		t.Fatalf("StoreSessionID: %v", err)
	}
	if err := store.ClearSession(); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	if store.HasStoredSession() {
		t.Error("session survived ClearSession")
	}
}

func TestFileSessionStorePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions not applicable")
	}

	dir := t.TempDir()
	store := NewFileSessionStore(dir)
	if err := store.StoreSessionID("token"); err != nil {
		t.Fatalf("StoreSessionID: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "session"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("session file mode = %o, want 600", perm)
	}
}

func TestFileSessionStoreUnavailable(t *testing.T) {
	store := NewFileSessionStore("")
	if store.Available() {
		t.Error("store with empty dir reports available")
	}
	if err := store.StoreSessionID("token"); err == nil {
		t.Error("StoreSessionID succeeded on unavailable store")
	}
}

func TestFileSessionStoreRejectsEmptyID(t *testing.T) {
	store := NewFileSessionStore(t.TempDir())
	if err := store.StoreSessionID(""); err == nil {
		t.Error("StoreSessionID accepted empty id")
	}
}
