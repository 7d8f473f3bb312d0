// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// keystore.go - File-backed session persistence.
//
// SECURITY: Persisted session tokens live in an owner-only file
//
// Remember-me sessions survive process restarts by persisting the
// session ID to a 0600 file under a 0700 directory. The token is a
// random UUID with no derivable meaning, but it is still a bearer
// credential, so permissions matter. Writes are atomic so a crash never
// leaves a truncated token behind.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/casevault/internal/util"
)

const (
	sessionFileName = "session"
	sessionFilePerm = 0600
	sessionDirPerm  = 0700
)

// FileSessionStore persists a single session ID to a protected file.
// It implements SessionPersistence.
type FileSessionStore struct {
	dir string
}

// NewFileSessionStore creates a store rooted at dir. The directory is
// created lazily on first write.
func NewFileSessionStore(dir string) *FileSessionStore {
	return &FileSessionStore{dir: dir}
}

func (f *FileSessionStore) path() string {
	return filepath.Join(f.dir, sessionFileName)
}

// Available reports whether the backing directory is usable. A store
// rooted at an empty path is never available.
func (f *FileSessionStore) Available() bool {
	if f.dir == "" {
		return false
	}
	if err := os.MkdirAll(f.dir, sessionDirPerm); err != nil {
		return false
	}
	return true
}

// StoreSessionID persists the session ID, replacing any previous one.
func (f *FileSessionStore) StoreSessionID(id string) error {
	if id == "" {
		return inputError("session id must not be empty")
	}
	if !f.Available() {
		return fmt.Errorf("session store directory %q is not usable", f.dir)
	}
	if err := util.AtomicWriteFileWithDir(f.path(), []byte(id+"\n"), sessionFilePerm, sessionDirPerm); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// RetrieveSessionID returns the persisted session ID, or "" when none
// is stored.
func (f *FileSessionStore) RetrieveSessionID() (string, error) {
	data, err := os.ReadFile(f.path())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read persisted session: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ClearSession removes the persisted session ID. Clearing an empty
// store is not an error.
func (f *FileSessionStore) ClearSession() error {
	if err := os.Remove(f.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear persisted session: %w", err)
	}
	return nil
}

// HasStoredSession reports whether a non-empty session ID is persisted.
func (f *FileSessionStore) HasStoredSession() bool {
	id, err := f.RetrieveSessionID()
	return err == nil && id != ""
}
