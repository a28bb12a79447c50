package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStorage persists the credential as JSON with owner-only
// permissions, the way browser localStorage held it in the web client.
type FileStorage struct {
	mu   sync.Mutex
	path string
}

// NewFileStorage creates a storage at path; parent directories are
// created on first save.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Load reads the stored credential. A missing file yields an empty
// credential, which the guard reports as ErrNoCredential.
func (fs *FileStorage) Load() (Credential, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	raw, err := os.ReadFile(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return Credential{}, nil
	}
	if err != nil {
		return Credential{}, fmt.Errorf("read credential file: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return Credential{}, fmt.Errorf("parse credential file: %w", err)
	}
	return cred, nil
}

// Save writes the credential atomically.
func (fs *FileStorage) Save(cred Credential) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}

	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return fmt.Errorf("replace credential file: %w", err)
	}
	return nil
}

// Clear removes the stored credential (logout).
func (fs *FileStorage) Clear() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	err := os.Remove(fs.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}

// MemoryStorage keeps the credential in memory. Used by tests and by
// callers that must not touch the filesystem.
type MemoryStorage struct {
	mu   sync.Mutex
	cred Credential
}

// NewMemoryStorage creates a storage seeded with cred.
func NewMemoryStorage(cred Credential) *MemoryStorage {
	return &MemoryStorage{cred: cred}
}

// Load returns the current credential.
func (ms *MemoryStorage) Load() (Credential, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.cred, nil
}

// Save replaces the current credential.
func (ms *MemoryStorage) Save(cred Credential) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.cred = cred
	return nil
}
