package client

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// Credentials pair a chat with the token scoped to it.
type Credentials struct {
	ChatID string `json:"chatId"`
	Token  string `json:"accessToken"`
	UserID string `json:"userId,omitempty"`
}

func (c Credentials) valid() bool { return c.ChatID != "" && c.Token != "" }

// CredentialStore keeps the current session between sends.
type CredentialStore interface {
	Load() (Credentials, bool)
	Save(Credentials) error
	Clear() error
}

type MemoryCredentialStore struct {
	mu    sync.Mutex
	creds Credentials
}

func (m *MemoryCredentialStore) Load() (Credentials, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds, m.creds.valid()
}

func (m *MemoryCredentialStore) Save(c Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = c
	return nil
}

func (m *MemoryCredentialStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = Credentials{}
	return nil
}

// FileCredentialStore persists the session as JSON so a terminal client
// can resume a conversation.
type FileCredentialStore struct {
	mu   sync.Mutex
	path string
}

func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

func (f *FileCredentialStore) Load() (Credentials, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return Credentials{}, false
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return Credentials{}, false
	}
	return c, c.valid()
}

func (f *FileCredentialStore) Save(c Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o600)
}

func (f *FileCredentialStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
