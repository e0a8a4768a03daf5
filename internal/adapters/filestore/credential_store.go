// Package filestore persists session credentials in a local JSON file.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
	"github.com/itiportal/portal-session/internal/ports"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

// record is the on-disk layout. User is kept as raw JSON so unknown fields
// survive a round trip untouched.
type record struct {
	Token string          `json:"token,omitempty"`
	User  json.RawMessage `json:"user,omitempty"`
}

// CredentialStore writes token and user together with an atomic rename.
type CredentialStore struct {
	path string
	mu   sync.Mutex
}

var _ ports.CredentialStore = (*CredentialStore)(nil)

// NewCredentialStore returns a store backed by path. The file is created on first write.
func NewCredentialStore(path string) (*CredentialStore, error) {
	if path == "" {
		return nil, errors.New("credential store path is required")
	}
	return &CredentialStore{path: filepath.Clean(path)}, nil
}

// Path returns the backing file.
func (s *CredentialStore) Path() string { return s.path }

func (s *CredentialStore) Write(_ context.Context, token string, user domainauth.UserRecord) error {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	data, err := json.Marshal(record{Token: token, User: userJSON})
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeFile(data)
}

func (s *CredentialStore) writeFile(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmpName, filePerm); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace credential file: %w", err)
	}
	return nil
}

func (s *CredentialStore) Read(_ context.Context) (domainauth.Credentials, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return domainauth.Credentials{}, nil
	}
	if err != nil {
		return domainauth.Credentials{}, fmt.Errorf("read credential file: %w", err)
	}

	var rec record
	if err = json.Unmarshal(data, &rec); err != nil {
		return domainauth.Credentials{}, fmt.Errorf("decode credential file: %w", err)
	}

	creds := domainauth.Credentials{Token: rec.Token}
	if len(rec.User) > 0 && string(rec.User) != "null" {
		var u domainauth.UserRecord
		if err = json.Unmarshal(rec.User, &u); err != nil {
			// A corrupt user is treated as absent so startup falls back to anonymous.
			return domainauth.Credentials{Token: rec.Token}, nil
		}
		creds.User = &u
	}
	return creds, nil
}

func (s *CredentialStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}
