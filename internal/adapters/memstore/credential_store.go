// Package memstore keeps session credentials in process memory.
// The session ends with the process.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
	"github.com/itiportal/portal-session/internal/ports"
)

// CredentialStore holds the token and the serialized user, so reads return
// the same bytes a durable store would.
type CredentialStore struct {
	mu    sync.Mutex
	token string
	user  []byte
}

var _ ports.CredentialStore = (*CredentialStore)(nil)

// NewCredentialStore creates an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{}
}

func (s *CredentialStore) Write(_ context.Context, token string, user domainauth.UserRecord) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.user = data
	return nil
}

func (s *CredentialStore) Read(_ context.Context) (domainauth.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	creds := domainauth.Credentials{Token: s.token}
	if s.user != nil {
		var u domainauth.UserRecord
		if err := json.Unmarshal(s.user, &u); err != nil {
			return creds, fmt.Errorf("unmarshal user: %w", err)
		}
		creds.User = &u
	}
	return creds, nil
}

func (s *CredentialStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.user = nil
	return nil
}

// RawUser returns the serialized user exactly as stored.
func (s *CredentialStore) RawUser() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.user...)
}
