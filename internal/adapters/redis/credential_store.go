package redis

// Package redis provides Redis-based adapters for portal sessions.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
	"github.com/itiportal/portal-session/internal/ports"
)

const (
	// DefaultKeyPrefix namespaces the token and user keys.
	DefaultKeyPrefix = "portal:session:"

	tokenKey = "token"
	userKey  = "user"
)

// CredentialStore keeps the token and the serialized user under two keys
// that are always written and deleted in one MULTI/EXEC.
type CredentialStore struct {
	client redis.UniversalClient
	prefix string
}

var _ ports.CredentialStore = (*CredentialStore)(nil)

// NewCredentialStore creates a Redis credential store with the default key prefix.
func NewCredentialStore(client redis.UniversalClient) *CredentialStore {
	return NewCredentialStoreWithPrefix(client, DefaultKeyPrefix)
}

// NewCredentialStoreWithPrefix creates a Redis credential store with a custom key prefix.
func NewCredentialStoreWithPrefix(client redis.UniversalClient, prefix string) *CredentialStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &CredentialStore{client: client, prefix: prefix}
}

func (s *CredentialStore) keys() (string, string) {
	return s.prefix + tokenKey, s.prefix + userKey
}

func (s *CredentialStore) Write(ctx context.Context, token string, user domainauth.UserRecord) error {
	if token == "" {
		return errors.New("token cannot be empty")
	}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	tk, uk := s.keys()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tk, token, 0)
		pipe.Set(ctx, uk, data, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis write credentials: %w", err)
	}
	return nil
}

func (s *CredentialStore) Read(ctx context.Context) (domainauth.Credentials, error) {
	tk, uk := s.keys()
	vals, err := s.client.MGet(ctx, tk, uk).Result()
	if err != nil {
		return domainauth.Credentials{}, fmt.Errorf("redis read credentials: %w", err)
	}

	var creds domainauth.Credentials
	if v, ok := vals[0].(string); ok {
		creds.Token = v
	}
	if v, ok := vals[1].(string); ok && v != "" {
		var u domainauth.UserRecord
		if unmarshalErr := json.Unmarshal([]byte(v), &u); unmarshalErr != nil {
			// Unreadable user counts as absent; startup then treats the session as partial.
			return domainauth.Credentials{Token: creds.Token}, nil
		}
		creds.User = &u
	}
	return creds, nil
}

func (s *CredentialStore) Clear(ctx context.Context) error {
	tk, uk := s.keys()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, tk, uk)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis clear credentials: %w", err)
	}
	return nil
}
