package auth

// Package auth contains simple hand-written test doubles for session ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/itiportal/portal-session/internal/adapters/memstore"
	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
	"github.com/itiportal/portal-session/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.CredentialStore = (*MemoryCredentialStore)(nil)
	_ ports.PortalAPI       = (*FakePortalAPI)(nil)
)

// MemoryCredentialStore wraps the in-memory store with error injection.
type MemoryCredentialStore struct {
	*memstore.CredentialStore

	// WriteErr and ClearErr, when set, are returned instead of performing the operation.
	WriteErr error
	ClearErr error

	// BeforeWrite, when set, runs at the start of every Write.
	BeforeWrite func()
}

// NewMemoryCredentialStore creates an empty in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{CredentialStore: memstore.NewCredentialStore()}
}

// NewSeededCredentialStore creates a store that already holds token and user.
func NewSeededCredentialStore(token string, user domainauth.UserRecord) *MemoryCredentialStore {
	s := NewMemoryCredentialStore()
	if err := s.Write(context.Background(), token, user); err != nil {
		panic(err)
	}
	return s
}

func (m *MemoryCredentialStore) Write(ctx context.Context, token string, user domainauth.UserRecord) error {
	if m.BeforeWrite != nil {
		m.BeforeWrite()
	}
	if m.WriteErr != nil {
		return m.WriteErr
	}
	return m.CredentialStore.Write(ctx, token, user)
}

func (m *MemoryCredentialStore) Clear(ctx context.Context) error {
	if m.ClearErr != nil {
		return m.ClearErr
	}
	return m.CredentialStore.Clear(ctx)
}

// FakePortalAPI simulates the portal backend. Each method delegates to its
// Func field when set and otherwise returns deterministic defaults.
type FakePortalAPI struct {
	LoginFunc               func(ctx context.Context, in ports.LoginInput) (ports.LoginResult, error)
	LogoutFunc              func(ctx context.Context, token string) error
	FetchProfileFunc        func(ctx context.Context, token string) (json.RawMessage, error)
	FetchCompanyProfileFunc func(ctx context.Context, token string) (json.RawMessage, error)

	// ProfileUser is returned by the default FetchProfile.
	ProfileUser json.RawMessage
	// CompanyProfile is returned by the default FetchCompanyProfile.
	CompanyProfile json.RawMessage

	mu    sync.Mutex
	calls map[string]int
}

// NewFakePortalAPI creates a FakePortalAPI with a student profile and an Acme company profile.
func NewFakePortalAPI() *FakePortalAPI {
	return &FakePortalAPI{
		ProfileUser:    json.RawMessage(`{"id":1,"role":"student","email":"student@iti.gov.eg","isVerified":true}`),
		CompanyProfile: json.RawMessage(`{"company_name":"Acme","logo":"x.png"}`),
	}
}

func (f *FakePortalAPI) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

// Calls returns how many times the named method was invoked.
func (f *FakePortalAPI) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// TotalCalls returns the number of calls across all methods.
func (f *FakePortalAPI) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *FakePortalAPI) Login(ctx context.Context, in ports.LoginInput) (ports.LoginResult, error) {
	f.record("Login")
	if f.LoginFunc != nil {
		return f.LoginFunc(ctx, in)
	}
	var u domainauth.UserRecord
	if err := json.Unmarshal(f.ProfileUser, &u); err != nil {
		return ports.LoginResult{}, err
	}
	return ports.LoginResult{Token: "token-1", User: u, Message: "Login successful"}, nil
}

func (f *FakePortalAPI) Logout(ctx context.Context, token string) error {
	f.record("Logout")
	if f.LogoutFunc != nil {
		return f.LogoutFunc(ctx, token)
	}
	return nil
}

func (f *FakePortalAPI) FetchProfile(ctx context.Context, token string) (json.RawMessage, error) {
	f.record("FetchProfile")
	if f.FetchProfileFunc != nil {
		return f.FetchProfileFunc(ctx, token)
	}
	return f.ProfileUser, nil
}

func (f *FakePortalAPI) FetchCompanyProfile(ctx context.Context, token string) (json.RawMessage, error) {
	f.record("FetchCompanyProfile")
	if f.FetchCompanyProfileFunc != nil {
		return f.FetchCompanyProfileFunc(ctx, token)
	}
	return f.CompanyProfile, nil
}
