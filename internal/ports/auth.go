package ports

// Package ports defines interfaces (hexagonal ports) for session-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"encoding/json"
	"errors"

	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
)

// CredentialStore persists the bearer token and the cached user across restarts.
// Implementations write and clear both entries together.
type CredentialStore interface {
	// Write stores both the token and the serialized user.
	Write(ctx context.Context, token string, user domainauth.UserRecord) error
	// Read returns whatever is stored; missing entries are not an error.
	Read(ctx context.Context) (domainauth.Credentials, error)
	// Clear removes both entries.
	Clear(ctx context.Context) error
}

// LoginInput carries the credentials submitted on the login form.
type LoginInput struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResult is the decoded payload of a successful login call.
type LoginResult struct {
	Token   string
	User    domainauth.UserRecord
	Message string
}

// ErrEnvelopeFieldMissing is returned by PortalAPI fetches when a 2xx
// response does not carry the expected envelope field.
var ErrEnvelopeFieldMissing = errors.New("response envelope field missing")

// PortalAPI is the remote portal backend as seen by the session core.
type PortalAPI interface {
	// Login exchanges email and password for a token and the account's user record.
	Login(ctx context.Context, in LoginInput) (LoginResult, error)

	// Logout invalidates token on the server.
	Logout(ctx context.Context, token string) error

	// FetchProfile returns the user object of the generic profile endpoint.
	FetchProfile(ctx context.Context, token string) (json.RawMessage, error)

	// FetchCompanyProfile returns the company object of the company-profile endpoint.
	FetchCompanyProfile(ctx context.Context, token string) (json.RawMessage, error)
}
