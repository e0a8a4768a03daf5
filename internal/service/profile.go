package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
	"github.com/itiportal/portal-session/internal/ports"
)

var (
	// ErrNoUserContext is returned when a profile fetch has no user (or no role) to work from.
	ErrNoUserContext = errors.New("no user available")

	// ErrInvalidResponseShape is returned when a 2xx profile response lacks the expected envelope.
	// Callers keep their cached data.
	ErrInvalidResponseShape = errors.New("invalid profile response shape")
)

const (
	endpointProfile        = "/profile"
	endpointCompanyProfile = "/companies/my-profile"
)

// ProfileFetchError reports a network failure or non-2xx response from a profile endpoint.
type ProfileFetchError struct {
	Role     domainauth.Role
	Endpoint string
	Err      error
}

func (e *ProfileFetchError) Error() string {
	return fmt.Sprintf("fetch profile %s (role %s): %v", e.Endpoint, e.Role, e.Err)
}

func (e *ProfileFetchError) Unwrap() error { return e.Err }

// ProfileServiceOptions groups dependencies for ProfileService.
type ProfileServiceOptions struct {
	API ports.PortalAPI
}

// ProfileService fetches the authoritative profile for a user, picking the
// endpoint by role and normalizing both response shapes into a UserRecord.
type ProfileService struct {
	api ports.PortalAPI
}

// NewProfileService constructs a new ProfileService.
func NewProfileService(opts ProfileServiceOptions) *ProfileService {
	return &ProfileService{api: opts.API}
}

// Fetch returns a fresh copy of user. It has no side effects; persisting the
// result is the caller's job.
func (s *ProfileService) Fetch(ctx context.Context, token string, user *domainauth.UserRecord) (*domainauth.UserRecord, error) {
	if user == nil || user.Role == "" {
		return nil, ErrNoUserContext
	}
	if user.Role == domainauth.RoleCompany {
		return s.fetchCompany(ctx, token, user)
	}
	return s.fetchPerson(ctx, token, user)
}

func (s *ProfileService) fetchCompany(ctx context.Context, token string, user *domainauth.UserRecord) (*domainauth.UserRecord, error) {
	raw, err := s.api.FetchCompanyProfile(ctx, token)
	if err != nil {
		return nil, classifyFetchError(err, user.Role, endpointCompanyProfile)
	}

	var profile domainauth.CompanyProfile
	if err = json.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("%w: company profile: %w", ErrInvalidResponseShape, err)
	}
	return user.WithCompanyProfile(profile), nil
}

func (s *ProfileService) fetchPerson(ctx context.Context, token string, user *domainauth.UserRecord) (*domainauth.UserRecord, error) {
	raw, err := s.api.FetchProfile(ctx, token)
	if err != nil {
		return nil, classifyFetchError(err, user.Role, endpointProfile)
	}

	var fresh domainauth.UserRecord
	if err = json.Unmarshal(raw, &fresh); err != nil {
		return nil, fmt.Errorf("%w: user: %w", ErrInvalidResponseShape, err)
	}
	// An established role is never dropped by a payload that omits it.
	if fresh.Role == "" {
		fresh.Role = user.Role
	}
	return &fresh, nil
}

func classifyFetchError(err error, role domainauth.Role, endpoint string) error {
	if errors.Is(err, ports.ErrEnvelopeFieldMissing) {
		return fmt.Errorf("%w: %s", ErrInvalidResponseShape, endpoint)
	}
	return &ProfileFetchError{Role: role, Endpoint: endpoint, Err: err}
}
