// Package mocks provides gomock implementations of the session ports.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	api := mocks.NewMockPortalAPI(ctrl)
//	api.EXPECT().FetchProfile(gomock.Any(), "token").Return(raw, nil)
package mocks

// Generate mock for PortalAPI interface from internal/ports package.
// This creates MockPortalAPI with methods for all PortalAPI interface methods:
// Login, Logout, FetchProfile, FetchCompanyProfile
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=portal_api_mock.go github.com/itiportal/portal-session/internal/ports PortalAPI

// Generate mock for CredentialStore interface from internal/ports package.
// This creates MockCredentialStore with methods for all CredentialStore interface methods:
// Write, Read, Clear
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=credential_store_mock.go github.com/itiportal/portal-session/internal/ports CredentialStore
