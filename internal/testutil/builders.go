package testutil

import (
	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
)

// UserBuilder provides a fluent interface for building UserRecord values in tests.
type UserBuilder struct {
	u domainauth.UserRecord
}

// NewUser creates a UserBuilder for a verified student.
func NewUser() *UserBuilder {
	return &UserBuilder{u: domainauth.UserRecord{
		ID:         "1",
		Role:       domainauth.RoleStudent,
		Email:      "student@iti.gov.eg",
		IsVerified: BoolPtr(true),
	}}
}

// WithID sets the user ID.
func (b *UserBuilder) WithID(id string) *UserBuilder {
	b.u.ID = domainauth.UserID(id)
	return b
}

// WithRole sets the role.
func (b *UserBuilder) WithRole(role domainauth.Role) *UserBuilder {
	b.u.Role = role
	return b
}

// WithEmail sets the email.
func (b *UserBuilder) WithEmail(email string) *UserBuilder {
	b.u.Email = email
	return b
}

// Unverified marks the account as not yet verified.
func (b *UserBuilder) Unverified() *UserBuilder {
	b.u.IsVerified = BoolPtr(false)
	return b
}

// Unapproved marks the account as awaiting approval.
func (b *UserBuilder) Unapproved() *UserBuilder {
	b.u.IsApproved = BoolPtr(false)
	return b
}

// WithCompany sets the role to company with the given company name.
func (b *UserBuilder) WithCompany(name string) *UserBuilder {
	b.u.Role = domainauth.RoleCompany
	b.u.Profile = domainauth.CompanyProfile{CompanyName: name}
	return b
}

// WithName sets a person profile.
func (b *UserBuilder) WithName(first, last string) *UserBuilder {
	b.u.Profile = domainauth.PersonProfile{FirstName: first, LastName: last}
	return b
}

// Build returns the configured UserRecord.
func (b *UserBuilder) Build() domainauth.UserRecord {
	return *b.u.Clone()
}

// AuthenticatedState returns a settled, signed-in session for u.
func AuthenticatedState(u domainauth.UserRecord, token string) domainauth.State {
	return domainauth.State{
		Phase:           domainauth.PhaseAuthenticated,
		Token:           token,
		User:            u.Clone(),
		IsAuthenticated: token != "",
	}
}
