package auth

// Package auth contains domain-level types for portal sessions.
// It is pure and free of framework/adapter concerns.

import (
	"fmt"
	"strings"
)

// Role represents a portal account role.
// Keep string form so it matches the backend payloads verbatim.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStaff   Role = "staff"
	RoleCompany Role = "company"
	RoleAlumni  Role = "alumni"
	RoleStudent Role = "student"
)

// roleRank orders roles for minimum-role checks only.
// Allow-list checks ignore it.
var roleRank = map[Role]int{
	RoleStudent: 0,
	RoleAlumni:  1,
	RoleCompany: 2,
	RoleStaff:   3,
	RoleAdmin:   4,
}

// Roles returns every known role, lowest rank first.
func Roles() []Role {
	return []Role{RoleStudent, RoleAlumni, RoleCompany, RoleStaff, RoleAdmin}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Rank returns the hierarchy rank of r and whether r is known.
func (r Role) Rank() (int, bool) {
	rank, ok := roleRank[r]
	return rank, ok
}

// AtLeast reports whether r ranks at or above min. Unknown roles never satisfy.
func (r Role) AtLeast(minRole Role) bool {
	have, ok := r.Rank()
	if !ok {
		return false
	}
	want, ok := minRole.Rank()
	if !ok {
		return false
	}
	return have >= want
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q (valid options: student, alumni, company, staff, admin)", s)
	}
	return r, nil
}

// Phase is the lifecycle position of a session authority.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseReconciling   Phase = "reconciling"
	PhaseAuthenticated Phase = "authenticated"
	PhaseAnonymous     Phase = "anonymous"
)

// Credentials is what a credential store holds: a bearer token and the cached user.
// Either may be absent.
type Credentials struct {
	Token string
	User  *UserRecord
}

// Complete reports whether both the token and the cached user are present.
func (c Credentials) Complete() bool {
	return c.Token != "" && c.User != nil
}

// State is an immutable snapshot of the session.
// IsAuthenticated always equals Token != "".
type State struct {
	Phase           Phase       `json:"phase"`
	Token           string      `json:"-"`
	User            *UserRecord `json:"user,omitempty"`
	IsAuthenticated bool        `json:"isAuthenticated"`
	Loading         bool        `json:"loading"`
}

// Role returns the current user's role, or "" when there is no user.
func (s State) Role() Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

// NeedsVerification reports whether the signed-in account still has to verify its email.
func (s State) NeedsVerification() bool {
	return s.User != nil && s.User.NeedsVerification()
}

// PendingApproval reports whether the signed-in company is waiting for admin approval.
func (s State) PendingApproval() bool {
	return s.User != nil && s.User.PendingApproval()
}
