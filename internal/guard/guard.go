// Package guard decides whether a session may reach a destination.
// Decisions are pure functions of a state snapshot; callers render them.
package guard

import (
	"net/url"
	"slices"
	"strings"

	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
)

// DefaultLoginPath is used when a Guard has no login path configured.
const DefaultLoginPath = "/login"

// Outcome is the result class of a guard decision.
type Outcome string

const (
	Allow    Outcome = "allow"
	Wait     Outcome = "wait"
	Redirect Outcome = "redirect"
	Deny     Outcome = "deny"
)

// Decision is what a guard concluded. RedirectTo is set only for Redirect.
type Decision struct {
	Outcome    Outcome
	RedirectTo string
}

// Guard evaluates navigation rules against session snapshots.
type Guard struct {
	LoginPath string
}

// New returns a Guard that sends unauthenticated users to loginPath.
func New(loginPath string) Guard {
	return Guard{LoginPath: loginPath}
}

// Authenticated allows any signed-in session.
func (g Guard) Authenticated(st domainauth.State, destination string) Decision {
	if st.Loading {
		return Decision{Outcome: Wait}
	}
	if !st.IsAuthenticated {
		return g.redirect(destination)
	}
	return Decision{Outcome: Allow}
}

// AllowRoles allows signed-in sessions whose role is in roles. Membership is
// flat; rank is not consulted.
func (g Guard) AllowRoles(st domainauth.State, destination string, roles ...domainauth.Role) Decision {
	if d := g.Authenticated(st, destination); d.Outcome != Allow {
		return d
	}
	if slices.Contains(roles, st.Role()) {
		return Decision{Outcome: Allow}
	}
	return Decision{Outcome: Deny}
}

// MinimumRole allows signed-in sessions whose role ranks at or above minRole.
// Unknown roles are denied.
func (g Guard) MinimumRole(st domainauth.State, destination string, minRole domainauth.Role) Decision {
	if d := g.Authenticated(st, destination); d.Outcome != Allow {
		return d
	}
	if st.Role().AtLeast(minRole) {
		return Decision{Outcome: Allow}
	}
	return Decision{Outcome: Deny}
}

func (g Guard) redirect(destination string) Decision {
	login := g.LoginPath
	if login == "" {
		login = DefaultLoginPath
	}
	return Decision{
		Outcome:    Redirect,
		RedirectTo: login + "?redirect_uri=" + url.QueryEscape(SafeDestination(destination)),
	}
}

// SafeDestination reduces candidate to an in-app path. Absolute URLs
// collapse to their request URI; scheme-relative ones, including the
// backslash form, and anything unparseable become "/".
func SafeDestination(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil {
		return "/"
	}
	if u.IsAbs() {
		candidate = u.RequestURI()
		u, err = url.Parse(candidate)
		if err != nil {
			return "/"
		}
	}
	// Browsers read a leading "/\" as "//".
	if u.Host != "" || !strings.HasPrefix(u.Path, "/") ||
		strings.HasPrefix(candidate, "//") || strings.HasPrefix(candidate, "/\\") {
		return "/"
	}
	return candidate
}
