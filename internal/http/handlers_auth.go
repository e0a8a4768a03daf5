package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
	apperrors "github.com/itiportal/portal-session/internal/errors"
	"github.com/itiportal/portal-session/internal/ports"
	"github.com/itiportal/portal-session/internal/service"
)

// SessionAuthority is the session surface the gateway drives.
type SessionAuthority interface {
	SessionSource
	SignIn(ctx context.Context, in ports.LoginInput) (domainauth.State, error)
	Logout(ctx context.Context) service.LogoutResult
	Refresh(ctx context.Context, override *domainauth.UserRecord) (*domainauth.UserRecord, error)
}

// AuthHandlers provides HTTP handlers for session operations.
type AuthHandlers struct {
	Session SessionAuthority
	Logger  *slog.Logger
	// Now is used for token expiry; defaults to time.Now.
	Now func() time.Time
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *AuthHandlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenView describes the bearer token without exposing it.
type TokenView struct {
	JWT       bool       `json:"jwt"`
	Subject   string     `json:"subject,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Expired   bool       `json:"expired"`
}

// SessionView is the JSON form of a session snapshot.
type SessionView struct {
	Phase             domainauth.Phase       `json:"phase"`
	IsAuthenticated   bool                   `json:"isAuthenticated"`
	Loading           bool                   `json:"loading"`
	Role              domainauth.Role        `json:"role,omitempty"`
	DisplayName       string                 `json:"displayName,omitempty"`
	NeedsVerification bool                   `json:"needsVerification"`
	PendingApproval   bool                   `json:"pendingApproval"`
	User              *domainauth.UserRecord `json:"user,omitempty"`
	Token             *TokenView             `json:"token,omitempty"`
}

// NewSessionView renders st. The token is summarised, never echoed.
func NewSessionView(st domainauth.State, now time.Time) SessionView {
	v := SessionView{
		Phase:             st.Phase,
		IsAuthenticated:   st.IsAuthenticated,
		Loading:           st.Loading,
		Role:              st.Role(),
		NeedsVerification: st.NeedsVerification(),
		PendingApproval:   st.PendingApproval(),
		User:              st.User,
	}
	if st.User != nil {
		v.DisplayName = st.User.DisplayName()
	}
	if st.Token != "" {
		info := service.InspectToken(st.Token)
		tv := &TokenView{JWT: info.JWT, Subject: info.Subject, Expired: info.Expired(now)}
		if !info.ExpiresAt.IsZero() {
			exp := info.ExpiresAt.UTC()
			tv.ExpiresAt = &exp
		}
		v.Token = tv
	}
	return v
}

// Login handles POST /auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	st, err := h.Session.SignIn(r.Context(), ports.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		if !apperrors.IsValidation(err) && !apperrors.IsUnauthorized(err) {
			h.logger().WarnContext(r.Context(), "login failed", "error", err)
		}
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, NewSessionView(st, h.now()))
}

type logoutResponse struct {
	RemoteOK bool        `json:"remoteOk"`
	Warning  string      `json:"warning,omitempty"`
	Session  SessionView `json:"session"`
}

// Logout handles POST /auth/logout. The local session always ends; a remote
// failure is reported as a warning.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	res := h.Session.Logout(r.Context())
	out := logoutResponse{
		RemoteOK: res.RemoteOK,
		Session:  NewSessionView(h.Session.Snapshot(), h.now()),
	}
	if res.Err != nil {
		var remote *service.RemoteLogoutError
		if errors.As(res.Err, &remote) {
			out.Warning = "signed out locally; the server could not be reached: " + apperrors.UserMessage(remote.Err)
		} else {
			out.Warning = apperrors.UserMessage(res.Err)
		}
	}
	WriteJSON(w, http.StatusOK, out)
}

// Session handles GET /auth/session.
func (h *AuthHandlers) Session(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, NewSessionView(h.Session.Snapshot(), h.now()))
}

// Refresh handles POST /auth/session/refresh.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Session.Refresh(r.Context(), nil); err != nil {
		h.logger().WarnContext(r.Context(), "profile refresh failed", "error", err)
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, NewSessionView(h.Session.Snapshot(), h.now()))
}

// Me handles GET /me with the snapshot the guard admitted.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	st, ok := GetStateFromContext(r.Context())
	if !ok {
		st = h.Session.Snapshot()
	}
	WriteJSON(w, http.StatusOK, NewSessionView(st, h.now()))
}

type areaResponse struct {
	Area string          `json:"area"`
	Path string          `json:"path"`
	Role domainauth.Role `json:"role"`
}

// Area returns a handler for a guarded example area.
func (h *AuthHandlers) Area(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, _ := GetStateFromContext(r.Context())
		WriteJSON(w, http.StatusOK, areaResponse{Area: name, Path: r.URL.Path, Role: st.Role()})
	}
}
