package httpx

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
	apperrors "github.com/itiportal/portal-session/internal/errors"
	"github.com/itiportal/portal-session/internal/guard"
	"github.com/itiportal/portal-session/internal/testutil"
)

// staticSource is a SessionSource that never changes.
type staticSource struct {
	st domainauth.State
}

func (s staticSource) Snapshot() domainauth.State { return s.st }
func (s staticSource) Subscribe(func(domainauth.State)) func() { return func() {} }

func TestRequireSession_PutsStateInContext(t *testing.T) {
	st := testutil.AuthenticatedState(testutil.NewUser().WithRole(domainauth.RoleStaff).Build(), "tok")
	mw := RequireSession(staticSource{st: st}, guard.New("").Authenticated, 0)

	var got domainauth.State
	var ok bool
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = GetStateFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, ok)
	assert.Equal(t, domainauth.RoleStaff, got.Role())
}

func TestGetStateFromContext_Missing(t *testing.T) {
	_, ok := GetStateFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}

func TestIsBrowserRequest(t *testing.T) {
	tests := []struct {
		path   string
		accept string
		want   bool
	}{
		{path: "/me", accept: "text/html,application/xhtml+xml", want: true},
		{path: "/me", accept: "application/json", want: false},
		{path: "/me", accept: "", want: false},
		{path: "/auth/session/refresh", accept: "text/html", want: false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if tt.accept != "" {
			r.Header.Set("Accept", tt.accept)
		}
		assert.Equal(t, tt.want, IsBrowserRequest(r), "%s accept=%q", tt.path, tt.accept)
	}
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), `"msg":"panic"`)
}

func TestLogging_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/auth/login"`)
}

func TestWriteAppError_StatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.ValidationField("Email", "Email is required"), http.StatusBadRequest},
		{apperrors.Unauthorized("nope"), http.StatusUnauthorized},
		{apperrors.FromHTTPStatus(http.StatusForbidden, ""), http.StatusForbidden},
		{apperrors.InvalidResponse("bad"), http.StatusBadGateway},
		{apperrors.FromHTTPStatus(http.StatusGatewayTimeout, ""), http.StatusGatewayTimeout},
		{apperrors.Internal("oops"), http.StatusInternalServerError},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		WriteAppError(rec, tt.err)
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
	}
}
