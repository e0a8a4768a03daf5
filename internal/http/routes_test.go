package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
	apperrors "github.com/itiportal/portal-session/internal/errors"
	"github.com/itiportal/portal-session/internal/guard"
	mockauth "github.com/itiportal/portal-session/internal/mocks/auth"
	"github.com/itiportal/portal-session/internal/observability/metrics"
	"github.com/itiportal/portal-session/internal/ports"
	"github.com/itiportal/portal-session/internal/service"
	"github.com/itiportal/portal-session/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type gateway struct {
	authority *service.SessionAuthority
	api       *mockauth.FakePortalAPI
	store     *mockauth.MemoryCredentialStore
	handler   http.Handler
}

type gatewayOptions struct {
	user    *domainauth.UserRecord
	token   string
	noStart bool
	wait    time.Duration
	metrics http.Handler
}

func newGateway(t *testing.T, opts gatewayOptions) *gateway {
	t.Helper()

	api := mockauth.NewFakePortalAPI()
	store := mockauth.NewMemoryCredentialStore()
	if opts.user != nil {
		raw, err := json.Marshal(opts.user)
		require.NoError(t, err)
		api.ProfileUser = raw
		token := opts.token
		if token == "" {
			token = "tok"
		}
		store = mockauth.NewSeededCredentialStore(token, *opts.user)
	}

	authority := service.NewSessionAuthority(service.SessionAuthorityOptions{
		Store:                 store,
		API:                   api,
		Logger:                discardLogger(),
		StartupRefreshTimeout: time.Second,
		LogoutOnUnauthorized:  true,
	})
	t.Cleanup(authority.Close)

	if !opts.noStart {
		select {
		case <-authority.Start(context.Background()):
		case <-time.After(2 * time.Second):
			t.Fatal("session did not settle")
		}
	}

	handler := NewRouter(RouterServices{
		Session:   authority,
		Guard:     guard.New("/login"),
		Metrics:   opts.metrics,
		GuardWait: opts.wait,
		Logger:    discardLogger(),
	})
	return &gateway{authority: authority, api: api, store: store, handler: handler}
}

func (g *gateway) do(t *testing.T, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	g.handler.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) SessionView {
	t.Helper()
	var v SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var e errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func userPtr(u domainauth.UserRecord) *domainauth.UserRecord { return &u }

func TestRouter_Healthz(t *testing.T) {
	g := newGateway(t, gatewayOptions{})
	rec := g.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","session":"anonymous","loading":false}`, rec.Body.String())
}

func TestRouter_NotFound(t *testing.T) {
	g := newGateway(t, gatewayOptions{})
	rec := g.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Error)
}

func TestLogin_Success(t *testing.T) {
	g := newGateway(t, gatewayOptions{})

	rec := g.do(t, http.MethodPost, "/auth/login", `{"email":"student@iti.gov.eg","password":"secret"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "token-1")

	v := decodeView(t, rec)
	assert.True(t, v.IsAuthenticated)
	assert.False(t, v.Loading)
	assert.Equal(t, domainauth.PhaseAuthenticated, v.Phase)
	assert.Equal(t, domainauth.RoleStudent, v.Role)
	require.NotNil(t, v.Token)
	assert.False(t, v.Token.JWT)

	assert.Equal(t, 1, g.api.Calls("Login"))
	assert.True(t, g.authority.Snapshot().IsAuthenticated)
}

func TestLogin_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		loginErr   error
		wantStatus int
		wantCode   string
		wantField  string
		wantMsg    string
	}{
		{
			name:       "malformed json",
			body:       `{"email":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_json",
		},
		{
			name:       "unknown field",
			body:       `{"email":"a@b.co","password":"x","remember":true}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_json",
		},
		{
			name:       "missing email",
			body:       `{"email":"","password":"x"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   string(apperrors.ErrCodeValidation),
			wantField:  "Email",
		},
		{
			name:       "rejected credentials",
			body:       `{"email":"a@b.co","password":"wrong"}`,
			loginErr:   apperrors.FromHTTPStatus(http.StatusUnauthorized, "Invalid credentials"),
			wantStatus: http.StatusUnauthorized,
			wantCode:   string(apperrors.ErrCodeUnauthorized),
			wantMsg:    "Invalid credentials",
		},
		{
			name:       "backend unreachable",
			body:       `{"email":"a@b.co","password":"x"}`,
			loginErr:   apperrors.FromTransport(errors.New("dial tcp: connection refused")),
			wantStatus: http.StatusBadGateway,
			wantCode:   string(apperrors.ErrCodeNetwork),
			wantMsg:    "network error, try again",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGateway(t, gatewayOptions{})
			if tt.loginErr != nil {
				g.api.LoginFunc = func(context.Context, ports.LoginInput) (ports.LoginResult, error) {
					return ports.LoginResult{}, tt.loginErr
				}
			}

			rec := g.do(t, http.MethodPost, "/auth/login", tt.body, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			e := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, e.Error)
			assert.Equal(t, tt.wantField, e.Field)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, e.Message)
			}
			assert.False(t, g.authority.Snapshot().IsAuthenticated)
		})
	}
}

func TestLogout_RemoteFailureStillEndsSession(t *testing.T) {
	g := newGateway(t, gatewayOptions{user: userPtr(testutil.NewUser().Build())})
	g.api.LogoutFunc = func(context.Context, string) error {
		return apperrors.FromHTTPStatus(http.StatusInternalServerError, "")
	}

	rec := g.do(t, http.MethodPost, "/auth/logout", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out logoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.False(t, out.RemoteOK)
	assert.NotEmpty(t, out.Warning)
	assert.False(t, out.Session.IsAuthenticated)
	assert.Equal(t, domainauth.PhaseAnonymous, out.Session.Phase)

	creds, err := g.store.Read(context.Background())
	require.NoError(t, err)
	assert.False(t, creds.Complete())
}

func TestLogout_Anonymous(t *testing.T) {
	g := newGateway(t, gatewayOptions{})

	rec := g.do(t, http.MethodPost, "/auth/logout", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out logoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.RemoteOK)
	assert.Empty(t, out.Warning)
	assert.Equal(t, 0, g.api.Calls("Logout"))
}

func TestSession_TokenSummary(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)

	g := newGateway(t, gatewayOptions{user: userPtr(testutil.NewUser().WithName("Sara", "Ali").Build()), token: raw})

	rec := g.do(t, http.MethodGet, "/auth/session", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), raw)

	v := decodeView(t, rec)
	assert.True(t, v.IsAuthenticated)
	assert.Equal(t, "Sara Ali", v.DisplayName)
	require.NotNil(t, v.Token)
	assert.True(t, v.Token.JWT)
	assert.Equal(t, "7", v.Token.Subject)
	require.NotNil(t, v.Token.ExpiresAt)
	assert.True(t, exp.Equal(*v.Token.ExpiresAt))
	assert.False(t, v.Token.Expired)
}

func TestSession_Anonymous(t *testing.T) {
	g := newGateway(t, gatewayOptions{})

	v := decodeView(t, g.do(t, http.MethodGet, "/auth/session", "", nil))
	assert.False(t, v.IsAuthenticated)
	assert.Equal(t, domainauth.PhaseAnonymous, v.Phase)
	assert.Nil(t, v.User)
	assert.Nil(t, v.Token)
}

func TestRefresh(t *testing.T) {
	g := newGateway(t, gatewayOptions{user: userPtr(testutil.NewUser().Build())})
	g.api.ProfileUser = json.RawMessage(`{"id":1,"role":"student","email":"new@iti.gov.eg"}`)

	rec := g.do(t, http.MethodPost, "/auth/session/refresh", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decodeView(t, rec)
	require.NotNil(t, v.User)
	assert.Equal(t, "new@iti.gov.eg", v.User.Email)
}

func TestRefresh_BackendError(t *testing.T) {
	g := newGateway(t, gatewayOptions{user: userPtr(testutil.NewUser().Build())})
	g.api.FetchProfileFunc = func(context.Context, string) (json.RawMessage, error) {
		return nil, apperrors.FromHTTPStatus(http.StatusInternalServerError, "")
	}

	rec := g.do(t, http.MethodPost, "/auth/session/refresh", "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, string(apperrors.ErrCodeRemote), decodeError(t, rec).Error)
	assert.True(t, g.authority.Snapshot().IsAuthenticated)
}

func TestRefresh_RequiresSession(t *testing.T) {
	g := newGateway(t, gatewayOptions{})
	rec := g.do(t, http.MethodPost, "/auth/session/refresh", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, g.api.Calls("FetchProfile"))
}

func TestGuardedRoutes(t *testing.T) {
	student := testutil.NewUser().Build()
	admin := testutil.NewUser().WithRole(domainauth.RoleAdmin).Build()
	company := testutil.NewUser().WithCompany("Acme").Build()

	tests := []struct {
		name       string
		user       *domainauth.UserRecord
		path       string
		browser    bool
		wantStatus int
		wantLoc    string
	}{
		{name: "me anonymous api", path: "/me", wantStatus: http.StatusUnauthorized, wantLoc: "/login?redirect_uri=%2Fme"},
		{name: "me anonymous browser", path: "/me?tab=1", browser: true, wantStatus: http.StatusSeeOther, wantLoc: "/login?redirect_uri=%2Fme%3Ftab%3D1"},
		{name: "me student", user: &student, path: "/me", wantStatus: http.StatusOK},
		{name: "admin anonymous", path: "/admin/users", wantStatus: http.StatusUnauthorized, wantLoc: "/login?redirect_uri=%2Fadmin%2Fusers"},
		{name: "admin as student", user: &student, path: "/admin/users", wantStatus: http.StatusForbidden},
		{name: "admin as company", user: &company, path: "/admin/users", wantStatus: http.StatusForbidden},
		{name: "admin as admin", user: &admin, path: "/admin/users", wantStatus: http.StatusOK},
		{name: "company as company", user: &company, path: "/company/jobs", wantStatus: http.StatusOK},
		{name: "company as admin", user: &admin, path: "/company/jobs", wantStatus: http.StatusForbidden},
		{name: "company as student", user: &student, path: "/company/jobs", wantStatus: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGateway(t, gatewayOptions{user: tt.user})
			h := http.Header{}
			if tt.browser {
				h.Set("Accept", "text/html,application/xhtml+xml")
			}
			rec := g.do(t, http.MethodGet, tt.path, "", h)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantLoc != "" {
				assert.Equal(t, tt.wantLoc, rec.Header().Get("Location"))
			}
		})
	}
}

func TestGuardedRoute_AreaBody(t *testing.T) {
	admin := testutil.NewUser().WithRole(domainauth.RoleAdmin).Build()
	g := newGateway(t, gatewayOptions{user: &admin})

	rec := g.do(t, http.MethodGet, "/admin/reports", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out areaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "admin", out.Area)
	assert.Equal(t, "/admin/reports", out.Path)
	assert.Equal(t, domainauth.RoleAdmin, out.Role)
}

func TestGuardedRoute_LoadingTimesOut(t *testing.T) {
	g := newGateway(t, gatewayOptions{noStart: true, wait: 20 * time.Millisecond})

	rec := g.do(t, http.MethodGet, "/me", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "session_loading", decodeError(t, rec).Error)
}

func TestGuardedRoute_WaitsForReconciliation(t *testing.T) {
	user := testutil.NewUser().Build()
	g := newGateway(t, gatewayOptions{user: &user, noStart: true, wait: 2 * time.Second})

	release := make(chan struct{})
	profile := g.api.ProfileUser
	g.api.FetchProfileFunc = func(ctx context.Context, _ string) (json.RawMessage, error) {
		select {
		case <-release:
			return profile, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	done := g.authority.Start(context.Background())
	require.True(t, g.authority.Snapshot().Loading)

	result := make(chan int, 1)
	go func() {
		result <- g.do(t, http.MethodGet, "/me", "", nil).Code
	}()

	close(release)
	<-done

	select {
	case code := <-result:
		assert.Equal(t, http.StatusOK, code)
	case <-time.After(3 * time.Second):
		t.Fatal("guarded request did not complete")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom, err := metrics.NewPrometheus(reg)
	require.NoError(t, err)
	prom.ObserveState(domainauth.State{Phase: domainauth.PhaseAnonymous})

	g := newGateway(t, gatewayOptions{metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})})

	rec := g.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "portal_session_loading")
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	g := newGateway(t, gatewayOptions{})
	rec := g.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
