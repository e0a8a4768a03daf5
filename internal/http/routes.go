package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
	"github.com/itiportal/portal-session/internal/guard"
)

const defaultGuardWait = 5 * time.Second

// RouterServices holds everything the gateway router needs.
type RouterServices struct {
	Session SessionAuthority
	Guard   guard.Guard
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// GuardWait bounds how long guarded requests wait for startup loading.
	GuardWait time.Duration
	// OriginPatterns are the extra origins allowed on the events websocket.
	OriginPatterns []string
	Logger         *slog.Logger
}

// NewRouter creates the gateway router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	wait := services.GuardWait
	if wait <= 0 {
		wait = defaultGuardWait
	}
	g := services.Guard
	src := services.Session

	auth := &AuthHandlers{Session: src, Logger: logger}
	events := &EventHandlers{Session: src, Logger: logger, OriginPatterns: services.OriginPatterns}

	authenticated := RequireSession(src, g.Authenticated, wait)
	adminOnly := RequireSession(src, func(st domainauth.State, dest string) guard.Decision {
		return g.MinimumRole(st, dest, domainauth.RoleAdmin)
	}, wait)
	companyOnly := RequireSession(src, func(st domainauth.State, dest string) guard.Decision {
		return g.AllowRoles(st, dest, domainauth.RoleCompany)
	}, wait)

	r := chi.NewRouter()

	health := healthHandler(src)
	r.Get("/healthz", health)
	r.Head("/healthz", health)
	if services.Metrics != nil {
		r.Handle("/metrics", services.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", auth.Login)
		r.Post("/logout", auth.Logout)
		r.Get("/session", auth.Session)
		r.Get("/session/events", events.Stream)
		r.With(authenticated).Post("/session/refresh", auth.Refresh)
	})

	r.With(authenticated).Get("/me", auth.Me)
	r.With(adminOnly).Handle("/admin/*", auth.Area("admin"))
	r.With(companyOnly).Handle("/company/*", auth.Area("company"))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "route not found"})
	})

	return r
}
