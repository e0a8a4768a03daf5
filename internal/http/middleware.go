package httpx

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
	"github.com/itiportal/portal-session/internal/guard"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade pass through the logging wrapper.
func (w *respWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (w *respWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SessionSource is the read side of the session authority.
type SessionSource interface {
	Snapshot() domainauth.State
	Subscribe(fn func(domainauth.State)) func()
}

// GuardFunc evaluates a session snapshot for a destination.
type GuardFunc func(st domainauth.State, destination string) guard.Decision

// RequireSession admits requests that decide allows. While the session is
// still loading the request waits up to wait for it to settle, then gets a 503.
// Unauthenticated browser requests are redirected to the login page; API
// requests get a 401 carrying the same location.
func RequireSession(src SessionSource, decide GuardFunc, wait time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dest := r.URL.RequestURI()
			st := src.Snapshot()
			d := decide(st, dest)
			if d.Outcome == guard.Wait {
				st = waitSettled(r.Context(), src, wait)
				d = decide(st, dest)
			}

			switch d.Outcome {
			case guard.Allow:
				next.ServeHTTP(w, r.WithContext(SetStateInContext(r.Context(), st)))
			case guard.Redirect:
				if IsBrowserRequest(r) {
					http.Redirect(w, r, d.RedirectTo, http.StatusSeeOther)
					return
				}
				w.Header().Set("Location", d.RedirectTo)
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "authentication_required",
					Err:     errors.New("authentication required"),
				})
			case guard.Deny:
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "insufficient_permissions",
					Err:     errors.New("insufficient permissions"),
				})
			default:
				w.Header().Set("Retry-After", "1")
				WriteError(w, ErrorParams{
					Code:    http.StatusServiceUnavailable,
					ErrCode: "session_loading",
					Err:     errors.New("session is still loading"),
				})
			}
		})
	}
}

// waitSettled blocks until the session stops loading, the timeout passes or
// ctx ends, and returns the latest snapshot.
func waitSettled(ctx context.Context, src SessionSource, timeout time.Duration) domainauth.State {
	settled := make(chan domainauth.State, 1)
	unsubscribe := src.Subscribe(func(st domainauth.State) {
		if st.Loading {
			return
		}
		select {
		case settled <- st:
		default:
		}
	})
	defer unsubscribe()

	// Loading may have finished before the subscription was in place.
	if st := src.Snapshot(); !st.Loading {
		return st
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case st := <-settled:
		return st
	case <-timer.C:
	case <-ctx.Done():
	}
	return src.Snapshot()
}

// IsBrowserRequest reports whether the client prefers HTML. Requests under
// /auth/ and those without text/html in Accept are treated as API calls.
func IsBrowserRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/auth/") {
		return false
	}
	accept := r.Header.Get("Accept")
	if accept == "" {
		return false
	}
	return strings.Contains(accept, "text/html")
}
