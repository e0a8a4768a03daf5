package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
	apperrors "github.com/itiportal/portal-session/internal/errors"
	"github.com/itiportal/portal-session/internal/observability/metrics"
	"github.com/itiportal/portal-session/internal/ports"
)

const defaultStartupRefreshTimeout = 10 * time.Second

// SessionAuthorityOptions groups dependencies for SessionAuthority.
type SessionAuthorityOptions struct {
	Store    ports.CredentialStore
	API      ports.PortalAPI
	Profiles *ProfileService
	Logger   *slog.Logger
	Metrics  metrics.Sink

	// StartupRefreshTimeout bounds the background refresh run by Start.
	StartupRefreshTimeout time.Duration

	// LogoutOnUnauthorized ends the restored session when the startup refresh
	// is rejected with 401. Other startup failures keep the cached user.
	LogoutOnUnauthorized bool
}

// RemoteLogoutError reports that the server-side logout call failed.
// The local session is cleared regardless.
type RemoteLogoutError struct {
	Err error
}

func (e *RemoteLogoutError) Error() string { return fmt.Sprintf("remote logout: %v", e.Err) }

func (e *RemoteLogoutError) Unwrap() error { return e.Err }

// LogoutResult describes how a logout went on the server side.
type LogoutResult struct {
	// RemoteCalled is false when there was no token to invalidate.
	RemoteCalled bool
	// RemoteOK is true when the server accepted the logout or no call was needed.
	RemoteOK bool
	// Err is a *RemoteLogoutError when RemoteOK is false.
	Err error
}

// SessionAuthority owns the session state. It is the only writer of the
// credential store and the in-memory session, and notifies subscribers after
// every mutation.
type SessionAuthority struct {
	store                ports.CredentialStore
	api                  ports.PortalAPI
	profiles             *ProfileService
	logger               *slog.Logger
	metrics              metrics.Sink
	validate             *validator.Validate
	startupTimeout       time.Duration
	logoutOnUnauthorized bool

	// persistMu pairs every store write or clear with the generation check or
	// bump that goes with it, so a refresh can never persist into a session
	// that has already ended. Lock order: persistMu, notifyMu, mu.
	persistMu sync.Mutex

	// notifyMu serializes mutation+notification so observers see states in order.
	notifyMu sync.Mutex

	mu         sync.Mutex
	state      domainauth.State
	generation uint64
	started    bool
	closed     bool
	observers  map[uint64]func(domainauth.State)
	nextObsID  uint64
}

// NewSessionAuthority constructs a SessionAuthority in the loading state.
// Call Start to reconcile it with the credential store.
func NewSessionAuthority(opts SessionAuthorityOptions) *SessionAuthority {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	profiles := opts.Profiles
	if profiles == nil {
		profiles = NewProfileService(ProfileServiceOptions{API: opts.API})
	}
	timeout := opts.StartupRefreshTimeout
	if timeout <= 0 {
		timeout = defaultStartupRefreshTimeout
	}

	return &SessionAuthority{
		store:                opts.Store,
		api:                  opts.API,
		profiles:             profiles,
		logger:               logger,
		metrics:              opts.Metrics,
		validate:             validator.New(validator.WithRequiredStructEnabled()),
		startupTimeout:       timeout,
		logoutOnUnauthorized: opts.LogoutOnUnauthorized,
		state: domainauth.State{
			Phase:   domainauth.PhaseUninitialized,
			Loading: true,
		},
		observers: make(map[uint64]func(domainauth.State)),
	}
}

// Snapshot returns a copy of the current state.
func (s *SessionAuthority) Snapshot() domainauth.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyState(s.state)
}

// Subscribe registers fn to be called with the new state after every mutation.
// fn runs synchronously on the mutating goroutine and must not call back into
// mutating methods. The returned func removes the subscription.
func (s *SessionAuthority) Subscribe(fn func(domainauth.State)) func() {
	s.mu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// Close detaches all subscribers and makes every later state write a no-op.
// In-flight refreshes that complete afterwards are dropped.
func (s *SessionAuthority) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	clear(s.observers)
}

// update applies fn to the state and notifies observers. It returns false
// when the authority is closed or when fn declines the change.
func (s *SessionAuthority) update(fn func(st *domainauth.State, gen *uint64) bool) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.closed || !fn(&s.state, &s.generation) {
		s.mu.Unlock()
		return false
	}
	s.state.IsAuthenticated = s.state.Token != ""
	snap := copyState(s.state)
	observers := make([]func(domainauth.State), 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	s.mu.Unlock()

	for _, o := range observers {
		o(copyState(snap))
	}
	return true
}

// Start runs startup reconciliation. The credential store is read and the
// cached session adopted before Start returns; the profile refresh then runs
// in the background. The returned channel is closed once loading is false.
func (s *SessionAuthority) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		close(done)
		return done
	}
	s.started = true
	s.mu.Unlock()

	creds, err := s.store.Read(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "read stored credentials failed, starting anonymous", "error", err)
		creds = domainauth.Credentials{}
	}

	if !creds.Complete() {
		if creds.Token != "" || creds.User != nil {
			// Half a session is never adopted; drop it so store and state agree.
			s.persistMu.Lock()
			if clearErr := s.store.Clear(ctx); clearErr != nil {
				s.logger.WarnContext(ctx, "clear partial credentials failed", "error", clearErr)
			}
			s.persistMu.Unlock()
		}
		s.update(func(st *domainauth.State, _ *uint64) bool {
			*st = domainauth.State{Phase: domainauth.PhaseAnonymous}
			return true
		})
		s.logger.DebugContext(ctx, "session reconciled", "phase", domainauth.PhaseAnonymous)
		close(done)
		return done
	}

	s.update(func(st *domainauth.State, _ *uint64) bool {
		st.Phase = domainauth.PhaseReconciling
		st.Token = creds.Token
		st.User = creds.User
		return true
	})

	go func() {
		defer close(done)
		s.reconcile(ctx, creds)
		s.finishLoading(ctx)
	}()
	return done
}

func (s *SessionAuthority) reconcile(ctx context.Context, creds domainauth.Credentials) {
	rctx, cancel := context.WithTimeout(ctx, s.startupTimeout)
	defer cancel()

	_, err := s.refresh(rctx, nil, metrics.TriggerStartup)
	if err == nil {
		return
	}
	if s.logoutOnUnauthorized && apperrors.IsUnauthorized(err) {
		s.logger.WarnContext(ctx, "stored token rejected, ending session", "user_id", creds.User.ID, "error", err)
		s.endLocalSession(ctx, creds.Token)
		return
	}
	s.logger.WarnContext(ctx, "startup profile refresh failed, keeping cached user",
		"user_id", creds.User.ID, "role", creds.User.Role, "error", err)
}

func (s *SessionAuthority) finishLoading(ctx context.Context) {
	s.update(func(st *domainauth.State, _ *uint64) bool {
		st.Loading = false
		if st.Phase == domainauth.PhaseReconciling {
			st.Phase = domainauth.PhaseAnonymous
			if st.Token != "" {
				st.Phase = domainauth.PhaseAuthenticated
			}
		}
		return true
	})
	s.logger.DebugContext(ctx, "session reconciled", "phase", s.Snapshot().Phase)
}

// Login persists token and user, marks the session authenticated, and then
// refreshes the profile on a best-effort basis. Only a credential-store
// failure is returned; in that case nothing changed.
func (s *SessionAuthority) Login(ctx context.Context, user domainauth.UserRecord, token string) error {
	if token == "" {
		return apperrors.ValidationField("token", "token is required")
	}
	u := user.Clone()

	s.persistMu.Lock()
	if err := s.store.Write(ctx, token, user); err != nil {
		s.persistMu.Unlock()
		return fmt.Errorf("persist credentials: %w", err)
	}
	s.update(func(st *domainauth.State, gen *uint64) bool {
		*gen++
		if st.Phase != domainauth.PhaseReconciling {
			st.Loading = false
		}
		st.Phase = domainauth.PhaseAuthenticated
		st.Token = token
		st.User = u
		return true
	})
	s.persistMu.Unlock()
	s.logger.InfoContext(ctx, "session started", "user_id", user.ID, "role", user.Role)

	s.refreshSilently(ctx, u, metrics.TriggerLogin)
	return nil
}

// SignIn validates the credentials, calls the login endpoint, and starts a
// session with the returned token and user.
func (s *SessionAuthority) SignIn(ctx context.Context, in ports.LoginInput) (domainauth.State, error) {
	start := time.Now()
	state, err := s.signIn(ctx, in)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitSession(s.metrics, metrics.SessionMetric{
		Operation: metrics.OpLogin,
		Trigger:   metrics.TriggerExplicit,
		Result:    result,
		Duration:  time.Since(start),
		Err:       err,
	})
	return state, err
}

func (s *SessionAuthority) signIn(ctx context.Context, in ports.LoginInput) (domainauth.State, error) {
	if err := s.validate.StructCtx(ctx, in); err != nil {
		return domainauth.State{}, loginValidationError(err)
	}

	res, err := s.api.Login(ctx, in)
	if err != nil {
		s.logger.InfoContext(ctx, "login rejected", "error", err)
		return domainauth.State{}, err
	}
	if res.Token == "" {
		return domainauth.State{}, apperrors.InvalidResponse("login response did not include a token")
	}
	if res.User.Role == "" {
		return domainauth.State{}, apperrors.InvalidResponse("login response did not include a role")
	}

	if err = s.Login(ctx, res.User, res.Token); err != nil {
		return domainauth.State{}, err
	}
	return s.Snapshot(), nil
}

func loginValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			return apperrors.ValidationField(field, field+" is required")
		case "email":
			return apperrors.ValidationField(field, "enter a valid email address")
		default:
			return apperrors.ValidationField(field, field+" is invalid")
		}
	}
	return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid login input")
}

// Refresh fetches a fresh profile for override, or for the current user when
// override is nil, then persists and publishes it. Fetch failures are
// returned to the caller. It returns (nil, nil) without a network call when
// no user can be resolved, and also when there is no token: an override only
// replaces the user the fetch is made for, never the credentials, so without
// a signed-in session nothing is fetched. A response with an unexpected shape
// also yields (nil, nil).
func (s *SessionAuthority) Refresh(ctx context.Context, override *domainauth.UserRecord) (*domainauth.UserRecord, error) {
	return s.refresh(ctx, override, metrics.TriggerExplicit)
}

// RefreshSilently is Refresh with errors logged instead of returned.
func (s *SessionAuthority) RefreshSilently(ctx context.Context, override *domainauth.UserRecord) *domainauth.UserRecord {
	return s.refreshSilently(ctx, override, metrics.TriggerExplicit)
}

func (s *SessionAuthority) refreshSilently(ctx context.Context, override *domainauth.UserRecord, trigger string) *domainauth.UserRecord {
	fresh, err := s.refresh(ctx, override, trigger)
	if err != nil {
		s.logger.WarnContext(ctx, "background profile refresh failed", "trigger", trigger, "error", err)
		return nil
	}
	return fresh
}

func (s *SessionAuthority) refresh(ctx context.Context, override *domainauth.UserRecord, trigger string) (*domainauth.UserRecord, error) {
	start := time.Now()
	fresh, err := s.doRefresh(ctx, override)

	result := metrics.ResultSuccess
	switch {
	case err != nil:
		result = metrics.ResultError
	case fresh == nil:
		result = metrics.ResultNoop
	}
	metrics.EmitSession(s.metrics, metrics.SessionMetric{
		Operation: metrics.OpRefresh,
		Trigger:   trigger,
		Result:    result,
		Duration:  time.Since(start),
		Err:       err,
	})
	return fresh, err
}

func (s *SessionAuthority) doRefresh(ctx context.Context, override *domainauth.UserRecord) (*domainauth.UserRecord, error) {
	s.mu.Lock()
	user := override.Clone()
	if user == nil {
		user = s.state.User.Clone()
	}
	token := s.state.Token
	gen := s.generation
	s.mu.Unlock()

	if user == nil {
		s.logger.DebugContext(ctx, "refresh skipped", "reason", ErrNoUserContext.Error())
		return nil, nil
	}
	if token == "" {
		s.logger.DebugContext(ctx, "refresh skipped", "reason", "no token", "user_id", user.ID)
		return nil, nil
	}

	fresh, err := s.profiles.Fetch(ctx, token, user)
	switch {
	case errors.Is(err, ErrNoUserContext):
		s.logger.DebugContext(ctx, "refresh skipped", "reason", err.Error())
		return nil, nil
	case errors.Is(err, ErrInvalidResponseShape):
		s.logger.WarnContext(ctx, "profile response had unexpected shape, keeping cached user", "error", err)
		return nil, nil
	case err != nil:
		return nil, err
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if !s.sameSession(gen) {
		s.logger.DebugContext(ctx, "dropping refresh result for a replaced session", "user_id", fresh.ID)
		return fresh, nil
	}
	if err = s.store.Write(ctx, token, *fresh); err != nil {
		return nil, fmt.Errorf("persist refreshed user: %w", err)
	}

	applied := fresh.Clone()
	s.update(func(st *domainauth.State, cur *uint64) bool {
		if *cur != gen {
			return false
		}
		st.User = applied
		return true
	})
	return fresh, nil
}

func (s *SessionAuthority) sameSession(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == gen && !s.closed
}

// Logout invalidates the token on the server and always ends the local
// session, whether or not the remote call succeeded.
func (s *SessionAuthority) Logout(ctx context.Context) LogoutResult {
	start := time.Now()
	token := s.Snapshot().Token

	s.update(func(st *domainauth.State, _ *uint64) bool {
		st.Loading = true
		return true
	})

	res := LogoutResult{RemoteOK: true}
	if token != "" {
		res.RemoteCalled = true
		if err := s.api.Logout(ctx, token); err != nil {
			res.RemoteOK = false
			res.Err = &RemoteLogoutError{Err: err}
			s.logger.WarnContext(ctx, "remote logout failed, clearing local session anyway", "error", err)
		}
	}

	s.endLocalSession(ctx, "")

	result := metrics.ResultSuccess
	if !res.RemoteOK {
		result = metrics.ResultError
	}
	metrics.EmitSession(s.metrics, metrics.SessionMetric{
		Operation: metrics.OpLogout,
		Trigger:   metrics.TriggerExplicit,
		Result:    result,
		Duration:  time.Since(start),
		Err:       res.Err,
	})
	s.logger.InfoContext(ctx, "session ended", "remote_ok", res.RemoteOK)
	return res
}

// endLocalSession clears the store and resets the state to anonymous. When
// onlyToken is set the reset only happens if that token is still current.
func (s *SessionAuthority) endLocalSession(ctx context.Context, onlyToken string) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if onlyToken != "" && s.Snapshot().Token != onlyToken {
		return
	}
	if err := s.store.Clear(ctx); err != nil {
		s.logger.ErrorContext(ctx, "clear stored credentials failed", "error", err)
	}
	s.update(func(st *domainauth.State, gen *uint64) bool {
		if onlyToken != "" && st.Token != onlyToken {
			return false
		}
		*gen++
		phase := domainauth.PhaseAnonymous
		if st.Phase == domainauth.PhaseReconciling {
			phase = domainauth.PhaseReconciling
		}
		*st = domainauth.State{Phase: phase, Loading: st.Loading && phase == domainauth.PhaseReconciling}
		return true
	})
}

func copyState(st domainauth.State) domainauth.State {
	st.User = st.User.Clone()
	return st
}
