// Package portalapi is the HTTP adapter for the ITI portal backend.
package portalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"

	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
	apperrors "github.com/itiportal/portal-session/internal/errors"
	"github.com/itiportal/portal-session/internal/ports"
)

const (
	pathLogin          = "/auth/login"
	pathLogout         = "/auth/logout"
	pathProfile        = "/profile"
	pathCompanyProfile = "/companies/my-profile"

	defaultTimeout         = 15 * time.Second
	defaultUserAgent       = "portal-session"
	defaultProfileUserPath = "data.user"
	defaultCompanyPath     = "data"
	defaultTokenPath       = "data.token"
	loginDataPath          = "data"
	maxBodyBytes           = 1 << 20

	headerRequestID = "X-Request-ID"
)

// Config describes how to reach the portal API.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string

	// JMESPath expressions locating payloads inside the response envelope.
	ProfileUserPath    string
	CompanyProfilePath string
	TokenPath          string

	// Transport overrides the base round tripper (tests).
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Client implements ports.PortalAPI over HTTP.
type Client struct {
	baseURL   string
	timeout   time.Duration
	transport http.RoundTripper
	jar       http.CookieJar
	logger    *slog.Logger

	profileUserPath    string
	companyProfilePath string
	tokenPath          string
}

var _ ports.PortalAPI = (*Client)(nil)

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("portal api base url is required")
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid portal api base url %q", cfg.BaseURL)
	}

	paths := map[string]*string{
		"profile user path":    &cfg.ProfileUserPath,
		"company profile path": &cfg.CompanyProfilePath,
		"token path":           &cfg.TokenPath,
	}
	defaults := map[string]string{
		"profile user path":    defaultProfileUserPath,
		"company profile path": defaultCompanyPath,
		"token path":           defaultTokenPath,
	}
	for name, p := range paths {
		if strings.TrimSpace(*p) == "" {
			*p = defaults[name]
		}
		if _, err = jmespath.Compile(*p); err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", name, *p, err)
		}
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	rt := cfg.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:            base,
		timeout:            timeout,
		transport:          &headerTransport{base: rt, userAgent: ua},
		jar:                jar,
		logger:             logger.With("component", "portalapi"),
		profileUserPath:    cfg.ProfileUserPath,
		companyProfilePath: cfg.CompanyProfilePath,
		tokenPath:          cfg.TokenPath,
	}, nil
}

// httpClient returns a client that authorises requests with token when set.
func (c *Client) httpClient(token string) *http.Client {
	rt := c.transport
	if token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   c.transport,
		}
	}
	return &http.Client{Transport: rt, Jar: c.jar, Timeout: c.timeout}
}

// Login posts the credentials and decodes the token and user.
func (c *Client) Login(ctx context.Context, in ports.LoginInput) (ports.LoginResult, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return ports.LoginResult{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode login request")
	}

	env, err := c.do(ctx, http.MethodPost, pathLogin, "", body)
	if err != nil {
		return ports.LoginResult{}, err
	}

	token, err := searchString(env.payload, c.tokenPath)
	if err != nil {
		return ports.LoginResult{}, err
	}
	user, err := loginUser(env.payload)
	if err != nil {
		return ports.LoginResult{}, err
	}
	return ports.LoginResult{Token: token, User: user, Message: env.message}, nil
}

// Logout invalidates token on the server. Any 2xx counts as success.
func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.do(ctx, http.MethodPost, pathLogout, token, nil)
	if apperrors.GetCode(err) == apperrors.ErrCodeInvalidResponse {
		// Logout bodies are not inspected.
		return nil
	}
	return err
}

// FetchProfile returns the user object of GET /profile.
func (c *Client) FetchProfile(ctx context.Context, token string) (json.RawMessage, error) {
	return c.fetch(ctx, pathProfile, token, c.profileUserPath)
}

// FetchCompanyProfile returns the company object of GET /companies/my-profile.
func (c *Client) FetchCompanyProfile(ctx context.Context, token string) (json.RawMessage, error) {
	return c.fetch(ctx, pathCompanyProfile, token, c.companyProfilePath)
}

func (c *Client) fetch(ctx context.Context, path, token, expr string) (json.RawMessage, error) {
	env, err := c.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, err
	}
	v, err := jmespath.Search(expr, env.payload)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "evaluate %q", expr)
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrEnvelopeFieldMissing, expr)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "re-encode payload")
	}
	return raw, nil
}

// envelope is a decoded 2xx response body.
type envelope struct {
	payload any
	message string
}

func (c *Client) do(ctx context.Context, method, path, token string, body []byte) (envelope, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return envelope{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient(token).Do(req)
	if err != nil {
		c.logger.DebugContext(ctx, "portal api request failed", "method", method, "path", path, "error", err)
		return envelope{}, apperrors.FromTransport(err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "portal api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return envelope{}, apperrors.FromTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return envelope{}, statusError(resp.StatusCode, raw)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return envelope{}, nil
	}

	payload, err := decodeJSON(raw)
	if err != nil {
		return envelope{}, apperrors.Wrap(err, apperrors.ErrCodeInvalidResponse, "response is not valid JSON")
	}

	env := envelope{payload: payload}
	if obj, ok := payload.(map[string]any); ok {
		env.message, _ = obj["message"].(string)
		if success, ok := obj["success"].(bool); ok && !success {
			return envelope{}, &apperrors.AppError{
				Code:    apperrors.ErrCodeRemote,
				Message: fallback(env.message, "request was not successful"),
				Status:  resp.StatusCode,
			}
		}
	}
	return env, nil
}

func statusError(status int, body []byte) error {
	appErr := apperrors.FromHTTPStatus(status, "")
	payload, err := decodeJSON(body)
	if err != nil {
		return appErr
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return appErr
	}
	if msg, ok := obj["message"].(string); ok && strings.TrimSpace(msg) != "" {
		appErr.Message = msg
	}
	// Validation failures carry {"errors": {"field": ["msg", ...]}}; surface the first.
	if errs, ok := obj["errors"].(map[string]any); ok && appErr.Code == apperrors.ErrCodeValidation {
		for field, v := range errs {
			if list, ok := v.([]any); ok && len(list) > 0 {
				if msg, ok := list[0].(string); ok {
					appErr.Field = field
					appErr.Message = msg
					break
				}
			}
		}
	}
	return appErr
}

func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func searchString(payload any, expr string) (string, error) {
	v, err := jmespath.Search(expr, payload)
	if err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrCodeInternal, "evaluate %q", expr)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", apperrors.InvalidResponse("login response did not include a token")
	}
	return s, nil
}

// loginUser builds the user from data.user, or from the role-bearing data
// object itself, folding in the top-level verification flags.
func loginUser(payload any) (domainauth.UserRecord, error) {
	v, err := jmespath.Search(loginDataPath, payload)
	if err != nil {
		return domainauth.UserRecord{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "evaluate login data")
	}
	data, ok := v.(map[string]any)
	if !ok {
		return domainauth.UserRecord{}, apperrors.InvalidResponse("login response did not include data")
	}

	var user map[string]any
	if nested, ok := data["user"].(map[string]any); ok {
		user = nested
	} else {
		user = make(map[string]any, len(data))
		for k, val := range data {
			if k == "token" {
				continue
			}
			user[k] = val
		}
	}
	for _, flag := range []string{"isVerified", "isApproved"} {
		if _, has := user[flag]; has {
			continue
		}
		if val, ok := data[flag]; ok {
			user[flag] = val
		}
	}

	raw, err := json.Marshal(user)
	if err != nil {
		return domainauth.UserRecord{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "re-encode login user")
	}
	var rec domainauth.UserRecord
	if err = json.Unmarshal(raw, &rec); err != nil {
		return domainauth.UserRecord{}, apperrors.Wrap(err, apperrors.ErrCodeInvalidResponse, "decode login user")
	}
	if rec.Role == "" {
		return domainauth.UserRecord{}, apperrors.InvalidResponse("login response did not include a role")
	}
	return rec, nil
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// headerTransport stamps every request with a request ID and user agent.
type headerTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	if r.Header.Get(headerRequestID) == "" {
		r.Header.Set(headerRequestID, uuid.NewString())
	}
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}
