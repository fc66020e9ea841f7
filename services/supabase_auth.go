// Package services holds the collaborators behind the HTTP layer.
// File: services/supabase_auth.go
package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"playjosh/logger"
	"playjosh/models"
)

// ------------------ errors ------------------

var (
	// ErrSessionResolution is the root of every failure to resolve a session.
	ErrSessionResolution = errors.New("session resolution failed")
	// ErrMalformedSession means the auth cookie could not be decoded.
	ErrMalformedSession = fmt.Errorf("%w: malformed session cookie", ErrSessionResolution)
	// ErrBackendUnavailable covers network failures, timeouts and 5xx answers.
	ErrBackendUnavailable = fmt.Errorf("%w: auth backend unavailable", ErrSessionResolution)
)

// APIError is a 4xx answer from the auth backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth backend: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("auth backend: %d: %s", e.Status, e.Message)
}

// IsRejected reports whether err is a definitive 4xx refusal (bad credentials,
// revoked refresh token, invalid access token) rather than a transient failure.
func IsRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

var errTokenInvalid = &APIError{Status: http.StatusUnauthorized, Code: "invalid_token", Message: "access token failed verification"}

// ------------------ capability interfaces ------------------

// SessionResolver is the only capability the access guard needs from the auth
// backend. Resolution may refresh tokens; the returned cookies must be written
// onto whatever response is sent, even when err is not nil.
type SessionResolver interface {
	ResolveSession(ctx context.Context, cookies []*http.Cookie) (models.Session, []*http.Cookie, error)
}

// AuthClient is what the auth and onboarding controllers need.
type AuthClient interface {
	SignInWithPassword(ctx context.Context, email, password string) (*TokenSet, error)
	SignUp(ctx context.Context, email, password, fullName, redirectTo string) error
	RecoverPassword(ctx context.Context, email, redirectTo string) ([]*http.Cookie, error)
	ExchangeCodeForSession(ctx context.Context, code, verifier string) (*TokenSet, error)
	RefreshSession(ctx context.Context, refreshToken string) (*TokenSet, error)
	UpdateUserMetadata(ctx context.Context, accessToken string, data models.Metadata) (*models.User, error)
	UpdatePassword(ctx context.Context, accessToken, password string) error
	SignOut(ctx context.Context, accessToken string) error
	SessionCookies(tokens TokenSet, existing []*http.Cookie) ([]*http.Cookie, error)
	ClearCookies(existing []*http.Cookie) []*http.Cookie
	CodeVerifier(cookies []*http.Cookie) string
}

// ------------------ tokens ------------------

// TokenSet is the session payload stored in the auth cookie.
type TokenSet struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type,omitempty"`
	ExpiresIn    int64        `json:"expires_in,omitempty"`
	ExpiresAt    int64        `json:"expires_at,omitempty"`
	User         *models.User `json:"user,omitempty"`
}

// accessClaims is the subset of the access token the app reads.
type accessClaims struct {
	jwt.RegisteredClaims
	Email        string          `json:"email"`
	UserMetadata models.Metadata `json:"user_metadata"`
}

// ------------------ client ------------------

const (
	cookieBase64Prefix = "base64-"
	cookieChunkSize    = 3180
	cookieMaxAge       = 400 * 24 * 60 * 60
	expirySkew         = 10 * time.Second
	verifierMaxAge     = 60 * 60
)

// SupabaseAuthConfig configures SupabaseAuth.
type SupabaseAuthConfig struct {
	URL       string
	AnonKey   string
	JWTSecret string
	// CookieSecure sets the Secure attribute on every cookie written.
	CookieSecure bool
	HTTPClient   *http.Client
	// MaxAttempts bounds retries of transient failures (default 3).
	MaxAttempts   uint
	RetryInterval time.Duration
	Now           func() time.Time
}

// SupabaseAuth talks to the hosted auth REST API and owns the auth cookie format.
type SupabaseAuth struct {
	baseURL       string
	anonKey       string
	jwtSecret     []byte
	cookieName    string
	cookieSecure  bool
	client        *http.Client
	maxAttempts   uint
	retryInterval time.Duration
	now           func() time.Time
}

var (
	_ SessionResolver = (*SupabaseAuth)(nil)
	_ AuthClient      = (*SupabaseAuth)(nil)
)

// NewSupabaseAuth validates cfg and builds a client.
func NewSupabaseAuth(cfg SupabaseAuthConfig) (*SupabaseAuth, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", cfg.URL)
	}
	if cfg.AnonKey == "" {
		return nil, errors.New("backend anon key is required")
	}

	s := &SupabaseAuth{
		baseURL:       strings.TrimRight(cfg.URL, "/"),
		anonKey:       cfg.AnonKey,
		cookieName:    "sb-" + strings.Split(u.Hostname(), ".")[0] + "-auth-token",
		cookieSecure:  cfg.CookieSecure,
		client:        cfg.HTTPClient,
		maxAttempts:   cfg.MaxAttempts,
		retryInterval: cfg.RetryInterval,
		now:           cfg.Now,
	}
	if cfg.JWTSecret != "" {
		s.jwtSecret = []byte(cfg.JWTSecret)
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: 10 * time.Second}
	}
	if s.maxAttempts == 0 {
		s.maxAttempts = 3
	}
	if s.retryInterval <= 0 {
		s.retryInterval = 100 * time.Millisecond
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// CookieName is the name of the auth cookie (or the stem of its chunks).
func (s *SupabaseAuth) CookieName() string {
	return s.cookieName
}

// ------------------ session resolution ------------------

// ResolveSession reads the auth cookie, refreshes an expired access token and
// validates the identity. A missing cookie is simply anonymous and costs no
// network call.
func (s *SupabaseAuth) ResolveSession(ctx context.Context, cookies []*http.Cookie) (models.Session, []*http.Cookie, error) {
	raw, present := s.readCookie(cookies)
	if len(present) == 0 {
		return models.Anonymous(), nil, nil
	}

	tokens, err := decodeTokens(raw)
	if err != nil {
		return models.Anonymous(), s.deletions(present), fmt.Errorf("%w: %v", ErrMalformedSession, err)
	}

	var mutations []*http.Cookie
	if s.expired(tokens) {
		refreshed, err := s.RefreshSession(ctx, tokens.RefreshToken)
		if IsRejected(err) {
			logger.Ctx(ctx).Debug().Err(err).Msg("refresh token rejected, clearing session")
			return models.Anonymous(), s.deletions(present), nil
		}
		if err != nil {
			return models.Anonymous(), nil, err
		}
		tokens = refreshed
		if mutations, err = s.sessionCookies(*tokens, present); err != nil {
			return models.Anonymous(), nil, fmt.Errorf("%w: %v", ErrSessionResolution, err)
		}
	}

	user, err := s.identify(ctx, tokens)
	if IsRejected(err) {
		return models.Anonymous(), s.deletions(present), nil
	}
	if err != nil {
		return models.Anonymous(), mutations, err
	}

	return models.Session{
		Authenticated: true,
		User:          *user,
		AccessToken:   tokens.AccessToken,
		RefreshToken:  tokens.RefreshToken,
	}, mutations, nil
}

func (s *SupabaseAuth) expired(tokens *TokenSet) bool {
	exp := time.Unix(tokens.ExpiresAt, 0)
	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokens.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	} else if tokens.ExpiresAt == 0 {
		return true
	}
	return !s.now().Add(expirySkew).Before(exp)
}

// identify validates the access token locally when a secret is configured,
// otherwise asks the backend.
func (s *SupabaseAuth) identify(ctx context.Context, tokens *TokenSet) (*models.User, error) {
	if s.jwtSecret == nil {
		var user models.User
		if err := s.call(ctx, http.MethodGet, "/auth/v1/user", tokens.AccessToken, nil, &user); err != nil {
			return nil, err
		}
		return &user, nil
	}

	var claims accessClaims
	_, err := jwt.ParseWithClaims(tokens.AccessToken, &claims, func(*jwt.Token) (any, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		logger.Ctx(ctx).Debug().Err(err).Msg("access token verification failed")
		return nil, errTokenInvalid
	}
	if claims.Subject == "" {
		return nil, errTokenInvalid
	}
	return &models.User{ID: claims.Subject, Email: claims.Email, UserMetadata: claims.UserMetadata}, nil
}

// ------------------ auth operations ------------------

// SignInWithPassword exchanges credentials for a token set.
func (s *SupabaseAuth) SignInWithPassword(ctx context.Context, email, password string) (*TokenSet, error) {
	body := map[string]string{"email": email, "password": password}
	return s.tokenGrant(ctx, "password", body)
}

// RefreshSession trades a refresh token for a new token pair.
func (s *SupabaseAuth) RefreshSession(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if refreshToken == "" {
		return nil, &APIError{Status: http.StatusBadRequest, Code: "refresh_token_not_found", Message: "no refresh token"}
	}
	return s.tokenGrant(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

// ExchangeCodeForSession completes the email-link / OAuth callback.
func (s *SupabaseAuth) ExchangeCodeForSession(ctx context.Context, code, verifier string) (*TokenSet, error) {
	return s.tokenGrant(ctx, "pkce", map[string]string{"auth_code": code, "code_verifier": verifier})
}

// SignUp registers a new identity; new accounts start onboarding from scratch.
func (s *SupabaseAuth) SignUp(ctx context.Context, email, password, fullName, redirectTo string) error {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data": models.Metadata{
			models.MetaFullName:         fullName,
			models.MetaOnboardingStatus: string(models.OnboardingNotStarted),
		},
	}
	return s.call(ctx, http.MethodPost, withRedirect("/auth/v1/signup", redirectTo), "", body, nil)
}

// RecoverPassword sends a password-reset mail whose link carries a PKCE code.
// The returned cookie holds the verifier ExchangeCodeForSession needs later.
func (s *SupabaseAuth) RecoverPassword(ctx context.Context, email, redirectTo string) ([]*http.Cookie, error) {
	verifier := oauth2.GenerateVerifier()
	body := map[string]string{
		"email":                 email,
		"code_challenge":        oauth2.S256ChallengeFromVerifier(verifier),
		"code_challenge_method": "s256",
	}
	if err := s.call(ctx, http.MethodPost, withRedirect("/auth/v1/recover", redirectTo), "", body, nil); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(verifier)
	if err != nil {
		return nil, err
	}
	value := cookieBase64Prefix + base64.RawURLEncoding.EncodeToString(encoded)
	return []*http.Cookie{s.cookie(s.verifierCookieName(), value, verifierMaxAge)}, nil
}

// UpdateUserMetadata merges data into the user's metadata bag.
func (s *SupabaseAuth) UpdateUserMetadata(ctx context.Context, accessToken string, data models.Metadata) (*models.User, error) {
	var user models.User
	if err := s.call(ctx, http.MethodPut, "/auth/v1/user", accessToken, map[string]any{"data": data}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdatePassword sets a new password for the user owning accessToken.
func (s *SupabaseAuth) UpdatePassword(ctx context.Context, accessToken, password string) error {
	return s.call(ctx, http.MethodPut, "/auth/v1/user", accessToken, map[string]string{"password": password}, nil)
}

// SignOut revokes the session server side.
func (s *SupabaseAuth) SignOut(ctx context.Context, accessToken string) error {
	return s.call(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
}

func (s *SupabaseAuth) tokenGrant(ctx context.Context, grant string, body any) (*TokenSet, error) {
	var tokens TokenSet
	if err := s.call(ctx, http.MethodPost, "/auth/v1/token?grant_type="+grant, "", body, &tokens); err != nil {
		return nil, err
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return nil, fmt.Errorf("%w: token response without tokens", ErrBackendUnavailable)
	}
	if tokens.ExpiresAt == 0 && tokens.ExpiresIn > 0 {
		tokens.ExpiresAt = s.now().Unix() + tokens.ExpiresIn
	}
	return &tokens, nil
}

func withRedirect(path, redirectTo string) string {
	if redirectTo == "" {
		return path
	}
	return path + "?redirect_to=" + url.QueryEscape(redirectTo)
}

// call performs one JSON round trip, retrying transient failures.
func (s *SupabaseAuth) call(ctx context.Context, method, path, bearer string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}
	if bearer == "" {
		bearer = s.anonKey
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.retryInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("apikey", s.anonKey)
		req.Header.Set("Authorization", "Bearer "+bearer)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return struct{}{}, fmt.Errorf("%w: %s %s answered %d", ErrBackendUnavailable, method, path, resp.StatusCode)
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return struct{}{}, backoff.Permanent(decodeAPIError(resp))
		}
		if out == nil {
			return struct{}{}, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("%w: decoding %s: %v", ErrBackendUnavailable, path, err))
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(s.maxAttempts))

	if err != nil && !IsRejected(err) && !errors.Is(err, ErrSessionResolution) {
		err = fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return err
}

func decodeAPIError(resp *http.Response) *APIError {
	var body struct {
		Code             any    `json:"code"`
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &body)

	apiErr := &APIError{Status: resp.StatusCode, Code: body.ErrorCode}
	if apiErr.Code == "" {
		apiErr.Code = body.Error
	}
	for _, m := range []string{body.Msg, body.Message, body.ErrorDescription, http.StatusText(resp.StatusCode)} {
		if m != "" {
			apiErr.Message = m
			break
		}
	}
	return apiErr
}

// ------------------ cookies ------------------

// SessionCookies encodes tokens into the auth cookie (chunked when large) and
// expires whichever of the existing cookies the new layout no longer uses.
func (s *SupabaseAuth) SessionCookies(tokens TokenSet, existing []*http.Cookie) ([]*http.Cookie, error) {
	_, present := s.readCookie(existing)
	return s.sessionCookies(tokens, present)
}

// ClearCookies expires every auth cookie found in existing, including a
// pending PKCE verifier.
func (s *SupabaseAuth) ClearCookies(existing []*http.Cookie) []*http.Cookie {
	_, present := s.readCookie(existing)
	if len(present) == 0 {
		present = []string{s.cookieName}
	}
	for _, c := range existing {
		if c.Name == s.verifierCookieName() {
			present = append(present, c.Name)
		}
	}
	return s.deletions(present)
}

func (s *SupabaseAuth) verifierCookieName() string {
	return s.cookieName + "-code-verifier"
}

// CodeVerifier returns the PKCE verifier stored by the browser client, if any.
func (s *SupabaseAuth) CodeVerifier(cookies []*http.Cookie) string {
	for _, c := range cookies {
		if c.Name == s.verifierCookieName() {
			v := strings.Trim(c.Value, `"`)
			if decoded, err := decodeCookieValue(v); err == nil {
				var str string
				if json.Unmarshal(decoded, &str) == nil {
					return str
				}
				return string(decoded)
			}
			return v
		}
	}
	return ""
}

func (s *SupabaseAuth) sessionCookies(tokens TokenSet, present []string) ([]*http.Cookie, error) {
	data, err := json.Marshal(tokens)
	if err != nil {
		return nil, err
	}
	value := cookieBase64Prefix + base64.RawURLEncoding.EncodeToString(data)

	written := map[string]bool{}
	var out []*http.Cookie
	if len(value) <= cookieChunkSize {
		out = append(out, s.cookie(s.cookieName, value, cookieMaxAge))
		written[s.cookieName] = true
	} else {
		for i := 0; len(value) > 0; i++ {
			n := min(cookieChunkSize, len(value))
			name := s.cookieName + "." + strconv.Itoa(i)
			out = append(out, s.cookie(name, value[:n], cookieMaxAge))
			written[name] = true
			value = value[n:]
		}
	}
	for _, name := range present {
		if !written[name] {
			out = append(out, s.cookie(name, "", -1))
		}
	}
	return out, nil
}

func (s *SupabaseAuth) deletions(names []string) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		out = append(out, s.cookie(name, "", -1))
	}
	return out
}

func (s *SupabaseAuth) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// readCookie returns the auth cookie value, reassembling chunks, and the names
// of every auth cookie present.
func (s *SupabaseAuth) readCookie(cookies []*http.Cookie) (string, []string) {
	chunks := map[int]string{}
	var whole string
	var present []string
	for _, c := range cookies {
		switch {
		case c.Name == s.cookieName:
			whole = c.Value
			present = append(present, c.Name)
		case strings.HasPrefix(c.Name, s.cookieName+"."):
			i, err := strconv.Atoi(strings.TrimPrefix(c.Name, s.cookieName+"."))
			if err != nil || i < 0 {
				continue
			}
			chunks[i] = c.Value
			present = append(present, c.Name)
		}
	}
	sort.Strings(present)
	if whole != "" {
		return whole, present
	}

	var b strings.Builder
	for i := 0; ; i++ {
		part, ok := chunks[i]
		if !ok {
			break
		}
		b.WriteString(part)
	}
	return b.String(), present
}

func decodeCookieValue(v string) ([]byte, error) {
	if !strings.HasPrefix(v, cookieBase64Prefix) {
		return []byte(v), nil
	}
	v = strings.TrimRight(strings.TrimPrefix(v, cookieBase64Prefix), "=")
	if data, err := base64.RawURLEncoding.DecodeString(v); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(v)
}

func decodeTokens(raw string) (*TokenSet, error) {
	if raw == "" {
		return nil, errors.New("empty cookie")
	}
	if unq, err := url.QueryUnescape(raw); err == nil {
		raw = unq
	}
	data, err := decodeCookieValue(raw)
	if err != nil {
		return nil, err
	}
	var tokens TokenSet
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, err
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return nil, errors.New("cookie without token pair")
	}
	return &tokens, nil
}
