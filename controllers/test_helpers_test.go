// file: controllers/test_helpers_test.go
package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"playjosh/middleware"
	"playjosh/models"
	"playjosh/services"
)

const testAuthCookie = "sb-test-auth-token"

// MockAuthClient is a testify mock of services.AuthClient.
type MockAuthClient struct {
	mock.Mock
}

var _ services.AuthClient = (*MockAuthClient)(nil)

func tokensArg(args mock.Arguments, i int) *services.TokenSet {
	if v := args.Get(i); v != nil {
		return v.(*services.TokenSet)
	}
	return nil
}

func (m *MockAuthClient) SignInWithPassword(ctx context.Context, email, password string) (*services.TokenSet, error) {
	args := m.Called(ctx, email, password)
	return tokensArg(args, 0), args.Error(1)
}

func (m *MockAuthClient) SignUp(ctx context.Context, email, password, fullName, redirectTo string) error {
	return m.Called(ctx, email, password, fullName, redirectTo).Error(0)
}

func (m *MockAuthClient) RecoverPassword(ctx context.Context, email, redirectTo string) ([]*http.Cookie, error) {
	args := m.Called(ctx, email, redirectTo)
	var cookies []*http.Cookie
	if v := args.Get(0); v != nil {
		cookies = v.([]*http.Cookie)
	}
	return cookies, args.Error(1)
}

func (m *MockAuthClient) UpdatePassword(ctx context.Context, accessToken, password string) error {
	return m.Called(ctx, accessToken, password).Error(0)
}

func (m *MockAuthClient) ExchangeCodeForSession(ctx context.Context, code, verifier string) (*services.TokenSet, error) {
	args := m.Called(ctx, code, verifier)
	return tokensArg(args, 0), args.Error(1)
}

func (m *MockAuthClient) RefreshSession(ctx context.Context, refreshToken string) (*services.TokenSet, error) {
	args := m.Called(ctx, refreshToken)
	return tokensArg(args, 0), args.Error(1)
}

func (m *MockAuthClient) UpdateUserMetadata(ctx context.Context, accessToken string, data models.Metadata) (*models.User, error) {
	args := m.Called(ctx, accessToken, data)
	var user *models.User
	if v := args.Get(0); v != nil {
		user = v.(*models.User)
	}
	return user, args.Error(1)
}

func (m *MockAuthClient) SignOut(ctx context.Context, accessToken string) error {
	return m.Called(ctx, accessToken).Error(0)
}

func (m *MockAuthClient) SessionCookies(tokens services.TokenSet, existing []*http.Cookie) ([]*http.Cookie, error) {
	args := m.Called(tokens, existing)
	switch v := args.Get(0).(type) {
	case func(services.TokenSet, []*http.Cookie) []*http.Cookie:
		return v(tokens, existing), args.Error(1)
	case []*http.Cookie:
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuthClient) ClearCookies(existing []*http.Cookie) []*http.Cookie {
	args := m.Called(existing)
	if v := args.Get(0); v != nil {
		return v.([]*http.Cookie)
	}
	return nil
}

func (m *MockAuthClient) CodeVerifier(cookies []*http.Cookie) string {
	return m.Called(cookies).String(0)
}

// expectSessionCookies makes SessionCookies encode tokens as a single cookie
// whose value is the access token.
func (m *MockAuthClient) expectSessionCookies() {
	m.On("SessionCookies", mock.Anything, mock.Anything).Return(
		func(tokens services.TokenSet, _ []*http.Cookie) []*http.Cookie {
			return []*http.Cookie{{Name: testAuthCookie, Value: tokens.AccessToken, Path: "/"}}
		},
		nil,
	)
}

// setupTestRouter creates a gin engine with the draft session store and a
// stand-in for the guard that injects current as the resolved session.
func setupTestRouter(t *testing.T, current models.Session) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()

	store, err := NewDraftStore("test-secret", false)
	require.NoError(t, err)
	router.Use(sessions.Sessions(DraftSessionName, store))
	router.Use(func(c *gin.Context) {
		c.Set(middleware.SessionKey, current)
		c.Next()
	})
	return router
}

// postForm submits form values to path.
func postForm(router http.Handler, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func get(router http.Handler, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// responseCookie returns the named cookie set by the response, if any.
func responseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	var found *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			found = c
		}
	}
	return found
}

func authenticated(id string, meta models.Metadata) models.Session {
	return models.Session{
		Authenticated: true,
		User:          models.User{ID: id, Email: id + "@example.com", UserMetadata: meta},
		AccessToken:   "access-" + id,
		RefreshToken:  "refresh-" + id,
	}
}
