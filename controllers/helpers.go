// Package controllers file: controllers/helpers.go
package controllers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"playjosh/services"
)

// localRedirect returns target when it is a path on this site, else fallback.
// Absolute and protocol-relative URLs are refused so redirects cannot leave
// the application.
func localRedirect(target, fallback string) string {
	if target == "" || !strings.HasPrefix(target, "/") {
		return fallback
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, `/\`) {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return target
}

// loginWithError builds the login page url carrying an error message.
func loginWithError(msg string) string {
	return "/login?" + url.Values{"error": {msg}}.Encode()
}

// loginWithMessage builds the login page url carrying a notice.
func loginWithMessage(msg string) string {
	return "/login?" + url.Values{"message": {msg}}.Encode()
}

// setCookies writes every cookie onto the response.
func setCookies(c *gin.Context, cookies []*http.Cookie) {
	for _, ck := range cookies {
		http.SetCookie(c.Writer, ck)
	}
}

// writeSession stores tokens in the auth cookies of the response.
func writeSession(c *gin.Context, auth services.AuthClient, tokens services.TokenSet) error {
	cookies, err := auth.SessionCookies(tokens, c.Request.Cookies())
	if err != nil {
		return err
	}
	setCookies(c, cookies)
	return nil
}

// backendStatus maps an auth backend error to the status returned to the client.
func backendStatus(err error, rejected int) int {
	if services.IsRejected(err) {
		return rejected
	}
	return http.StatusBadGateway
}
