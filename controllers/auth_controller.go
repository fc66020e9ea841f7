// Package controllers controllers/auth_controller.go
package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"playjosh/logger"
	"playjosh/middleware"
	"playjosh/models"
	"playjosh/services"
)

const minPasswordLength = 6

// ResetPasswordPath is where password-reset mails land.
const ResetPasswordPath = "/reset-password"

// AuthController handles sign in, sign up and the auth callback.
type AuthController struct {
	auth           services.AuthClient
	applicationURL string
}

// NewAuthController creates an AuthController.
func NewAuthController(auth services.AuthClient, applicationURL string) *AuthController {
	return &AuthController{auth: auth, applicationURL: strings.TrimRight(applicationURL, "/")}
}

// ------------------ login ------------------

// Login authenticates with email and password, writes the auth cookies and
// sends the user back to where the guard intercepted them.
func (ac *AuthController) Login(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")
	if email == "" || password == "" {
		logger.Ctx(c.Request.Context()).Warn().Msg("Login: missing email or password")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please fill in all fields."})
		return
	}

	tokens, err := ac.auth.SignInWithPassword(c.Request.Context(), email, password)
	if err != nil {
		logger.Ctx(c.Request.Context()).Warn().Err(err).Str("email", email).Msg("Login: sign in failed")
		c.JSON(backendStatus(err, http.StatusUnauthorized), gin.H{"error": loginErrorMessage(err)})
		return
	}

	tokens = ac.migrateLegacyCompletion(c.Request.Context(), tokens)
	if err := writeSession(c, ac.auth, *tokens); err != nil {
		logger.Ctx(c.Request.Context()).Error().Err(err).Msg("Login: failed to encode session cookies")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error, please try again."})
		return
	}

	target := localRedirect(c.PostForm(middleware.RedirectedFromParam), middleware.HomePath)
	logger.Ctx(c.Request.Context()).Info().Str("email", email).Str("redirect", target).Msg("Login: user signed in")
	c.Redirect(http.StatusFound, target)
}

func loginErrorMessage(err error) string {
	var apiErr *services.APIError
	if !errors.As(err, &apiErr) {
		return "Authentication service unavailable, please try again later."
	}
	switch {
	case strings.Contains(strings.ToLower(apiErr.Message), "email not confirmed"):
		return "Please verify your email before signing in."
	case apiErr.Code == "invalid_credentials" || strings.Contains(strings.ToLower(apiErr.Message), "invalid login credentials"):
		return "Invalid email or password."
	default:
		return apiErr.Message
	}
}

// ------------------ sign up and recovery ------------------

// SignUp registers a new account. The confirmation mail links back to the
// auth callback.
func (ac *AuthController) SignUp(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")
	fullName := strings.TrimSpace(c.PostForm("full_name"))

	switch {
	case email == "" || password == "" || fullName == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please fill in all fields."})
		return
	case len(password) < minPasswordLength:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at least 6 characters."})
		return
	}

	if err := ac.auth.SignUp(c.Request.Context(), email, password, fullName, ac.applicationURL+"/auth/callback"); err != nil {
		logger.Ctx(c.Request.Context()).Warn().Err(err).Str("email", email).Msg("SignUp: registration failed")
		c.JSON(backendStatus(err, http.StatusBadRequest), gin.H{"error": loginErrorMessage(err)})
		return
	}

	logger.Ctx(c.Request.Context()).Info().Str("email", email).Msg("SignUp: confirmation mail sent")
	c.Redirect(http.StatusFound, "/verify-email")
}

// ForgotPassword sends a password-reset mail. The link lands on
// /reset-password with a one-time code; no session is created until the new
// password is submitted.
func (ac *AuthController) ForgotPassword(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter your email."})
		return
	}

	cookies, err := ac.auth.RecoverPassword(c.Request.Context(), email, ac.applicationURL+ResetPasswordPath)
	if err != nil {
		logger.Ctx(c.Request.Context()).Warn().Err(err).Msg("ForgotPassword: recovery request failed")
		c.JSON(backendStatus(err, http.StatusBadRequest), gin.H{"error": loginErrorMessage(err)})
		return
	}
	setCookies(c, cookies)
	c.JSON(http.StatusOK, gin.H{"message": "Check your email for a password reset link."})
}

// ResetPassword redeems the recovery code, sets the new password and signs the
// recovery session out again, so the user signs in with the new password.
func (ac *AuthController) ResetPassword(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.PostForm("code")
	password := c.PostForm("password")

	switch {
	case code == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "Reset link is invalid or has expired."})
		return
	case password == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please fill in all fields."})
		return
	case len(password) < minPasswordLength:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at least 6 characters."})
		return
	case password != c.PostForm("confirm_password"):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Passwords do not match."})
		return
	}

	tokens, err := ac.auth.ExchangeCodeForSession(ctx, code, ac.auth.CodeVerifier(c.Request.Cookies()))
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("ResetPassword: code exchange failed")
		c.JSON(backendStatus(err, http.StatusBadRequest), gin.H{"error": "Reset link is invalid or has expired."})
		return
	}

	updateErr := ac.auth.UpdatePassword(ctx, tokens.AccessToken, password)
	if err := ac.auth.SignOut(ctx, tokens.AccessToken); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("ResetPassword: backend sign out failed")
	}
	setCookies(c, ac.auth.ClearCookies(c.Request.Cookies()))

	if updateErr != nil {
		logger.Ctx(ctx).Warn().Err(updateErr).Msg("ResetPassword: password update failed")
		c.JSON(backendStatus(updateErr, http.StatusBadRequest), gin.H{"error": loginErrorMessage(updateErr)})
		return
	}

	if tokens.User != nil {
		logger.Ctx(ctx).Info().Str("user", tokens.User.ID).Msg("ResetPassword: password updated")
	}
	c.Redirect(http.StatusFound, loginWithMessage("Password updated. Please sign in with your new password."))
}

// ------------------ callback ------------------

// Callback finishes an email-link or OAuth sign in. New accounts are sent to
// onboarding; everyone else continues to redirect_to.
func (ac *AuthController) Callback(c *gin.Context) {
	ctx := c.Request.Context()
	target := localRedirect(c.Query("redirect_to"), "/")

	code := c.Query("code")
	if code == "" {
		c.Redirect(http.StatusFound, target)
		return
	}

	tokens, err := ac.auth.ExchangeCodeForSession(ctx, code, ac.auth.CodeVerifier(c.Request.Cookies()))
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Callback: code exchange failed")
		c.Redirect(http.StatusFound, loginWithError("Could not authenticate"))
		return
	}
	if tokens.User == nil || tokens.User.Email == "" {
		logger.Ctx(ctx).Error().Msg("Callback: exchanged session has no user email")
		c.Redirect(http.StatusFound, loginWithError("Authentication failed. Please try again."))
		return
	}

	if neverStarted(tokens.User.UserMetadata) {
		tokens = ac.markNotStarted(ctx, tokens)
		target = middleware.OnboardingPath
	} else {
		tokens = ac.migrateLegacyCompletion(ctx, tokens)
	}

	if err := writeSession(c, ac.auth, *tokens); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Callback: failed to encode session cookies")
		c.Redirect(http.StatusFound, loginWithError("Authentication failed. Please try again."))
		return
	}

	logger.Ctx(ctx).Info().Str("email", tokens.User.Email).Str("redirect", target).Msg("Callback: session established")
	c.Redirect(http.StatusFound, target)
}

// neverStarted reports whether the account carries no onboarding state at all.
func neverStarted(meta models.Metadata) bool {
	if _, ok := meta[models.MetaOnboardingCompleted]; ok {
		return false
	}
	if started, _ := meta.Bool(models.MetaOnboardingStarted); started {
		return false
	}
	if _, legacy := services.LegacyCompletionPatch(meta); legacy {
		return false
	}
	return meta.String(models.MetaOnboardingStatus) == "" && meta.String(models.MetaOnboardingStep) == ""
}

// markNotStarted records the start of the onboarding flow for a fresh account.
func (ac *AuthController) markNotStarted(ctx context.Context, tokens *services.TokenSet) *services.TokenSet {
	patch := models.Metadata{models.MetaOnboardingStatus: string(models.OnboardingNotStarted)}
	return ac.patchAndRefresh(ctx, tokens, patch)
}

// migrateLegacyCompletion writes onboarding_completed for accounts that only
// carry a legacy completion flag, and returns tokens reflecting the change.
func (ac *AuthController) migrateLegacyCompletion(ctx context.Context, tokens *services.TokenSet) *services.TokenSet {
	if tokens.User == nil {
		return tokens
	}
	patch, ok := services.LegacyCompletionPatch(tokens.User.UserMetadata)
	if !ok {
		return tokens
	}
	logger.Ctx(ctx).Info().Str("user", tokens.User.ID).Msg("migrating legacy onboarding completion flag")
	return ac.patchAndRefresh(ctx, tokens, patch)
}

// patchAndRefresh updates metadata and refreshes the token pair so the new
// claims are visible to the guard. Failures keep the original tokens.
func (ac *AuthController) patchAndRefresh(ctx context.Context, tokens *services.TokenSet, patch models.Metadata) *services.TokenSet {
	if _, err := ac.auth.UpdateUserMetadata(ctx, tokens.AccessToken, patch); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("metadata update failed")
		return tokens
	}
	refreshed, err := ac.auth.RefreshSession(ctx, tokens.RefreshToken)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("token refresh after metadata update failed")
		return tokens
	}
	if refreshed.User == nil {
		refreshed.User = tokens.User
	}
	return refreshed
}

// ------------------ logout ------------------

// Logout revokes the session, expires the auth cookies and the onboarding
// draft, and returns to the login page.
func (ac *AuthController) Logout(c *gin.Context) {
	current := middleware.CurrentSession(c)
	if current.Authenticated && current.AccessToken != "" {
		if err := ac.auth.SignOut(c.Request.Context(), current.AccessToken); err != nil {
			logger.Ctx(c.Request.Context()).Warn().Err(err).Msg("Logout: backend sign out failed")
		}
	}

	setCookies(c, ac.auth.ClearCookies(c.Request.Cookies()))

	draft := sessions.Default(c)
	draft.Clear()
	draft.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := draft.Save(); err != nil {
		logger.Ctx(c.Request.Context()).Error().Err(err).Msg("Logout: error clearing onboarding draft")
	}

	logger.Ctx(c.Request.Context()).Info().Str("user", current.User.ID).Msg("Logout: session cleared")
	c.Redirect(http.StatusFound, middleware.LoginPath)
}
