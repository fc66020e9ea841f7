// Package controllers file: controllers/onboarding_controller.go
package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"playjosh/logger"
	"playjosh/middleware"
	"playjosh/models"
	"playjosh/services"
)

const draftKey = "draft"

// OnboardingController drives the three onboarding pages. Answers are kept in
// a draft cookie between steps; progress is written to the user's metadata.
type OnboardingController struct {
	auth services.AuthClient
}

// NewOnboardingController creates an OnboardingController.
func NewOnboardingController(auth services.AuthClient) *OnboardingController {
	return &OnboardingController{auth: auth}
}

// step1Form is the basic info page.
type step1Form struct {
	FullName string   `form:"full_name" binding:"required,max=120"`
	Role     string   `form:"role" binding:"required,oneof=player coach fan"`
	Sports   []string `form:"sports" binding:"min=3,dive,required"`
}

// step2Form is the optional details page.
type step2Form struct {
	Bio      string `form:"bio" binding:"max=500"`
	Location string `form:"location" binding:"max=200"`
	Age      int    `form:"age" binding:"omitempty,min=13,max=120"`
}

// step3Form is the purpose page.
type step3Form struct {
	Purposes    []string `form:"purposes" binding:"min=1,dive,required"`
	HearAboutUs string   `form:"hear_about_us" binding:"max=200"`
}

// Resume sends the user to the first unfinished step.
func (oc *OnboardingController) Resume(c *gin.Context) {
	meta := middleware.CurrentSession(c).User.UserMetadata
	c.Redirect(http.StatusFound, services.ResumePath(meta))
}

// ShowStep returns the current draft for one step. Steps ahead of the user's
// progress redirect back to the resume step.
func (oc *OnboardingController) ShowStep(c *gin.Context) {
	step, ok := parseStep(c.Param("step"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown onboarding step."})
		return
	}

	meta := middleware.CurrentSession(c).User.UserMetadata
	if step > meta.Status().Rank()+1 {
		c.Redirect(http.StatusFound, services.ResumePath(meta))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"step":   step,
		"steps":  services.OnboardingSteps,
		"status": meta.Status(),
		"draft":  loadDraft(sessions.Default(c)),
	})
}

// SubmitStep validates a step, stores it in the draft and records progress.
func (oc *OnboardingController) SubmitStep(c *gin.Context) {
	ctx := c.Request.Context()
	step, ok := parseStep(c.Param("step"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown onboarding step."})
		return
	}

	current := middleware.CurrentSession(c)
	if !current.Authenticated {
		c.Redirect(http.StatusFound, middleware.LoginRedirect(c.Request.URL.Path))
		return
	}
	meta := current.User.UserMetadata

	patch, err := services.Advance(meta, step)
	if errors.Is(err, services.ErrStepOutOfOrder) {
		c.Redirect(http.StatusFound, services.ResumePath(meta))
		return
	}
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	store := sessions.Default(c)
	draft := loadDraft(store)
	if problem := bindStep(c, step, &draft); problem != "" {
		logger.Ctx(ctx).Debug().Int("step", step).Str("problem", problem).Msg("SubmitStep: validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": problem})
		return
	}
	for k, v := range draft.StepMetadata(step) {
		patch[k] = v
	}

	if !oc.record(c, current, patch) {
		return
	}

	next := middleware.HomePath
	if step < services.OnboardingSteps {
		next = services.StepPath(step + 1)
		if err := saveDraft(store, draft); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("SubmitStep: failed to save onboarding draft")
		}
	} else {
		clearDraft(c, store)
	}
	logger.Ctx(ctx).Info().Str("user", current.User.ID).Int("step", step).Str("next", next).Msg("SubmitStep: step completed")
	c.Redirect(http.StatusFound, next)
}

// Skip ends onboarding without answering the remaining steps.
func (oc *OnboardingController) Skip(c *gin.Context) {
	current := middleware.CurrentSession(c)
	if !current.Authenticated {
		c.Redirect(http.StatusFound, middleware.LoginRedirect(c.Request.URL.Path))
		return
	}
	if !oc.record(c, current, services.Skip()) {
		return
	}
	clearDraft(c, sessions.Default(c))
	logger.Ctx(c.Request.Context()).Info().Str("user", current.User.ID).Msg("Skip: onboarding skipped")
	c.Redirect(http.StatusFound, middleware.HomePath)
}

// record writes patch to the user's metadata and refreshes the auth cookies
// so the guard sees the new state on the next request.
func (oc *OnboardingController) record(c *gin.Context, current models.Session, patch models.Metadata) bool {
	ctx := c.Request.Context()
	if _, err := oc.auth.UpdateUserMetadata(ctx, current.AccessToken, patch); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("onboarding: metadata update failed")
		c.JSON(backendStatus(err, http.StatusBadRequest), gin.H{"error": "Could not save your progress, please try again."})
		return false
	}

	tokens, err := oc.auth.RefreshSession(ctx, current.RefreshToken)
	if err != nil {
		// progress is saved; the guard catches up on the next silent refresh
		logger.Ctx(ctx).Warn().Err(err).Msg("onboarding: token refresh failed")
		return true
	}
	if err := writeSession(c, oc.auth, *tokens); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("onboarding: failed to encode session cookies")
	}
	return true
}

func parseStep(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(raw, "step"))
	if err != nil || n < 1 || n > services.OnboardingSteps {
		return 0, false
	}
	return n, true
}

// bindStep copies the step's answers into draft and returns a message for
// the user when they do not validate.
func bindStep(c *gin.Context, step int, draft *models.OnboardingDraft) string {
	switch step {
	case 1:
		var f step1Form
		if err := c.ShouldBind(&f); err != nil {
			return "Please enter your name, choose a role and pick at least 3 sports."
		}
		draft.FullName = strings.TrimSpace(f.FullName)
		draft.Role = models.Role(f.Role)
		draft.Sports = f.Sports
	case 2:
		var f step2Form
		if err := c.ShouldBind(&f); err != nil {
			return "Please check your bio, location and age."
		}
		draft.Bio = strings.TrimSpace(f.Bio)
		draft.Location = strings.TrimSpace(f.Location)
		draft.Age = f.Age
	case 3:
		var f step3Form
		if err := c.ShouldBind(&f); err != nil {
			return "Please pick at least one reason for joining."
		}
		draft.Purposes = f.Purposes
		draft.HearAboutUs = strings.TrimSpace(f.HearAboutUs)
	}
	return ""
}

// ------------------ draft cookie ------------------

func loadDraft(store sessions.Session) models.OnboardingDraft {
	var draft models.OnboardingDraft
	raw, ok := store.Get(draftKey).(string)
	if !ok || raw == "" {
		return draft
	}
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		logger.Warn().Err(err).Msg("discarding unreadable onboarding draft")
		return models.OnboardingDraft{}
	}
	return draft
}

func saveDraft(store sessions.Session, draft models.OnboardingDraft) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return err
	}
	store.Set(draftKey, string(data))
	return store.Save()
}

func clearDraft(c *gin.Context, store sessions.Session) {
	store.Delete(draftKey)
	if err := store.Save(); err != nil {
		logger.Ctx(c.Request.Context()).Warn().Err(err).Msg("failed to clear onboarding draft")
	}
}
