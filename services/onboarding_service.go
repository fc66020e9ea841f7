// Package services: services/onboarding_service.go
package services

import (
	"errors"
	"fmt"

	"playjosh/models"
)

var (
	// ErrInvalidStep is returned for step numbers outside 1..3.
	ErrInvalidStep = errors.New("invalid onboarding step")
	// ErrStepOutOfOrder is returned when a step is submitted before its predecessor.
	ErrStepOutOfOrder = errors.New("onboarding step submitted out of order")
)

// OnboardingSteps is the number of pages in the onboarding flow.
const OnboardingSteps = 3

// Page paths of the flow.
const (
	OnboardingPath = "/onboarding"
	HomePath       = "/Home"
)

// StepPath returns the page of the given step.
func StepPath(step int) string {
	return fmt.Sprintf("%s/step%d", OnboardingPath, step)
}

// ResumePath is where a user with the given metadata continues onboarding.
func ResumePath(meta models.Metadata) string {
	if meta.OnboardingDone() {
		return HomePath
	}
	next := meta.Status().Rank() + 1
	if next > OnboardingSteps {
		// status says completed but the terminal flag is missing: finish on the last page
		next = OnboardingSteps
	}
	return StepPath(next)
}

// Advance returns the metadata patch recording that step was finished.
// Re-submitting an earlier step is allowed and never moves progress backwards.
func Advance(meta models.Metadata, step int) (models.Metadata, error) {
	if step < 1 || step > OnboardingSteps {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStep, step)
	}
	current := meta.Status()
	if step > current.Rank()+1 {
		return nil, fmt.Errorf("%w: step %d after %s", ErrStepOutOfOrder, step, current)
	}

	if step == OnboardingSteps {
		return Skip(), nil
	}

	status := current
	if reached := statusAfter(step); reached.Rank() > current.Rank() {
		status = reached
	}
	patch := models.Metadata{
		models.MetaOnboardingStatus: string(status),
		models.MetaOnboardingStep:   string(status),
	}
	if step == 1 {
		patch[models.MetaOnboardingStarted] = true
	}
	return patch, nil
}

// Skip returns the patch that ends onboarding immediately.
func Skip() models.Metadata {
	return models.Metadata{
		models.MetaOnboardingStatus:    string(models.OnboardingCompleted),
		models.MetaOnboardingStep:      string(models.OnboardingCompleted),
		models.MetaOnboardingCompleted: true,
	}
}

// LegacyCompletionPatch migrates accounts written by older flows. It returns a
// patch setting onboarding_completed only when that flag is absent and one of
// the legacy terminal flags says the flow finished. Started or per-step flags
// never count as completion.
func LegacyCompletionPatch(meta models.Metadata) (models.Metadata, bool) {
	if _, ok := meta[models.MetaOnboardingCompleted]; ok {
		return nil, false
	}
	legacyDone, _ := meta.Bool(models.MetaLegacyOnboardingComplete)
	if legacyDone || meta.String(models.MetaOnboardingStatus) == string(models.OnboardingCompleted) {
		return models.Metadata{models.MetaOnboardingCompleted: true}, true
	}
	return nil, false
}

func statusAfter(step int) models.OnboardingStatus {
	switch step {
	case 1:
		return models.OnboardingStep1Completed
	case 2:
		return models.OnboardingStep2Completed
	default:
		return models.OnboardingCompleted
	}
}
