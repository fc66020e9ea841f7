// Package models defines data structures used across the application.
// File: models/session.go
package models

// ----------------------- metadata keys -----------------------

// Keys of the identity's user metadata bag that the application reads or writes.
const (
	MetaOnboardingCompleted = "onboarding_completed" // terminal signal
	MetaOnboardingStatus    = "onboarding_status"
	MetaOnboardingStep      = "onboarding_step"
	MetaOnboardingStarted   = "onboarding_started"
	MetaFullName            = "full_name"

	// legacy terminal flag written by early sign-up flows
	MetaLegacyOnboardingComplete = "onboarding_complete"
)

// OnboardingStatus is the per-step progress marker of the onboarding flow.
type OnboardingStatus string

const (
	OnboardingNotStarted     OnboardingStatus = "not_started"
	OnboardingStep1Completed OnboardingStatus = "step1_completed"
	OnboardingStep2Completed OnboardingStatus = "step2_completed"
	OnboardingCompleted      OnboardingStatus = "completed"
)

// Rank orders statuses along the flow; unknown values rank as not started.
func (s OnboardingStatus) Rank() int {
	switch s {
	case OnboardingStep1Completed:
		return 1
	case OnboardingStep2Completed:
		return 2
	case OnboardingCompleted:
		return 3
	default:
		return 0
	}
}

// ----------------------- metadata -----------------------

// Metadata is the arbitrary key/value bag attached to an identity.
type Metadata map[string]any

// Bool returns the value under key when it is a JSON boolean.
func (m Metadata) Bool(key string) (value bool, ok bool) {
	value, ok = m[key].(bool)
	return value, ok
}

// String returns the value under key when it is a JSON string.
func (m Metadata) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Status reads onboarding_status, falling back to onboarding_step.
func (m Metadata) Status() OnboardingStatus {
	if s := m.String(MetaOnboardingStatus); s != "" {
		return OnboardingStatus(s)
	}
	if s := m.String(MetaOnboardingStep); s != "" {
		return OnboardingStatus(s)
	}
	return OnboardingNotStarted
}

// OnboardingDone is the single completion predicate: onboarding_completed must
// be the boolean true. No intermediate or legacy flag counts.
func (m Metadata) OnboardingDone() bool {
	done, ok := m.Bool(MetaOnboardingCompleted)
	return ok && done
}

// ----------------------- session -----------------------

// User is the identity behind an authenticated session.
type User struct {
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	UserMetadata Metadata `json:"user_metadata"`
}

// Session is the resolved authentication state for one request.
type Session struct {
	Authenticated bool
	User          User
	// AccessToken is kept so handlers can act on behalf of the user.
	AccessToken  string
	RefreshToken string
}

// Anonymous is the unauthenticated session, also used as the fallback when
// resolution fails.
func Anonymous() Session {
	return Session{}
}

// OnboardingDone reports whether the session's identity finished onboarding.
func (s Session) OnboardingDone() bool {
	return s.Authenticated && s.User.UserMetadata.OnboardingDone()
}
