// File: models/profile.go
package models

// Role is the kind of member a profile represents.
type Role string

const (
	RolePlayer Role = "player"
	RoleCoach  Role = "coach"
	RoleFan    Role = "fan"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePlayer, RoleCoach, RoleFan:
		return true
	}
	return false
}

// OnboardingDraft collects the answers given across the onboarding steps until
// the flow completes.
type OnboardingDraft struct {
	FullName    string   `json:"full_name,omitempty"`
	Role        Role     `json:"role,omitempty"`
	Sports      []string `json:"sports,omitempty"`
	Bio         string   `json:"bio,omitempty"`
	Location    string   `json:"location,omitempty"`
	Age         int      `json:"age,omitempty"`
	Purposes    []string `json:"purposes,omitempty"`
	HearAboutUs string   `json:"hear_about_us,omitempty"`
}

// Location is a reverse geocoding result.
type Location struct {
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`
}

// Empty reports whether nothing was resolved.
func (l Location) Empty() bool {
	return l.City == "" && l.State == "" && l.Country == ""
}

// StepMetadata returns the profile answers collected on step, keyed the way
// they are stored in the user metadata bag. Empty optional answers are left out.
func (d OnboardingDraft) StepMetadata(step int) Metadata {
	m := Metadata{}
	switch step {
	case 1:
		m[MetaFullName] = d.FullName
		m["role"] = string(d.Role)
		m["sports"] = d.Sports
	case 2:
		if d.Bio != "" {
			m["bio"] = d.Bio
		}
		if d.Location != "" {
			m["location"] = d.Location
		}
		if d.Age > 0 {
			m["age"] = d.Age
		}
	case 3:
		m["purposes"] = d.Purposes
		if d.HearAboutUs != "" {
			m["hear_about_us"] = d.HearAboutUs
		}
	}
	return m
}
