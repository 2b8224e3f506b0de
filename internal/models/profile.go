package models

import (
	"time"

	"github.com/google/uuid"
)

// SharePermission is the access level granted to a device for a profile
// it received through sharing. The owner's own profiles carry
// PermissionOwner implicitly.
type SharePermission string

const (
	PermissionOwner     SharePermission = "owner"
	PermissionReadOnly  SharePermission = "read_only"
	PermissionReadWrite SharePermission = "read_write"
)

// CanEdit reports whether the holder may mutate profile data.
func (p SharePermission) CanEdit() bool {
	return p == PermissionOwner || p == PermissionReadWrite
}

// ReminderSetting is the per-category reminder configuration.
type ReminderSetting struct {
	Enabled  bool          `json:"enabled"`
	Interval time.Duration `json:"interval"`
}

// ChildProfile is the root aggregate: one tracked child.
type ChildProfile struct {
	ID        uuid.UUID
	Name      string
	BirthDate time.Time

	// Avatar holds the raw image bytes, if one was set.
	Avatar []byte

	RemindersEnabled bool
	ReminderSettings map[ActionCategory]ReminderSetting

	// Permission is meaningful only for profiles received through a
	// share; locally created profiles are PermissionOwner.
	Permission SharePermission

	UpdatedAt time.Time
}

// NewChildProfile creates an owned profile with a fresh identity.
func NewChildProfile(name string, birthDate time.Time) *ChildProfile {
	return &ChildProfile{
		ID:               uuid.New(),
		Name:             name,
		BirthDate:        birthDate.UTC(),
		ReminderSettings: map[ActionCategory]ReminderSetting{},
		Permission:       PermissionOwner,
		UpdatedAt:        time.Now().UTC(),
	}
}

// Placeholder returns the empty profile synthesized when the last real
// profile is deleted, so the store always has exactly one active profile.
func Placeholder() *ChildProfile {
	p := NewChildProfile("", time.Now().UTC())
	return p
}

// Touch bumps UpdatedAt to now (UTC).
func (p *ChildProfile) Touch() {
	p.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy of the profile.
func (p *ChildProfile) Clone() *ChildProfile {
	c := *p
	if p.Avatar != nil {
		c.Avatar = append([]byte(nil), p.Avatar...)
	}
	if p.ReminderSettings != nil {
		c.ReminderSettings = make(map[ActionCategory]ReminderSetting, len(p.ReminderSettings))
		for k, v := range p.ReminderSettings {
			c.ReminderSettings[k] = v
		}
	}
	return &c
}
