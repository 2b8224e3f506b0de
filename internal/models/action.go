// Package models defines the domain entities shared by the local store,
// the cloud mirror and the peer-to-peer layer: child profiles, baby
// actions and per-profile sharing metadata.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ActionCategory classifies a logged caregiving event.
type ActionCategory string

const (
	CategorySleep   ActionCategory = "sleep"
	CategoryDiaper  ActionCategory = "diaper"
	CategoryFeeding ActionCategory = "feeding"
)

// Categories lists all known categories in a stable order.
var Categories = []ActionCategory{CategorySleep, CategoryDiaper, CategoryFeeding}

// Valid reports whether c is a known category.
func (c ActionCategory) Valid() bool {
	switch c {
	case CategorySleep, CategoryDiaper, CategoryFeeding:
		return true
	}
	return false
}

// Instant reports whether actions of this category are point-in-time
// events. Instant actions never remain open: they are logged with
// End == Start.
func (c ActionCategory) Instant() bool {
	return c == CategoryDiaper
}

// DiaperKind is the optional diaper subtype.
type DiaperKind string

const (
	DiaperWet   DiaperKind = "wet"
	DiaperDirty DiaperKind = "dirty"
	DiaperMixed DiaperKind = "mixed"
)

// FeedingKind distinguishes breast and bottle feedings.
type FeedingKind string

const (
	FeedingBreastLeft  FeedingKind = "breast_left"
	FeedingBreastRight FeedingKind = "breast_right"
	FeedingBottle      FeedingKind = "bottle"
)

// BottleKind is the optional bottle content subtype.
type BottleKind string

const (
	BottleFormula    BottleKind = "formula"
	BottleBreastMilk BottleKind = "breast_milk"
	BottleWater      BottleKind = "water"
)

// GeoPoint is an optional captured location for an action.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	PlaceName string  `json:"place_name,omitempty"`
}

// BabyAction is a single logged caregiving event.
//
// UpdatedAt is the last-modification time and the sole tiebreak key used
// when the same logical action is edited on several devices. Every field
// mutation must bump it.
type BabyAction struct {
	// ID is a globally unique identifier, stable across devices.
	ID uuid.UUID

	// ProfileID references the owning child profile.
	ProfileID uuid.UUID

	Category ActionCategory

	Start time.Time
	// End is nil while the action is still running. Instant categories
	// are always stored closed.
	End *time.Time

	// Category-specific optional details.
	DiaperKind     DiaperKind
	FeedingKind    FeedingKind
	BottleKind     BottleKind
	BottleVolumeML *float64

	Location *GeoPoint

	UpdatedAt time.Time
}

// Open reports whether the action is still running.
func (a *BabyAction) Open() bool {
	return a.End == nil
}

// Touch bumps UpdatedAt to now (UTC). Callers mutating any field must
// call this so cross-device merges see the edit.
func (a *BabyAction) Touch() {
	a.UpdatedAt = time.Now().UTC()
}

// Close sets the end date and bumps UpdatedAt. Closing an already closed
// action only moves the end date.
func (a *BabyAction) Close(end time.Time) {
	e := end.UTC()
	a.End = &e
	a.Touch()
}

// Clone returns a deep copy of the action.
func (a *BabyAction) Clone() *BabyAction {
	c := *a
	if a.End != nil {
		e := *a.End
		c.End = &e
	}
	if a.BottleVolumeML != nil {
		v := *a.BottleVolumeML
		c.BottleVolumeML = &v
	}
	if a.Location != nil {
		l := *a.Location
		c.Location = &l
	}
	return &c
}
