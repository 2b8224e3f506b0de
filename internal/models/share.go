package models

import (
	"time"

	"github.com/google/uuid"
)

// ShareRole is the device's role in a profile's share topology. It is a
// tagged value rather than a pair of booleans so that "unshared" is a
// representable state and owner/participant cannot both be set.
type ShareRole string

const (
	RoleNone        ShareRole = ""
	RoleOwner       ShareRole = "owner"
	RoleParticipant ShareRole = "participant"
)

// ShareState tracks where a profile is in its sharing lifecycle.
type ShareState string

const (
	ShareStateUnshared           ShareState = "unshared"
	ShareStateOwnedPending       ShareState = "owned_pending"
	ShareStateOwnedActive        ShareState = "owned_active"
	ShareStateParticipantPending ShareState = "participant_pending"
	ShareStateParticipantActive  ShareState = "participant_active"
	ShareStateRevoked            ShareState = "revoked"
)

// Participant is one caregiver on a share.
type Participant struct {
	UserID     string          `json:"user_id"`
	Name       string          `json:"name"`
	Permission SharePermission `json:"permission"`
	IsOwner    bool            `json:"is_owner"`
}

// ShareContext is the locally cached sharing topology and sync baseline
// for one profile.
type ShareContext struct {
	ProfileID uuid.UUID

	// ZoneName is the remote partition holding this profile's records.
	ZoneName string

	// RootRecordName and ShareRecordName point at the zone's root record
	// and its share object on the remote side.
	RootRecordName  string
	ShareRecordName string

	Role  ShareRole
	State ShareState

	Participants []Participant

	// LastSynced maps action ID to the UpdatedAt value last pushed for
	// it. It is the delta baseline: an action is pending upload when its
	// current UpdatedAt is later than its entry here, and an ID present
	// here but absent locally was deleted since the last sync.
	LastSynced map[uuid.UUID]time.Time
}

// NewOwnedShareContext builds the context recorded when this device
// starts sharing one of its own profiles.
func NewOwnedShareContext(profileID uuid.UUID, zone, rootRecord, shareRecord string) *ShareContext {
	return &ShareContext{
		ProfileID:       profileID,
		ZoneName:        zone,
		RootRecordName:  rootRecord,
		ShareRecordName: shareRecord,
		Role:            RoleOwner,
		State:           ShareStateOwnedPending,
		LastSynced:      map[uuid.UUID]time.Time{},
	}
}

// NewParticipantShareContext builds the context recorded when this
// device accepts a share owned elsewhere.
func NewParticipantShareContext(profileID uuid.UUID, zone, rootRecord string) *ShareContext {
	return &ShareContext{
		ProfileID:      profileID,
		ZoneName:       zone,
		RootRecordName: rootRecord,
		Role:           RoleParticipant,
		State:          ShareStateParticipantPending,
		LastSynced:     map[uuid.UUID]time.Time{},
	}
}

// IsOwner reports whether this device owns the share.
func (c *ShareContext) IsOwner() bool {
	return c.Role == RoleOwner
}

// Activate moves a pending context to its active state.
func (c *ShareContext) Activate() {
	switch c.State {
	case ShareStateOwnedPending:
		c.State = ShareStateOwnedActive
	case ShareStateParticipantPending:
		c.State = ShareStateParticipantActive
	}
}
