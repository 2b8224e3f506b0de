package p2p

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/cradlekeeper/internal/models"
)

// Hello opens a pairing handshake. It travels in cleartext; the salt it
// carries lets both sides derive the session key from the pairing code.
type Hello struct {
	DeviceName string `json:"device_name"`
	Salt       []byte `json:"salt"`
}

// Capabilities advertises what the sender supports, so older peers can
// degrade gracefully instead of failing mid-exchange.
type Capabilities struct {
	MaxVersion int  `json:"max_version"`
	Resources  bool `json:"resources"`
}

// Ack answers a hello or a received message. Accepted=false means the
// user declined the invitation.
type Ack struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message,omitempty"`
}

// ErrorMessage reports a peer-side failure without tearing the session
// down.
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ProfileSnapshot carries one full profile with its entire action
// state, for first contact or recovery.
type ProfileSnapshot struct {
	Profile *models.ChildProfile `json:"profile"`
	Actions []*models.BabyAction `json:"actions"`
}

// ActionsDelta carries only actions changed at or after Since, the
// sender's last-delta-sent watermark for that profile.
type ActionsDelta struct {
	ProfileID uuid.UUID            `json:"profile_id"`
	Since     time.Time            `json:"since"`
	Actions   []*models.BabyAction `json:"actions"`
	Deleted   []uuid.UUID          `json:"deleted,omitempty"`
}

// ResourceChunk is one piece of a chunked file transfer. Final marks
// the last chunk; the receiver materializes the resource only after a
// final chunk arrives without a preceding error.
type ResourceChunk struct {
	TransferID string `json:"transfer_id"`
	Name       string `json:"name"`
	Offset     int64  `json:"offset"`
	Total      int64  `json:"total"`
	Data       []byte `json:"data"`
	Final      bool   `json:"final"`
}
