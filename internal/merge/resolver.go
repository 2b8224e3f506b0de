// Package merge implements the canonical conflict-resolution policy for
// baby actions edited concurrently on several devices.
//
// The policy is last-writer-wins at whole-record granularity, keyed on
// UpdatedAt, with a small equality tolerance to absorb sub-second
// truncation introduced by backends that store second-precision
// timestamps.
package merge

import (
	"time"

	"github.com/dmitrijs2005/cradlekeeper/internal/models"
)

// Tolerance is the window within which two UpdatedAt values are treated
// as equal. The cloud backend round-trips timestamps at second
// precision, so anything finer cannot be trusted to order edits.
const Tolerance = time.Second

// Resolve deterministically picks the winner between two versions of the
// same logical action. It is pure and idempotent: Resolve(x, x) == x.
//
// Rules, in order:
//  1. The later UpdatedAt wins outright when the difference exceeds
//     Tolerance.
//  2. On a tie, a closed record beats an open one, and the later End
//     wins between two closed records: closing an action is the more
//     complete state.
//  3. On a full tie, remote wins. This is an arbitrary but fixed default
//     that converges every device toward the authoritative shared copy.
func Resolve(local, remote *models.BabyAction) *models.BabyAction {
	if local == nil {
		return remote
	}
	if remote == nil {
		return local
	}

	d := remote.UpdatedAt.Sub(local.UpdatedAt)
	if d > Tolerance {
		return remote
	}
	if d < -Tolerance {
		return local
	}

	// UpdatedAt tie: prefer the more recently closed record.
	switch {
	case local.End != nil && remote.End == nil:
		return local
	case local.End == nil && remote.End != nil:
		return remote
	case local.End != nil && remote.End != nil:
		if local.End.After(*remote.End) {
			return local
		}
		return remote
	}

	// Full tie, both still open.
	return remote
}

// LocalIsStale reports whether an inbound remote modification time
// supersedes the local UpdatedAt. The cloud bridge uses this to skip
// applying records that are older than (or equal to) what the device
// already has.
func LocalIsStale(localUpdatedAt, remoteModifiedAt time.Time) bool {
	return remoteModifiedAt.After(localUpdatedAt)
}
