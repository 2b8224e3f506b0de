package share

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/cradlekeeper/internal/models"
)

// Delta is the outcome of comparing the current action set against the
// last-synced baseline.
type Delta struct {
	// Pending are actions modified (or created) since their baseline
	// entry, due for upload.
	Pending []*models.BabyAction

	// Deleted are action IDs present in the baseline but gone locally,
	// due for remote deletion.
	Deleted []uuid.UUID
}

// Empty reports whether there is nothing to push.
func (d *Delta) Empty() bool {
	return len(d.Pending) == 0 && len(d.Deleted) == 0
}

// ComputeDelta is pure: given the current state and the baseline map
// (action ID to the UpdatedAt last pushed), it returns what must be
// uploaded and what must be deleted remotely. An action is pending when
// it has no baseline entry (new) or its UpdatedAt is strictly later
// than the baseline value.
func ComputeDelta(state *models.ProfileActionState, baseline map[uuid.UUID]time.Time) *Delta {
	d := &Delta{}

	current := map[uuid.UUID]struct{}{}
	for _, a := range state.All() {
		current[a.ID] = struct{}{}
		synced, ok := baseline[a.ID]
		if !ok || a.UpdatedAt.After(synced) {
			d.Pending = append(d.Pending, a)
		}
	}

	for id := range baseline {
		if _, ok := current[id]; !ok {
			d.Deleted = append(d.Deleted, id)
		}
	}

	return d
}

// NextBaseline is the baseline to store after the whole delta has been
// pushed successfully: every current action mapped to its UpdatedAt.
func NextBaseline(state *models.ProfileActionState) map[uuid.UUID]time.Time {
	out := map[uuid.UUID]time.Time{}
	for _, a := range state.All() {
		out[a.ID] = a.UpdatedAt
	}
	return out
}
