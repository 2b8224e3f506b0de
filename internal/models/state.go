package models

import "github.com/google/uuid"

// ProfileActionState is the per-profile aggregate handed to observers:
// at most one currently running action per category, plus the ordered
// history of closed actions (most recent first).
//
// Invariant: the union of Active and History contains no duplicate IDs.
type ProfileActionState struct {
	ProfileID uuid.UUID
	Active    map[ActionCategory]*BabyAction
	History   []*BabyAction
}

// NewProfileActionState returns an empty state for the profile.
func NewProfileActionState(profileID uuid.UUID) *ProfileActionState {
	return &ProfileActionState{
		ProfileID: profileID,
		Active:    map[ActionCategory]*BabyAction{},
	}
}

// All returns active and historical actions as one slice.
func (s *ProfileActionState) All() []*BabyAction {
	out := make([]*BabyAction, 0, len(s.Active)+len(s.History))
	for _, c := range Categories {
		if a, ok := s.Active[c]; ok {
			out = append(out, a)
		}
	}
	out = append(out, s.History...)
	return out
}

// Lookup returns the action with the given id, searching active slots
// first, or nil when absent.
func (s *ProfileActionState) Lookup(id uuid.UUID) *BabyAction {
	for _, a := range s.Active {
		if a.ID == id {
			return a
		}
	}
	for _, a := range s.History {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// IDs returns the set of all action IDs in the state.
func (s *ProfileActionState) IDs() map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{}, len(s.Active)+len(s.History))
	for _, a := range s.All() {
		out[a.ID] = struct{}{}
	}
	return out
}
