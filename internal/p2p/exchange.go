package p2p

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/cradlekeeper/internal/logging"
	"github.com/dmitrijs2005/cradlekeeper/internal/models"
	"github.com/dmitrijs2005/cradlekeeper/internal/services"
)

// Exchanger builds outbound snapshot/delta messages from local state
// and folds inbound ones back in through the merge path. The watermark
// map tracks, per profile, when the last delta was sent so each delta
// carries only actions changed at or after it.
type Exchanger struct {
	profiles *services.ProfileService
	actions  *services.ActionService
	logger   logging.Logger

	mu        sync.Mutex
	lastDelta map[uuid.UUID]time.Time
}

func NewExchanger(profiles *services.ProfileService, actions *services.ActionService, logger logging.Logger) *Exchanger {
	return &Exchanger{
		profiles:  profiles,
		actions:   actions,
		logger:    logger,
		lastDelta: map[uuid.UUID]time.Time{},
	}
}

// Snapshot builds the full-state message for first contact or recovery.
func (e *Exchanger) Snapshot(ctx context.Context, profileID uuid.UUID) (*ProfileSnapshot, error) {
	p, err := e.profiles.Profile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	state, err := e.actions.ActionState(ctx, profileID)
	if err != nil {
		return nil, err
	}
	return &ProfileSnapshot{Profile: p, Actions: state.All()}, nil
}

// Delta builds an incremental message: actions whose UpdatedAt is at or
// after the last-delta-sent watermark. Sending advances the watermark;
// call only when the message will actually be transmitted.
func (e *Exchanger) Delta(ctx context.Context, profileID uuid.UUID) (*ActionsDelta, error) {
	state, err := e.actions.ActionState(ctx, profileID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	since := e.lastDelta[profileID]
	e.lastDelta[profileID] = time.Now()
	e.mu.Unlock()

	delta := &ActionsDelta{ProfileID: profileID, Since: since}
	for _, a := range state.All() {
		if !a.UpdatedAt.Before(since) {
			delta.Actions = append(delta.Actions, a)
		}
	}
	return delta, nil
}

// ApplySnapshot merges a received snapshot: the profile and every
// action go through the regular remote-merge path so local newer data
// survives.
func (e *Exchanger) ApplySnapshot(ctx context.Context, snap *ProfileSnapshot) error {
	if snap.Profile != nil {
		if _, err := e.profiles.ApplyRemote(ctx, snap.Profile); err != nil {
			return err
		}
	}
	return e.applyActions(ctx, snap.Actions)
}

// ApplyDelta merges a received delta, including tombstones.
func (e *Exchanger) ApplyDelta(ctx context.Context, delta *ActionsDelta) error {
	if err := e.applyActions(ctx, delta.Actions); err != nil {
		return err
	}
	for _, id := range delta.Deleted {
		if err := e.actions.ApplyRemoteDelete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exchanger) applyActions(ctx context.Context, actions []*models.BabyAction) error {
	for _, a := range actions {
		applied, err := e.actions.ApplyRemote(ctx, a)
		if err != nil {
			return err
		}
		if !applied {
			e.logger.Info(ctx, "peer action older than local copy, kept local", "action_id", a.ID)
		}
	}
	return nil
}
