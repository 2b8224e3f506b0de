package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/cradlekeeper/internal/common"
	"github.com/dmitrijs2005/cradlekeeper/internal/logging"
	"github.com/dmitrijs2005/cradlekeeper/internal/merge"
	"github.com/dmitrijs2005/cradlekeeper/internal/models"
	"github.com/dmitrijs2005/cradlekeeper/internal/store/actions"
)

// DefaultSaveDelay is how long a burst of edits may stay in memory before
// the coalesced flush writes it to the local store.
const DefaultSaveDelay = 500 * time.Millisecond

// ActionOptions carries the optional fields set when starting or logging
// an action.
type ActionOptions struct {
	DiaperKind     models.DiaperKind
	FeedingKind    models.FeedingKind
	BottleKind     models.BottleKind
	BottleVolumeML *float64
	Location       *models.GeoPoint
}

func (o ActionOptions) apply(a *models.BabyAction) {
	a.DiaperKind = o.DiaperKind
	a.FeedingKind = o.FeedingKind
	a.BottleKind = o.BottleKind
	a.BottleVolumeML = o.BottleVolumeML
	a.Location = o.Location
}

// ActionService owns all baby-action mutation. Edits land in an
// in-memory dirty set first and are flushed to the repository by a
// coalesced delayed save; reads overlay the dirty set on top of the
// store so callers always see the latest state.
type ActionService struct {
	repo   actions.Repository
	logger logging.Logger

	mu    sync.Mutex
	dirty map[uuid.UUID]*models.BabyAction
	saver *Saver

	// onChange, when set, is called after every successful mutation so
	// downstream observers (sync coordinator, reminder scheduler) can
	// re-derive.
	onChange func()
}

// NewActionService returns an ActionService flushing coalesced saves
// after saveDelay.
func NewActionService(repo actions.Repository, logger logging.Logger, saveDelay time.Duration) *ActionService {
	s := &ActionService{
		repo:   repo,
		logger: logger,
		dirty:  map[uuid.UUID]*models.BabyAction{},
	}
	s.saver = NewSaver(saveDelay, func() {
		if err := s.Flush(context.Background()); err != nil {
			s.logger.Error(context.Background(), "coalesced save failed", "error", err)
		}
	})
	return s
}

// OnChange registers the mutation observer. Must be called before the
// service is used concurrently.
func (s *ActionService) OnChange(fn func()) { s.onChange = fn }

// notify runs the observer. Callers must not hold s.mu: observers read
// back into the service (the reminder scheduler rebuilds from
// ActionState), so notifying under the lock would deadlock.
func (s *ActionService) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

// StartAction begins a new action of the given category. A still-open
// action of the same category is closed first so at most one stays open.
// Instant categories are logged already closed (End == Start).
func (s *ActionService) StartAction(ctx context.Context, profileID uuid.UUID, category models.ActionCategory, opts ActionOptions) (*models.BabyAction, error) {
	if !category.Valid() {
		return nil, common.ErrUnknownCategory
	}

	now := time.Now().UTC()

	s.mu.Lock()

	open, err := s.openActionLocked(ctx, profileID, category)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if open != nil {
		open.Close(now)
		s.markDirtyLocked(open)
	}

	a := &models.BabyAction{
		ID:        uuid.New(),
		ProfileID: profileID,
		Category:  category,
		Start:     now,
		UpdatedAt: now,
	}
	opts.apply(a)
	if category.Instant() {
		end := now
		a.End = &end
	}

	s.markDirtyLocked(a)
	out := a.Clone()
	s.mu.Unlock()

	s.notify()
	return out, nil
}

// StopAction closes the open action of the category, if any.
func (s *ActionService) StopAction(ctx context.Context, profileID uuid.UUID, category models.ActionCategory) (*models.BabyAction, error) {
	s.mu.Lock()

	open, err := s.openActionLocked(ctx, profileID, category)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if open == nil {
		s.mu.Unlock()
		return nil, common.ErrActionNotOpen
	}

	open.Close(time.Now().UTC())
	s.markDirtyLocked(open)
	out := open.Clone()
	s.mu.Unlock()

	s.notify()
	return out, nil
}

// UpdateAction applies mutate to the action and bumps UpdatedAt.
func (s *ActionService) UpdateAction(ctx context.Context, id uuid.UUID, mutate func(*models.BabyAction)) (*models.BabyAction, error) {
	s.mu.Lock()

	a, err := s.lookupLocked(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	mutate(a)
	a.Touch()
	s.markDirtyLocked(a)
	out := a.Clone()
	s.mu.Unlock()

	s.notify()
	return out, nil
}

// DeleteAction removes the action locally. Deletions bypass the
// coalescing delay: they are rare and must not resurrect via a later
// flush of a stale dirty copy.
func (s *ActionService) DeleteAction(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()

	delete(s.dirty, id)
	if err := s.repo.Delete(ctx, id); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// ActionState assembles the per-profile aggregate: active slots plus
// closed history, dirty entries overlaid.
func (s *ActionService) ActionState(ctx context.Context, profileID uuid.UUID) (*models.ProfileActionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actionStateLocked(ctx, profileID)
}

func (s *ActionService) actionStateLocked(ctx context.Context, profileID uuid.UUID) (*models.ProfileActionState, error) {
	stored, err := s.repo.GetByProfile(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to load actions: %w", err)
	}

	byID := make(map[uuid.UUID]*models.BabyAction, len(stored))
	for _, a := range stored {
		byID[a.ID] = a.Clone()
	}
	for id, a := range s.dirty {
		if a.ProfileID == profileID {
			byID[id] = a.Clone()
		}
	}

	state := models.NewProfileActionState(profileID)
	for _, a := range byID {
		if a.Open() && !a.Category.Instant() {
			state.Active[a.Category] = a
		} else {
			state.History = append(state.History, a)
		}
	}
	sortHistory(state.History)
	return state, nil
}

// ApplyRemote merges an inbound remote version of an action into the
// local state. The remote side is skipped entirely when the local copy
// is at least as new (local-newer-wins), matching the cloud bridge's
// whole-record merge granularity. Reports whether the remote version was
// applied.
func (s *ActionService) ApplyRemote(ctx context.Context, remote *models.BabyAction) (bool, error) {
	s.mu.Lock()

	local, err := s.lookupLocked(ctx, remote.ID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		s.mu.Unlock()
		return false, err
	}

	if local != nil && merge.Resolve(local, remote) == local {
		s.mu.Unlock()
		return false, nil
	}

	s.markDirtyLocked(remote.Clone())
	s.mu.Unlock()

	s.notify()
	return true, nil
}

// ApplyRemoteDelete handles an inbound tombstone.
func (s *ActionService) ApplyRemoteDelete(ctx context.Context, id uuid.UUID) error {
	return s.DeleteAction(ctx, id)
}

// Flush writes every pending coalesced edit to the repository. Teardown
// and background-transition code must call it so no edits are lost when
// the process is suspended.
func (s *ActionService) Flush(ctx context.Context) error {
	s.mu.Lock()
	pending := make([]*models.BabyAction, 0, len(s.dirty))
	for _, a := range s.dirty {
		pending = append(pending, a)
	}
	s.dirty = map[uuid.UUID]*models.BabyAction{}
	s.mu.Unlock()

	for _, a := range pending {
		if err := s.repo.Upsert(ctx, a); err != nil {
			// Put the failed entry back so the next flush retries it.
			s.mu.Lock()
			if _, exists := s.dirty[a.ID]; !exists {
				s.dirty[a.ID] = a
			}
			s.mu.Unlock()
			return fmt.Errorf("failed to flush action %s: %w", a.ID, err)
		}
	}
	return nil
}

// Close stops the save timer and flushes outstanding edits.
func (s *ActionService) Close(ctx context.Context) error {
	s.saver.Stop()
	return s.Flush(ctx)
}

func (s *ActionService) markDirtyLocked(a *models.BabyAction) {
	s.dirty[a.ID] = a
	s.saver.Schedule()
}

func (s *ActionService) lookupLocked(ctx context.Context, id uuid.UUID) (*models.BabyAction, error) {
	if a, ok := s.dirty[id]; ok {
		return a, nil
	}
	return s.repo.GetByID(ctx, id)
}

func (s *ActionService) openActionLocked(ctx context.Context, profileID uuid.UUID, category models.ActionCategory) (*models.BabyAction, error) {
	if category.Instant() {
		return nil, nil
	}
	state, err := s.actionStateLocked(ctx, profileID)
	if err != nil {
		return nil, err
	}
	return state.Active[category], nil
}

func sortHistory(history []*models.BabyAction) {
	sort.Slice(history, func(i, j int) bool {
		return history[i].Start.After(history[j].Start)
	})
}
