package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/cradlekeeper/internal/common"
	"github.com/dmitrijs2005/cradlekeeper/internal/logging"
	"github.com/dmitrijs2005/cradlekeeper/internal/models"
	"github.com/dmitrijs2005/cradlekeeper/internal/store/actions"
	"github.com/dmitrijs2005/cradlekeeper/internal/store/profiles"
)

// ProfileService owns child-profile mutation and the active-profile
// invariant: there is always exactly one active profile; deleting the
// active one promotes the next available, or synthesizes an empty
// placeholder when the list empties.
type ProfileService struct {
	repo    profiles.Repository
	actions actions.Repository
	logger  logging.Logger

	mu       sync.Mutex
	onChange func()
}

// NewProfileService returns a ProfileService over the given repositories.
func NewProfileService(repo profiles.Repository, actionRepo actions.Repository, logger logging.Logger) *ProfileService {
	return &ProfileService{repo: repo, actions: actionRepo, logger: logger}
}

// OnChange registers the mutation observer. Must be called before the
// service is used concurrently.
func (s *ProfileService) OnChange(fn func()) { s.onChange = fn }

// notify runs the observer. Callers must not hold s.mu: observers read
// back into the service, so notifying under the lock would deadlock.
func (s *ProfileService) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

// CreateProfile inserts a new owned profile. The first profile created
// becomes active.
func (s *ProfileService) CreateProfile(ctx context.Context, name string, birthDate time.Time) (*models.ChildProfile, error) {
	s.mu.Lock()

	p := models.NewChildProfile(name, birthDate)
	if err := s.repo.Upsert(ctx, p); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	if _, err := s.repo.ActiveID(ctx); errors.Is(err, common.ErrorNotFound) {
		if err := s.repo.SetActiveID(ctx, p.ID); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	s.mu.Unlock()

	s.notify()
	return p.Clone(), nil
}

// Profiles lists all locally known profiles.
func (s *ProfileService) Profiles(ctx context.Context) ([]*models.ChildProfile, error) {
	return s.repo.GetAll(ctx)
}

// Profile returns one profile by id.
func (s *ProfileService) Profile(ctx context.Context, id uuid.UUID) (*models.ChildProfile, error) {
	return s.repo.GetByID(ctx, id)
}

// ActiveProfile returns the currently active profile, repairing the
// invariant if the recorded id is stale and synthesizing a placeholder
// when no profiles exist at all.
func (s *ProfileService) ActiveProfile(ctx context.Context) (*models.ChildProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeProfileLocked(ctx)
}

func (s *ProfileService) activeProfileLocked(ctx context.Context) (*models.ChildProfile, error) {
	id, err := s.repo.ActiveID(ctx)
	if err == nil {
		p, err := s.repo.GetByID(ctx, id)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		// Recorded active profile no longer exists; fall through and repair.
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) > 0 {
		if err := s.repo.SetActiveID(ctx, all[0].ID); err != nil {
			return nil, err
		}
		return all[0], nil
	}

	placeholder := models.Placeholder()
	if err := s.repo.Upsert(ctx, placeholder); err != nil {
		return nil, err
	}
	if err := s.repo.SetActiveID(ctx, placeholder.ID); err != nil {
		return nil, err
	}
	return placeholder, nil
}

// SetActiveProfile switches the active profile.
func (s *ProfileService) SetActiveProfile(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()

	if _, err := s.repo.GetByID(ctx, id); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.repo.SetActiveID(ctx, id); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// UpdateProfile applies mutate to the profile and bumps UpdatedAt.
// Read-only shared profiles reject edits.
func (s *ProfileService) UpdateProfile(ctx context.Context, id uuid.UUID, mutate func(*models.ChildProfile)) (*models.ChildProfile, error) {
	s.mu.Lock()

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !p.Permission.CanEdit() {
		s.mu.Unlock()
		return nil, common.ErrReadOnlyProfile
	}

	mutate(p)
	p.Touch()
	if err := s.repo.Upsert(ctx, p); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	s.notify()
	return p.Clone(), nil
}

// SetReminderSetting updates one category's reminder configuration.
func (s *ProfileService) SetReminderSetting(ctx context.Context, id uuid.UUID, category models.ActionCategory, setting models.ReminderSetting) error {
	if !category.Valid() {
		return common.ErrUnknownCategory
	}
	_, err := s.UpdateProfile(ctx, id, func(p *models.ChildProfile) {
		if p.ReminderSettings == nil {
			p.ReminderSettings = map[models.ActionCategory]models.ReminderSetting{}
		}
		p.ReminderSettings[category] = setting
	})
	return err
}

// DeleteProfile removes the profile and its actions, then repairs the
// active-profile invariant.
func (s *ProfileService) DeleteProfile(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	err := s.deleteProfileLocked(ctx, id)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify()
	return nil
}

func (s *ProfileService) deleteProfileLocked(ctx context.Context, id uuid.UUID) error {
	if err := s.actions.DeleteByProfile(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	activeID, err := s.repo.ActiveID(ctx)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return err
	}
	if err == nil && activeID == id {
		if _, err := s.activeProfileLocked(ctx); err != nil {
			return fmt.Errorf("failed to repair active profile: %w", err)
		}
	}
	return nil
}

// ApplyRemote merges an inbound remote version of a profile, skipping it
// when the local copy is at least as new.
func (s *ProfileService) ApplyRemote(ctx context.Context, remote *models.ChildProfile) (bool, error) {
	s.mu.Lock()

	local, err := s.repo.GetByID(ctx, remote.ID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		s.mu.Unlock()
		return false, err
	}

	if local != nil && !remote.UpdatedAt.After(local.UpdatedAt) {
		s.mu.Unlock()
		return false, nil
	}

	if err := s.repo.Upsert(ctx, remote); err != nil {
		s.mu.Unlock()
		return false, err
	}
	s.mu.Unlock()

	s.notify()
	return true, nil
}

// ApplyRemoteDelete handles an inbound profile tombstone (explicit
// deletion or upstream share revocation).
func (s *ProfileService) ApplyRemoteDelete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	err := s.deleteProfileLocked(ctx, id)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify()
	return nil
}
