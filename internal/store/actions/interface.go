// Package actions persists baby actions in the local sqlite store.
package actions

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/cradlekeeper/internal/models"
)

// Repository is the storage contract for baby actions.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.BabyAction, error)

	// GetByProfile returns all actions for the profile, open ones first,
	// then closed ones most-recent-start first.
	GetByProfile(ctx context.Context, profileID uuid.UUID) ([]*models.BabyAction, error)

	// SelectUpdatedSince returns actions of the profile whose UpdatedAt
	// is strictly later than since.
	SelectUpdatedSince(ctx context.Context, profileID uuid.UUID, since time.Time) ([]*models.BabyAction, error)

	Upsert(ctx context.Context, a *models.BabyAction) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByProfile(ctx context.Context, profileID uuid.UUID) error
}
