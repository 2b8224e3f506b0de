// Package profiles persists child profiles in the local sqlite store.
package profiles

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/cradlekeeper/internal/models"
)

// Repository is the storage contract for child profiles.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ChildProfile, error)
	GetAll(ctx context.Context) ([]*models.ChildProfile, error)
	Upsert(ctx context.Context, p *models.ChildProfile) error
	Delete(ctx context.Context, id uuid.UUID) error

	// ActiveID returns the id of the currently active profile, or
	// common.ErrorNotFound when none is recorded.
	ActiveID(ctx context.Context) (uuid.UUID, error)
	SetActiveID(ctx context.Context, id uuid.UUID) error
}
