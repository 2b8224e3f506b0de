// Package sharectx persists per-profile sharing metadata and the delta
// sync baseline.
package sharectx

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/cradlekeeper/internal/models"
)

// Repository is the storage contract for share contexts. The LastSynced
// baseline is persisted separately (share_baselines) and loaded into the
// context on Get/GetAll.
type Repository interface {
	Get(ctx context.Context, profileID uuid.UUID) (*models.ShareContext, error)
	GetAll(ctx context.Context) ([]*models.ShareContext, error)
	Upsert(ctx context.Context, sc *models.ShareContext) error
	Delete(ctx context.Context, profileID uuid.UUID) error

	// ReplaceBaseline atomically replaces the whole LastSynced map for
	// the profile. Callers must only invoke it after a fully successful
	// push/delete batch so a partial failure keeps the previous baseline.
	ReplaceBaseline(ctx context.Context, profileID uuid.UUID, baseline map[uuid.UUID]time.Time) error
}
