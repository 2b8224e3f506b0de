package actions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/cradlekeeper/internal/common"
	"github.com/dmitrijs2005/cradlekeeper/internal/dbx"
	"github.com/dmitrijs2005/cradlekeeper/internal/models"
)

const actionColumns = `id, profile_id, category, start_ns, end_ns, diaper_kind, feeding_kind,
	bottle_kind, bottle_volume_ml, latitude, longitude, place_name, updated_at_ns`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BabyAction, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE id=?`
	row := r.db.QueryRowContext(ctx, query, id.String())

	a, err := scanAction(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select action: %w", err)
	}
	return a, nil
}

func (r *SQLiteRepository) GetByProfile(ctx context.Context, profileID uuid.UUID) ([]*models.BabyAction, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE profile_id=?
		ORDER BY end_ns IS NOT NULL, start_ns DESC`
	return r.selectMany(ctx, query, profileID.String())
}

func (r *SQLiteRepository) SelectUpdatedSince(ctx context.Context, profileID uuid.UUID, since time.Time) ([]*models.BabyAction, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE profile_id=? AND updated_at_ns>?
		ORDER BY updated_at_ns`
	return r.selectMany(ctx, query, profileID.String(), since.UnixNano())
}

func (r *SQLiteRepository) selectMany(ctx context.Context, query string, args ...any) ([]*models.BabyAction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select actions: %w", err)
	}
	defer rows.Close()

	var result []*models.BabyAction
	for rows.Next() {
		a, err := scanAction(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Upsert inserts the action or, on id conflict, updates every mutable column.
func (r *SQLiteRepository) Upsert(ctx context.Context, a *models.BabyAction) error {
	query := `INSERT INTO actions (` + actionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET profile_id = excluded.profile_id,
			category = excluded.category,
			start_ns = excluded.start_ns,
			end_ns = excluded.end_ns,
			diaper_kind = excluded.diaper_kind,
			feeding_kind = excluded.feeding_kind,
			bottle_kind = excluded.bottle_kind,
			bottle_volume_ml = excluded.bottle_volume_ml,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			place_name = excluded.place_name,
			updated_at_ns = excluded.updated_at_ns
	`

	var endNS any
	if a.End != nil {
		endNS = a.End.UnixNano()
	}
	var lat, lon any
	place := ""
	if a.Location != nil {
		lat, lon, place = a.Location.Latitude, a.Location.Longitude, a.Location.PlaceName
	}
	var volume any
	if a.BottleVolumeML != nil {
		volume = *a.BottleVolumeML
	}

	_, err := r.db.ExecContext(ctx, query,
		a.ID.String(), a.ProfileID.String(), string(a.Category), a.Start.UnixNano(), endNS,
		string(a.DiaperKind), string(a.FeedingKind), string(a.BottleKind), volume,
		lat, lon, place, a.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert action: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM actions WHERE id=?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete action: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByProfile(ctx context.Context, profileID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM actions WHERE profile_id=?`, profileID.String())
	if err != nil {
		return fmt.Errorf("failed to delete profile actions: %w", err)
	}
	return nil
}

func scanAction(scan func(dest ...any) error) (*models.BabyAction, error) {
	var (
		id, profileID, category, diaper, feeding, bottle, place string
		startNS, updatedNS                                      int64
		endNS                                                   sql.NullInt64
		volume, lat, lon                                        sql.NullFloat64
	)
	if err := scan(&id, &profileID, &category, &startNS, &endNS, &diaper, &feeding,
		&bottle, &volume, &lat, &lon, &place, &updatedNS); err != nil {
		return nil, err
	}

	aid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid action id %q: %w", id, err)
	}
	pid, err := uuid.Parse(profileID)
	if err != nil {
		return nil, fmt.Errorf("invalid profile id %q: %w", profileID, err)
	}

	a := &models.BabyAction{
		ID:          aid,
		ProfileID:   pid,
		Category:    models.ActionCategory(category),
		Start:       time.Unix(0, startNS).UTC(),
		DiaperKind:  models.DiaperKind(diaper),
		FeedingKind: models.FeedingKind(feeding),
		BottleKind:  models.BottleKind(bottle),
		UpdatedAt:   time.Unix(0, updatedNS).UTC(),
	}
	if endNS.Valid {
		e := time.Unix(0, endNS.Int64).UTC()
		a.End = &e
	}
	if volume.Valid {
		v := volume.Float64
		a.BottleVolumeML = &v
	}
	if lat.Valid && lon.Valid {
		a.Location = &models.GeoPoint{Latitude: lat.Float64, Longitude: lon.Float64, PlaceName: place}
	}
	return a, nil
}
