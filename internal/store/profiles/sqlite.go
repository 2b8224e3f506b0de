package profiles

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/cradlekeeper/internal/common"
	"github.com/dmitrijs2005/cradlekeeper/internal/dbx"
	"github.com/dmitrijs2005/cradlekeeper/internal/models"
)

const activeProfileKey = "active_profile_id"

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ChildProfile, error) {
	query := `SELECT id, name, birth_date_ns, avatar, reminders_enabled, reminder_settings, permission, updated_at_ns
		FROM profiles WHERE id=?`
	row := r.db.QueryRowContext(ctx, query, id.String())

	p, err := scanProfile(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select profile: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]*models.ChildProfile, error) {
	query := `SELECT id, name, birth_date_ns, avatar, reminders_enabled, reminder_settings, permission, updated_at_ns
		FROM profiles ORDER BY name, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select profiles: %w", err)
	}
	defer rows.Close()

	var result []*models.ChildProfile
	for rows.Next() {
		p, err := scanProfile(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Upsert inserts the profile or, on id conflict, updates every mutable column.
func (r *SQLiteRepository) Upsert(ctx context.Context, p *models.ChildProfile) error {
	settings, err := json.Marshal(p.ReminderSettings)
	if err != nil {
		return fmt.Errorf("failed to encode reminder settings: %w", err)
	}

	query := `INSERT INTO profiles (id, name, birth_date_ns, avatar, reminders_enabled, reminder_settings, permission, updated_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name,
			birth_date_ns = excluded.birth_date_ns,
			avatar = excluded.avatar,
			reminders_enabled = excluded.reminders_enabled,
			reminder_settings = excluded.reminder_settings,
			permission = excluded.permission,
			updated_at_ns = excluded.updated_at_ns
	`
	_, err = r.db.ExecContext(ctx, query,
		p.ID.String(), p.Name, p.BirthDate.UnixNano(), p.Avatar,
		boolToInt(p.RemindersEnabled), string(settings), string(p.Permission), p.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE id=?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ActiveID(ctx context.Context) (uuid.UUID, error) {
	var v string
	row := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=?`, activeProfileKey)
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, common.ErrorNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to select active profile: %w", err)
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid active profile id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) SetActiveID(ctx context.Context, id uuid.UUID) error {
	query := `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	_, err := r.db.ExecContext(ctx, query, activeProfileKey, id.String())
	if err != nil {
		return fmt.Errorf("failed to set active profile: %w", err)
	}
	return nil
}

func scanProfile(scan func(dest ...any) error) (*models.ChildProfile, error) {
	var (
		id, name, settings, permission string
		birthNS, updatedNS             int64
		avatar                         []byte
		remindersEnabled               int
	)
	if err := scan(&id, &name, &birthNS, &avatar, &remindersEnabled, &settings, &permission, &updatedNS); err != nil {
		return nil, err
	}

	pid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid profile id %q: %w", id, err)
	}

	p := &models.ChildProfile{
		ID:               pid,
		Name:             name,
		BirthDate:        time.Unix(0, birthNS).UTC(),
		Avatar:           avatar,
		RemindersEnabled: remindersEnabled != 0,
		Permission:       models.SharePermission(permission),
		UpdatedAt:        time.Unix(0, updatedNS).UTC(),
	}
	if err := json.Unmarshal([]byte(settings), &p.ReminderSettings); err != nil {
		return nil, fmt.Errorf("invalid reminder settings: %w", err)
	}
	return p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
