package sharectx

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

// SQLiteRepository implements Repository using a DBTX. ReplaceBaseline
// needs a real *sql.DB to run its delete+insert inside one transaction.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, profileID uuid.UUID) (*models.ShareContext, error) {
	query := `SELECT profile_id, zone_name, root_record, share_record, role, state, participants
		FROM share_contexts WHERE profile_id=?`
	row := r.db.QueryRowContext(ctx, query, profileID.String())

	sc, err := scanContext(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select share context: %w", err)
	}

	if sc.LastSynced, err = r.baseline(ctx, profileID); err != nil {
		return nil, err
	}
	return sc, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]*models.ShareContext, error) {
	query := `SELECT profile_id, zone_name, root_record, share_record, role, state, participants
		FROM share_contexts`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select share contexts: %w", err)
	}
	defer rows.Close()

	var result []*models.ShareContext
	for rows.Next() {
		sc, err := scanContext(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, sc := range result {
		if sc.LastSynced, err = r.baseline(ctx, sc.ProfileID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Upsert writes the context row. The baseline map is not written here;
// use ReplaceBaseline so baseline advancement stays an explicit,
// all-or-nothing step.
func (r *SQLiteRepository) Upsert(ctx context.Context, sc *models.ShareContext) error {
	participants, err := json.Marshal(sc.Participants)
	if err != nil {
		return fmt.Errorf("failed to encode participants: %w", err)
	}

	query := `INSERT INTO share_contexts (profile_id, zone_name, root_record, share_record, role, state, participants)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile_id) DO UPDATE SET zone_name = excluded.zone_name,
			root_record = excluded.root_record,
			share_record = excluded.share_record,
			role = excluded.role,
			state = excluded.state,
			participants = excluded.participants
	`
	_, err = r.db.ExecContext(ctx, query,
		sc.ProfileID.String(), sc.ZoneName, sc.RootRecordName, sc.ShareRecordName,
		string(sc.Role), string(sc.State), string(participants))
	if err != nil {
		return fmt.Errorf("failed to upsert share context: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, profileID uuid.UUID) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM share_contexts WHERE profile_id=?`, profileID.String()); err != nil {
			return fmt.Errorf("failed to delete share context: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM share_baselines WHERE profile_id=?`, profileID.String()); err != nil {
			return fmt.Errorf("failed to delete share baseline: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) ReplaceBaseline(ctx context.Context, profileID uuid.UUID, baseline map[uuid.UUID]time.Time) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM share_baselines WHERE profile_id=?`, profileID.String()); err != nil {
			return fmt.Errorf("failed to clear share baseline: %w", err)
		}
		for actionID, ts := range baseline {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO share_baselines (profile_id, action_id, last_synced_ns) VALUES (?, ?, ?)`,
				profileID.String(), actionID.String(), ts.UnixNano())
			if err != nil {
				return fmt.Errorf("failed to write share baseline: %w", err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) baseline(ctx context.Context, profileID uuid.UUID) (map[uuid.UUID]time.Time, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT action_id, last_synced_ns FROM share_baselines WHERE profile_id=?`, profileID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to select share baseline: %w", err)
	}
	defer rows.Close()

	baseline := map[uuid.UUID]time.Time{}
	for rows.Next() {
		var idStr string
		var ns int64
		if err := rows.Scan(&idStr, &ns); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid action id %q: %w", idStr, err)
		}
		baseline[id] = time.Unix(0, ns).UTC()
	}
	return baseline, rows.Err()
}

func scanContext(scan func(dest ...any) error) (*models.ShareContext, error) {
	var profileID, zone, root, share, role, state, participants string
	if err := scan(&profileID, &zone, &root, &share, &role, &state, &participants); err != nil {
		return nil, err
	}

	pid, err := uuid.Parse(profileID)
	if err != nil {
		return nil, fmt.Errorf("invalid profile id %q: %w", profileID, err)
	}

	sc := &models.ShareContext{
		ProfileID:       pid,
		ZoneName:        zone,
		RootRecordName:  root,
		ShareRecordName: share,
		Role:            models.ShareRole(role),
		State:           models.ShareState(state),
		LastSynced:      map[uuid.UUID]time.Time{},
	}
	if err := json.Unmarshal([]byte(participants), &sc.Participants); err != nil {
		return nil, fmt.Errorf("invalid participants: %w", err)
	}
	return sc, nil
}
