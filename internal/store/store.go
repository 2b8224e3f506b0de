// Package store opens the local sqlite database, applies embedded goose
// migrations and bundles the entity repositories.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/cradlekeeper/internal/store/actions"
	"github.com/dmitrijs2005/cradlekeeper/internal/store/migrations"
	"github.com/dmitrijs2005/cradlekeeper/internal/store/profiles"
	"github.com/dmitrijs2005/cradlekeeper/internal/store/sharectx"
)

// Repositories bundles the local store's entity repositories.
type Repositories struct {
	Profiles profiles.Repository
	Actions  actions.Repository
	Shares   sharectx.Repository

	DB *sql.DB
}

// RunMigrations applies all embedded migrations to db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens the sqlite database at dsn, migrates it and returns
// the repository bundle. A failure here is fatal for the process; the
// app cannot run without its local store.
func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		return nil, err
	}

	return &Repositories{
		Profiles: profiles.NewSQLiteRepository(db),
		Actions:  actions.NewSQLiteRepository(db),
		Shares:   sharectx.NewSQLiteRepository(db),
		DB:       db,
	}, nil
}
