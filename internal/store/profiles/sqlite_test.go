package profiles_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/cradlekeeper/internal/common"
	"github.com/dmitrijs2005/cradlekeeper/internal/models"
	"github.com/dmitrijs2005/cradlekeeper/internal/store"
	"github.com/dmitrijs2005/cradlekeeper/internal/store/profiles"
)

func newTestRepo(t *testing.T) (*profiles.SQLiteRepository, context.Context) {
	t.Helper()
	ctx := context.Background()
	repos, err := store.InitDatabase(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repos.DB.Close() })
	return profiles.NewSQLiteRepository(repos.DB), ctx
}

func sampleProfile(name string) *models.ChildProfile {
	p := models.NewChildProfile(name, time.Date(2025, 3, 12, 8, 30, 0, 0, time.UTC))
	p.Avatar = []byte{0x89, 0x50, 0x4e, 0x47}
	p.RemindersEnabled = true
	p.ReminderSettings[models.CategoryFeeding] = models.ReminderSetting{Enabled: true, Interval: 3 * time.Hour}
	return p
}

func TestUpsertAndGetByID(t *testing.T) {
	repo, ctx := newTestRepo(t)

	p := sampleProfile("Emma")
	require.NoError(t, repo.Upsert(ctx, p))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "Emma", got.Name)
	assert.Equal(t, p.BirthDate, got.BirthDate)
	assert.Equal(t, p.Avatar, got.Avatar)
	assert.True(t, got.RemindersEnabled)
	assert.Equal(t, models.PermissionOwner, got.Permission)
	assert.Equal(t, 3*time.Hour, got.ReminderSettings[models.CategoryFeeding].Interval)
	assert.Equal(t, p.UpdatedAt, got.UpdatedAt)
}

func TestUpsertOverwritesOnConflict(t *testing.T) {
	repo, ctx := newTestRepo(t)

	p := sampleProfile("Emma")
	require.NoError(t, repo.Upsert(ctx, p))

	p.Name = "Emma Rose"
	p.RemindersEnabled = false
	p.Touch()
	require.NoError(t, repo.Upsert(ctx, p))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Emma Rose", got.Name)
	assert.False(t, got.RemindersEnabled)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetByIDNotFound(t *testing.T) {
	repo, ctx := newTestRepo(t)

	_, err := repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGetAllOrderedByName(t *testing.T) {
	repo, ctx := newTestRepo(t)

	for _, name := range []string{"Noah", "Ava", "Liam"} {
		require.NoError(t, repo.Upsert(ctx, sampleProfile(name)))
	}

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Ava", all[0].Name)
	assert.Equal(t, "Liam", all[1].Name)
	assert.Equal(t, "Noah", all[2].Name)
}

func TestDelete(t *testing.T) {
	repo, ctx := newTestRepo(t)

	p := sampleProfile("Emma")
	require.NoError(t, repo.Upsert(ctx, p))
	require.NoError(t, repo.Delete(ctx, p.ID))

	_, err := repo.GetByID(ctx, p.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestActiveID(t *testing.T) {
	repo, ctx := newTestRepo(t)

	_, err := repo.ActiveID(ctx)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	first := uuid.New()
	require.NoError(t, repo.SetActiveID(ctx, first))

	got, err := repo.ActiveID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	second := uuid.New()
	require.NoError(t, repo.SetActiveID(ctx, second))

	got, err = repo.ActiveID(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func newRepoWithMock(t *testing.T) (*profiles.SQLiteRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return profiles.NewSQLiteRepository(db), mock
}

func TestUpsertExecError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO profiles")).
		WillReturnError(errors.New("disk I/O error"))

	err := repo.Upsert(context.Background(), sampleProfile("Emma"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upsert profile")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAllQueryError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery("SELECT .* FROM profiles").
		WillReturnError(errors.New("db is down"))

	_, err := repo.GetAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to select profiles")
}

func TestGetAllScanError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	rows := sqlmock.NewRows([]string{
		"id", "name", "birth_date_ns", "avatar", "reminders_enabled",
		"reminder_settings", "permission", "updated_at_ns",
	}).AddRow("not-a-uuid", "Emma", int64(0), nil, 0, "{}", "owner", int64(0))

	mock.ExpectQuery("SELECT .* FROM profiles").WillReturnRows(rows)

	_, err := repo.GetAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid profile id")
}

func TestGetAllRowsErr(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	rows := sqlmock.NewRows([]string{
		"id", "name", "birth_date_ns", "avatar", "reminders_enabled",
		"reminder_settings", "permission", "updated_at_ns",
	}).
		AddRow(uuid.NewString(), "Emma", int64(0), nil, 0, "{}", "owner", int64(0)).
		RowError(0, errors.New("row-err"))

	mock.ExpectQuery("SELECT .* FROM profiles").WillReturnRows(rows)

	_, err := repo.GetAll(context.Background())
	require.Error(t, err)
}
