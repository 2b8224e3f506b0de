package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/cradlekeeper/internal/common"
	"github.com/dmitrijs2005/cradlekeeper/internal/logging"
	"github.com/dmitrijs2005/cradlekeeper/internal/models"
	"github.com/dmitrijs2005/cradlekeeper/internal/store"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newActionFixture(t *testing.T) (*ActionService, *store.Repositories, context.Context) {
	t.Helper()
	ctx := context.Background()
	repos, err := store.InitDatabase(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repos.DB.Close() })

	// A large delay keeps the background saver out of the way; tests
	// flush explicitly.
	svc := NewActionService(repos.Actions, testLogger(), time.Hour)
	t.Cleanup(func() { svc.Close(ctx) })
	return svc, repos, ctx
}

func TestStartActionRejectsUnknownCategory(t *testing.T) {
	svc, _, ctx := newActionFixture(t)

	_, err := svc.StartAction(ctx, uuid.New(), models.ActionCategory("bath"), ActionOptions{})
	assert.ErrorIs(t, err, common.ErrUnknownCategory)
}

func TestStartActionClosesPreviousOpenOfSameCategory(t *testing.T) {
	svc, _, ctx := newActionFixture(t)
	profileID := uuid.New()

	first, err := svc.StartAction(ctx, profileID, models.CategorySleep, ActionOptions{})
	require.NoError(t, err)
	assert.True(t, first.Open())

	second, err := svc.StartAction(ctx, profileID, models.CategorySleep, ActionOptions{})
	require.NoError(t, err)

	state, err := svc.ActionState(ctx, profileID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, state.Active[models.CategorySleep].ID)

	closed := state.Lookup(first.ID)
	require.NotNil(t, closed)
	assert.False(t, closed.Open())
}

func TestStartActionInstantCategoryIsLoggedClosed(t *testing.T) {
	svc, _, ctx := newActionFixture(t)
	profileID := uuid.New()

	a, err := svc.StartAction(ctx, profileID, models.CategoryDiaper, ActionOptions{DiaperKind: models.DiaperWet})
	require.NoError(t, err)
	require.NotNil(t, a.End)
	assert.Equal(t, a.Start, *a.End)

	state, err := svc.ActionState(ctx, profileID)
	require.NoError(t, err)
	assert.NotContains(t, state.Active, models.CategoryDiaper)
	require.Len(t, state.History, 1)
}

func TestStopAction(t *testing.T) {
	svc, _, ctx := newActionFixture(t)
	profileID := uuid.New()

	_, err := svc.StopAction(ctx, profileID, models.CategoryFeeding)
	assert.ErrorIs(t, err, common.ErrActionNotOpen)

	started, err := svc.StartAction(ctx, profileID, models.CategoryFeeding, ActionOptions{FeedingKind: models.FeedingBreastLeft})
	require.NoError(t, err)

	stopped, err := svc.StopAction(ctx, profileID, models.CategoryFeeding)
	require.NoError(t, err)
	assert.Equal(t, started.ID, stopped.ID)
	assert.False(t, stopped.Open())
}

func TestFlushPersistsCoalescedEdits(t *testing.T) {
	svc, repos, ctx := newActionFixture(t)
	profileID := uuid.New()

	a, err := svc.StartAction(ctx, profileID, models.CategorySleep, ActionOptions{})
	require.NoError(t, err)

	// Not yet in the store: edits sit in the dirty set until flushed.
	_, err = repos.Actions.GetByID(ctx, a.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	// But reads already see it through the overlay.
	state, err := svc.ActionState(ctx, profileID)
	require.NoError(t, err)
	assert.NotNil(t, state.Lookup(a.ID))

	require.NoError(t, svc.Flush(ctx))

	got, err := repos.Actions.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
}

func TestUpdateActionBumpsUpdatedAt(t *testing.T) {
	svc, _, ctx := newActionFixture(t)
	profileID := uuid.New()

	a, err := svc.StartAction(ctx, profileID, models.CategoryFeeding, ActionOptions{})
	require.NoError(t, err)

	volume := 90.0
	updated, err := svc.UpdateAction(ctx, a.ID, func(a *models.BabyAction) {
		a.BottleVolumeML = &volume
	})
	require.NoError(t, err)
	require.NotNil(t, updated.BottleVolumeML)
	assert.Equal(t, 90.0, *updated.BottleVolumeML)
	assert.False(t, updated.UpdatedAt.Before(a.UpdatedAt))
}

func TestDeleteActionBypassesCoalescing(t *testing.T) {
	svc, repos, ctx := newActionFixture(t)
	profileID := uuid.New()

	a, err := svc.StartAction(ctx, profileID, models.CategorySleep, ActionOptions{})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAction(ctx, a.ID))

	// A later flush must not resurrect the deleted action from a stale
	// dirty copy.
	require.NoError(t, svc.Flush(ctx))
	_, err = repos.Actions.GetByID(ctx, a.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	state, err := svc.ActionState(ctx, profileID)
	require.NoError(t, err)
	assert.Nil(t, state.Lookup(a.ID))
}

func TestApplyRemoteSkipsWhenLocalNewer(t *testing.T) {
	svc, _, ctx := newActionFixture(t)
	profileID := uuid.New()

	local, err := svc.StartAction(ctx, profileID, models.CategorySleep, ActionOptions{})
	require.NoError(t, err)

	remote := local.Clone()
	remote.UpdatedAt = local.UpdatedAt.Add(-time.Minute)
	end := remote.Start.Add(time.Hour)
	remote.End = &end

	applied, err := svc.ApplyRemote(ctx, remote)
	require.NoError(t, err)
	assert.False(t, applied)

	state, err := svc.ActionState(ctx, profileID)
	require.NoError(t, err)
	assert.True(t, state.Lookup(local.ID).Open())
}

func TestApplyRemoteAppliesWhenRemoteNewer(t *testing.T) {
	svc, _, ctx := newActionFixture(t)
	profileID := uuid.New()

	local, err := svc.StartAction(ctx, profileID, models.CategorySleep, ActionOptions{})
	require.NoError(t, err)

	remote := local.Clone()
	end := remote.Start.Add(time.Hour)
	remote.End = &end
	remote.UpdatedAt = local.UpdatedAt.Add(time.Minute)

	applied, err := svc.ApplyRemote(ctx, remote)
	require.NoError(t, err)
	assert.True(t, applied)

	state, err := svc.ActionState(ctx, profileID)
	require.NoError(t, err)
	assert.False(t, state.Lookup(local.ID).Open())
}

func TestOnChangeFiresOnMutations(t *testing.T) {
	svc, _, ctx := newActionFixture(t)
	profileID := uuid.New()

	var changes int
	svc.OnChange(func() { changes++ })

	a, err := svc.StartAction(ctx, profileID, models.CategorySleep, ActionOptions{})
	require.NoError(t, err)
	_, err = svc.StopAction(ctx, profileID, models.CategorySleep)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteAction(ctx, a.ID))

	assert.Equal(t, 3, changes)
}

func TestObserverMayReadBackIntoService(t *testing.T) {
	svc, _, ctx := newActionFixture(t)
	profileID := uuid.New()

	var reads int
	svc.OnChange(func() {
		if _, err := svc.ActionState(ctx, profileID); err == nil {
			reads++
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := svc.StartAction(ctx, profileID, models.CategorySleep, ActionOptions{})
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("StartAction did not return while the observer read service state")
	}
	assert.Equal(t, 1, reads)
}
