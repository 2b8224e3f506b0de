package export

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/cradlekeeper/internal/common"
	"github.com/dmitrijs2005/cradlekeeper/internal/logging"
	"github.com/dmitrijs2005/cradlekeeper/internal/models"
	"github.com/dmitrijs2005/cradlekeeper/internal/services"
	"github.com/dmitrijs2005/cradlekeeper/internal/store"
)

func newFixture(t *testing.T) (*Service, *services.ProfileService, *services.ActionService) {
	t.Helper()
	ctx := context.Background()

	repos, err := store.InitDatabase(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repos.DB.Close() })

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	profileSvc := services.NewProfileService(repos.Profiles, repos.Actions, logger)
	actionSvc := services.NewActionService(repos.Actions, logger, time.Millisecond)
	return New(profileSvc, actionSvc, logger), profileSvc, actionSvc
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, srcProfiles, srcActions := newFixture(t)
	dst, dstProfiles, dstActions := newFixture(t)

	p, err := srcProfiles.CreateProfile(ctx, "Emma", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	volume := 120.0
	_, err = srcActions.StartAction(ctx, p.ID, models.CategoryFeeding, services.ActionOptions{
		FeedingKind:    models.FeedingBottle,
		BottleKind:     models.BottleFormula,
		BottleVolumeML: &volume,
	})
	require.NoError(t, err)
	_, err = srcActions.StopAction(ctx, p.ID, models.CategoryFeeding)
	require.NoError(t, err)
	require.NoError(t, srcActions.Flush(ctx))

	var buf bytes.Buffer
	require.NoError(t, src.Export(ctx, p.ID, &buf))

	imported, err := dst.Import(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, p.ID, imported.ID)

	got, err := dstProfiles.Profile(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Emma", got.Name)
	assert.True(t, got.BirthDate.Equal(p.BirthDate))

	state, err := dstActions.ActionState(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, state.History, 1)
	a := state.History[0]
	assert.Equal(t, models.CategoryFeeding, a.Category)
	assert.Equal(t, models.FeedingBottle, a.FeedingKind)
	require.NotNil(t, a.BottleVolumeML)
	assert.Equal(t, 120.0, *a.BottleVolumeML)
}

func TestImportDoesNotClobberNewerLocal(t *testing.T) {
	ctx := context.Background()
	svc, profiles, actions := newFixture(t)

	p, err := profiles.CreateProfile(ctx, "Emma", time.Now().AddDate(0, -2, 0))
	require.NoError(t, err)
	a, err := actions.StartAction(ctx, p.ID, models.CategoryDiaper, services.ActionOptions{DiaperKind: models.DiaperWet})
	require.NoError(t, err)
	require.NoError(t, actions.Flush(ctx))

	var buf bytes.Buffer
	require.NoError(t, svc.Export(ctx, p.ID, &buf))

	// Local edit after the export.
	_, err = actions.UpdateAction(ctx, a.ID, func(x *models.BabyAction) {
		x.DiaperKind = models.DiaperDirty
		x.UpdatedAt = time.Now().Add(time.Hour)
	})
	require.NoError(t, err)
	require.NoError(t, actions.Flush(ctx))

	_, err = svc.Import(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	state, err := actions.ActionState(ctx, p.ID)
	require.NoError(t, err)
	got := state.Lookup(a.ID)
	require.NotNil(t, got)
	assert.Equal(t, models.DiaperDirty, got.DiaperKind, "newer local edit survives import")
}

func TestImportRejectsNewerFormatVersion(t *testing.T) {
	svc, _, _ := newFixture(t)

	doc, err := json.Marshal(&Document{
		FormatVersion: FormatVersion + 1,
		Profile:       models.NewChildProfile("Emma", time.Now()),
	})
	require.NoError(t, err)

	_, err = svc.Import(context.Background(), bytes.NewReader(doc))
	assert.ErrorIs(t, err, common.ErrUnsupportedExportVersion)
}

func TestImportRejectsMissingProfile(t *testing.T) {
	svc, _, _ := newFixture(t)

	_, err := svc.Import(context.Background(), bytes.NewReader([]byte(`{"format_version":1}`)))
	assert.Error(t, err)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "Emma-Rose", sanitizeName("Emma Rose"))
	assert.Equal(t, "profile", sanitizeName(""))
	assert.Equal(t, "profile", sanitizeName("///"))
}
