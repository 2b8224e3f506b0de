package cloudx

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
	"github.com/dmitrijs2005/cradlekeeper/internal/services"
	"github.com/dmitrijs2005/cradlekeeper/internal/store"
)

// fakeRecordStore serves canned zone contents.
type fakeRecordStore struct {
	zones map[string][]*Record
	err   error
}

func (f *fakeRecordStore) EnsureZone(ctx context.Context, scope, zone string) error { return nil }
func (f *fakeRecordStore) DeleteZone(ctx context.Context, scope, zone string) error { return nil }
func (f *fakeRecordStore) ListZones(ctx context.Context, scope string) ([]string, error) {
	return nil, nil
}
func (f *fakeRecordStore) SaveRecords(ctx context.Context, scope string, records []*Record) error {
	return nil
}
func (f *fakeRecordStore) DeleteRecords(ctx context.Context, scope, zone string, recordNames []string) error {
	return nil
}

func (f *fakeRecordStore) FetchZoneRecords(ctx context.Context, scope, zone string) ([]*Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	records, ok := f.zones[zone]
	if !ok {
		return nil, ErrZoneNotFound
	}
	return records, nil
}

type bridgeFixture struct {
	bridge   *Bridge
	profiles *services.ProfileService
	actions  *services.ActionService
	remote   *fakeRecordStore
	ctx      context.Context
}

func newBridgeFixture(t *testing.T) *bridgeFixture {
	t.Helper()
	ctx := context.Background()
	repos, err := store.InitDatabase(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repos.DB.Close() })

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	profiles := services.NewProfileService(repos.Profiles, repos.Actions, logger)
	actions := services.NewActionService(repos.Actions, logger, time.Hour)
	t.Cleanup(func() { actions.Close(ctx) })

	remote := &fakeRecordStore{zones: map[string][]*Record{}}
	return &bridgeFixture{
		bridge:   NewBridge(profiles, actions, remote, logger),
		profiles: profiles,
		actions:  actions,
		remote:   remote,
		ctx:      ctx,
	}
}

func TestImportZoneSurfacesAbsence(t *testing.T) {
	f := newBridgeFixture(t)

	n, err := f.bridge.ImportZone(f.ctx, common.ScopePrivate, "profile-zone-"+uuid.NewString())
	assert.Zero(t, n)
	require.Error(t, err)
	assert.True(t, IsAbsence(err))
}

func TestImportZoneAppliesRecords(t *testing.T) {
	f := newBridgeFixture(t)

	p := models.NewChildProfile("Emma", time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC))
	profileRec, err := EncodeProfile(p)
	require.NoError(t, err)

	end := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	a := &models.BabyAction{
		ID: uuid.New(), ProfileID: p.ID, Category: models.CategorySleep,
		Start: end.Add(-time.Hour), End: &end, UpdatedAt: end,
	}
	zone := ZoneName(p.ID)
	f.remote.zones[zone] = []*Record{profileRec, EncodeAction(a)}

	n, err := f.bridge.ImportZone(f.ctx, common.ScopeShared, zone)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := f.profiles.Profile(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Emma", got.Name)

	state, err := f.actions.ActionState(f.ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, state.Lookup(a.ID))
}

// A record whose modification time is not later than the local copy is
// stale and ignored.
func TestApplyRecordsSkipsStaleRemote(t *testing.T) {
	f := newBridgeFixture(t)

	local, err := f.profiles.CreateProfile(f.ctx, "Emma", time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	stale := local.Clone()
	stale.Name = "Old Emma"
	stale.UpdatedAt = local.UpdatedAt.Add(-time.Hour)
	rec, err := EncodeProfile(stale)
	require.NoError(t, err)

	n, err := f.bridge.ApplyRecords(f.ctx, []*Record{rec})
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := f.profiles.Profile(f.ctx, local.ID)
	require.NoError(t, err)
	assert.Equal(t, "Emma", got.Name)
}

// One undecodable record is logged and skipped, not fatal for the batch.
func TestApplyRecordsSkipsBadRecord(t *testing.T) {
	f := newBridgeFixture(t)

	p := models.NewChildProfile("Emma", time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC))
	good, err := EncodeProfile(p)
	require.NoError(t, err)
	bad := &Record{RecordName: "widget-123", Type: "Widget"}

	n, err := f.bridge.ApplyRecords(f.ctx, []*Record{bad, good})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestApplyDeletesRoutesTombstones(t *testing.T) {
	f := newBridgeFixture(t)

	p, err := f.profiles.CreateProfile(f.ctx, "Emma", time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	a, err := f.actions.StartAction(f.ctx, p.ID, models.CategorySleep, services.ActionOptions{})
	require.NoError(t, err)
	require.NoError(t, f.actions.Flush(f.ctx))

	err = f.bridge.ApplyDeletes(f.ctx, []string{
		ActionRecordName(a.ID),
		"unparseable-tombstone",
		ActionRecordName(uuid.New()), // already gone, idempotent
	})
	require.NoError(t, err)

	state, err := f.actions.ActionState(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, state.Lookup(a.ID))
}

// Two devices edit the same action while apart; after each receives the
// other's record, every copy carries the later edit.
func TestTwoDeviceEditsConverge(t *testing.T) {
	devA := newBridgeFixture(t)
	devB := newBridgeFixture(t)

	profileID := uuid.New()
	base := time.Date(2026, 8, 29, 8, 0, 0, 0, time.UTC)
	original := &models.BabyAction{
		ID: uuid.New(), ProfileID: profileID, Category: models.CategorySleep,
		Start: base, UpdatedAt: base,
	}
	for _, dev := range []*bridgeFixture{devA, devB} {
		n, err := dev.bridge.ApplyRecords(dev.ctx, []*Record{EncodeAction(original)})
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}

	// Device B edits first, device A a few seconds later.
	endB := base.Add(30 * time.Minute)
	versionB := original.Clone()
	versionB.End = &endB
	versionB.UpdatedAt = base.Add(5 * time.Second)

	endA := base.Add(45 * time.Minute)
	versionA := original.Clone()
	versionA.End = &endA
	versionA.UpdatedAt = base.Add(10 * time.Second)

	nA, err := devA.bridge.ApplyRecords(devA.ctx, []*Record{EncodeAction(versionA)})
	require.NoError(t, err)
	require.Equal(t, 1, nA)
	nB, err := devB.bridge.ApplyRecords(devB.ctx, []*Record{EncodeAction(versionB)})
	require.NoError(t, err)
	require.Equal(t, 1, nB)

	// Cross-sync: each device receives the other's record.
	nA, err = devA.bridge.ApplyRecords(devA.ctx, []*Record{EncodeAction(versionB)})
	require.NoError(t, err)
	assert.Zero(t, nA, "older edit must not clobber the newer one")
	nB, err = devB.bridge.ApplyRecords(devB.ctx, []*Record{EncodeAction(versionA)})
	require.NoError(t, err)
	assert.Equal(t, 1, nB)

	for _, dev := range []*bridgeFixture{devA, devB} {
		state, err := dev.actions.ActionState(dev.ctx, profileID)
		require.NoError(t, err)
		got := state.Lookup(original.ID)
		require.NotNil(t, got)
		require.NotNil(t, got.End)
		assert.True(t, got.End.Equal(endA))
		assert.True(t, got.UpdatedAt.Equal(versionA.UpdatedAt))
	}
}
