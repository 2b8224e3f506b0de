package share

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/cradlekeeper/internal/cloudx"
	"github.com/dmitrijs2005/cradlekeeper/internal/common"
	"github.com/dmitrijs2005/cradlekeeper/internal/logging"
	"github.com/dmitrijs2005/cradlekeeper/internal/models"
	"github.com/dmitrijs2005/cradlekeeper/internal/services"
	"github.com/dmitrijs2005/cradlekeeper/internal/store"
)

// fakeRecordStore records calls in memory and can be told to fail.
type fakeRecordStore struct {
	zones   map[string]map[string][]*cloudx.Record
	saved   int
	deleted int

	saveErr   error
	deleteErr error
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{zones: map[string]map[string][]*cloudx.Record{}}
}

func (f *fakeRecordStore) EnsureZone(ctx context.Context, scope, zone string) error {
	key := scope + "/" + zone
	if _, ok := f.zones[key]; !ok {
		f.zones[key] = map[string][]*cloudx.Record{}
	}
	return nil
}

func (f *fakeRecordStore) DeleteZone(ctx context.Context, scope, zone string) error {
	delete(f.zones, scope+"/"+zone)
	return nil
}

func (f *fakeRecordStore) ListZones(ctx context.Context, scope string) ([]string, error) {
	var out []string
	for key := range f.zones {
		if len(key) > len(scope) && key[:len(scope)] == scope {
			out = append(out, key[len(scope)+1:])
		}
	}
	return out, nil
}

func (f *fakeRecordStore) SaveRecords(ctx context.Context, scope string, records []*cloudx.Record) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved += len(records)
	return nil
}

func (f *fakeRecordStore) FetchZoneRecords(ctx context.Context, scope, zone string) ([]*cloudx.Record, error) {
	records, ok := f.zones[scope+"/"+zone]
	if !ok {
		return nil, cloudx.ErrZoneNotFound
	}
	var out []*cloudx.Record
	for _, rs := range records {
		out = append(out, rs...)
	}
	return out, nil
}

func (f *fakeRecordStore) DeleteRecords(ctx context.Context, scope, zone string, recordNames []string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted += len(recordNames)
	return nil
}

type coordinatorFixture struct {
	coord   *Coordinator
	repos   *store.Repositories
	actions *services.ActionService
	records *fakeRecordStore
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	return newCoordinatorFixtureWithControl(t, nil)
}

func newCoordinatorFixtureWithControl(t *testing.T, control *cloudx.ControlClient) *coordinatorFixture {
	t.Helper()
	ctx := context.Background()

	repos, err := store.InitDatabase(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repos.DB.Close() })

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	profileSvc := services.NewProfileService(repos.Profiles, repos.Actions, logger)
	actionSvc := services.NewActionService(repos.Actions, logger, time.Millisecond)
	records := newFakeRecordStore()

	bridge := cloudx.NewBridge(profileSvc, actionSvc, records, logger)
	coord := NewCoordinator(repos.Shares, profileSvc, actionSvc, bridge, records, control, []byte("secret"), logger)

	return &coordinatorFixture{coord: coord, repos: repos, actions: actionSvc, records: records}
}

func (f *coordinatorFixture) seedSharedProfile(t *testing.T, ctx context.Context) uuid.UUID {
	t.Helper()
	profileID := uuid.New()
	p := models.NewChildProfile("Emma", time.Now().AddDate(0, -3, 0))
	p.ID = profileID
	require.NoError(t, f.repos.Profiles.Upsert(ctx, p))

	sc := models.NewOwnedShareContext(profileID, cloudx.ZoneName(profileID), cloudx.ProfileRecordName(profileID), "share-rec")
	sc.Activate()
	require.NoError(t, f.repos.Shares.Upsert(ctx, sc))
	return profileID
}

func TestScheduleActionSync_NotShared(t *testing.T) {
	f := newCoordinatorFixture(t)

	err := f.coord.ScheduleActionSync(context.Background(), uuid.New())

	assert.ErrorIs(t, err, common.ErrNotShared)
}

func TestScheduleActionSync_PushesAndAdvancesBaseline(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture(t)
	profileID := f.seedSharedProfile(t, ctx)

	_, err := f.actions.StartAction(ctx, profileID, models.CategoryDiaper, services.ActionOptions{})
	require.NoError(t, err)
	require.NoError(t, f.actions.Flush(ctx))

	require.NoError(t, f.coord.ScheduleActionSync(ctx, profileID))
	assert.Equal(t, 1, f.records.saved)

	// The baseline advanced: an immediate second pass has nothing to do.
	require.NoError(t, f.coord.ScheduleActionSync(ctx, profileID))
	assert.Equal(t, 1, f.records.saved)
}

func TestScheduleActionSync_FailureDoesNotAdvanceBaseline(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture(t)
	profileID := f.seedSharedProfile(t, ctx)

	_, err := f.actions.StartAction(ctx, profileID, models.CategoryDiaper, services.ActionOptions{})
	require.NoError(t, err)
	require.NoError(t, f.actions.Flush(ctx))

	f.records.saveErr = errors.New("remote unavailable")
	require.Error(t, f.coord.ScheduleActionSync(ctx, profileID))

	// After the failure clears, the same delta is retried in full.
	f.records.saveErr = nil
	require.NoError(t, f.coord.ScheduleActionSync(ctx, profileID))
	assert.Equal(t, 1, f.records.saved)
}

func TestScheduleActionSync_DeleteFailureDoesNotAdvanceBaseline(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture(t)
	profileID := f.seedSharedProfile(t, ctx)

	a, err := f.actions.StartAction(ctx, profileID, models.CategoryDiaper, services.ActionOptions{})
	require.NoError(t, err)
	require.NoError(t, f.actions.Flush(ctx))
	require.NoError(t, f.coord.ScheduleActionSync(ctx, profileID))

	require.NoError(t, f.actions.DeleteAction(ctx, a.ID))

	f.records.deleteErr = errors.New("remote unavailable")
	require.Error(t, f.coord.ScheduleActionSync(ctx, profileID))
	assert.Zero(t, f.records.deleted)

	f.records.deleteErr = nil
	require.NoError(t, f.coord.ScheduleActionSync(ctx, profileID))
	assert.Equal(t, 1, f.records.deleted)
}

func TestPendingCount(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture(t)
	profileID := f.seedSharedProfile(t, ctx)

	assert.Zero(t, f.coord.PendingCount(ctx))

	_, err := f.actions.StartAction(ctx, profileID, models.CategoryDiaper, services.ActionOptions{})
	require.NoError(t, err)
	require.NoError(t, f.actions.Flush(ctx))

	assert.Equal(t, 1, f.coord.PendingCount(ctx))

	require.NoError(t, f.coord.ScheduleActionSync(ctx, profileID))
	assert.Zero(t, f.coord.PendingCount(ctx))
}

// A participant whose zone has vanished was revoked by the owner: the
// mirrored profile and its sharing state are purged on the next pass.
func TestSyncAll_ZoneAbsencePurgesRevokedParticipant(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture(t)

	profileID := uuid.New()
	p := models.NewChildProfile("Ben", time.Now().AddDate(0, -5, 0))
	p.ID = profileID
	p.Permission = models.PermissionReadWrite
	require.NoError(t, f.repos.Profiles.Upsert(ctx, p))

	sc := models.NewParticipantShareContext(profileID, cloudx.ZoneName(profileID), cloudx.ProfileRecordName(profileID))
	sc.Activate()
	require.NoError(t, f.repos.Shares.Upsert(ctx, sc))
	// The zone is deliberately absent from the record store.

	require.NoError(t, f.coord.SyncAll(ctx))

	_, err := f.repos.Shares.Get(ctx, profileID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = f.repos.Profiles.GetByID(ctx, profileID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRemoveParticipant_OwnerAlwaysPreserved(t *testing.T) {
	ctx := context.Background()

	var gotParticipants []models.Participant
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Participants []models.Participant `json:"participants"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotParticipants = body.Participants
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newCoordinatorFixtureWithControl(t, cloudx.NewControlClient(srv.URL, "t"))
	profileID := f.seedSharedProfile(t, ctx)

	sc, err := f.repos.Shares.Get(ctx, profileID)
	require.NoError(t, err)
	sc.Participants = []models.Participant{
		{UserID: "owner-1", Name: "Anna", Permission: models.PermissionOwner, IsOwner: true},
		{UserID: "guest-1", Name: "Ben", Permission: models.PermissionReadWrite},
	}
	require.NoError(t, f.repos.Shares.Upsert(ctx, sc))

	// Removing a guest works.
	require.NoError(t, f.coord.RemoveParticipant(ctx, profileID, "guest-1"))
	require.Len(t, gotParticipants, 1)
	assert.True(t, gotParticipants[0].IsOwner)

	// Naming the owner's own user id removes nobody.
	require.NoError(t, f.coord.RemoveParticipant(ctx, profileID, "owner-1"))
	require.Len(t, gotParticipants, 1)
	assert.Equal(t, "owner-1", gotParticipants[0].UserID)
}
