package share

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/cradlekeeper/internal/cloudx"
	"github.com/dmitrijs2005/cradlekeeper/internal/common"
	"github.com/dmitrijs2005/cradlekeeper/internal/logging"
	"github.com/dmitrijs2005/cradlekeeper/internal/models"
	"github.com/dmitrijs2005/cradlekeeper/internal/services"
	"github.com/dmitrijs2005/cradlekeeper/internal/store/sharectx"
)

// UploadBatchSize caps how many records one save call may carry; the
// remote store rejects oversized batches.
const UploadBatchSize = 100

// Coordinator manages per-profile share topology and delta sync. All
// user-facing operations catch their own failures and surface a single
// displayable *OperationError; nothing else escapes.
type Coordinator struct {
	shares   sharectx.Repository
	profiles *services.ProfileService
	actions  *services.ActionService
	bridge   *cloudx.Bridge
	records  cloudx.RecordStore
	control  *cloudx.ControlClient
	logger   logging.Logger

	// secretKey signs share invitations.
	secretKey []byte
}

// NewCoordinator wires the sharing coordinator.
func NewCoordinator(
	shares sharectx.Repository,
	profiles *services.ProfileService,
	actions *services.ActionService,
	bridge *cloudx.Bridge,
	records cloudx.RecordStore,
	control *cloudx.ControlClient,
	secretKey []byte,
	logger logging.Logger,
) *Coordinator {
	return &Coordinator{
		shares:    shares,
		profiles:  profiles,
		actions:   actions,
		bridge:    bridge,
		records:   records,
		control:   control,
		secretKey: secretKey,
		logger:    logger,
	}
}

// scope returns the remote database scope a context's zone lives in:
// the owner's zones are in the private scope, accepted shares in the
// shared one.
func scope(sc *models.ShareContext) string {
	if sc.Role == models.RoleParticipant {
		return common.ScopeShared
	}
	return common.ScopePrivate
}

// EnsureContext returns the profile's share context, creating the
// remote zone, its root record and an unshared owner-role context on
// first use. Every owned profile mirrors to its private zone whether or
// not it is shared with anyone.
func (c *Coordinator) EnsureContext(ctx context.Context, profileID uuid.UUID) (*models.ShareContext, error) {
	sc, err := c.shares.Get(ctx, profileID)
	if err == nil {
		return sc, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	p, err := c.profiles.Profile(ctx, profileID)
	if err != nil {
		return nil, err
	}

	zone := cloudx.ZoneName(profileID)
	if err := c.records.EnsureZone(ctx, common.ScopePrivate, zone); err != nil {
		return nil, err
	}

	root, err := cloudx.EncodeProfile(p)
	if err != nil {
		return nil, err
	}
	if err := c.records.SaveRecords(ctx, common.ScopePrivate, []*cloudx.Record{root}); err != nil {
		return nil, err
	}

	sc = models.NewOwnedShareContext(profileID, zone, root.RecordName, "")
	sc.State = models.ShareStateUnshared
	if err := c.shares.Upsert(ctx, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// StartSharing creates the share object for the profile's zone and
// returns the presentable invitation. On success the recorded baseline
// is the current action snapshot, so the first delta push sends only
// actions that are genuinely new afterwards.
func (c *Coordinator) StartSharing(ctx context.Context, profileID uuid.UUID) (*Invitation, error) {
	sc, err := c.EnsureContext(ctx, profileID)
	if err != nil {
		return nil, operationError("Sharing failed", "Could not prepare the profile for sharing.", err)
	}
	if sc.State == models.ShareStateOwnedActive {
		return nil, operationError("Already shared", "This profile is already shared.", common.ErrAlreadyShared)
	}
	if sc.Role != models.RoleOwner {
		return nil, operationError("Not allowed", "Only the owner can share this profile.", common.ErrNotOwner)
	}

	sc.State = models.ShareStateOwnedPending
	if err := c.shares.Upsert(ctx, sc); err != nil {
		return nil, operationError("Sharing failed", "Could not record the share locally.", err)
	}

	info, err := c.control.CreateShare(ctx, sc.ZoneName, sc.RootRecordName)
	if err != nil {
		return nil, operationError("Sharing failed", "The share could not be created. Please try again.", err)
	}

	sc.ShareRecordName = info.ShareRecordName
	sc.Participants = info.Participants
	sc.State = models.ShareStateOwnedActive
	if err := c.shares.Upsert(ctx, sc); err != nil {
		return nil, operationError("Sharing failed", "Could not record the share locally.", err)
	}

	state, err := c.actions.ActionState(ctx, profileID)
	if err == nil {
		if err := c.shares.ReplaceBaseline(ctx, profileID, NextBaseline(state)); err != nil {
			c.logger.Warn(ctx, "failed to record share baseline", "profile_id", profileID, "error", err)
		}
	}

	p, err := c.profiles.Profile(ctx, profileID)
	name := ""
	if err == nil {
		name = p.Name
	}
	inv, err := NewInvitation(sc.ZoneName, sc.RootRecordName, name, models.PermissionReadWrite, c.secretKey)
	if err != nil {
		return nil, operationError("Sharing failed", "Could not build the invitation.", err)
	}
	return inv, nil
}

// StopSharing deletes the remote partition and forgets the local share
// context. There is no built-in retry; the user retries manually.
func (c *Coordinator) StopSharing(ctx context.Context, profileID uuid.UUID) error {
	sc, err := c.shares.Get(ctx, profileID)
	if err != nil {
		return operationError("Stop sharing failed", "This profile is not shared.", err)
	}
	if !sc.IsOwner() {
		return operationError("Not allowed", "Only the owner can stop sharing.", common.ErrNotOwner)
	}

	if err := c.control.DeleteShare(ctx, sc.ZoneName); err != nil {
		return operationError("Stop sharing failed", "The share could not be removed. Please try again.", err)
	}
	if err := c.records.DeleteZone(ctx, common.ScopePrivate, sc.ZoneName); err != nil {
		return operationError("Stop sharing failed", "The shared data could not be removed. Please try again.", err)
	}
	if err := c.shares.Delete(ctx, profileID); err != nil {
		return operationError("Stop sharing failed", "Could not update local sharing state.", err)
	}
	return nil
}

// RemoveParticipant rewrites the participant list without the target.
// The owner entry is preserved unconditionally.
func (c *Coordinator) RemoveParticipant(ctx context.Context, profileID uuid.UUID, userID string) error {
	sc, err := c.shares.Get(ctx, profileID)
	if err != nil {
		return operationError("Remove failed", "This profile is not shared.", err)
	}
	if !sc.IsOwner() {
		return operationError("Not allowed", "Only the owner can remove participants.", common.ErrNotOwner)
	}

	kept := make([]models.Participant, 0, len(sc.Participants))
	for _, p := range sc.Participants {
		if p.UserID == userID && !p.IsOwner {
			continue
		}
		kept = append(kept, p)
	}

	if err := c.control.SetParticipants(ctx, sc.ZoneName, kept); err != nil {
		return operationError("Remove failed", "The participant could not be removed. Please try again.", err)
	}

	sc.Participants = kept
	if err := c.shares.Upsert(ctx, sc); err != nil {
		return operationError("Remove failed", "Could not update local sharing state.", err)
	}
	return nil
}

// LeaveShare removes this device from a share it participates in and
// purges the locally mirrored data it is no longer entitled to.
func (c *Coordinator) LeaveShare(ctx context.Context, profileID uuid.UUID) error {
	sc, err := c.shares.Get(ctx, profileID)
	if err != nil {
		return operationError("Leave failed", "This profile is not shared with you.", err)
	}
	if sc.IsOwner() {
		return operationError("Not allowed", "The owner cannot leave their own share.", common.ErrNotOwner)
	}

	if err := c.control.LeaveShare(ctx, sc.ZoneName); err != nil {
		return operationError("Leave failed", "Could not leave the share. Please try again.", err)
	}

	if err := c.purgeLocal(ctx, profileID); err != nil {
		return operationError("Leave failed", "Could not remove the shared data locally.", err)
	}
	return nil
}

// RegisterAcceptedShare installs a participant context from accepted
// invitation claims. The owning profile ID comes from the root record
// or, failing that, from the partition name itself.
func (c *Coordinator) RegisterAcceptedShare(ctx context.Context, claims *InvitationClaims) error {
	profileID, err := resolveProfileID(claims)
	if err != nil {
		return operationError("Accept failed", "The invitation is not valid.", err)
	}

	sc, err := c.shares.Get(ctx, profileID)
	if err == nil && sc.Role == models.RoleOwner {
		// Accepting our own share is a no-op.
		return nil
	}
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return operationError("Accept failed", "Could not read local sharing state.", err)
	}

	sc = models.NewParticipantShareContext(profileID, claims.Zone, claims.RootRecord)
	sc.Activate()
	if err := c.shares.Upsert(ctx, sc); err != nil {
		return operationError("Accept failed", "Could not record the share locally.", err)
	}

	// First import happens on the next sync pass; record a placeholder
	// profile now so the UI can show the share immediately.
	placeholder := &models.ChildProfile{
		ID:         profileID,
		Name:       claims.ProfileName,
		Permission: claims.Permission,
	}
	if _, err := c.profiles.ApplyRemote(ctx, placeholder); err != nil {
		c.logger.Warn(ctx, "failed to record placeholder for accepted share", "profile_id", profileID, "error", err)
	}
	return nil
}

func resolveProfileID(claims *InvitationClaims) (uuid.UUID, error) {
	if claims.RootRecord != "" {
		kind, id, err := cloudx.ParseRecordName(claims.RootRecord)
		if err == nil && kind == cloudx.KindProfile {
			return id, nil
		}
	}
	return cloudx.ProfileIDFromZone(claims.Zone)
}

// ScheduleActionSync pushes the profile's delta: actions changed since
// the baseline, deletions for baseline entries gone locally. The
// baseline advances only after every upload and deletion succeeded, so
// a partial failure retries the same delta next time.
func (c *Coordinator) ScheduleActionSync(ctx context.Context, profileID uuid.UUID) error {
	sc, err := c.shares.Get(ctx, profileID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrNotShared
		}
		return err
	}

	state, err := c.actions.ActionState(ctx, profileID)
	if err != nil {
		return err
	}

	delta := ComputeDelta(state, sc.LastSynced)
	if delta.Empty() {
		return nil
	}

	records := make([]*cloudx.Record, 0, len(delta.Pending))
	for _, a := range delta.Pending {
		records = append(records, cloudx.EncodeAction(a))
	}
	for start := 0; start < len(records); start += UploadBatchSize {
		end := min(start+UploadBatchSize, len(records))
		if err := c.records.SaveRecords(ctx, scope(sc), records[start:end]); err != nil {
			return err
		}
	}

	if len(delta.Deleted) > 0 {
		names := make([]string, 0, len(delta.Deleted))
		for _, id := range delta.Deleted {
			names = append(names, cloudx.ActionRecordName(id))
		}
		if err := c.records.DeleteRecords(ctx, scope(sc), sc.ZoneName, names); err != nil {
			return err
		}
	}

	return c.shares.ReplaceBaseline(ctx, profileID, NextBaseline(state))
}

// PendingCount reports how many local changes await upload across all
// tracked profiles. It feeds the sync diagnostics surface.
func (c *Coordinator) PendingCount(ctx context.Context) int {
	contexts, err := c.shares.GetAll(ctx)
	if err != nil {
		return 0
	}
	total := 0
	for _, sc := range contexts {
		state, err := c.actions.ActionState(ctx, sc.ProfileID)
		if err != nil {
			continue
		}
		d := ComputeDelta(state, sc.LastSynced)
		total += len(d.Pending) + len(d.Deleted)
	}
	return total
}

// SyncAll runs one full pass: reconcile remote partitions, then pull
// and push every tracked profile. Recoverable remote conditions are
// absorbed; the first hard failure aborts the pass.
func (c *Coordinator) SyncAll(ctx context.Context) error {
	if err := c.Reconcile(ctx); err != nil && !cloudx.IsRecoverable(err) {
		return err
	}

	// Owned profiles always have a mirror context.
	owned, err := c.profiles.Profiles(ctx)
	if err != nil {
		return err
	}
	for _, p := range owned {
		if p.Permission != models.PermissionOwner {
			continue
		}
		if _, err := c.EnsureContext(ctx, p.ID); err != nil {
			if cloudx.IsRecoverable(err) {
				c.logger.Warn(ctx, "skipping profile mirror", "profile_id", p.ID, "error", err)
				continue
			}
			return err
		}
		// Keep the root profile record fresh.
		rec, err := cloudx.EncodeProfile(p)
		if err != nil {
			return err
		}
		if err := c.records.SaveRecords(ctx, common.ScopePrivate, []*cloudx.Record{rec}); err != nil && !cloudx.IsRecoverable(err) {
			return err
		}
	}

	contexts, err := c.shares.GetAll(ctx)
	if err != nil {
		return err
	}
	for _, sc := range contexts {
		if err := c.syncOne(ctx, sc); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) syncOne(ctx context.Context, sc *models.ShareContext) error {
	// Pull first so the push resolves against the freshest state.
	_, err := c.bridge.ImportZone(ctx, scope(sc), sc.ZoneName)
	if err != nil {
		switch {
		case cloudx.IsAbsence(err):
			if sc.Role == models.RoleParticipant {
				// The zone is gone: the owner revoked our access or
				// deleted the share. Purge what we are no longer
				// entitled to.
				return c.handleRevoked(ctx, sc)
			}
			// An owned zone not created yet means nothing to pull;
			// the push below establishes it.
		case cloudx.IsRecoverable(err):
			c.logger.Warn(ctx, "pull skipped", "zone", sc.ZoneName, "error", err)
			return nil
		default:
			return err
		}
	}

	// Participant zones can vanish between list and fetch; fetch
	// succeeding with zero records is still a valid (empty) zone.
	if sc.Role == models.RoleParticipant {
		if revoked, err := c.checkRevoked(ctx, sc); err == nil && revoked {
			return c.handleRevoked(ctx, sc)
		}
	}

	if sc.Role == models.RoleParticipant {
		p, err := c.profiles.Profile(ctx, sc.ProfileID)
		if err == nil && !p.Permission.CanEdit() {
			// View-only participants never push.
			return nil
		}
	}

	if err := c.ScheduleActionSync(ctx, sc.ProfileID); err != nil {
		if cloudx.IsRecoverable(err) {
			c.logger.Warn(ctx, "push skipped", "zone", sc.ZoneName, "error", err)
			return nil
		}
		return err
	}
	return nil
}

// checkRevoked asks the control plane whether this device still appears
// on the participant list.
func (c *Coordinator) checkRevoked(ctx context.Context, sc *models.ShareContext) (bool, error) {
	participants, err := c.control.Participants(ctx, sc.ZoneName)
	if err != nil {
		if cloudx.IsAbsence(err) {
			return true, nil
		}
		return false, err
	}
	sc.Participants = participants
	_ = c.shares.Upsert(ctx, sc)
	return false, nil
}

func (c *Coordinator) handleRevoked(ctx context.Context, sc *models.ShareContext) error {
	c.logger.Info(ctx, "share revoked, purging mirrored data", "profile_id", sc.ProfileID)
	return c.purgeLocal(ctx, sc.ProfileID)
}

// purgeLocal drops the share context and the mirrored profile data.
func (c *Coordinator) purgeLocal(ctx context.Context, profileID uuid.UUID) error {
	if err := c.shares.Delete(ctx, profileID); err != nil {
		return err
	}
	if err := c.profiles.ApplyRemoteDelete(ctx, profileID); err != nil && !errors.Is(err, common.ErrorNotFound) {
		return err
	}
	return nil
}

// Reconcile enumerates remote partitions in both scopes and lazily
// reconstructs contexts for profile zones not tracked locally. This
// recovers sharing state after a reinstall or on a new device.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	known := map[string]struct{}{}
	contexts, err := c.shares.GetAll(ctx)
	if err != nil {
		return err
	}
	for _, sc := range contexts {
		known[sc.ZoneName] = struct{}{}
	}

	for _, sc := range []struct {
		scope string
		role  models.ShareRole
	}{
		{common.ScopePrivate, models.RoleOwner},
		{common.ScopeShared, models.RoleParticipant},
	} {
		zones, err := c.records.ListZones(ctx, sc.scope)
		if err != nil {
			return err
		}
		for _, zone := range zones {
			if !cloudx.IsProfileZone(zone) {
				continue
			}
			if _, tracked := known[zone]; tracked {
				continue
			}
			profileID, err := cloudx.ProfileIDFromZone(zone)
			if err != nil {
				continue
			}

			var rebuilt *models.ShareContext
			if sc.role == models.RoleOwner {
				rebuilt = models.NewOwnedShareContext(profileID, zone, cloudx.ProfileRecordName(profileID), "")
				rebuilt.State = models.ShareStateUnshared
			} else {
				rebuilt = models.NewParticipantShareContext(profileID, zone, cloudx.ProfileRecordName(profileID))
				rebuilt.Activate()
			}
			if err := c.shares.Upsert(ctx, rebuilt); err != nil {
				return err
			}
			c.logger.Info(ctx, "reconstructed share context", "zone", zone, "role", sc.role)
		}
	}
	return nil
}
