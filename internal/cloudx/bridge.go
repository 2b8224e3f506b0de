package cloudx

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/cradlekeeper/internal/common"
	"github.com/dmitrijs2005/cradlekeeper/internal/logging"
	"github.com/dmitrijs2005/cradlekeeper/internal/merge"
	"github.com/dmitrijs2005/cradlekeeper/internal/models"
	"github.com/dmitrijs2005/cradlekeeper/internal/services"
)

// Bridge merges inbound remote records into the local data model. All
// skip logic is "local newer wins": a record whose modification time is
// not later than the local UpdatedAt is treated as stale and ignored.
type Bridge struct {
	profiles *services.ProfileService
	actions  *services.ActionService
	store    RecordStore
	logger   logging.Logger
}

// NewBridge wires the bridge to the local services and the remote store.
func NewBridge(profiles *services.ProfileService, actions *services.ActionService, store RecordStore, logger logging.Logger) *Bridge {
	return &Bridge{profiles: profiles, actions: actions, store: store, logger: logger}
}

// ImportZone fetches every record in the zone and applies it. Absence
// conditions (no zone yet, user deleted it) surface as-is (see
// IsAbsence): whether a missing zone means "nothing to import yet" or a
// revoked share depends on the caller's role.
func (b *Bridge) ImportZone(ctx context.Context, scope, zone string) (int, error) {
	records, err := b.store.FetchZoneRecords(ctx, scope, zone)
	if err != nil {
		return 0, err
	}
	return b.ApplyRecords(ctx, records)
}

// ApplyRecords merges the batch, returning how many records actually
// changed local state. Individual undecodable records are logged and
// skipped; one bad record must not abort a whole import.
func (b *Bridge) ApplyRecords(ctx context.Context, records []*Record) (int, error) {
	applied := 0
	for _, rec := range records {
		ok, err := b.applyRecord(ctx, rec)
		if err != nil {
			b.logger.Warn(ctx, "skipping undecodable record",
				"record", rec.RecordName, "type", rec.Type, "error", err)
			continue
		}
		if ok {
			applied++
		}
	}
	return applied, nil
}

func (b *Bridge) applyRecord(ctx context.Context, rec *Record) (bool, error) {
	kind, id, err := ParseRecordName(rec.RecordName)
	if err != nil {
		return false, err
	}

	switch kind {
	case KindProfile:
		base, err := b.profiles.Profile(ctx, id)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return false, err
		}
		if base != nil && !merge.LocalIsStale(base.UpdatedAt, rec.ModifiedAt) {
			return false, nil
		}
		p, err := DecodeProfile(rec, base)
		if err != nil {
			return false, err
		}
		return b.profiles.ApplyRemote(ctx, p)

	case KindAction:
		var base *models.BabyAction
		state, err := b.actions.ActionState(ctx, zoneProfileOr(rec, id))
		if err == nil {
			base = state.Lookup(id)
		}
		if base != nil && !merge.LocalIsStale(base.UpdatedAt, rec.ModifiedAt) {
			return false, nil
		}
		a, err := DecodeAction(rec, base)
		if err != nil {
			return false, err
		}
		return b.actions.ApplyRemote(ctx, a)
	}

	return false, errors.New("unknown record kind")
}

// ApplyDeletes routes inbound tombstones, resolving each deleted record
// name to an action or profile deletion by prefix.
func (b *Bridge) ApplyDeletes(ctx context.Context, deletedRecordNames []string) error {
	for _, name := range deletedRecordNames {
		kind, id, err := ParseRecordName(name)
		if err != nil {
			b.logger.Warn(ctx, "skipping unrecognized tombstone", "record", name, "error", err)
			continue
		}
		switch kind {
		case KindAction:
			err = b.actions.ApplyRemoteDelete(ctx, id)
		case KindProfile:
			err = b.profiles.ApplyRemoteDelete(ctx, id)
		}
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
	}
	return nil
}

func zoneProfileOr(rec *Record, fallback uuid.UUID) uuid.UUID {
	if pid, err := ProfileIDFromZone(rec.Zone); err == nil {
		return pid
	}
	return fallback
}
