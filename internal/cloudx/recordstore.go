package cloudx

import "context"

// RecordStore is the remote data plane: keyed records grouped into
// per-profile zones, each zone living in either the private or the
// shared scope.
type RecordStore interface {
	// EnsureZone creates the zone if it does not exist yet.
	EnsureZone(ctx context.Context, scope, zone string) error

	// DeleteZone removes the zone and everything in it.
	DeleteZone(ctx context.Context, scope, zone string) error

	// ListZones enumerates zone names in the scope.
	ListZones(ctx context.Context, scope string) ([]string, error)

	// SaveRecords writes the batch. Implementations report per-record
	// failures as a *PartialError.
	SaveRecords(ctx context.Context, scope string, records []*Record) error

	// FetchZoneRecords returns all records in the zone. A missing zone
	// yields ErrZoneNotFound.
	FetchZoneRecords(ctx context.Context, scope, zone string) ([]*Record, error)

	// DeleteRecords removes the named records from the zone. Missing
	// records are not an error; deletes are idempotent.
	DeleteRecords(ctx context.Context, scope, zone string, recordNames []string) error
}
