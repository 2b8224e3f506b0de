// Package common defines shared constants and sentinel errors used across
// CradleKeeper components. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Data-model invariant violations.
	ErrUnknownCategory   = errors.New("unknown action category")
	ErrActionAlreadyOpen = errors.New("an action of this category is already running")
	ErrActionNotOpen     = errors.New("action is not running")
	ErrReadOnlyProfile   = errors.New("profile is shared read-only")

	// Sharing lifecycle errors.
	ErrAlreadyShared = errors.New("profile is already shared")
	ErrNotShared     = errors.New("profile is not shared")
	ErrNotOwner      = errors.New("only the share owner may do this")

	// Sync coordinator errors.
	ErrSyncInFlight = errors.New("sync already in progress")

	// Export/import errors.
	ErrUnsupportedExportVersion = errors.New("unsupported export format version")
)
