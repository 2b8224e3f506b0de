package common

// Remote naming conventions. Zone and record names are derived
// deterministically from domain UUIDs so that every device computes the
// same identifiers without coordination.
const (
	// ZoneNamePrefix + profile UUID string names the per-profile remote
	// partition.
	ZoneNamePrefix = "profile-zone-"

	// Record name prefixes, scoped to a zone.
	ProfileRecordPrefix = "profile-"
	ActionRecordPrefix  = "action-"
)

// Well-known push-subscription identifiers, one per database scope.
const (
	PrivateSubscriptionID = "cradlekeeper-private-changes"
	SharedSubscriptionID  = "cradlekeeper-shared-changes"
)

// Remote database scopes.
const (
	ScopePrivate = "private"
	ScopeShared  = "shared"
)
