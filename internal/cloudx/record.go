// Package cloudx implements the cloud mirror bridge: translation between
// domain entities and remote keyed records, deterministic zone/record
// identity, and merge of inbound remote changes into the local store.
package cloudx

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/cradlekeeper/internal/common"
)

// Record is the remote representation of one entity: a bag of keyed
// fields plus identity and the server-side modification time.
type Record struct {
	// RecordName is the unique identifier inside the zone, derived from
	// the domain UUID (see ProfileRecordName / ActionRecordName).
	RecordName string `json:"record_name"`

	// Type is the remote record type. Readers must tolerate historical
	// aliases (see typeAliases).
	Type string `json:"type"`

	// Zone is the partition the record lives in.
	Zone string `json:"zone"`

	Fields map[string]any `json:"fields"`

	// ModifiedAt is the record's last-edited time as stored remotely.
	// The backend truncates to second precision.
	ModifiedAt time.Time `json:"modified_at"`
}

// RecordKind distinguishes the entity class a record name refers to.
type RecordKind int

const (
	KindUnknown RecordKind = iota
	KindProfile
	KindAction
)

// ZoneName derives the per-profile partition name.
func ZoneName(profileID uuid.UUID) string {
	return common.ZoneNamePrefix + profileID.String()
}

// ProfileIDFromZone recovers the profile UUID from a zone name. It is
// the fallback identifier derivation used when a share's root record is
// unavailable.
func ProfileIDFromZone(zone string) (uuid.UUID, error) {
	if !strings.HasPrefix(zone, common.ZoneNamePrefix) {
		return uuid.Nil, fmt.Errorf("zone %q does not match the profile partition convention", zone)
	}
	id, err := uuid.Parse(strings.TrimPrefix(zone, common.ZoneNamePrefix))
	if err != nil {
		return uuid.Nil, fmt.Errorf("zone %q carries an invalid profile id: %w", zone, err)
	}
	return id, nil
}

// IsProfileZone reports whether the zone name follows the profile
// partition naming convention.
func IsProfileZone(zone string) bool {
	_, err := ProfileIDFromZone(zone)
	return err == nil
}

// ProfileRecordName derives the record identifier for a profile.
func ProfileRecordName(id uuid.UUID) string {
	return common.ProfileRecordPrefix + id.String()
}

// ActionRecordName derives the record identifier for an action.
func ActionRecordName(id uuid.UUID) string {
	return common.ActionRecordPrefix + id.String()
}

// ParseRecordName resolves a record identifier back to its entity class
// and UUID, via prefix pattern matching. Inbound tombstones carry only
// the record name, so this is how deletions are routed.
func ParseRecordName(name string) (RecordKind, uuid.UUID, error) {
	for _, c := range []struct {
		prefix string
		kind   RecordKind
	}{
		{common.ActionRecordPrefix, KindAction},
		{common.ProfileRecordPrefix, KindProfile},
	} {
		if strings.HasPrefix(name, c.prefix) {
			id, err := uuid.Parse(strings.TrimPrefix(name, c.prefix))
			if err != nil {
				return KindUnknown, uuid.Nil, fmt.Errorf("record name %q carries an invalid id: %w", name, err)
			}
			return c.kind, id, nil
		}
	}
	return KindUnknown, uuid.Nil, fmt.Errorf("record name %q matches no known prefix", name)
}
