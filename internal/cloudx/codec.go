package cloudx

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/cradlekeeper/internal/models"
)

// Timestamps are written RFC3339 at second precision: that is what the
// backend stores, and the merge tolerance in internal/merge absorbs the
// truncation.
const timeLayout = time.RFC3339

// EncodeProfile maps a profile to its remote record.
func EncodeProfile(p *models.ChildProfile) (*Record, error) {
	fields := map[string]any{
		"name":             p.Name,
		"birthDate":        p.BirthDate.UTC().Format(timeLayout),
		"remindersEnabled": p.RemindersEnabled,
		"updatedAt":        p.UpdatedAt.UTC().Format(timeLayout),
	}
	if len(p.Avatar) > 0 {
		fields["avatar"] = base64.StdEncoding.EncodeToString(p.Avatar)
	}
	if len(p.ReminderSettings) > 0 {
		b, err := json.Marshal(p.ReminderSettings)
		if err != nil {
			return nil, fmt.Errorf("failed to encode reminder settings: %w", err)
		}
		fields["reminderSettings"] = string(b)
	}

	return &Record{
		RecordName: ProfileRecordName(p.ID),
		Type:       TypeProfile,
		Zone:       ZoneName(p.ID),
		Fields:     fields,
		ModifiedAt: p.UpdatedAt.UTC().Truncate(time.Second),
	}, nil
}

// EncodeAction maps an action to its remote record, placed in the owning
// profile's zone.
func EncodeAction(a *models.BabyAction) *Record {
	fields := map[string]any{
		"profileID": a.ProfileID.String(),
		"category":  string(a.Category),
		"start":     a.Start.UTC().Format(timeLayout),
		"updatedAt": a.UpdatedAt.UTC().Format(timeLayout),
	}
	if a.End != nil {
		fields["end"] = a.End.UTC().Format(timeLayout)
	}
	if a.DiaperKind != "" {
		fields["diaperKind"] = string(a.DiaperKind)
	}
	if a.FeedingKind != "" {
		fields["feedingKind"] = string(a.FeedingKind)
	}
	if a.BottleKind != "" {
		fields["bottleKind"] = string(a.BottleKind)
	}
	if a.BottleVolumeML != nil {
		fields["bottleVolumeML"] = *a.BottleVolumeML
	}
	if a.Location != nil {
		fields["latitude"] = a.Location.Latitude
		fields["longitude"] = a.Location.Longitude
		if a.Location.PlaceName != "" {
			fields["placeName"] = a.Location.PlaceName
		}
	}

	return &Record{
		RecordName: ActionRecordName(a.ID),
		Type:       TypeAction,
		Zone:       ZoneName(a.ProfileID),
		Fields:     fields,
		ModifiedAt: a.UpdatedAt.UTC().Truncate(time.Second),
	}
}

// DecodeProfile merges a profile record into base (a clone of the local
// entity, or nil when the record is a new insert). Only fields present
// on the record overwrite; the local UpdatedAt is set to the record's
// modification time.
func DecodeProfile(rec *Record, base *models.ChildProfile) (*models.ChildProfile, error) {
	if !typeMatches(rec.Type, profileTypeAliases) {
		return nil, fmt.Errorf("record %s: unexpected type %q", rec.RecordName, rec.Type)
	}
	kind, id, err := ParseRecordName(rec.RecordName)
	if err != nil {
		return nil, err
	}
	if kind != KindProfile {
		return nil, fmt.Errorf("record %s is not a profile record", rec.RecordName)
	}

	p := &models.ChildProfile{ID: id, ReminderSettings: map[models.ActionCategory]models.ReminderSetting{}, Permission: models.PermissionOwner}
	if base != nil {
		p = base.Clone()
	}

	if v, ok := stringField(rec.Fields, "name"); ok {
		p.Name = v
	}
	if v, ok := timeField(rec.Fields, "birthDate"); ok {
		p.BirthDate = v
	}
	if v, ok := boolField(rec.Fields, "remindersEnabled"); ok {
		p.RemindersEnabled = v
	}
	if v, ok := stringField(rec.Fields, "avatar"); ok {
		avatar, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("record %s: invalid avatar payload: %w", rec.RecordName, err)
		}
		p.Avatar = avatar
	}
	if v, ok := stringField(rec.Fields, "reminderSettings"); ok {
		settings := map[models.ActionCategory]models.ReminderSetting{}
		if err := json.Unmarshal([]byte(v), &settings); err != nil {
			return nil, fmt.Errorf("record %s: invalid reminder settings: %w", rec.RecordName, err)
		}
		p.ReminderSettings = settings
	}

	p.UpdatedAt = rec.ModifiedAt.UTC()
	return p, nil
}

// DecodeAction merges an action record into base (a clone of the local
// entity, or nil for a new insert), overwriting only present fields.
func DecodeAction(rec *Record, base *models.BabyAction) (*models.BabyAction, error) {
	if !typeMatches(rec.Type, actionTypeAliases) {
		return nil, fmt.Errorf("record %s: unexpected type %q", rec.RecordName, rec.Type)
	}
	kind, id, err := ParseRecordName(rec.RecordName)
	if err != nil {
		return nil, err
	}
	if kind != KindAction {
		return nil, fmt.Errorf("record %s is not an action record", rec.RecordName)
	}

	a := &models.BabyAction{ID: id}
	if base != nil {
		a = base.Clone()
	}

	if v, ok := stringField(rec.Fields, "profileID"); ok {
		pid, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("record %s: invalid profile id: %w", rec.RecordName, err)
		}
		a.ProfileID = pid
	} else if base == nil {
		// New inserts without an explicit owner fall back to the zone.
		pid, err := ProfileIDFromZone(rec.Zone)
		if err != nil {
			return nil, fmt.Errorf("record %s: no owning profile: %w", rec.RecordName, err)
		}
		a.ProfileID = pid
	}

	if v, ok := stringField(rec.Fields, "category"); ok {
		a.Category = models.ActionCategory(v)
	}
	if v, ok := timeField(rec.Fields, "start"); ok {
		a.Start = v
	}
	if v, ok := timeField(rec.Fields, "end"); ok {
		a.End = &v
	}
	if v, ok := stringField(rec.Fields, "diaperKind"); ok {
		a.DiaperKind = models.DiaperKind(v)
	}
	if v, ok := stringField(rec.Fields, "feedingKind"); ok {
		a.FeedingKind = models.FeedingKind(v)
	}
	if v, ok := stringField(rec.Fields, "bottleKind"); ok {
		a.BottleKind = models.BottleKind(v)
	}
	if v, ok := floatField(rec.Fields, "bottleVolumeML"); ok {
		a.BottleVolumeML = &v
	}
	if lat, ok := floatField(rec.Fields, "latitude"); ok {
		if lon, ok := floatField(rec.Fields, "longitude"); ok {
			place, _ := stringField(rec.Fields, "placeName")
			a.Location = &models.GeoPoint{Latitude: lat, Longitude: lon, PlaceName: place}
		}
	}

	a.UpdatedAt = rec.ModifiedAt.UTC()
	return a, nil
}

func stringField(fields map[string]any, name string) (string, bool) {
	v, ok := lookupField(fields, name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func timeField(fields map[string]any, name string) (time.Time, bool) {
	s, ok := stringField(fields, name)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func boolField(fields map[string]any, name string) (bool, bool) {
	v, ok := lookupField(fields, name)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// floatField tolerates both float64 (JSON round-trip) and int values.
func floatField(fields map[string]any, name string) (float64, bool) {
	v, ok := lookupField(fields, name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
