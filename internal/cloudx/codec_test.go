package cloudx

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/cradlekeeper/internal/models"
)

func TestEncodeDecodeProfile(t *testing.T) {
	p := models.NewChildProfile("Emma", time.Date(2025, 3, 12, 8, 30, 0, 0, time.UTC))
	p.Avatar = []byte{0x89, 0x50}
	p.RemindersEnabled = true
	p.ReminderSettings[models.CategoryFeeding] = models.ReminderSetting{Enabled: true, Interval: 3 * time.Hour}

	rec, err := EncodeProfile(p)
	require.NoError(t, err)
	assert.Equal(t, TypeProfile, rec.Type)
	assert.Equal(t, ProfileRecordName(p.ID), rec.RecordName)
	assert.Equal(t, ZoneName(p.ID), rec.Zone)

	got, err := DecodeProfile(rec, nil)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "Emma", got.Name)
	assert.Equal(t, p.BirthDate, got.BirthDate)
	assert.Equal(t, p.Avatar, got.Avatar)
	assert.True(t, got.RemindersEnabled)
	assert.Equal(t, p.ReminderSettings, got.ReminderSettings)

	// The backend stores second precision; UpdatedAt comes back truncated.
	assert.Equal(t, p.UpdatedAt.Truncate(time.Second), got.UpdatedAt)
}

func TestEncodeDecodeAction(t *testing.T) {
	volume := 120.0
	end := time.Date(2026, 8, 29, 9, 20, 0, 0, time.UTC)
	a := &models.BabyAction{
		ID:             uuid.New(),
		ProfileID:      uuid.New(),
		Category:       models.CategoryFeeding,
		Start:          time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC),
		End:            &end,
		FeedingKind:    models.FeedingBottle,
		BottleKind:     models.BottleFormula,
		BottleVolumeML: &volume,
		Location:       &models.GeoPoint{Latitude: 56.95, Longitude: 24.1, PlaceName: "home"},
		UpdatedAt:      time.Date(2026, 8, 29, 9, 21, 5, 0, time.UTC),
	}

	rec := EncodeAction(a)
	assert.Equal(t, TypeAction, rec.Type)
	assert.Equal(t, ZoneName(a.ProfileID), rec.Zone)

	got, err := DecodeAction(rec, nil)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, a.ProfileID, got.ProfileID)
	assert.Equal(t, models.CategoryFeeding, got.Category)
	assert.Equal(t, a.Start, got.Start)
	require.NotNil(t, got.End)
	assert.Equal(t, end, *got.End)
	require.NotNil(t, got.BottleVolumeML)
	assert.Equal(t, 120.0, *got.BottleVolumeML)
	require.NotNil(t, got.Location)
	assert.Equal(t, "home", got.Location.PlaceName)
}

// Records written by earlier releases carry different type and field
// names; decode must accept them.
func TestDecodeActionToleratesAliases(t *testing.T) {
	id := uuid.New()
	profileID := uuid.New()
	rec := &Record{
		RecordName: ActionRecordName(id),
		Type:       "BabyEvent",
		Zone:       ZoneName(profileID),
		Fields: map[string]any{
			"actionType":   "sleep",
			"startDate":    "2026-08-29T09:00:00Z",
			"endDate":      "2026-08-29T10:30:00Z",
			"bottleVolume": 90,
		},
		ModifiedAt: time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC),
	}

	got, err := DecodeAction(rec, nil)
	require.NoError(t, err)
	assert.Equal(t, models.CategorySleep, got.Category)
	assert.Equal(t, time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC), got.Start)
	require.NotNil(t, got.End)
	require.NotNil(t, got.BottleVolumeML)
	assert.Equal(t, 90.0, *got.BottleVolumeML)
	// No profileID field: the owning profile falls back to the zone.
	assert.Equal(t, profileID, got.ProfileID)
}

func TestDecodeProfileToleratesAliases(t *testing.T) {
	id := uuid.New()
	rec := &Record{
		RecordName: ProfileRecordName(id),
		Type:       "BabyProfile",
		Zone:       ZoneName(id),
		Fields: map[string]any{
			"babyName": "Emma",
			"birthday": "2025-03-12T00:00:00Z",
		},
		ModifiedAt: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
	}

	got, err := DecodeProfile(rec, nil)
	require.NoError(t, err)
	assert.Equal(t, "Emma", got.Name)
	assert.Equal(t, time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC), got.BirthDate)
}

// Decode only overwrites fields present on the record; everything else
// survives from the local base.
func TestDecodeMergesOntoBase(t *testing.T) {
	base := models.NewChildProfile("Emma", time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC))
	base.Avatar = []byte{1, 2, 3}
	base.RemindersEnabled = true

	rec := &Record{
		RecordName: ProfileRecordName(base.ID),
		Type:       TypeProfile,
		Zone:       ZoneName(base.ID),
		Fields:     map[string]any{"name": "Emma Rose"},
		ModifiedAt: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
	}

	got, err := DecodeProfile(rec, base)
	require.NoError(t, err)
	assert.Equal(t, "Emma Rose", got.Name)
	assert.Equal(t, []byte{1, 2, 3}, got.Avatar)
	assert.True(t, got.RemindersEnabled)
	assert.Equal(t, base.BirthDate, got.BirthDate)
	assert.Equal(t, rec.ModifiedAt, got.UpdatedAt)
}

func TestDecodeRejectsWrongType(t *testing.T) {
	id := uuid.New()

	_, err := DecodeProfile(&Record{RecordName: ProfileRecordName(id), Type: "Widget"}, nil)
	assert.Error(t, err)

	_, err = DecodeAction(&Record{RecordName: ActionRecordName(id), Type: "Widget"}, nil)
	assert.Error(t, err)

	// Kind and type must agree.
	_, err = DecodeProfile(&Record{RecordName: ActionRecordName(id), Type: TypeProfile}, nil)
	assert.Error(t, err)
}
