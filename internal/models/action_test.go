package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionCategoryValid(t *testing.T) {
	for _, c := range Categories {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, ActionCategory("bath").Valid())
	assert.False(t, ActionCategory("").Valid())
}

func TestActionCategoryInstant(t *testing.T) {
	assert.True(t, CategoryDiaper.Instant())
	assert.False(t, CategorySleep.Instant())
	assert.False(t, CategoryFeeding.Instant())
}

func TestBabyActionOpenClose(t *testing.T) {
	a := &BabyAction{ID: uuid.New(), Category: CategorySleep, Start: time.Now()}
	require.True(t, a.Open())

	before := a.UpdatedAt
	end := time.Now().Add(time.Hour)
	a.Close(end)

	assert.False(t, a.Open())
	require.NotNil(t, a.End)
	assert.True(t, a.End.Equal(end.UTC()))
	assert.True(t, a.UpdatedAt.After(before))
}

func TestBabyActionCloneIsDeep(t *testing.T) {
	end := time.Now()
	volume := 90.0
	a := &BabyAction{
		ID:             uuid.New(),
		Category:       CategoryFeeding,
		Start:          end.Add(-10 * time.Minute),
		End:            &end,
		FeedingKind:    FeedingBottle,
		BottleVolumeML: &volume,
		Location:       &GeoPoint{Latitude: 1, Longitude: 2, PlaceName: "home"},
	}

	c := a.Clone()
	require.Equal(t, a, c)

	*c.End = c.End.Add(time.Hour)
	*c.BottleVolumeML = 200
	c.Location.PlaceName = "park"

	assert.True(t, a.End.Equal(end))
	assert.Equal(t, 90.0, *a.BottleVolumeML)
	assert.Equal(t, "home", a.Location.PlaceName)
}

func TestProfileCloneIsDeep(t *testing.T) {
	p := NewChildProfile("Emma", time.Now())
	p.Avatar = []byte{1, 2, 3}
	p.ReminderSettings[CategorySleep] = ReminderSetting{Enabled: true, Interval: time.Hour}

	c := p.Clone()
	c.Avatar[0] = 9
	c.ReminderSettings[CategorySleep] = ReminderSetting{Enabled: false}

	assert.Equal(t, byte(1), p.Avatar[0])
	assert.True(t, p.ReminderSettings[CategorySleep].Enabled)
}

func TestSharePermissionCanEdit(t *testing.T) {
	assert.True(t, PermissionOwner.CanEdit())
	assert.True(t, PermissionReadWrite.CanEdit())
	assert.False(t, PermissionReadOnly.CanEdit())
}
