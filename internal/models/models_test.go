package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultAccount(t *testing.T) {
	h := Host{}
	_, ok := h.DefaultAccount()
	assert.False(t, ok)

	h.Accounts = []CalendarAccount{{ID: "a"}, {ID: "b", IsDefault: true}}
	acc, ok := h.DefaultAccount()
	assert.True(t, ok)
	assert.Equal(t, "b", acc.ID)

	h.Accounts = []CalendarAccount{{ID: "a"}, {ID: "b"}}
	acc, _ = h.DefaultAccount()
	assert.Equal(t, "a", acc.ID)
}

func TestHostLocationFallsBack(t *testing.T) {
	assert.Equal(t, time.UTC, Host{}.Location(time.UTC))
	assert.Equal(t, time.UTC, Host{Timezone: "Not/AZone"}.Location(time.UTC))
	assert.Equal(t, "Europe/Berlin", Host{Timezone: "Europe/Berlin"}.Location(time.UTC).String())
}

func TestWindowValidate(t *testing.T) {
	s := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	assert.NoError(t, AvailabilityWindow{Start: s, End: s.Add(time.Hour)}.Validate())
	assert.Error(t, AvailabilityWindow{Start: s, End: s}.Validate())
	assert.Error(t, AvailabilityWindow{Start: s}.Validate())
}

func TestValidDuration(t *testing.T) {
	assert.True(t, ValidDuration(30))
	assert.False(t, ValidDuration(20))
}
