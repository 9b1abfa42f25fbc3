package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHazardType(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		allowUnknown bool
		expected     HazardType
		ok           bool
	}{
		{"earthquake", "earthquake", false, TypeEarthquake, true},
		{"legacy plural earthquakes", "earthquakes", false, TypeEarthquake, true},
		{"legacy plural volcanoes", "volcanoes", false, TypeVolcano, true},
		{"flood", "flood", false, TypeFlood, true},
		{"uppercase accepted", "FLOOD", false, TypeFlood, true},
		{"surrounding whitespace", "  storm  ", false, TypeStorm, true},
		{"unrecognized rejected", "meteor", false, "", false},
		{"unrecognized with fallback", "meteor", true, TypeUnknown, true},
		{"empty rejected", "", false, "", false},
		{"empty with fallback", "", true, TypeUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := ParseHazardType(tt.input, tt.allowUnknown)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDeriveSeverity(t *testing.T) {
	tests := []struct {
		name      string
		typ       HazardType
		magnitude float64
		expected  string
	}{
		{"earthquake minor", TypeEarthquake, 3.2, SeverityMinor},
		{"earthquake moderate", TypeEarthquake, 4.8, SeverityModerate},
		{"earthquake severe", TypeEarthquake, 6.1, SeveritySevere},
		{"earthquake extreme", TypeEarthquake, 7.9, SeverityExtreme},
		{"earthquake edge case 4.0", TypeEarthquake, 4.0, SeverityModerate},
		{"earthquake edge case 7.0", TypeEarthquake, 7.0, SeverityExtreme},

		{"storm minor", TypeStorm, 40, SeverityMinor},
		{"storm moderate", TypeStorm, 60, SeverityModerate},
		{"storm severe", TypeStorm, 85, SeveritySevere},
		{"storm extreme", TypeStorm, 110, SeverityExtreme},
		{"storm edge case 74", TypeStorm, 74, SeveritySevere},

		{"zero magnitude", TypeEarthquake, 0, ""},
		{"no scale for floods", TypeFlood, 3.0, ""},
		{"no scale for unknown", TypeUnknown, 5.0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeriveSeverity(tt.typ, tt.magnitude))
		})
	}
}

func TestValidSeverity(t *testing.T) {
	assert.True(t, ValidSeverity("minor"))
	assert.True(t, ValidSeverity("extreme"))
	assert.False(t, ValidSeverity("catastrophic"))
	assert.False(t, ValidSeverity(""))
	assert.False(t, ValidSeverity("Minor"))
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Time
	}{
		{"rfc3339", "2024-04-26T15:10:00Z", time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)},
		{"rfc3339 with offset", "2024-04-26T10:10:00-05:00", time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)},
		{"space separated", "2024-04-26 15:10:00", time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)},
		{"date only", "2024-04-26", time.Date(2024, 4, 26, 0, 0, 0, 0, time.UTC)},
		{"legacy compact date", "20240426", time.Date(2024, 4, 26, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseTimestamp(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}

	t.Run("empty", func(t *testing.T) {
		_, err := ParseTimestamp("")
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseTimestamp("yesterday-ish")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unrecognized timestamp")
	})
}

func TestNewRecordID(t *testing.T) {
	observed := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)

	t.Run("includes type prefix", func(t *testing.T) {
		id := NewRecordID(TypeFlood, 40.0, -75.0, observed)
		assert.True(t, strings.HasPrefix(id, "flood-"))
	})

	t.Run("deterministic", func(t *testing.T) {
		id1 := NewRecordID(TypeEarthquake, 34.94, -95.77, observed)
		id2 := NewRecordID(TypeEarthquake, 34.94, -95.77, observed)
		assert.Equal(t, id1, id2)
	})

	t.Run("different inputs produce different IDs", func(t *testing.T) {
		id1 := NewRecordID(TypeFlood, 40.0, -75.0, observed)
		id2 := NewRecordID(TypeFlood, 40.0, -75.0, observed.Add(time.Minute))
		assert.NotEqual(t, id1, id2)
	})

	t.Run("timezone does not change identity", func(t *testing.T) {
		est := observed.In(time.FixedZone("EST", -5*3600))
		assert.Equal(t,
			NewRecordID(TypeFlood, 40.0, -75.0, observed),
			NewRecordID(TypeFlood, 40.0, -75.0, est),
		)
	})

	t.Run("empty type", func(t *testing.T) {
		id := NewRecordID("", 40.0, -75.0, observed)
		assert.NotEmpty(t, id)
		assert.False(t, strings.Contains(id, "-"))
	})
}

func TestCoordinateBounds(t *testing.T) {
	assert.True(t, ValidLatitude(0))
	assert.True(t, ValidLatitude(-90))
	assert.True(t, ValidLatitude(90))
	assert.False(t, ValidLatitude(90.001))
	assert.False(t, ValidLatitude(-91))

	assert.True(t, ValidLongitude(180))
	assert.True(t, ValidLongitude(-180))
	assert.False(t, ValidLongitude(200))
	assert.False(t, ValidLongitude(-180.5))
}

func TestHasCoordinates(t *testing.T) {
	assert.False(t, HazardRecord{}.HasCoordinates())
	assert.True(t, HazardRecord{Lat: 40.0}.HasCoordinates())
	assert.True(t, HazardRecord{Lon: -75.0}.HasCoordinates())
	assert.True(t, HazardRecord{Lat: 40.0, Lon: -75.0}.HasCoordinates())
}

func TestSetClock(t *testing.T) {
	t.Run("set custom clock", func(t *testing.T) {
		fixedTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		SetClock(clockwork.NewFakeClockAt(fixedTime))
		defer SetClock(nil)

		assert.Equal(t, fixedTime, Now())
	})

	t.Run("reset to real clock", func(t *testing.T) {
		SetClock(clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
		SetClock(nil)

		assert.True(t, time.Since(Now()) < time.Second)
	})
}
