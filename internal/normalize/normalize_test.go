package normalize_test

import (
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hazard-data-pipeline/internal/config"
	"github.com/couchcryptid/hazard-data-pipeline/internal/domain"
	"github.com/couchcryptid/hazard-data-pipeline/internal/normalize"
)

var quakeSource = config.SourceConfig{
	ID:     "usgs-quakes",
	Format: config.FormatCSV,
	Path:   "quakes.csv",
	Mapping: config.FieldMapping{
		Type:        "event_type",
		Lat:         "latitude",
		Lon:         "longitude",
		ObservedAt:  "time",
		Magnitude:   "mag",
		Description: "place",
	},
}

func rawRow(fields map[string]string) domain.RawRecord {
	return domain.RawRecord{
		SourceID:   "usgs-quakes",
		Line:       2,
		Fields:     fields,
		IngestedAt: time.Date(2024, 4, 26, 16, 0, 0, 0, time.UTC),
	}
}

func TestNormalize(t *testing.T) {
	fixedTime := time.Date(2024, 4, 26, 16, 30, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(fixedTime))
	defer domain.SetClock(nil)

	n := normalize.New(quakeSource)

	t.Run("full row", func(t *testing.T) {
		rec, err := n.Normalize(rawRow(map[string]string{
			"event_type": "earthquake",
			"latitude":   "34.96",
			"longitude":  "-95.77",
			"time":       "2024-04-26T12:23:00Z",
			"mag":        "4.8",
			"place":      "12km NE of McAlester, OK",
		}))

		require.NoError(t, err)
		assert.Equal(t, domain.TypeEarthquake, rec.Type)
		assert.Equal(t, 34.96, rec.Lat)
		assert.Equal(t, -95.77, rec.Lon)
		assert.Equal(t, time.Date(2024, 4, 26, 12, 23, 0, 0, time.UTC), rec.ObservedAt)
		assert.Equal(t, 4.8, rec.Magnitude)
		assert.Equal(t, domain.SeverityModerate, rec.Severity) // derived from magnitude
		assert.Equal(t, "12km NE of McAlester, OK", rec.Description)
		assert.Equal(t, []string{"usgs-quakes"}, rec.Sources)
		assert.Equal(t, fixedTime, rec.ProcessedAt)
		assert.True(t, strings.HasPrefix(rec.ID, "earthquake-"))
	})

	t.Run("deterministic ID", func(t *testing.T) {
		fields := map[string]string{
			"event_type": "earthquake",
			"latitude":   "34.96",
			"longitude":  "-95.77",
			"time":       "2024-04-26T12:23:00Z",
		}

		rec1, err := n.Normalize(rawRow(fields))
		require.NoError(t, err)
		rec2, err := n.Normalize(rawRow(fields))
		require.NoError(t, err)

		assert.Equal(t, rec1.ID, rec2.ID)
	})

	t.Run("legacy plural type", func(t *testing.T) {
		rec, err := n.Normalize(rawRow(map[string]string{
			"event_type": "earthquakes",
			"latitude":   "34.96",
			"longitude":  "-95.77",
			"time":       "20240426",
		}))

		require.NoError(t, err)
		assert.Equal(t, domain.TypeEarthquake, rec.Type)
		assert.Equal(t, time.Date(2024, 4, 26, 0, 0, 0, 0, time.UTC), rec.ObservedAt)
	})

	t.Run("unrecognized type rejected", func(t *testing.T) {
		_, err := n.Normalize(rawRow(map[string]string{
			"event_type": "meteor",
			"latitude":   "34.96",
			"longitude":  "-95.77",
			"time":       "2024-04-26T12:23:00Z",
		}))

		var rejected *domain.NormalizationError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, "usgs-quakes", rejected.SourceID)
		assert.Equal(t, 2, rejected.Line)
		assert.Contains(t, rejected.Reason, "unrecognized hazard type")
	})

	t.Run("UNK magnitude is unset", func(t *testing.T) {
		rec, err := n.Normalize(rawRow(map[string]string{
			"event_type": "earthquake",
			"latitude":   "34.96",
			"longitude":  "-95.77",
			"time":       "2024-04-26T12:23:00Z",
			"mag":        "UNK",
		}))

		require.NoError(t, err)
		assert.Equal(t, 0.0, rec.Magnitude)
		assert.Empty(t, rec.Severity)
	})

	t.Run("missing observed_at rejected", func(t *testing.T) {
		_, err := n.Normalize(rawRow(map[string]string{
			"event_type": "earthquake",
			"latitude":   "34.96",
			"longitude":  "-95.77",
		}))

		var rejected *domain.NormalizationError
		require.ErrorAs(t, err, &rejected)
		assert.Contains(t, rejected.Reason, "missing observed_at")
	})

	t.Run("unparseable coordinates rejected", func(t *testing.T) {
		_, err := n.Normalize(rawRow(map[string]string{
			"event_type": "earthquake",
			"latitude":   "north-ish",
			"longitude":  "-95.77",
			"time":       "2024-04-26T12:23:00Z",
		}))

		var rejected *domain.NormalizationError
		require.ErrorAs(t, err, &rejected)
		assert.Contains(t, rejected.Reason, "unparseable latitude")
	})

	t.Run("no coordinates and no address rejected", func(t *testing.T) {
		_, err := n.Normalize(rawRow(map[string]string{
			"event_type": "earthquake",
			"time":       "2024-04-26T12:23:00Z",
		}))

		var rejected *domain.NormalizationError
		require.ErrorAs(t, err, &rejected)
		assert.Contains(t, rejected.Reason, "no coordinates and no address")
	})

	t.Run("invalid severity rejected", func(t *testing.T) {
		src := quakeSource
		src.Mapping.Severity = "level"
		n := normalize.New(src)

		_, err := n.Normalize(rawRow(map[string]string{
			"event_type": "earthquake",
			"latitude":   "34.96",
			"longitude":  "-95.77",
			"time":       "2024-04-26T12:23:00Z",
			"level":      "catastrophic",
		}))

		var rejected *domain.NormalizationError
		require.ErrorAs(t, err, &rejected)
		assert.Contains(t, rejected.Reason, "unrecognized severity")
	})
}

func TestNormalize_AddressSource(t *testing.T) {
	src := config.SourceConfig{
		ID:               "regional-reports",
		Format:           config.FormatXLSX,
		Path:             "reports.xlsx",
		AllowUnknownType: true,
		Mapping: config.FieldMapping{
			Type:            "Category",
			Address:         "Location",
			ObservedAt:      "Reported",
			TimestampLayout: "20060102",
			Severity:        "Level",
			Defaults: map[string]string{
				"description": "regional incident report",
			},
		},
	}
	n := normalize.New(src)

	t.Run("address instead of coordinates", func(t *testing.T) {
		rec, err := n.Normalize(domain.RawRecord{
			SourceID: "regional-reports",
			Line:     3,
			Fields: map[string]string{
				"Category": "wildfire",
				"Location": "Paradise, CA",
				"Reported": "20240426",
				"Level":    "SEVERE",
			},
		})

		require.NoError(t, err)
		assert.False(t, rec.HasCoordinates())
		assert.Equal(t, "Paradise, CA", rec.Address)
		assert.Equal(t, domain.SeveritySevere, rec.Severity) // label case-folded
		assert.Equal(t, "regional incident report", rec.Description)
	})

	t.Run("unknown type falls back when configured", func(t *testing.T) {
		rec, err := n.Normalize(domain.RawRecord{
			SourceID: "regional-reports",
			Fields: map[string]string{
				"Category": "sinkhole",
				"Location": "Trenton, NJ",
				"Reported": "20240426",
			},
		})

		require.NoError(t, err)
		assert.Equal(t, domain.TypeUnknown, rec.Type)
	})

	t.Run("pinned layout rejects other formats", func(t *testing.T) {
		_, err := n.Normalize(domain.RawRecord{
			SourceID: "regional-reports",
			Fields: map[string]string{
				"Category": "flood",
				"Location": "Trenton, NJ",
				"Reported": "2024-04-26T12:00:00Z",
			},
		})

		var rejected *domain.NormalizationError
		require.ErrorAs(t, err, &rejected)
		assert.Contains(t, rejected.Reason, "does not match layout")
	})
}

func TestNormalize_UnitConversion(t *testing.T) {
	src := quakeSource
	src.Mapping.MagnitudeScale = 0.01
	n := normalize.New(src)

	rec, err := n.Normalize(rawRow(map[string]string{
		"event_type": "earthquake",
		"latitude":   "34.96",
		"longitude":  "-95.77",
		"time":       "2024-04-26T12:23:00Z",
		"mag":        "480", // hundredths
	}))

	require.NoError(t, err)
	assert.Equal(t, 4.8, rec.Magnitude)
}
