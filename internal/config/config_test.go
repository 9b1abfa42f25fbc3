package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
sources:
  - id: usgs-quakes
    format: csv
    path: testdata/quakes.csv
    mapping:
      type: event_type
      lat: latitude
      lon: longitude
      observed_at: time
      magnitude: mag
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 500.0, cfg.Merge.SpatialThresholdM)
	assert.Equal(t, 6*time.Hour, cfg.Merge.TemporalWindow)
	assert.Equal(t, "hazards.db", cfg.Store.Path)
	assert.False(t, cfg.Geocoding.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Geocoding.Timeout)
	assert.Equal(t, 1000, cfg.Geocoding.CacheSize)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "hazard-records", cfg.Kafka.Topic)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8, cfg.Pipeline.ResolverWorkers)
	assert.Equal(t, 10*time.Second, cfg.Pipeline.ShutdownTimeout)
}

func TestLoad_FullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
sources:
  - id: usgs-quakes
    format: csv
    path: data/quakes.csv
    mapping:
      type: event_type
      lat: latitude
      lon: longitude
      observed_at: time
      magnitude: mag
      magnitude_scale: 0.01
      description: place
  - id: regional-reports
    format: xlsx
    path: data/reports.xlsx
    sheet: Incidents
    allow_unknown_type: true
    mapping:
      type: Category
      address: Location
      observed_at: Reported
      timestamp_layout: "20060102"
      severity: Level
      defaults:
        description: regional incident report
merge:
  spatial_threshold_m: 250
  temporal_window: 12h
store:
  path: /var/lib/hazards/hazards.db
geocoding:
  enabled: true
  token: pk.test-token
  timeout: 2s
  cache_size: 50
kafka:
  brokers: [broker1:9092, broker2:9092]
  topic: merged-hazards
log:
  level: debug
  format: text
pipeline:
  resolver_workers: 4
`))
	require.NoError(t, err)

	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, "usgs-quakes", cfg.Sources[0].ID)
	assert.Equal(t, FormatCSV, cfg.Sources[0].Format)
	assert.Equal(t, 0.01, cfg.Sources[0].Mapping.MagnitudeScale)
	assert.Equal(t, "regional-reports", cfg.Sources[1].ID)
	assert.Equal(t, "Incidents", cfg.Sources[1].Sheet)
	assert.True(t, cfg.Sources[1].AllowUnknownType)
	assert.Equal(t, "20060102", cfg.Sources[1].Mapping.TimestampLayout)
	assert.Equal(t, "regional incident report", cfg.Sources[1].Mapping.Defaults["description"])

	assert.Equal(t, 250.0, cfg.Merge.SpatialThresholdM)
	assert.Equal(t, 12*time.Hour, cfg.Merge.TemporalWindow)
	assert.Equal(t, "/var/lib/hazards/hazards.db", cfg.Store.Path)
	assert.True(t, cfg.Geocoding.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Geocoding.Timeout)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "merged-hazards", cfg.Kafka.Topic)
	assert.Equal(t, 4, cfg.Pipeline.ResolverWorkers)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no sources",
			yaml:    `store: {path: hazards.db}`,
			wantErr: "at least one source",
		},
		{
			name: "duplicate source ids",
			yaml: `
sources:
  - id: dup
    format: csv
    path: a.csv
    mapping: {type: t, lat: la, lon: lo, observed_at: ts}
  - id: dup
    format: csv
    path: b.csv
    mapping: {type: t, lat: la, lon: lo, observed_at: ts}
`,
			wantErr: "duplicate source id",
		},
		{
			name: "unrecognized format",
			yaml: `
sources:
  - id: s1
    format: parquet
    path: a.parquet
    mapping: {type: t, lat: la, lon: lo, observed_at: ts}
`,
			wantErr: "unrecognized format",
		},
		{
			name: "missing observed_at",
			yaml: `
sources:
  - id: s1
    format: csv
    path: a.csv
    mapping: {type: t, lat: la, lon: lo}
`,
			wantErr: "observed_at is required",
		},
		{
			name: "no type mapping or default",
			yaml: `
sources:
  - id: s1
    format: csv
    path: a.csv
    mapping: {lat: la, lon: lo, observed_at: ts}
`,
			wantErr: "mapping.type or defaults.type",
		},
		{
			name: "lat without lon",
			yaml: `
sources:
  - id: s1
    format: csv
    path: a.csv
    mapping: {type: t, lat: la, observed_at: ts, address: addr}
`,
			wantErr: "lat and lon must be mapped together",
		},
		{
			name: "no location mapping at all",
			yaml: `
sources:
  - id: s1
    format: csv
    path: a.csv
    mapping: {type: t, observed_at: ts}
`,
			wantErr: "lat+lon columns or an address column",
		},
		{
			name: "unknown default field",
			yaml: `
sources:
  - id: s1
    format: csv
    path: a.csv
    mapping:
      type: t
      lat: la
      lon: lo
      observed_at: ts
      defaults: {color: red}
`,
			wantErr: "unknown default field",
		},
		{
			name: "bad fixed type default",
			yaml: `
sources:
  - id: s1
    format: csv
    path: a.csv
    mapping:
      lat: la
      lon: lo
      observed_at: ts
      defaults: {type: meteor}
`,
			wantErr: "is not a hazard type",
		},
		{
			name: "geocoding enabled without token",
			yaml: minimalYAML + `
geocoding:
  enabled: true
`,
			wantErr: "geocoding.token",
		},
		{
			name: "nonpositive spatial threshold",
			yaml: minimalYAML + `
merge:
  spatial_threshold_m: 0
`,
			wantErr: "spatial_threshold_m",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSourceByID(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	src, err := cfg.SourceByID("usgs-quakes")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, src.Format)

	_, err = cfg.SourceByID("nope")
	require.Error(t, err)
}
