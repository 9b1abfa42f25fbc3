// Package domain models canonical hazard records and the rules that govern
// their integrity.
//
// # Data Sources
//
// Hazard reports arrive as heterogeneous tabular exports: CSV extracts from
// sensor networks, newline-delimited JSON feed dumps, and XLSX incident
// spreadsheets maintained by regional agencies. Each source names and encodes
// its columns differently; per-source field mappings in the configuration
// translate them onto the canonical schema before any record enters the
// pipeline proper.
//
// # Canonical Conventions
//
// Hazard types:
//
//	earthquake, volcano, flood, wildfire, storm, landslide
//	Sources using the legacy plural strings ("earthquakes", "volcanoes") are
//	accepted and normalized. Anything else is rejected unless the source is
//	configured to fall back to the "unknown" category.
//
// Coordinates:
//
//	WGS-84 decimal degrees. Latitude must lie in [-90, 90] and longitude in
//	[-180, 180]; records outside those bounds never reach the committed
//	dataset. Records carrying a free-text place name instead of coordinates
//	are resolved through the geocoding collaborator.
//
// Timestamps:
//
//	Observed times are normalized to UTC. Sources may supply RFC 3339,
//	"2006-01-02 15:04:05", or the legacy compact "20060102" date form.
//
// Severity classification:
//
//	A four-level scale (minor, moderate, severe, extreme) either taken
//	directly from the source or derived from magnitude where thresholds are
//	well established:
//
//	  Earthquake: <4.0 minor | <5.5 moderate | <7.0 severe | ≥7.0 extreme (Richter)
//	  Storm wind: <50 mph minor | <74 mph moderate | <96 mph severe | ≥96 mph extreme
//
// # ID Generation
//
// Record IDs are deterministic SHA-256 hashes of type|lat|lon|observed-at.
// Reprocessing the same source rows yields the same IDs, which makes commits
// idempotent upserts and keeps identities stable across incremental runs.
// See [NewRecordID].
package domain
