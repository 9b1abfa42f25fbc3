package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// HazardType enumerates the recognized hazard categories.
type HazardType string

const (
	TypeEarthquake HazardType = "earthquake"
	TypeVolcano    HazardType = "volcano"
	TypeFlood      HazardType = "flood"
	TypeWildfire   HazardType = "wildfire"
	TypeStorm      HazardType = "storm"
	TypeLandslide  HazardType = "landslide"
	TypeUnknown    HazardType = "unknown"
)

// typeAliases maps accepted source spellings onto canonical hazard types.
// The plural forms are the legacy feed convention.
var typeAliases = map[string]HazardType{
	"earthquake":  TypeEarthquake,
	"earthquakes": TypeEarthquake,
	"volcano":     TypeVolcano,
	"volcanoes":   TypeVolcano,
	"flood":       TypeFlood,
	"floods":      TypeFlood,
	"wildfire":    TypeWildfire,
	"wildfires":   TypeWildfire,
	"storm":       TypeStorm,
	"storms":      TypeStorm,
	"landslide":   TypeLandslide,
	"landslides":  TypeLandslide,
}

// ParseHazardType normalizes a source-supplied type string. When the value is
// not recognized and allowUnknown is set, it maps to TypeUnknown; otherwise
// ok is false.
func ParseHazardType(value string, allowUnknown bool) (HazardType, bool) {
	key := strings.ToLower(strings.TrimSpace(value))
	if t, ok := typeAliases[key]; ok {
		return t, true
	}
	if allowUnknown {
		return TypeUnknown, true
	}
	return "", false
}

// Severity labels, ordered from least to most intense.
const (
	SeverityMinor    = "minor"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
	SeverityExtreme  = "extreme"
)

// ValidSeverity reports whether s is one of the four severity labels.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityMinor, SeverityModerate, SeveritySevere, SeverityExtreme:
		return true
	}
	return false
}

// RawRecord is a source row before normalization: raw column values tagged
// with their origin. It exists only for the duration of a pipeline run.
type RawRecord struct {
	SourceID   string
	Line       int // ordinal within the source, for rejection reporting
	Fields     map[string]string
	IngestedAt time.Time
}

// HazardRecord is the canonical, normalized unit of data committed to the
// shared store and read by the query API.
type HazardRecord struct {
	ID          string     `json:"id"`
	Type        HazardType `json:"type"`
	Lat         float64    `json:"lat"`
	Lon         float64    `json:"lon"`
	ObservedAt  time.Time  `json:"observed_at"`
	Severity    string     `json:"severity,omitempty"`
	Magnitude   float64    `json:"magnitude,omitempty"`
	Description string     `json:"description,omitempty"`

	// Address is the free-text place name supplied by sources that carry no
	// coordinates. Populated coordinates always take precedence.
	Address string `json:"address,omitempty"`

	// Sources is the ordered provenance list: every source identifier that
	// contributed to this record. Never empty for a committed record.
	Sources []string `json:"sources"`

	ProcessedAt time.Time `json:"processed_at"`
}

// HasCoordinates reports whether the record carries an explicit position.
// (0, 0) is treated as unset; no hazard source reports from the Gulf of Guinea.
func (r HazardRecord) HasCoordinates() bool {
	return r.Lat != 0 || r.Lon != 0
}

// ValidLatitude reports whether lat lies within WGS-84 bounds.
func ValidLatitude(lat float64) bool { return lat >= -90 && lat <= 90 }

// ValidLongitude reports whether lon lies within WGS-84 bounds.
func ValidLongitude(lon float64) bool { return lon >= -180 && lon <= 180 }

// NewRecordID produces a deterministic ID from the record's key fields.
// Deterministic IDs make store commits idempotent upserts and keep record
// identity stable when the same source data is reprocessed.
func NewRecordID(t HazardType, lat, lon float64, observedAt time.Time) string {
	input := fmt.Sprintf("%s|%.4f|%.4f|%s", t, lat, lon, observedAt.UTC().Format(time.RFC3339))
	hash := sha256.Sum256([]byte(input))
	short := hex.EncodeToString(hash[:8])
	if t == "" {
		return short
	}
	return string(t) + "-" + short
}

// DeriveSeverity maps magnitude to a severity label for hazard types with
// well-established intensity scales. Returns "" when magnitude is zero or no
// scale applies.
//
//   - earthquake: Richter magnitude (<4 minor, <5.5 moderate, <7 severe, else extreme)
//   - storm: sustained wind mph (<50 minor, <74 moderate, <96 severe, else extreme;
//     74 is the tropical-storm ceiling, 96 hurricane Cat 2)
func DeriveSeverity(t HazardType, magnitude float64) string {
	if magnitude == 0 {
		return ""
	}

	switch t {
	case TypeEarthquake:
		switch {
		case magnitude < 4.0:
			return SeverityMinor
		case magnitude < 5.5:
			return SeverityModerate
		case magnitude < 7.0:
			return SeveritySevere
		default:
			return SeverityExtreme
		}
	case TypeStorm:
		switch {
		case magnitude < 50:
			return SeverityMinor
		case magnitude < 74:
			return SeverityModerate
		case magnitude < 96:
			return SeveritySevere
		default:
			return SeverityExtreme
		}
	default:
		return ""
	}
}

// Timestamp layouts accepted from sources, tried in order. The compact
// YYYYMMDD form is the legacy feed date format.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"20060102",
}

// ParseTimestamp parses a source-supplied timestamp in any accepted layout,
// returning the time in UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
