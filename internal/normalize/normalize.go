// Package normalize maps raw source rows onto the canonical hazard schema
// using per-source field mappings.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/hazard-data-pipeline/internal/config"
	"github.com/couchcryptid/hazard-data-pipeline/internal/domain"
)

// Normalizer applies one source's field mapping. Construct with New; a
// Normalizer is safe for concurrent use.
type Normalizer struct {
	src config.SourceConfig
}

// New creates a Normalizer for the given source configuration. The mapping is
// assumed valid; config.Load rejects broken mappings before a run starts.
func New(src config.SourceConfig) *Normalizer {
	return &Normalizer{src: src}
}

// Normalize converts a raw row into a canonical record. A failure returns a
// *domain.NormalizationError describing why the row was rejected; such errors
// are per-record and never abort the run.
func (n *Normalizer) Normalize(raw domain.RawRecord) (domain.HazardRecord, error) {
	m := n.src.Mapping

	typeValue := n.lookup(raw, m.Type, "type")
	hazardType, ok := domain.ParseHazardType(typeValue, n.src.AllowUnknownType)
	if !ok {
		return domain.HazardRecord{}, n.reject(raw, fmt.Sprintf("unrecognized hazard type %q", typeValue))
	}

	observedRaw := n.lookup(raw, m.ObservedAt, "")
	observedAt, err := n.parseObservedAt(observedRaw)
	if err != nil {
		return domain.HazardRecord{}, n.reject(raw, err.Error())
	}

	rec := domain.HazardRecord{
		Type:        hazardType,
		ObservedAt:  observedAt,
		Description: n.lookup(raw, m.Description, "description"),
		Address:     n.lookup(raw, m.Address, "address"),
		Sources:     []string{raw.SourceID},
		ProcessedAt: domain.Now(),
	}

	if m.Lat != "" {
		latRaw := n.lookup(raw, m.Lat, "")
		lonRaw := n.lookup(raw, m.Lon, "")
		if latRaw != "" || lonRaw != "" {
			lat, err := strconv.ParseFloat(strings.TrimSpace(latRaw), 64)
			if err != nil {
				return domain.HazardRecord{}, n.reject(raw, fmt.Sprintf("unparseable latitude %q", latRaw))
			}
			lon, err := strconv.ParseFloat(strings.TrimSpace(lonRaw), 64)
			if err != nil {
				return domain.HazardRecord{}, n.reject(raw, fmt.Sprintf("unparseable longitude %q", lonRaw))
			}
			rec.Lat, rec.Lon = lat, lon
		}
	}
	if !rec.HasCoordinates() && rec.Address == "" {
		return domain.HazardRecord{}, n.reject(raw, "no coordinates and no address")
	}

	magnitude, err := n.parseMagnitude(raw)
	if err != nil {
		return domain.HazardRecord{}, n.reject(raw, err.Error())
	}
	rec.Magnitude = magnitude

	severity := strings.ToLower(strings.TrimSpace(n.lookup(raw, m.Severity, "severity")))
	switch {
	case severity == "":
		rec.Severity = domain.DeriveSeverity(rec.Type, rec.Magnitude)
	case domain.ValidSeverity(severity):
		rec.Severity = severity
	default:
		return domain.HazardRecord{}, n.reject(raw, fmt.Sprintf("unrecognized severity %q", severity))
	}

	rec.ID = domain.NewRecordID(rec.Type, rec.Lat, rec.Lon, rec.ObservedAt)
	return rec, nil
}

// lookup reads a mapped column, falling back to the configured default for
// the canonical field. column == "" means the field is unmapped.
func (n *Normalizer) lookup(raw domain.RawRecord, column, defaultField string) string {
	if column != "" {
		if v := strings.TrimSpace(raw.Fields[column]); v != "" {
			return v
		}
	}
	if defaultField != "" {
		return n.src.Mapping.Defaults[defaultField]
	}
	return ""
}

func (n *Normalizer) parseObservedAt(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("missing observed_at")
	}
	if layout := n.src.Mapping.TimestampLayout; layout != "" {
		t, err := time.Parse(layout, value)
		if err != nil {
			return time.Time{}, fmt.Errorf("observed_at %q does not match layout %q", value, layout)
		}
		return t.UTC(), nil
	}
	t, err := domain.ParseTimestamp(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("observed_at: %v", err)
	}
	return t, nil
}

func (n *Normalizer) parseMagnitude(raw domain.RawRecord) (float64, error) {
	value := n.lookup(raw, n.src.Mapping.Magnitude, "magnitude")
	if value == "" || strings.EqualFold(value, "UNK") {
		return 0, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable magnitude %q", value)
	}
	if scale := n.src.Mapping.MagnitudeScale; scale != 0 {
		v *= scale
	}
	return v, nil
}

func (n *Normalizer) reject(raw domain.RawRecord, reason string) *domain.NormalizationError {
	return &domain.NormalizationError{
		SourceID: raw.SourceID,
		Line:     raw.Line,
		Reason:   reason,
	}
}
