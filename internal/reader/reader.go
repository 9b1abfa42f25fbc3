// Package reader loads raw hazard records from heterogeneous source files.
//
// Each reader variant handles one input format and produces the same
// in-memory representation: a slice of domain.RawRecord plus counts of rows
// seen and skipped. Readers are side-effect free and restartable; malformed
// individual rows are counted and skipped, while an unreachable or
// unparseable source fails the whole read with domain.SourceUnavailableError.
package reader

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/hazard-data-pipeline/internal/config"
	"github.com/couchcryptid/hazard-data-pipeline/internal/domain"
)

// Stats counts the rows handled while reading one source.
type Stats struct {
	Rows      int // rows successfully turned into RawRecords
	Malformed int // rows skipped as unparseable
}

// Reader produces RawRecords from one configured source.
type Reader interface {
	Read(ctx context.Context, src config.SourceConfig) ([]domain.RawRecord, Stats, error)
}

// ForFormat returns the reader implementation for a source format.
func ForFormat(format string) (Reader, error) {
	switch format {
	case config.FormatCSV:
		return &CSVReader{}, nil
	case config.FormatNDJSON:
		return &NDJSONReader{}, nil
	case config.FormatXLSX:
		return &XLSXReader{}, nil
	default:
		return nil, fmt.Errorf("no reader for format %q", format)
	}
}

// newRawRecord builds a RawRecord from a parsed row, stamping ingestion time
// from the injected clock.
func newRawRecord(sourceID string, line int, fields map[string]string, ingestedAt time.Time) domain.RawRecord {
	return domain.RawRecord{
		SourceID:   sourceID,
		Line:       line,
		Fields:     fields,
		IngestedAt: ingestedAt,
	}
}

// zipHeader maps a header row onto a data row, skipping empty header cells.
// Short rows leave trailing fields unset; extra cells beyond the header are
// dropped.
func zipHeader(header, row []string) map[string]string {
	fields := make(map[string]string, len(header))
	for i, name := range header {
		if name == "" || i >= len(row) {
			continue
		}
		fields[name] = row[i]
	}
	return fields
}
