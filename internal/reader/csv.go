package reader

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/couchcryptid/hazard-data-pipeline/internal/config"
	"github.com/couchcryptid/hazard-data-pipeline/internal/domain"
)

// CSVReader reads comma-separated source files. The first row is the header;
// column names come from it verbatim.
type CSVReader struct{}

func (r *CSVReader) Read(ctx context.Context, src config.SourceConfig) ([]domain.RawRecord, Stats, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, Stats{}, &domain.SourceUnavailableError{SourceID: src.ID, Err: err}
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1 // row width checked against the header below
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, Stats{}, &domain.SourceUnavailableError{
			SourceID: src.ID,
			Err:      eris.Wrap(err, "read csv header"),
		}
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	ingestedAt := domain.Now()
	var records []domain.RawRecord
	var stats Stats

	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, Stats{}, err
		}

		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// encoding/csv recovers at the next line; the bad row is skipped.
			stats.Malformed++
			continue
		}
		if len(row) < len(header) {
			stats.Malformed++
			continue
		}

		records = append(records, newRawRecord(src.ID, line, zipHeader(header, row), ingestedAt))
		stats.Rows++
	}

	return records, stats, nil
}
