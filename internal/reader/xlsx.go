package reader

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/couchcryptid/hazard-data-pipeline/internal/config"
	"github.com/couchcryptid/hazard-data-pipeline/internal/domain"
)

// XLSXReader reads incident spreadsheets. The first row of the selected sheet
// is the header.
type XLSXReader struct{}

func (r *XLSXReader) Read(ctx context.Context, src config.SourceConfig) ([]domain.RawRecord, Stats, error) {
	f, err := xlsx.OpenFile(src.Path)
	if err != nil {
		return nil, Stats{}, &domain.SourceUnavailableError{SourceID: src.ID, Err: err}
	}

	sheet, err := selectSheet(f, src.Sheet)
	if err != nil {
		return nil, Stats{}, &domain.SourceUnavailableError{SourceID: src.ID, Err: err}
	}
	if len(sheet.Rows) == 0 {
		return nil, Stats{}, &domain.SourceUnavailableError{
			SourceID: src.ID,
			Err:      eris.Errorf("sheet %q is empty", sheet.Name),
		}
	}

	header := rowToStrings(sheet.Rows[0])
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	ingestedAt := domain.Now()
	var records []domain.RawRecord
	var stats Stats

	for i, row := range sheet.Rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, Stats{}, err
		}

		cells := rowToStrings(row)
		if blankRow(cells) {
			continue
		}
		if len(cells) < len(header) {
			stats.Malformed++
			continue
		}

		// +2: one for the header row, one for 1-based spreadsheet rows.
		records = append(records, newRawRecord(src.ID, i+2, zipHeader(header, cells), ingestedAt))
		stats.Rows++
	}

	return records, stats, nil
}

func selectSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
