package reader

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/hazard-data-pipeline/internal/config"
	"github.com/couchcryptid/hazard-data-pipeline/internal/domain"
)

// NDJSONReader reads newline-delimited JSON feed exports: one flat object per
// line. Nested values are not supported; feeds export flat rows.
type NDJSONReader struct{}

func (r *NDJSONReader) Read(ctx context.Context, src config.SourceConfig) ([]domain.RawRecord, Stats, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, Stats{}, &domain.SourceUnavailableError{SourceID: src.ID, Err: err}
	}
	defer f.Close()

	ingestedAt := domain.Now()
	var records []domain.RawRecord
	var stats Stats

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return nil, Stats{}, err
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var obj map[string]any
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			stats.Malformed++
			continue
		}

		fields := make(map[string]string, len(obj))
		for k, v := range obj {
			fields[k] = stringifyJSONValue(v)
		}

		records = append(records, newRawRecord(src.ID, line, fields, ingestedAt))
		stats.Rows++
	}

	if err := scanner.Err(); err != nil {
		return nil, Stats{}, &domain.SourceUnavailableError{SourceID: src.ID, Err: err}
	}
	return records, stats, nil
}

// stringifyJSONValue renders a decoded JSON scalar as the raw string form the
// normalizer expects. Numbers avoid exponent notation so "20240426" style
// dates survive.
func stringifyJSONValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
