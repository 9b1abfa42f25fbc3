package domain

import "fmt"

// SourceUnavailableError signals that an entire source could not be read.
// It is the only reader-stage error that aborts a pipeline run.
type SourceUnavailableError struct {
	SourceID string
	Err      error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.SourceID, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// NormalizationError marks a single record that could not be mapped onto the
// canonical schema. Per-record: logged, counted, never fatal.
type NormalizationError struct {
	SourceID string
	Line     int
	Reason   string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s line %d: %s", e.SourceID, e.Line, e.Reason)
}

// GeoError marks a single record whose location could not be validated or
// resolved. Per-record: the record is excluded, the run continues.
type GeoError struct {
	RecordID string
	Reason   string
}

func (e *GeoError) Error() string {
	return fmt.Sprintf("geo %s: %s", e.RecordID, e.Reason)
}

// CommitError signals that writing the run's dataset to the store failed.
// The transaction rolls back; the previously committed dataset and watermarks
// are untouched.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit: %v", e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// RejectionStage identifies the pipeline stage that rejected a record.
type RejectionStage string

const (
	StageRead      RejectionStage = "read"
	StageNormalize RejectionStage = "normalize"
	StageResolve   RejectionStage = "resolve"
)

// Rejection is one entry in a run's rejection report.
type Rejection struct {
	Stage    RejectionStage `json:"stage"`
	SourceID string         `json:"source_id,omitempty"`
	Line     int            `json:"line,omitempty"`
	RecordID string         `json:"record_id,omitempty"`
	Reason   string         `json:"reason"`
}
