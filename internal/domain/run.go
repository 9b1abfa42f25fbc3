package domain

import "time"

// RunState tracks where a pipeline run is in its lifecycle.
type RunState string

const (
	RunStateIdle          RunState = "idle"
	RunStateReading       RunState = "reading"
	RunStateNormalizing   RunState = "normalizing"
	RunStateResolving     RunState = "resolving"
	RunStateDeduplicating RunState = "deduplicating"
	RunStateCommitting    RunState = "committing"
	RunStateSucceeded     RunState = "succeeded"
	RunStateFailed        RunState = "failed"
)

// RunSummary is the durable record of one pipeline run.
type RunSummary struct {
	RunID      string      `json:"run_id"`
	State      RunState    `json:"state"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	RowsRead   int         `json:"rows_read"`
	Skipped    int         `json:"skipped"`
	Normalized int         `json:"normalized"`
	Resolved   int         `json:"resolved"`
	Committed  int         `json:"committed"`
	Merged     int         `json:"merged"`
	Rejections []Rejection `json:"rejections,omitempty"`
	Error      string      `json:"error,omitempty"`
}
