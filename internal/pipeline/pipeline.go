// Package pipeline orchestrates one ingestion run: read, normalize, resolve,
// deduplicate, commit.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/hazard-data-pipeline/internal/config"
	"github.com/couchcryptid/hazard-data-pipeline/internal/domain"
	"github.com/couchcryptid/hazard-data-pipeline/internal/normalize"
	"github.com/couchcryptid/hazard-data-pipeline/internal/observability"
	"github.com/couchcryptid/hazard-data-pipeline/internal/reader"
)

// ErrRunInProgress is returned by Run when another run holds the store.
var ErrRunInProgress = errors.New("a pipeline run is already in progress")

// Resolver validates coordinates and geocodes addresses.
type Resolver interface {
	Resolve(ctx context.Context, records []domain.HazardRecord) ([]domain.HazardRecord, []domain.Rejection, error)
}

// Merger deduplicates a batch of records.
type Merger interface {
	Merge(records []domain.HazardRecord) []domain.HazardRecord
}

// Store persists canonical records, watermarks, and run history.
type Store interface {
	Watermarks(ctx context.Context) (map[string]time.Time, error)
	RecordsInWindow(ctx context.Context, cutoff time.Time) ([]domain.HazardRecord, error)
	Commit(ctx context.Context, records []domain.HazardRecord, superseded []string, watermarks map[string]time.Time) error
	RecordRun(ctx context.Context, summary domain.RunSummary) error
}

// Publisher emits committed records downstream. May be nil when publishing
// is disabled.
type Publisher interface {
	PublishRecords(ctx context.Context, records []domain.HazardRecord) error
}

// Pipeline runs the ingestion state machine. At most one run is active at a
// time; concurrent Run calls fail fast with ErrRunInProgress.
type Pipeline struct {
	cfg       *config.Config
	resolver  Resolver
	merger    Merger
	store     Store
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics

	runMu   sync.Mutex
	lastRun atomic.Pointer[domain.RunSummary]
}

// New creates a Pipeline. publisher may be nil.
func New(cfg *config.Config, resolver Resolver, merger Merger, store Store, publisher Publisher, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		resolver:  resolver,
		merger:    merger,
		store:     store,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once a run has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	last := p.lastRun.Load()
	if last == nil {
		return errors.New("no pipeline run has completed yet")
	}
	if last.State != domain.RunStateSucceeded {
		return errors.New("most recent pipeline run failed: " + last.Error)
	}
	return nil
}

// LastRun returns the most recent run summary, or nil before the first run.
func (p *Pipeline) LastRun() *domain.RunSummary {
	return p.lastRun.Load()
}

// Run executes one full ingestion run and returns its summary. Per-record
// failures are collected as rejections; a returned error means the run
// aborted and nothing was committed.
func (p *Pipeline) Run(ctx context.Context) (domain.RunSummary, error) {
	if !p.runMu.TryLock() {
		return domain.RunSummary{}, ErrRunInProgress
	}
	defer p.runMu.Unlock()

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	summary := domain.RunSummary{
		RunID:     uuid.New().String(),
		State:     domain.RunStateReading,
		StartedAt: domain.Now(),
	}
	p.logger.Info("run started", "run_id", summary.RunID, "sources", len(p.cfg.Sources))

	err := p.execute(ctx, &summary)

	summary.FinishedAt = domain.Now()
	p.metrics.RunDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	for _, rejection := range summary.Rejections {
		p.metrics.RecordsRejected.WithLabelValues(string(rejection.Stage)).Inc()
	}

	if err != nil {
		summary.State = domain.RunStateFailed
		summary.Error = err.Error()
		p.metrics.RunsTotal.WithLabelValues("failure").Inc()
		p.metrics.LastRunSuccess.Set(0)
		p.logger.Error("run failed", "run_id", summary.RunID, "state", summary.State, "error", err)
	} else {
		summary.State = domain.RunStateSucceeded
		p.metrics.RunsTotal.WithLabelValues("success").Inc()
		p.metrics.LastRunSuccess.Set(1)
		p.logger.Info("run succeeded",
			"run_id", summary.RunID,
			"rows_read", summary.RowsRead,
			"committed", summary.Committed,
			"merged", summary.Merged,
			"skipped", summary.Skipped,
			"rejections", len(summary.Rejections),
		)
	}

	p.lastRun.Store(&summary)
	if recErr := p.store.RecordRun(ctx, summary); recErr != nil {
		p.logger.Warn("record run history failed", "run_id", summary.RunID, "error", recErr)
	}
	return summary, err
}

// execute advances the run through its stages, mutating the summary as it
// goes. summary.State names the stage that was active if an error aborts the
// run.
func (p *Pipeline) execute(ctx context.Context, summary *domain.RunSummary) error {
	watermarks, err := p.store.Watermarks(ctx)
	if err != nil {
		return err
	}

	summary.State = domain.RunStateReading
	batches, err := p.readSources(ctx, summary)
	if err != nil {
		return err
	}

	summary.State = domain.RunStateNormalizing
	records, newMarks := p.normalizeBatches(batches, watermarks, summary)
	summary.Normalized = len(records)

	summary.State = domain.RunStateResolving
	records, rejections, err := p.resolver.Resolve(ctx, records)
	if err != nil {
		return err
	}
	summary.Rejections = append(summary.Rejections, rejections...)
	summary.Resolved = len(records)

	summary.State = domain.RunStateDeduplicating
	merged, superseded, folded, err := p.deduplicate(ctx, records)
	if err != nil {
		return err
	}
	summary.Merged = folded

	summary.State = domain.RunStateCommitting
	if err := p.store.Commit(ctx, merged, superseded, newMarks); err != nil {
		return err
	}
	summary.Committed = len(merged)
	p.metrics.RecordsCommitted.Add(float64(len(merged)))

	if p.publisher != nil && len(merged) > 0 {
		// Downstream fan-out is best effort: the store is the source of truth
		// and the next run re-publishes anything within the window.
		if err := p.publisher.PublishRecords(ctx, merged); err != nil {
			p.logger.Warn("publish committed records failed", "count", len(merged), "error", err)
		}
	}
	return nil
}

// sourceBatch pairs one source's config with the rows read from it.
type sourceBatch struct {
	src     config.SourceConfig
	records []domain.RawRecord
	stats   reader.Stats
}

// readSources reads all configured sources in parallel. Any unavailable
// source aborts the whole run so a partial view is never committed.
func (p *Pipeline) readSources(ctx context.Context, summary *domain.RunSummary) ([]sourceBatch, error) {
	batches := make([]sourceBatch, len(p.cfg.Sources))

	g, ctx := errgroup.WithContext(ctx)
	for i, src := range p.cfg.Sources {
		g.Go(func() error {
			r, err := reader.ForFormat(src.Format)
			if err != nil {
				return err
			}
			records, stats, err := r.Read(ctx, src)
			if err != nil {
				return err
			}
			batches[i] = sourceBatch{src: src, records: records, stats: stats}
			p.logger.Debug("source read", "source", src.ID, "rows", stats.Rows, "malformed", stats.Malformed)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, b := range batches {
		summary.RowsRead += b.stats.Rows
		p.metrics.RecordsRead.WithLabelValues(b.src.ID).Add(float64(b.stats.Rows))
		for i := 0; i < b.stats.Malformed; i++ {
			summary.Rejections = append(summary.Rejections, domain.Rejection{
				Stage:    domain.StageRead,
				SourceID: b.src.ID,
				Reason:   "malformed row",
			})
		}
	}
	return batches, nil
}

// normalizeBatches maps raw rows onto the canonical schema, drops rows at or
// below each source's watermark, and computes the new watermark per source.
func (p *Pipeline) normalizeBatches(batches []sourceBatch, watermarks map[string]time.Time, summary *domain.RunSummary) ([]domain.HazardRecord, map[string]time.Time) {
	var records []domain.HazardRecord
	newMarks := make(map[string]time.Time)

	for _, b := range batches {
		n := normalize.New(b.src)
		mark := watermarks[b.src.ID]
		high := mark

		for _, raw := range b.records {
			rec, err := n.Normalize(raw)
			if err != nil {
				var normErr *domain.NormalizationError
				if errors.As(err, &normErr) {
					summary.Rejections = append(summary.Rejections, domain.Rejection{
						Stage:    domain.StageNormalize,
						SourceID: normErr.SourceID,
						Line:     normErr.Line,
						Reason:   normErr.Reason,
					})
				}
				continue
			}

			if rec.ObservedAt.After(high) {
				high = rec.ObservedAt
			}
			if !mark.IsZero() && !rec.ObservedAt.After(mark) {
				summary.Skipped++
				continue
			}
			records = append(records, rec)
		}

		if high.After(mark) {
			newMarks[b.src.ID] = high
		}
	}
	return records, newMarks
}

// deduplicate merges the batch together with committed records close enough
// in time to overlap it. Committed records whose identity was absorbed into
// another record are returned as superseded; folded counts the duplicate
// reports collapsed away.
func (p *Pipeline) deduplicate(ctx context.Context, records []domain.HazardRecord) (merged []domain.HazardRecord, superseded []string, folded int, err error) {
	if len(records) == 0 {
		return nil, nil, 0, nil
	}

	earliest := records[0].ObservedAt
	for _, rec := range records[1:] {
		if rec.ObservedAt.Before(earliest) {
			earliest = rec.ObservedAt
		}
	}
	cutoff := earliest.Add(-p.cfg.Merge.TemporalWindow)

	committed, err := p.store.RecordsInWindow(ctx, cutoff)
	if err != nil {
		return nil, nil, 0, err
	}

	input := append(committed, records...)
	merged = p.merger.Merge(input)
	folded = len(input) - len(merged)
	if folded > 0 {
		p.metrics.RecordsMerged.Add(float64(folded))
	}

	keep := make(map[string]bool, len(merged))
	for _, rec := range merged {
		keep[rec.ID] = true
	}
	for _, rec := range committed {
		if !keep[rec.ID] {
			superseded = append(superseded, rec.ID)
		}
	}
	return merged, superseded, folded, nil
}
