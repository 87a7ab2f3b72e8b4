// Package runner orchestrates work units: it decides which (year, data
// type) units still need collecting, drives them sequentially or through a
// bounded worker pool, and aggregates the per-unit outcomes into a run
// report.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keibalab/keiba-collector/internal/collect"
	"github.com/keibalab/keiba-collector/internal/config"
	"github.com/keibalab/keiba-collector/internal/csvstore"
	"github.com/keibalab/keiba-collector/internal/logging"
	"github.com/keibalab/keiba-collector/internal/metrics"
	"github.com/keibalab/keiba-collector/internal/publish"
	"github.com/keibalab/keiba-collector/internal/racing"
)

// Version information (set via ldflags).
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

// Options are the per-run knobs from the CLI.
type Options struct {
	StartYear   int
	EndYear     int
	Types       []racing.DataType
	Force       bool
	Overwrite   bool
	Parallelism int
}

// Runner drives collectors over the requested work units.
type Runner struct {
	cfg       config.Config
	collector *collect.Collector
	store     *csvstore.Store
	pub       *publish.Publisher
	opts      Options
	log       *slog.Logger
}

// New creates a runner. pub may be nil when publishing is disabled.
func New(cfg config.Config, collector *collect.Collector, store *csvstore.Store, pub *publish.Publisher, opts Options) *Runner {
	return &Runner{
		cfg:       cfg,
		collector: collector,
		store:     store,
		pub:       pub,
		opts:      opts,
		log:       logging.Component("runner"),
	}
}

// units expands the year range and requested types into work units in
// ascending (year, declared type order).
func (r *Runner) units() []racing.WorkUnit {
	types := make([]racing.DataType, len(r.opts.Types))
	copy(types, r.opts.Types)
	sort.Slice(types, func(i, j int) bool { return types[i].Order() < types[j].Order() })

	var out []racing.WorkUnit
	for year := r.opts.StartYear; year <= r.opts.EndYear; year++ {
		for _, dt := range types {
			out = append(out, racing.WorkUnit{Year: year, Type: dt})
		}
	}
	return out
}

// Run processes every work unit and returns the aggregated report. The
// returned error is non-nil only for run-level failures; per-unit failures
// live in the report.
func (r *Runner) Run(ctx context.Context) (*RunReport, error) {
	units := r.units()

	report := &RunReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}

	r.log.Info("starting run",
		"run_id", report.RunID,
		"units", len(units),
		"start_year", r.opts.StartYear,
		"end_year", r.opts.EndYear,
		"parallelism", r.opts.Parallelism,
	)

	if r.opts.Parallelism > 1 {
		report.Outcomes = r.runParallel(ctx, units, report.RunID)
	} else {
		report.Outcomes = r.runSequential(ctx, units, report.RunID)
	}

	report.FinishedAt = time.Now().UTC()

	completed, partial, failed, skipped := report.Counts()
	r.log.Info("run finished",
		"run_id", report.RunID,
		"completed", completed,
		"partial", partial,
		"failed", failed,
		"skipped", skipped,
		"duration", report.FinishedAt.Sub(report.StartedAt).String(),
	)

	return report, nil
}

func (r *Runner) runSequential(ctx context.Context, units []racing.WorkUnit, runID string) []UnitOutcome {
	outcomes := make([]UnitOutcome, 0, len(units))
	for _, unit := range units {
		outcomes = append(outcomes, r.processUnit(ctx, unit, runID))
	}
	return outcomes
}

// runParallel fans units out to a bounded worker pool. Units never share an
// output file, so workers don't contend beyond the fetch throttle.
func (r *Runner) runParallel(ctx context.Context, units []racing.WorkUnit, runID string) []UnitOutcome {
	type indexed struct {
		idx     int
		outcome UnitOutcome
	}

	tasks := make(chan int)
	results := make(chan indexed, len(units))

	var wg sync.WaitGroup
	for w := 0; w < r.opts.Parallelism; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log := logging.WorkerLogger(workerID)
			for idx := range tasks {
				log.Debug("picked up unit", "unit", units[idx].String())
				results <- indexed{idx: idx, outcome: r.processUnit(ctx, units[idx], runID)}
			}
		}(w)
	}

	for idx := range units {
		tasks <- idx
	}
	close(tasks)
	wg.Wait()
	close(results)

	outcomes := make([]UnitOutcome, len(units))
	for res := range results {
		outcomes[res.idx] = res.outcome
	}
	return outcomes
}

// processUnit runs the pending → running → terminal transition for one
// unit. Cancellation mid-unit still persists whatever rows were gathered,
// atomically, before the outcome is reported.
func (r *Runner) processUnit(ctx context.Context, unit racing.WorkUnit, runID string) UnitOutcome {
	log := logging.UnitLogger(unit)
	start := time.Now()

	if !r.opts.Force && r.store.IsComplete(unit) {
		log.Info("skipping unit, already complete")
		if m := metrics.Get(); m != nil {
			m.IncUnitsSkipped(unit.Type.String())
		}
		return UnitOutcome{Unit: unit, Status: StatusSkipped}
	}

	if err := ctx.Err(); err != nil {
		return UnitOutcome{Unit: unit, Status: StatusFailed, Error: "run canceled before start"}
	}

	log.Info("collecting unit")
	result, collectErr := r.collector.Collect(ctx, unit)

	outcome := UnitOutcome{
		Unit:        unit,
		SubFetches:  result.Attempted,
		SubFailures: len(result.Failures),
	}

	// Persist whatever was gathered, even on failure or cancellation: the
	// write is atomic and re-runs deduplicate, so saving partial progress
	// is always safe.
	var wres *csvstore.WriteResult
	if len(result.Rows) > 0 || collectErr == nil {
		var werr error
		wres, werr = r.store.WriteUnit(unit, result.Rows, r.opts.Overwrite)
		if werr != nil {
			log.Error("unit write failed", "err", werr)
			outcome.Status = StatusFailed
			outcome.Error = werr.Error()
			outcome.Duration = time.Since(start)
			r.recordOutcome(outcome)
			return outcome
		}
		outcome.RowsAppended = wres.Appended
		outcome.RowsDeduped = wres.Skipped
	}

	if collectErr != nil {
		if errors.Is(collectErr, context.Canceled) || errors.Is(collectErr, context.DeadlineExceeded) {
			log.Warn("unit interrupted", "rows_saved", outcome.RowsAppended)
			outcome.Error = "interrupted: " + collectErr.Error()
		} else {
			log.Error("unit failed", "err", collectErr)
			outcome.Error = collectErr.Error()
		}
		outcome.Status = StatusFailed
		outcome.Duration = time.Since(start)
		r.recordOutcome(outcome)
		return outcome
	}

	status := csvstore.StatusCompleted
	outcome.Status = StatusCompleted
	if len(result.Failures) > 0 {
		status = csvstore.StatusPartial
		outcome.Status = StatusPartial
	}

	failedURLs := make([]string, 0, len(result.Failures))
	for _, f := range result.Failures {
		failedURLs = append(failedURLs, f.URL)
	}

	manifest := &csvstore.Manifest{
		Unit:        unit,
		Status:      status,
		File:        wres.Path,
		RowCount:    wres.Total,
		Checksum:    wres.Checksum,
		SubFetches:  result.Attempted,
		SubFailures: len(result.Failures),
		FailedURLs:  failedURLs,
		RunID:       runID,
		Producer:    csvstore.ProducerInfo{Name: "keiba-collector", Version: Version},
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.store.WriteManifest(unit, manifest); err != nil {
		log.Error("manifest write failed", "err", err)
		outcome.Status = StatusFailed
		outcome.Error = err.Error()
		outcome.Duration = time.Since(start)
		r.recordOutcome(outcome)
		return outcome
	}

	if r.pub != nil {
		if err := r.pub.PublishUnit(ctx, unit, wres.Path, r.store.ManifestPath(unit)); err != nil {
			log.Warn("publish failed", "err", err)
		}
	}

	outcome.Duration = time.Since(start)
	log.Info("unit done",
		"status", string(outcome.Status),
		"rows_appended", outcome.RowsAppended,
		"rows_deduped", outcome.RowsDeduped,
		"sub_failures", outcome.SubFailures,
		"duration", outcome.Duration.String(),
	)
	r.recordOutcome(outcome)
	return outcome
}

func (r *Runner) recordOutcome(o UnitOutcome) {
	m := metrics.Get()
	if m == nil {
		return
	}
	dt := o.Unit.Type.String()
	switch o.Status {
	case StatusCompleted:
		m.IncUnitsCompleted(dt)
	case StatusPartial:
		m.IncUnitsPartial(dt)
	case StatusFailed:
		m.IncUnitsFailed(dt)
	}
	m.AddRowsWritten(dt, float64(o.RowsAppended))
	m.AddRowsSkipped(dt, float64(o.RowsDeduped))
	m.ObserveUnitDuration(dt, o.Duration.Seconds())
}
