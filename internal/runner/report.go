package runner

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/keibalab/keiba-collector/internal/racing"
)

// UnitStatus is a work unit's terminal state for one run.
type UnitStatus string

const (
	StatusCompleted UnitStatus = "completed"
	StatusPartial   UnitStatus = "partial"
	StatusFailed    UnitStatus = "failed"
	StatusSkipped   UnitStatus = "skipped"
)

// UnitOutcome records how one work unit ended.
type UnitOutcome struct {
	Unit         racing.WorkUnit `json:"unit"`
	Status       UnitStatus      `json:"status"`
	RowsAppended int             `json:"rows_appended"`
	RowsDeduped  int             `json:"rows_deduped"`
	SubFetches   int             `json:"sub_fetches"`
	SubFailures  int             `json:"sub_failures"`
	Error        string          `json:"error,omitempty"`
	Duration     time.Duration   `json:"duration_ns"`
}

// RunReport aggregates the outcomes of one invocation.
type RunReport struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Outcomes   []UnitOutcome `json:"outcomes"`
}

// Counts partitions the outcomes by terminal state.
func (r *RunReport) Counts() (completed, partial, failed, skipped int) {
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusCompleted:
			completed++
		case StatusPartial:
			partial++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}
	return
}

// Failed reports whether any unit ended in the failed state. The process
// exits non-zero when it returns true.
func (r *RunReport) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Render prints the per-unit summary table.
func (r *RunReport) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Data Type", "Year", "Status", "Rows", "Dups", "Sub-Failures", "Duration", "Error"})

	for _, o := range r.Outcomes {
		errMsg := o.Error
		if len(errMsg) > 60 {
			errMsg = errMsg[:57] + "..."
		}
		dur := ""
		if o.Duration > 0 {
			dur = o.Duration.Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{
			o.Unit.Type.String(), o.Unit.Year, string(o.Status),
			o.RowsAppended, o.RowsDeduped, o.SubFailures, dur, errMsg,
		})
	}

	completed, partial, failed, skipped := r.Counts()
	t.AppendFooter(table.Row{
		"", "", fmt.Sprintf("%d ok / %d partial / %d failed / %d skipped",
			completed, partial, failed, skipped),
		"", "", "", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(), "",
	})
	t.Render()
}

// WriteJSON exports the report next to the collected data so failed runs
// can be inspected and retried.
func (r *RunReport) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename run report: %w", err)
	}
	return nil
}
