// Package collect turns one (year, data type) work unit into rows: it
// derives the unit's page URLs, runs fetch+parse for each, and aggregates
// the results with per-sub-fetch failure records.
package collect

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/keibalab/keiba-collector/internal/config"
	"github.com/keibalab/keiba-collector/internal/fetch"
	"github.com/keibalab/keiba-collector/internal/logging"
	"github.com/keibalab/keiba-collector/internal/racing"
	"github.com/keibalab/keiba-collector/internal/scrape"
)

// monthlyPaths maps the data types that publish one page per month to their
// URL path segment.
var monthlyPaths = map[racing.DataType]string{
	racing.RaceCalendar:   "keiba/calendar",
	racing.RaceResults:    "keiba/result",
	racing.TrackCondition: "keiba/baba",
}

// horseIndexPath is the paginated yearly horse index.
const horseIndexPath = "keiba/horse"

// SubFailure records one failed sub-fetch within a unit that did not, by
// itself, fail the unit.
type SubFailure struct {
	URL string `json:"url"`
	Err error  `json:"-"`
}

// Result is the outcome of collecting one work unit. Failures holds
// tolerated sub-fetch failures; when it is non-empty the unit is incomplete
// but usable.
type Result struct {
	Unit      racing.WorkUnit
	Rows      []racing.Row
	Attempted int
	Failures  []SubFailure
}

// Collector drives fetch+parse for work units.
type Collector struct {
	client          *fetch.Client
	baseURL         string
	maxFailureRatio float64
	horsePageCap    int
	log             *slog.Logger
}

// New creates a collector on top of the shared fetch client.
func New(client *fetch.Client, cfg config.Config) *Collector {
	return &Collector{
		client:          client,
		baseURL:         cfg.Source.BaseURL,
		maxFailureRatio: cfg.Collect.MaxFailureRatio,
		horsePageCap:    cfg.Collect.HorsePageCap,
		log:             logging.Component("collect"),
	}
}

// Collect gathers all rows for the unit. A nil error with a non-empty
// Failures slice means the unit is partial: some optional pages failed but
// the failure ratio stayed within bounds. A non-nil error means the unit
// failed: a required anchor page broke, the failure ratio was exceeded, or
// the run was canceled. The returned Result is valid either way so callers
// can persist whatever was gathered safely.
func (c *Collector) Collect(ctx context.Context, unit racing.WorkUnit) (*Result, error) {
	if _, ok := monthlyPaths[unit.Type]; ok {
		return c.collectMonthly(ctx, unit)
	}
	return c.collectHorseIndex(ctx, unit)
}

// collectMonthly fetches the unit's twelve month pages. A fetch failure on a
// single month is tolerated and recorded; a missing anchor on any fetched
// page fails the unit because it signals a layout break, not missing data.
func (c *Collector) collectMonthly(ctx context.Context, unit racing.WorkUnit) (*Result, error) {
	res := &Result{Unit: unit}

	for month := 1; month <= 12; month++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		url := fmt.Sprintf("%s/%s/%d/%02d/", c.baseURL, monthlyPaths[unit.Type], unit.Year, month)
		res.Attempted++

		body, err := c.client.Get(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			c.log.Warn("sub-fetch failed",
				"data_type", unit.Type.String(), "year", unit.Year, "month", month, "err", err)
			res.Failures = append(res.Failures, SubFailure{URL: url, Err: err})
			continue
		}

		rows, err := scrape.Parse(unit.Type, bytes.NewReader(body))
		if err != nil {
			return res, fmt.Errorf("%s: %w", url, err)
		}
		res.Rows = append(res.Rows, rows...)
	}

	return res, c.checkFailureRatio(res)
}

// collectHorseIndex walks the paginated yearly horse index. Page one is the
// required anchor. Pagination stops at the first well-formed empty page, at
// the page cap, or at a failed page: after a failure there is no way to tell
// whether later pages exist, so the unit is left partial rather than padded
// with guesses.
func (c *Collector) collectHorseIndex(ctx context.Context, unit racing.WorkUnit) (*Result, error) {
	res := &Result{Unit: unit}

	for page := 1; page <= c.horsePageCap; page++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		url := fmt.Sprintf("%s/%s/%d/?page=%d", c.baseURL, horseIndexPath, unit.Year, page)
		res.Attempted++

		body, err := c.client.Get(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if page == 1 {
				return res, fmt.Errorf("horse index page 1: %w", err)
			}
			c.log.Warn("horse index page failed, stopping pagination",
				"year", unit.Year, "page", page, "err", err)
			res.Failures = append(res.Failures, SubFailure{URL: url, Err: err})
			break
		}

		rows, err := scrape.Parse(unit.Type, bytes.NewReader(body))
		if err != nil {
			if page == 1 {
				return res, fmt.Errorf("%s: %w", url, err)
			}
			res.Failures = append(res.Failures, SubFailure{URL: url, Err: err})
			break
		}
		if len(rows) == 0 {
			break
		}
		res.Rows = append(res.Rows, rows...)
	}

	return res, c.checkFailureRatio(res)
}

// checkFailureRatio fails the unit when too many sub-fetches were lost.
func (c *Collector) checkFailureRatio(res *Result) error {
	if res.Attempted == 0 || len(res.Failures) == 0 {
		return nil
	}
	ratio := float64(len(res.Failures)) / float64(res.Attempted)
	if ratio > c.maxFailureRatio {
		return fmt.Errorf("%d of %d sub-fetches failed (max ratio %.2f)",
			len(res.Failures), res.Attempted, c.maxFailureRatio)
	}
	return nil
}
