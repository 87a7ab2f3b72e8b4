package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/keibalab/keiba-collector/internal/collect"
	"github.com/keibalab/keiba-collector/internal/config"
	"github.com/keibalab/keiba-collector/internal/csvstore"
	"github.com/keibalab/keiba-collector/internal/fetch"
	"github.com/keibalab/keiba-collector/internal/logging"
	"github.com/keibalab/keiba-collector/internal/metrics"
	"github.com/keibalab/keiba-collector/internal/publish"
	"github.com/keibalab/keiba-collector/internal/racing"
	"github.com/keibalab/keiba-collector/internal/runner"
)

var (
	flagConfig      string
	flagStartYear   int
	flagEndYear     int
	flagDataTypes   []string
	flagForce       bool
	flagOverwrite   bool
	flagParallelism int
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Scrape the requested data types for a year range",
	RunE:  runCollect,
}

func init() {
	f := collectCmd.Flags()
	f.StringVar(&flagConfig, "config", "config.yaml", "path to the YAML config file")
	f.IntVar(&flagStartYear, "start-year", config.DataStartYear, "first year to collect")
	f.IntVar(&flagEndYear, "end-year", time.Now().Year(), "last year to collect")
	f.StringSliceVar(&flagDataTypes, "data-types", nil,
		"data types to collect (race_calendar, race_results, horse_data, track_condition); repeatable, default all")
	f.BoolVar(&flagForce, "force", false, "reprocess units already marked complete")
	f.BoolVar(&flagOverwrite, "overwrite", false, "truncate unit files instead of merging into them")
	f.IntVar(&flagParallelism, "parallelism", 0, "concurrent work units (0 = config default)")
}

func runCollect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging)

	if flagStartYear > flagEndYear {
		return fmt.Errorf("start-year %d is after end-year %d", flagStartYear, flagEndYear)
	}
	if flagStartYear < config.DataStartYear {
		return fmt.Errorf("start-year %d predates available data (%d)", flagStartYear, config.DataStartYear)
	}

	types, err := requestedTypes(flagDataTypes)
	if err != nil {
		return err
	}

	parallelism := cfg.Collect.Parallelism
	if flagParallelism > 0 {
		parallelism = flagParallelism
	}

	metrics.Init("")
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				slog.Error("metrics server stopped", "err", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	throttle := fetch.NewThrottle(cfg.Source.ThrottleInterval)
	client := fetch.NewClient(cfg.Source, throttle)
	collector := collect.New(client, cfg)

	store, err := csvstore.NewStore(cfg.Output.Dir, cfg.Output.Gzip)
	if err != nil {
		return err
	}

	pub, err := publish.Open(ctx, cfg.Publish.BucketURL)
	if err != nil {
		return err
	}
	defer pub.Close()

	r := runner.New(cfg, collector, store, pub, runner.Options{
		StartYear:   flagStartYear,
		EndYear:     flagEndYear,
		Types:       types,
		Force:       flagForce,
		Overwrite:   flagOverwrite,
		Parallelism: parallelism,
	})

	report, err := r.Run(ctx)
	if err != nil {
		return err
	}

	report.Render(os.Stdout)

	reportPath := filepath.Join(cfg.Output.Dir, "run_report.json")
	if err := report.WriteJSON(reportPath); err != nil {
		slog.Warn("failed to export run report", "err", err)
	}

	if report.Failed() {
		return fmt.Errorf("one or more work units failed, see %s", reportPath)
	}
	return nil
}

// requestedTypes validates the --data-types values; an empty flag means all
// types.
func requestedTypes(names []string) ([]racing.DataType, error) {
	if len(names) == 0 {
		return racing.AllDataTypes, nil
	}
	seen := make(map[racing.DataType]bool, len(names))
	var out []racing.DataType
	for _, name := range names {
		dt, err := racing.ParseDataType(name)
		if err != nil {
			return nil, err
		}
		if !seen[dt] {
			seen[dt] = true
			out = append(out, dt)
		}
	}
	return out, nil
}
