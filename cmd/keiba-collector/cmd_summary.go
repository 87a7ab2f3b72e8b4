package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keibalab/keiba-collector/internal/config"
	"github.com/keibalab/keiba-collector/internal/logging"
	"github.com/keibalab/keiba-collector/internal/runner"
)

var summaryConfig string

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Export a JSON summary of the collected data files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(summaryConfig)
		if err != nil {
			return err
		}
		logging.Setup(cfg.Logging)

		path, err := runner.ExportDataSummary(cfg.Output.Dir)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	summaryCmd.Flags().StringVar(&summaryConfig, "config", "config.yaml", "path to the YAML config file")
}
