// keiba-collector scrapes horse-racing data (race calendars, results, horse
// profiles, track conditions) for a range of years into per-unit CSV files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keibalab/keiba-collector/internal/runner"
)

var rootCmd = &cobra.Command{
	Use:   "keiba-collector",
	Short: "Collect horse-racing data into CSV files",
	Long: "keiba-collector scrapes race calendars, race results, horse profiles and\n" +
		"track conditions for a year range and writes one CSV file per data type\n" +
		"and year. Runs are idempotent and resumable.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.Version = fmt.Sprintf("%s (%s)", runner.Version, runner.GitSHA)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
