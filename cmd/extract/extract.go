// Package extract downloads the raw taxi and weather payloads of a day.
package extract

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dzs/taxi-etl/cmd/root"
	"dzs/taxi-etl/internal/models"
	"dzs/taxi-etl/internal/pipeline"
)

var day string

// Cmd represents the extract command
var Cmd = &cobra.Command{
	Use:   "extract",
	Short: "Download taxi trips and weather for one day",
	Long: `Download the taxi trips and hourly weather of one day and upload them to the
to-process prefixes of the object store.

Trip data is published with a delay, so the default day lies extract.lag_months
months in the past.

Example:
  taxi-etl extract --day 2024-02-01`,
	Run: extractFunc,
}

func init() {
	Cmd.Flags().StringVarP(&day, "day", "d", "", "Day to extract (YYYY-MM-DD), defaults to today minus extract.lag_months")
}

func extractFunc(cmd *cobra.Command, args []string) {
	appContainer := root.GetContainer()
	if appContainer == nil {
		root.Log.Fatal("Container not initialized")
	}
	logger := appContainer.GetLogger()

	target, err := resolveDay(day, time.Now(), appContainer.GetConfig().Extract.LagMonths)
	if err != nil {
		logger.Fatalf("Invalid --day: %v", err)
	}

	result, err := appContainer.GetExtractor().Extract(root.Context(cmd), target)
	if err != nil {
		logger.Fatalf("Extraction failed: %v", err)
	}
	for _, key := range result.Keys {
		fmt.Fprintln(cmd.OutOrStdout(), key)
	}
}

// resolveDay parses value, or falls back to the lagged default day.
func resolveDay(value string, now time.Time, lagMonths int) (time.Time, error) {
	if value == "" {
		return pipeline.DefaultDay(now, lagMonths), nil
	}
	d, err := time.Parse(models.DayLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD, got %q", value)
	}
	return d, nil
}
