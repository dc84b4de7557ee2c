// Package load transforms and reconciles every pending raw object.
package load

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"dzs/taxi-etl/cmd/root"
	"dzs/taxi-etl/internal/logging"
	"dzs/taxi-etl/internal/models"
	"dzs/taxi-etl/internal/pipeline"
	"dzs/taxi-etl/internal/report"
	"dzs/taxi-etl/internal/store"
	"dzs/taxi-etl/internal/validation"
)

var (
	reportPath   string
	reportFormat string
)

// Cmd represents the load command
var Cmd = &cobra.Command{
	Use:   "load",
	Short: "Transform, reconcile and load pending raw files",
	Long: `Process every raw taxi and weather file waiting in the to-process prefixes.

Taxi trips are reconciled against the payment type and company map tables.
New values get new surrogate ids, and the tables are saved before the enriched
trips are written. A file that fails is reported and left in place for the
next run.

Example:
  taxi-etl load --report run.xlsx`,
	Run: loadFunc,
}

func init() {
	Cmd.Flags().StringVarP(&reportPath, "report", "r", "", "Write the run report to this file")
	Cmd.Flags().StringVarP(&reportFormat, "format", "f", "", "Report format (json, yaml or xlsx), defaults to the file extension")
}

func loadFunc(cmd *cobra.Command, args []string) {
	appContainer := root.GetContainer()
	if appContainer == nil {
		root.Log.Fatal("Container not initialized")
	}
	logger := appContainer.GetLogger()
	ctx := root.Context(cmd)

	run, loadErr := appContainer.GetLoader().Load(ctx)
	if run != nil {
		printSummary(cmd.OutOrStdout(), run)
		if reportPath != "" {
			format := reportFormat
			if format == "" {
				format = report.DetectFormat(reportPath, report.FormatJSON)
			}
			if err := validation.IsValidOutputFormat(format, report.FormatJSON, report.FormatYAML, report.FormatXLSX); err != nil {
				logger.Fatalf("Invalid report format: %v", err)
			}
			data, err := renderReport(ctx, appContainer.GetReportGenerator(), appContainer.GetTableStore(), run, format)
			if err != nil {
				logger.Fatalf("Failed to render report: %v", err)
			}
			if err := os.WriteFile(reportPath, data, models.PermissionFile); err != nil {
				logger.Fatalf("Failed to write report: %v", err)
			}
			logger.Info("Run report written",
				logging.Field{Key: "file", Value: reportPath},
				logging.Field{Key: "format", Value: format})
		}
	}
	if loadErr != nil {
		logger.Fatalf("Load failed: %v", loadErr)
	}
}

// renderReport renders run as JSON, YAML or an XLSX workbook that also holds
// the current map tables.
func renderReport(ctx context.Context, gen *report.Generator, tables store.TableStore, run *pipeline.RunReport, format string) ([]byte, error) {
	if format != report.FormatXLSX {
		return gen.Generate(run, format)
	}

	var current []models.MapTable
	for _, name := range []string{models.TablePaymentType, models.TableCompany} {
		t, _, err := tables.Load(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to load map table %s: %w", name, err)
		}
		current = append(current, t)
	}

	var buf bytes.Buffer
	if err := report.WriteWorkbook(&buf, run, current...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func printSummary(w io.Writer, run *pipeline.RunReport) {
	fmt.Fprintf(w, "run %s: %d files (%d failed) in %s\n", run.RunID, len(run.Files), run.Failed(), run.Duration())
	fmt.Fprintf(w, "trips: %d enriched, %d rejected\n", run.Stats.Enriched, run.Stats.Rejected)
	for _, name := range []string{models.TablePaymentType, models.TableCompany} {
		fmt.Fprintf(w, "%s: %d entries (+%d)\n", name, run.TableSizes[name], len(run.Added[name]))
	}
	if len(run.Conflicts) > 0 {
		fmt.Fprintf(w, "key conflicts: %d\n", len(run.Conflicts))
	}
}
