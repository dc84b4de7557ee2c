// Package reconcile reconciles a local trips file against local map tables.
package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"dzs/taxi-etl/cmd/root"
	"dzs/taxi-etl/internal/common"
	"dzs/taxi-etl/internal/logging"
	"dzs/taxi-etl/internal/models"
	"dzs/taxi-etl/internal/pipeline"
	"dzs/taxi-etl/internal/reconciler"
	"dzs/taxi-etl/internal/report"
	"dzs/taxi-etl/internal/storage"
	"dzs/taxi-etl/internal/transform"
	"dzs/taxi-etl/internal/validation"
)

// Options describes one offline reconciliation.
type Options struct {
	Input     string // Socrata JSON payload or RawTrip CSV
	TablesDir string // holds <table>_map_table.csv
	Output    string // enriched trips CSV
	Report    string // optional report file
	Delimiter rune
	DryRun    bool // skip writing the tables back
}

var opts Options

// Cmd represents the reconcile command
var Cmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a local trips file against local map tables",
	Long: `Reconcile a local trips file against map tables kept as CSV files in a
directory, without touching the object store.

The input is either a raw Socrata JSON payload or a CSV of cleaned trips that
still carry payment_type and company. Missing tables start empty. Updated
tables are written back unless --dry-run is given.

Example:
  taxi-etl reconcile -i taxi_raw_2024-02-01.json -t tables/ -o taxi_2024-02-01.csv`,
	Run: reconcileFunc,
}

func init() {
	Cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Trips file (.json or .csv)")
	Cmd.Flags().StringVarP(&opts.TablesDir, "tables", "t", ".", "Directory of the map table CSV files")
	Cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Enriched trips CSV")
	Cmd.Flags().StringVarP(&opts.Report, "report", "r", "", "Write a report (json, yaml or xlsx)")
	Cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Do not write the updated map tables")
	_ = Cmd.MarkFlagRequired("input")
	_ = Cmd.MarkFlagRequired("output")
}

func reconcileFunc(cmd *cobra.Command, args []string) {
	appContainer := root.GetContainer()
	if appContainer == nil {
		root.Log.Fatal("Container not initialized")
	}
	logger := appContainer.GetLogger()

	o := opts
	o.Delimiter = common.ParseDelimiter(appContainer.GetConfig().CSV.Delimiter)
	run, tables, err := Run(o, appContainer.GetReconciler(), logger)
	if err != nil {
		logger.Fatalf("Reconciliation failed: %v", err)
	}

	if o.Report != "" {
		if err := writeReport(o.Report, appContainer.GetReportGenerator(), run, tables); err != nil {
			logger.Fatalf("Failed to write report: %v", err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d enriched, %d rejected, %d new payment types, %d new companies\n",
		run.Stats.Enriched, run.Stats.Rejected, run.Stats.NewPaymentType, run.Stats.NewCompany)
}

// Run reconciles the input file and writes the enriched trips and, unless
// DryRun is set, the updated tables. It returns the report and the tables.
func Run(o Options, rec *reconciler.Reconciler, logger logging.Logger) (*pipeline.RunReport, reconciler.Tables, error) {
	logger = logging.Component(logger, "reconcile")
	if err := validation.IsValidInputFile(o.Input, validation.TripsFileExtensions...); err != nil {
		return nil, reconciler.Tables{}, err
	}
	run := pipeline.NewRunReport(uuid.NewString(), time.Now().UTC())
	name := filepath.Base(o.Input)

	trips, err := readTrips(o.Input, o.Delimiter, run, logger)
	if err != nil {
		return nil, reconciler.Tables{}, err
	}
	parseRejected := len(run.Rejections)

	tables := reconciler.Tables{}
	if tables.PaymentType, err = readTable(o.TablesDir, models.TablePaymentType, o.Delimiter, logger); err != nil {
		return nil, tables, err
	}
	if tables.Company, err = readTable(o.TablesDir, models.TableCompany, o.Delimiter, logger); err != nil {
		return nil, tables, err
	}

	result, err := rec.Reconcile(trips, tables)
	if err != nil {
		return nil, tables, fmt.Errorf("reconcile %s: %w", name, err)
	}
	run.AddMalformed(name, result.Rejected)
	run.AddConflicts(result.Conflicts)
	run.Stats = result.Stats
	run.Stats.Total += parseRejected
	run.Stats.Rejected += parseRejected
	for table, added := range result.Added {
		run.Added[table] = added
	}
	run.TableSizes[models.TablePaymentType] = result.Tables.PaymentType.Len()
	run.TableSizes[models.TableCompany] = result.Tables.Company.Len()

	if err := common.WriteCSVFile(result.Records, o.Output, o.Delimiter, logger); err != nil {
		return nil, result.Tables, fmt.Errorf("failed to write enriched trips: %w", err)
	}

	if !o.DryRun {
		if err := storage.EnsureDirectoryExists(o.TablesDir); err != nil {
			return nil, result.Tables, err
		}
		for _, t := range []models.MapTable{result.Tables.PaymentType, result.Tables.Company} {
			if len(result.Added[t.Name()]) == 0 {
				continue
			}
			if err := common.WriteCSVFile(t.SortedEntries(), tablePath(o.TablesDir, t.Name()), o.Delimiter, logger); err != nil {
				return nil, result.Tables, fmt.Errorf("failed to write map table %s: %w", t.Name(), err)
			}
		}
	}

	run.Files = []pipeline.FileReport{{
		Kind:     models.KindTaxi,
		Key:      o.Input,
		Output:   o.Output,
		Status:   pipeline.StatusProcessed,
		Rows:     len(result.Records),
		Rejected: run.Stats.Rejected,
		Stats:    run.Stats,
	}}
	run.FinishedAt = time.Now().UTC()
	result.Stats.LogSummary(logger, name)
	return run, result.Tables, nil
}

func readTrips(path string, delimiter rune, run *pipeline.RunReport, logger logging.Logger) ([]models.RawTrip, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := os.ReadFile(path) // #nosec G304 -- CLI tool requires user-provided file paths
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		parsed, err := transform.TaxiTrips(data)
		if err != nil {
			return nil, err
		}
		run.AddParseErrors(filepath.Base(path), parsed.Rejected)
		return parsed.Trips, nil
	case ".csv":
		return common.ReadCSVFile[models.RawTrip](path, delimiter, logger)
	default:
		return nil, fmt.Errorf("unsupported input file %s: expected .json or .csv", path)
	}
}

func tablePath(dir, table string) string {
	return filepath.Join(dir, table+"_map_table.csv")
}

// readTable reads a map table CSV; a missing file is an empty table.
func readTable(dir, name string, delimiter rune, logger logging.Logger) (models.MapTable, error) {
	path := tablePath(dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("Map table not found, starting empty", logging.Field{Key: logging.FieldTable, Value: name})
		return models.EmptyMapTable(name), nil
	}
	entries, err := common.ReadCSVFile[models.MapEntry](path, delimiter, logger)
	if err != nil {
		return models.MapTable{}, err
	}
	return models.NewMapTable(name, entries)
}

func writeReport(path string, gen *report.Generator, run *pipeline.RunReport, tables reconciler.Tables) error {
	format := report.DetectFormat(path, report.FormatJSON)
	if format == report.FormatXLSX {
		f, err := os.Create(path) // #nosec G304 -- CLI tool requires user-provided output paths
		if err != nil {
			return fmt.Errorf("failed to create report: %w", err)
		}
		defer f.Close()
		return report.WriteWorkbook(f, run, tables.PaymentType, tables.Company)
	}
	data, err := gen.Generate(run, format)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, models.PermissionFile)
}
