// Package tables shows and exports the persisted map tables.
package tables

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dzs/taxi-etl/cmd/root"
	"dzs/taxi-etl/internal/common"
	"dzs/taxi-etl/internal/models"
	"dzs/taxi-etl/internal/report"
	"dzs/taxi-etl/internal/store"
	"dzs/taxi-etl/internal/validation"
)

const formatText = "text"

var (
	showFormat   string
	exportOutput string
	exportFormat string
)

// Cmd represents the tables command
var Cmd = &cobra.Command{
	Use:   "tables",
	Short: "Inspect the payment type and company map tables",
	Long: `Inspect the map tables stored in the object store.

Examples:
  taxi-etl tables show company
  taxi-etl tables export -o tables.xlsx`,
}

var showCmd = &cobra.Command{
	Use:       "show [payment_type|company]",
	Short:     "Print a map table",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{models.TablePaymentType, models.TableCompany},
	Run: func(cmd *cobra.Command, args []string) {
		tableStore, gen, delimiter := dependencies()
		if err := render(root.Context(cmd), cmd.OutOrStdout(), tableStore, gen, tableNames(args), showFormat, delimiter); err != nil {
			root.Log.Fatalf("Failed to show map table: %v", err)
		}
	},
}

var exportCmd = &cobra.Command{
	Use:       "export [payment_type|company]",
	Short:     "Export map tables to a file",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{models.TablePaymentType, models.TableCompany},
	Run: func(cmd *cobra.Command, args []string) {
		tableStore, gen, delimiter := dependencies()
		format := exportFormat
		if format == "" {
			format = report.DetectFormat(exportOutput, report.FormatCSV)
		}
		if err := validation.IsValidOutputFormat(format, report.FormatCSV, report.FormatJSON, report.FormatYAML, report.FormatXLSX); err != nil {
			root.Log.Fatalf("Invalid export format: %v", err)
		}

		f, err := os.Create(exportOutput) // #nosec G304 -- CLI tool requires user-provided output paths
		if err != nil {
			root.Log.Fatalf("Failed to create output file: %v", err)
		}
		defer f.Close()

		if err := render(root.Context(cmd), f, tableStore, gen, tableNames(args), format, delimiter); err != nil {
			root.Log.Fatalf("Failed to export map tables: %v", err)
		}
		root.Log.Info(fmt.Sprintf("Map tables exported to %s", exportOutput))
	},
}

func init() {
	showCmd.Flags().StringVarP(&showFormat, "format", "f", formatText, "Output format (text, csv, json or yaml)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "", "Output format (csv, json, yaml or xlsx), defaults to the file extension")
	_ = exportCmd.MarkFlagRequired("output")

	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(exportCmd)
}

func dependencies() (store.TableStore, *report.Generator, rune) {
	appContainer := root.GetContainer()
	if appContainer == nil {
		root.Log.Fatal("Container not initialized")
	}
	delimiter := common.ParseDelimiter(appContainer.GetConfig().CSV.Delimiter)
	return appContainer.GetTableStore(), appContainer.GetReportGenerator(), delimiter
}

func tableNames(args []string) []string {
	if len(args) == 1 {
		return args
	}
	return []string{models.TablePaymentType, models.TableCompany}
}

// tableView is the JSON and YAML shape of an exported table.
type tableView struct {
	Name     string            `json:"name" yaml:"name"`
	Revision string            `json:"revision" yaml:"revision"`
	Entries  []models.MapEntry `json:"entries" yaml:"entries"`
}

// render loads the named tables and writes them to w in format.
func render(ctx context.Context, w io.Writer, tables store.TableStore, gen *report.Generator, names []string, format string, delimiter rune) error {
	var loaded []models.MapTable
	var views []tableView
	for _, name := range names {
		t, revision, err := tables.Load(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to load map table %s: %w", name, err)
		}
		loaded = append(loaded, t)
		views = append(views, tableView{Name: name, Revision: revision, Entries: t.SortedEntries()})
	}

	switch format {
	case formatText:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, v := range views {
			fmt.Fprintf(tw, "# %s (%d entries)\n", v.Name, len(v.Entries))
			fmt.Fprintln(tw, "surrogate_id\tkey")
			for _, e := range v.Entries {
				fmt.Fprintf(tw, "%d\t%s\n", e.SurrogateID, e.Key)
			}
		}
		return tw.Flush()
	case report.FormatCSV:
		if len(views) != 1 {
			return fmt.Errorf("csv output holds a single table, name one of %s or %s", models.TablePaymentType, models.TableCompany)
		}
		data, err := common.MarshalCSV(views[0].Entries, delimiter)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case report.FormatXLSX:
		return report.WriteWorkbook(w, nil, loaded...)
	default:
		data, err := gen.Generate(views, format)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
}
