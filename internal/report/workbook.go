package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"dzs/taxi-etl/internal/models"
	"dzs/taxi-etl/internal/pipeline"
)

// Sheet names of a run workbook.
const (
	SheetSummary   = "Summary"
	SheetRejected  = "Rejected"
	SheetConflicts = "Conflicts"
)

// WriteWorkbook writes an XLSX workbook with a summary sheet, the rejected
// records, the key conflicts and one sheet per map table. run may be nil to
// export tables only.
func WriteWorkbook(w io.Writer, run *pipeline.RunReport, tables ...models.MapTable) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	if err := writeSummary(f, run, tables); err != nil {
		return err
	}

	if run != nil {
		rows := [][]interface{}{{"file", "row", "trip_id", "field", "value", "message"}}
		for _, r := range run.Rejections {
			rows = append(rows, []interface{}{r.File, r.Row, r.TripID, r.Field, r.Value, r.Message})
		}
		if err := writeSheet(f, SheetRejected, rows); err != nil {
			return err
		}

		rows = [][]interface{}{{"table", "variants", "ids"}}
		for _, c := range run.Conflicts {
			rows = append(rows, []interface{}{c.Table, fmt.Sprintf("%q", c.Variants), fmt.Sprint(c.IDs)})
		}
		if err := writeSheet(f, SheetConflicts, rows); err != nil {
			return err
		}
	}

	for _, t := range tables {
		rows := [][]interface{}{{"key", "surrogate_id"}}
		for _, e := range t.SortedEntries() {
			rows = append(rows, []interface{}{e.Key, e.SurrogateID})
		}
		if err := writeSheet(f, t.Name(), rows); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, run *pipeline.RunReport, tables []models.MapTable) error {
	var rows [][]interface{}
	if run != nil {
		rows = append(rows,
			[]interface{}{"run_id", run.RunID},
			[]interface{}{"started_at", run.StartedAt.Format("2006-01-02 15:04:05")},
			[]interface{}{"duration", run.Duration().String()},
			[]interface{}{"files", len(run.Files)},
			[]interface{}{"failed_files", run.Failed()},
			[]interface{}{"records", run.Stats.Total},
			[]interface{}{"enriched", run.Stats.Enriched},
			[]interface{}{"rejected", run.Stats.Rejected},
			[]interface{}{"new_payment_types", run.Stats.NewPaymentType},
			[]interface{}{"new_companies", run.Stats.NewCompany},
			[]interface{}{"conflicts", len(run.Conflicts)},
		)
	}
	for _, t := range tables {
		rows = append(rows, []interface{}{t.Name() + "_entries", t.Len()})
	}
	return setRows(f, SheetSummary, rows)
}

func writeSheet(f *excelize.File, name string, rows [][]interface{}) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", name, err)
	}
	return setRows(f, name, rows)
}

func setRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d of sheet %s: %w", i+1, sheet, err)
		}
	}
	return nil
}
