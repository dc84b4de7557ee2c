package tables

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"dzs/taxi-etl/internal/logging"
	"dzs/taxi-etl/internal/models"
	"dzs/taxi-etl/internal/report"
	"dzs/taxi-etl/internal/store"
)

func newStore(t *testing.T) *store.MockTableStore {
	t.Helper()
	pt, err := models.NewMapTable(models.TablePaymentType, []models.MapEntry{
		{Key: "Credit Card", SurrogateID: 1},
		{Key: "Cash", SurrogateID: 0},
	})
	require.NoError(t, err)
	return store.NewMockTableStore(pt)
}

func TestTablesCommand_Metadata(t *testing.T) {
	assert.Equal(t, "tables", Cmd.Use)
	assert.Contains(t, Cmd.Short, "map tables")

	names := map[string]bool{}
	for _, c := range Cmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["show"])
	assert.True(t, names["export"])
	assert.NotNil(t, exportCmd.Flags().Lookup("output"))
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, []string{models.TableCompany}, tableNames([]string{models.TableCompany}))
	assert.Equal(t, []string{models.TablePaymentType, models.TableCompany}, tableNames(nil))
}

func TestRender(t *testing.T) {
	ctx := context.Background()
	gen := report.NewGenerator(logging.NewNopLogger())

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, render(ctx, &buf, newStore(t), gen, []string{models.TablePaymentType}, formatText, ','))
		out := buf.String()
		assert.Contains(t, out, "# payment_type (2 entries)")
		assert.Less(t, bytes.Index(buf.Bytes(), []byte("Cash")), bytes.Index(buf.Bytes(), []byte("Credit Card")), "entries in id order")
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, render(ctx, &buf, newStore(t), gen, []string{models.TablePaymentType}, report.FormatCSV, ';'))
		assert.Equal(t, "key;surrogate_id\nCash;0\nCredit Card;1\n", buf.String())
	})

	t.Run("csv needs one table", func(t *testing.T) {
		var buf bytes.Buffer
		err := render(ctx, &buf, newStore(t), gen, tableNames(nil), report.FormatCSV, ',')
		assert.Error(t, err)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, render(ctx, &buf, newStore(t), gen, tableNames(nil), report.FormatYAML, ','))
		var views []tableView
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &views))
		require.Len(t, views, 2)
		assert.Len(t, views[0].Entries, 2)
		assert.Equal(t, models.TableCompany, views[1].Name)
		assert.Empty(t, views[1].Entries)
	})

	t.Run("xlsx", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, render(ctx, &buf, newStore(t), gen, tableNames(nil), report.FormatXLSX, ','))
		f, err := excelize.OpenReader(&buf)
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows(models.TablePaymentType)
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("load error", func(t *testing.T) {
		s := newStore(t)
		s.LoadError = errors.New("unavailable")
		err := render(ctx, &bytes.Buffer{}, s, gen, tableNames(nil), formatText, ',')
		assert.Error(t, err)
	})
}
