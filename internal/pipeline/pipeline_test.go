package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dzs/taxi-etl/internal/common"
	"dzs/taxi-etl/internal/logging"
	"dzs/taxi-etl/internal/models"
	"dzs/taxi-etl/internal/reconciler"
	"dzs/taxi-etl/internal/storage"
	"dzs/taxi-etl/internal/store"
)

func trip(id, paymentType, company string) string {
	pt := "null"
	if paymentType != "" {
		pt = fmt.Sprintf("%q", paymentType)
	}
	return fmt.Sprintf(`{"trip_id": %q, "taxi_id": "x",
	  "trip_start_timestamp": "2024-02-01T10:15:00.000", "trip_end_timestamp": "2024-02-01T10:30:00.000",
	  "trip_seconds": "900", "trip_miles": "3.2",
	  "pickup_community_area": "8", "dropoff_community_area": "32",
	  "fare": "12.25", "tips": "2", "tolls": "0", "extras": "0", "trip_total": "14.25",
	  "payment_type": %s, "company": %q,
	  "pickup_centroid_latitude": "41.9", "pickup_centroid_longitude": "-87.6",
	  "dropoff_centroid_latitude": "41.8", "dropoff_centroid_longitude": "-87.6"}`, id, pt, company)
}

func taxiPayload(trips ...string) []byte {
	return []byte("[" + strings.Join(trips, ",") + "]")
}

const weatherPayload = `{"hourly": {
  "time": ["2024-02-01T00:00", "2024-02-01T01:00"],
  "temperature_2m": [1.5, 1.2], "wind_speed_10m": [10, 9],
  "rain": [0, 0.1], "precipitation": [0, 0.1]}}`

type fixture struct {
	objects *storage.MemoryStore
	tables  *store.MapTableStore
	layout  models.Layout
	logger  *logging.MockLogger
}

func newFixture() *fixture {
	objects := storage.NewMemoryStore()
	layout := models.DefaultLayout()
	logger := logging.NewMockLogger()
	return &fixture{
		objects: objects,
		tables:  store.NewMapTableStore(objects, layout, ',', logger),
		layout:  layout,
		logger:  logger,
	}
}

func (f *fixture) loader(sink Sink) *Loader {
	return NewLoader(f.objects, f.tables, reconciler.New(reconciler.Options{CaseSensitive: true}),
		LoaderConfig{Layout: f.layout, Delimiter: ','}, sink, f.logger)
}

func (f *fixture) put(t *testing.T, key string, data []byte) {
	t.Helper()
	_, err := f.objects.Put(context.Background(), key, data)
	require.NoError(t, err)
}

func (f *fixture) enriched(t *testing.T, date string) []models.EnrichedTrip {
	t.Helper()
	obj, err := f.objects.Get(context.Background(), f.layout.TransformedKey(models.KindTaxi, date))
	require.NoError(t, err)
	rows, err := common.UnmarshalCSV[models.EnrichedTrip](obj.Data, ',')
	require.NoError(t, err)
	return rows
}

func (f *fixture) table(t *testing.T, name string) models.MapTable {
	t.Helper()
	table, _, err := f.tables.Load(context.Background(), name)
	require.NoError(t, err)
	return table
}

type recordingSink struct {
	trips   int
	weather int
	err     error
}

func (s *recordingSink) InsertTrips(_ context.Context, _ string, trips []models.EnrichedTrip) error {
	s.trips += len(trips)
	return s.err
}

func (s *recordingSink) InsertWeather(_ context.Context, _ string, obs []models.WeatherObservation) error {
	s.weather += len(obs)
	return s.err
}

func TestLoad_FirstRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.put(t, "raw_data/to_processed/taxi_data/taxi_raw_2024-02-01.json", taxiPayload(
		trip("t1", "Cash", "Flash Cab"),
		trip("t2", "Credit Card", "Flash Cab"),
		trip("t3", "Cash", "Sun Taxi"),
		trip("t4", "", "Sun Taxi"),
	))
	f.put(t, "raw_data/to_processed/weather_data/weather_raw_2024-02-01.json", []byte(weatherPayload))

	sink := &recordingSink{}
	report, err := f.loader(sink).Load(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Files, 2)
	assert.Equal(t, 0, report.Failed())
	assert.Equal(t, 4, report.Stats.Total)
	assert.Equal(t, 3, report.Stats.Enriched)
	assert.Equal(t, 1, report.Stats.Rejected)
	require.Len(t, report.Rejections, 1)
	assert.Equal(t, "t4", report.Rejections[0].TripID)
	assert.Equal(t, models.FieldPaymentType, report.Rejections[0].Field)
	assert.Equal(t, 2, report.TableSizes[models.TablePaymentType])

	pt := f.table(t, models.TablePaymentType)
	id, ok := pt.Lookup("Cash")
	require.True(t, ok)
	assert.Equal(t, int64(0), id)
	id, _ = pt.Lookup("Credit Card")
	assert.Equal(t, int64(1), id)

	rows := f.enriched(t, "2024-02-01")
	require.Len(t, rows, 3)
	assert.Equal(t, []int64{0, 1, 0}, []int64{rows[0].PaymentTypeID, rows[1].PaymentTypeID, rows[2].PaymentTypeID})
	assert.Equal(t, "t1", rows[0].TripID)
	assert.Equal(t, time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC), rows[0].DatetimeForWeather)

	_, err = f.objects.Get(ctx, "raw_data/processed/taxi_data/taxi_raw_2024-02-01.json")
	assert.NoError(t, err, "raw file is moved once loaded")
	pending, err := f.objects.List(ctx, "raw_data/to_processed/")
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = f.objects.Get(ctx, "transformed_data/weather/weather_2024-02-01.csv")
	assert.NoError(t, err)
	assert.Equal(t, 3, sink.trips)
	assert.Equal(t, 2, sink.weather)
}

func TestLoad_ExistingTablesKeepTheirIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	seed, err := models.NewMapTable(models.TablePaymentType, []models.MapEntry{{Key: "Cash", SurrogateID: 0}})
	require.NoError(t, err)
	_, err = f.tables.Save(ctx, seed, "")
	require.NoError(t, err)

	f.put(t, "raw_data/to_processed/taxi_data/taxi_raw_2024-02-02.json", taxiPayload(
		trip("t1", "Cash", "Flash Cab"),
		trip("t2", "Mobile", "Flash Cab"),
	))

	_, err = f.loader(nil).Load(ctx)
	require.NoError(t, err)

	pt := f.table(t, models.TablePaymentType)
	assert.Equal(t, []models.MapEntry{{Key: "Cash", SurrogateID: 0}, {Key: "Mobile", SurrogateID: 1}}, pt.SortedEntries())

	rows := f.enriched(t, "2024-02-02")
	require.Len(t, rows, 2)
	assert.Equal(t, int64(0), rows[0].PaymentTypeID)
	assert.Equal(t, int64(1), rows[1].PaymentTypeID)

	backup, err := f.tables.Backup(ctx, models.TablePaymentType)
	require.NoError(t, err)
	assert.Equal(t, seed.SortedEntries(), backup.SortedEntries())
}

func TestLoad_RerunAfterInterruptionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	raw := taxiPayload(trip("t1", "Cash", "Flash Cab"), trip("t2", "Mobile", "Sun Taxi"))
	f.put(t, "raw_data/to_processed/taxi_data/taxi_raw_2024-02-03.json", raw)

	_, err := f.loader(nil).Load(ctx)
	require.NoError(t, err)
	first := f.enriched(t, "2024-02-03")
	tablesAfterFirst := f.table(t, models.TableCompany).SortedEntries()

	// Put the raw file back as if the move had never happened.
	f.put(t, "raw_data/to_processed/taxi_data/taxi_raw_2024-02-03.json", raw)
	report, err := f.loader(nil).Load(ctx)
	require.NoError(t, err)

	assert.Empty(t, report.Added, "a replayed batch adds no entries")
	assert.Equal(t, tablesAfterFirst, f.table(t, models.TableCompany).SortedEntries())
	assert.Equal(t, first, f.enriched(t, "2024-02-03"))
}

func TestLoad_MultipleFilesShareTables(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.put(t, "raw_data/to_processed/taxi_data/taxi_raw_2024-02-01.json", taxiPayload(trip("a", "Cash", "Flash Cab")))
	f.put(t, "raw_data/to_processed/taxi_data/taxi_raw_2024-02-02.json", taxiPayload(trip("b", "Mobile", "Flash Cab")))

	report, err := f.loader(nil).Load(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Added[models.TablePaymentType], 2)
	assert.Equal(t, 1, report.TableSizes[models.TableCompany])

	assert.Equal(t, int64(1), f.enriched(t, "2024-02-02")[0].PaymentTypeID)
}

func TestLoad_BadFileIsReportedAndRunContinues(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.put(t, "raw_data/to_processed/taxi_data/taxi_raw_2024-02-01.json", []byte(`{"not": "a list"}`))
	f.put(t, "raw_data/to_processed/taxi_data/taxi_raw_2024-02-02.json", taxiPayload(trip("b", "Cash", "Flash Cab")))
	f.put(t, "raw_data/to_processed/taxi_data/notes.txt", []byte("ignored"))

	report, err := f.loader(nil).Load(ctx)
	require.NoError(t, err)
	require.Len(t, report.Files, 2)
	assert.Equal(t, StatusFailed, report.Files[0].Status)
	assert.NotEmpty(t, report.Files[0].Error)
	assert.Equal(t, StatusProcessed, report.Files[1].Status)
	assert.Equal(t, 1, report.Failed())

	_, err = f.objects.Get(ctx, "raw_data/to_processed/taxi_data/taxi_raw_2024-02-01.json")
	assert.NoError(t, err, "failed files stay in place")
	assert.True(t, f.logger.HasEntry("ERROR", "File processing failed"))
}

func TestLoad_SinkFailureKeepsRawFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.put(t, "raw_data/to_processed/taxi_data/taxi_raw_2024-02-01.json", taxiPayload(trip("a", "Cash", "Flash Cab")))

	report, err := f.loader(&recordingSink{err: errors.New("quota exceeded")}).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed())
	assert.Contains(t, report.Files[0].Error, "quota exceeded")

	_, err = f.objects.Get(ctx, "raw_data/to_processed/taxi_data/taxi_raw_2024-02-01.json")
	assert.NoError(t, err)
	assert.True(t, f.table(t, models.TablePaymentType).Has("Cash"), "tables are saved before the sink runs")
}

func TestLoad_LostRaceAbortsRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.put(t, "raw_data/to_processed/taxi_data/taxi_raw_2024-02-01.json", taxiPayload(trip("a", "Cash", "Flash Cab")))

	tables := store.NewMockTableStore()
	tables.SaveError = fmt.Errorf("save: %w", storage.ErrPreconditionFailed)
	loader := NewLoader(f.objects, tables, reconciler.New(reconciler.Options{CaseSensitive: true}),
		LoaderConfig{Layout: f.layout, Delimiter: ','}, nil, f.logger)

	report, err := loader.Load(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrPreconditionFailed)
	assert.NotEmpty(t, report.Error)
	assert.Equal(t, 1, report.Failed())

	_, err = f.objects.Get(ctx, f.layout.TransformedKey(models.KindTaxi, "2024-02-01"))
	assert.ErrorIs(t, err, storage.ErrNotFound, "no trips are written without their table entries")
}

func TestLoad_ConflictsReportedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.put(t, "raw_data/to_processed/taxi_data/taxi_raw_2024-02-01.json", taxiPayload(
		trip("a", "Cash", "Flash Cab"),
		trip("b", "CASH", "Flash Cab"),
	))

	report, err := f.loader(nil).Load(ctx)
	require.NoError(t, err)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, models.TablePaymentType, report.Conflicts[0].Table)
	assert.ElementsMatch(t, []string{"CASH", "Cash"}, report.Conflicts[0].Variants)
}

func TestLoad_NothingPending(t *testing.T) {
	f := newFixture()
	report, err := f.loader(nil).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Files)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

type stubFetcher struct {
	data []byte
	err  error
	days []time.Time
}

func (s *stubFetcher) FetchDay(_ context.Context, day time.Time) ([]byte, error) {
	s.days = append(s.days, day)
	return s.data, s.err
}

func TestExtract(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	taxi := &stubFetcher{data: []byte("[]")}
	weather := &stubFetcher{data: []byte(weatherPayload)}
	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	result, err := NewExtractor(taxi, weather, f.objects, f.layout, f.logger).Extract(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", result.Day)
	assert.Equal(t, []string{
		"raw_data/to_processed/taxi_data/taxi_raw_2024-02-01.json",
		"raw_data/to_processed/weather_data/weather_raw_2024-02-01.json",
	}, result.Keys)
	assert.Equal(t, []time.Time{day}, taxi.days)

	obj, err := f.objects.Get(ctx, result.Keys[1])
	require.NoError(t, err)
	assert.Equal(t, weatherPayload, string(obj.Data))
}

func TestExtract_FetchFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	taxi := &stubFetcher{data: []byte("[]")}
	weather := &stubFetcher{err: errors.New("boom")}

	_, err := NewExtractor(taxi, weather, f.objects, f.layout, nil).Extract(ctx, time.Now())
	require.Error(t, err)
	keys, err := f.objects.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestExtractThenLoad(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	taxi := &stubFetcher{data: taxiPayload(trip("a", "Cash", "Flash Cab"))}
	weather := &stubFetcher{data: []byte(weatherPayload)}
	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	_, err := NewExtractor(taxi, weather, f.objects, f.layout, nil).Extract(ctx, day)
	require.NoError(t, err)
	report, err := f.loader(nil).Load(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Files, 2)
	assert.Equal(t, 0, report.Failed())
}

func TestDefaultDay(t *testing.T) {
	now := time.Date(2024, 4, 15, 13, 45, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), DefaultDay(now, 2))
	assert.Equal(t, time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC), DefaultDay(now, 0))
}
