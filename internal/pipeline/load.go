package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dzs/taxi-etl/internal/common"
	"dzs/taxi-etl/internal/logging"
	"dzs/taxi-etl/internal/models"
	"dzs/taxi-etl/internal/reconciler"
	"dzs/taxi-etl/internal/storage"
	"dzs/taxi-etl/internal/store"
	"dzs/taxi-etl/internal/transform"
)

// Sink receives the rows written by a load run, for example a warehouse.
type Sink interface {
	InsertTrips(ctx context.Context, runID string, trips []models.EnrichedTrip) error
	InsertWeather(ctx context.Context, runID string, observations []models.WeatherObservation) error
}

// LoaderConfig holds the object layout and CSV settings of a Loader.
type LoaderConfig struct {
	Layout    models.Layout
	Delimiter rune
}

// Loader transforms the raw objects waiting in the to-process prefixes,
// reconciles taxi trips against the map tables and writes the results.
type Loader struct {
	objects    storage.ObjectStore
	tables     store.TableStore
	reconciler *reconciler.Reconciler
	cfg        LoaderConfig
	sink       Sink
	logger     logging.Logger
	now        func() time.Time
}

// NewLoader creates a Loader. sink may be nil.
func NewLoader(objects storage.ObjectStore, tables store.TableStore, rec *reconciler.Reconciler, cfg LoaderConfig, sink Sink, logger logging.Logger) *Loader {
	return &Loader{
		objects:    objects,
		tables:     tables,
		reconciler: rec,
		cfg:        cfg,
		sink:       sink,
		logger:     logging.Component(logger, "load"),
		now:        time.Now,
	}
}

// tableState is a map table and the revision it was read or written at.
type tableState struct {
	table    models.MapTable
	revision string
}

// Load processes every pending object and returns the run report.
//
// Map tables are saved before the enriched trips are written and before the
// raw object is moved. A run interrupted after the save leaves the raw object
// in place, and the next run reconciles it again without adding entries.
// File-level failures are recorded and the run continues; a failed table save
// aborts the run.
func (l *Loader) Load(ctx context.Context) (*RunReport, error) {
	report := NewRunReport(uuid.NewString(), l.now().UTC())
	logger := l.logger.WithFields(logging.Field{Key: logging.FieldRunID, Value: report.RunID})
	logger.Info("Load run started")

	err := l.run(ctx, report, logger)
	report.FinishedAt = l.now().UTC()
	if err != nil {
		report.Error = err.Error()
		logger.WithError(err).Error("Load run aborted")
		return report, err
	}

	report.Stats.LogSummary(logger, models.KindTaxi)
	logger.Info("Load run finished",
		logging.Field{Key: logging.FieldCount, Value: len(report.Files)},
		logging.Field{Key: "failed_files", Value: report.Failed()},
		logging.Field{Key: logging.FieldDuration, Value: report.Duration().String()})
	return report, nil
}

func (l *Loader) run(ctx context.Context, report *RunReport, logger logging.Logger) error {
	states := map[string]*tableState{}
	for _, name := range []string{models.TablePaymentType, models.TableCompany} {
		table, revision, err := l.tables.Load(ctx, name)
		if err != nil {
			return err
		}
		states[name] = &tableState{table: table, revision: revision}
	}

	taxiKeys, err := l.pending(ctx, models.KindTaxi)
	if err != nil {
		return err
	}
	for _, key := range taxiKeys {
		fr, err := l.loadTaxi(ctx, key, states, report, logger)
		report.Files = append(report.Files, fr)
		if err != nil {
			return err
		}
	}

	weatherKeys, err := l.pending(ctx, models.KindWeather)
	if err != nil {
		return err
	}
	for _, key := range weatherKeys {
		report.Files = append(report.Files, l.loadWeather(ctx, key, report, logger))
	}

	for name, st := range states {
		report.TableSizes[name] = st.table.Len()
	}
	return nil
}

func (l *Loader) pending(ctx context.Context, kind string) ([]string, error) {
	keys, err := l.objects.List(ctx, l.cfg.Layout.RawPrefix(kind))
	if err != nil {
		return nil, fmt.Errorf("list pending %s objects: %w", kind, err)
	}
	var out []string
	for _, k := range keys {
		if strings.HasSuffix(k, ".json") {
			out = append(out, k)
		}
	}
	return out, nil
}

// loadTaxi processes one taxi object. The returned error aborts the run; file
// failures are reported in the FileReport only.
func (l *Loader) loadTaxi(ctx context.Context, key string, states map[string]*tableState, report *RunReport, logger logging.Logger) (FileReport, error) {
	fr := FileReport{Kind: models.KindTaxi, Key: key, Status: StatusFailed}
	logger = logger.WithFields(logging.Field{Key: logging.FieldObjectKey, Value: key})

	obj, err := l.objects.Get(ctx, key)
	if err != nil {
		return l.fileFailed(fr, err, logger), nil
	}
	parsed, err := transform.TaxiTrips(obj.Data)
	if err != nil {
		return l.fileFailed(fr, err, logger), nil
	}
	report.AddParseErrors(key, parsed.Rejected)

	tables := reconciler.Tables{
		PaymentType: states[models.TablePaymentType].table,
		Company:     states[models.TableCompany].table,
	}
	result, err := l.reconciler.Reconcile(parsed.Trips, tables)
	if err != nil {
		return l.fileFailed(fr, err, logger), fmt.Errorf("reconcile %s: %w", key, err)
	}
	report.AddMalformed(key, result.Rejected)
	report.AddConflicts(result.Conflicts)
	for _, c := range result.Conflicts {
		logger.Warn("Possible duplicate map table keys",
			logging.Field{Key: logging.FieldTable, Value: c.Table},
			logging.Field{Key: logging.FieldKey, Value: c.Variants})
	}

	for _, table := range []models.MapTable{result.Tables.PaymentType, result.Tables.Company} {
		added := result.Added[table.Name()]
		if len(added) == 0 {
			continue
		}
		st := states[table.Name()]
		revision, err := l.tables.Save(ctx, table, st.revision)
		if err != nil {
			return l.fileFailed(fr, err, logger), err
		}
		st.table, st.revision = table, revision
		report.Added[table.Name()] = append(report.Added[table.Name()], added...)
		for _, e := range added {
			logger.Info("Map table entry added",
				logging.Field{Key: logging.FieldTable, Value: table.Name()},
				logging.Field{Key: logging.FieldKey, Value: e.Key},
				logging.Field{Key: logging.FieldSurrogate, Value: e.SurrogateID})
		}
	}

	fr.Stats = result.Stats
	fr.Stats.Total += len(parsed.Rejected)
	fr.Stats.Rejected += len(parsed.Rejected)
	fr.Rejected = fr.Stats.Rejected
	report.Stats.Add(fr.Stats)

	fr.Output = l.cfg.Layout.TransformedKey(models.KindTaxi, dateOf(key, models.KindTaxi))
	data, err := common.MarshalCSV(result.Records, l.cfg.Delimiter)
	if err != nil {
		return l.fileFailed(fr, err, logger), nil
	}
	if _, err := l.objects.Put(ctx, fr.Output, data); err != nil {
		return l.fileFailed(fr, err, logger), nil
	}
	if l.sink != nil {
		if err := l.sink.InsertTrips(ctx, report.RunID, result.Records); err != nil {
			return l.fileFailed(fr, fmt.Errorf("warehouse insert: %w", err), logger), nil
		}
	}
	if err := storage.Move(ctx, l.objects, key, l.cfg.Layout.ProcessedKey(models.KindTaxi, storage.BaseName(key))); err != nil {
		return l.fileFailed(fr, err, logger), nil
	}

	fr.Status = StatusProcessed
	fr.Rows = len(result.Records)
	result.Stats.LogSummary(logger, key)
	return fr, nil
}

func (l *Loader) loadWeather(ctx context.Context, key string, report *RunReport, logger logging.Logger) FileReport {
	fr := FileReport{Kind: models.KindWeather, Key: key, Status: StatusFailed}
	logger = logger.WithFields(logging.Field{Key: logging.FieldObjectKey, Value: key})

	obj, err := l.objects.Get(ctx, key)
	if err != nil {
		return l.fileFailed(fr, err, logger)
	}
	parsed, err := transform.WeatherObservations(obj.Data)
	if err != nil {
		return l.fileFailed(fr, err, logger)
	}
	report.AddParseErrors(key, parsed.Rejected)
	fr.Rejected = len(parsed.Rejected)

	fr.Output = l.cfg.Layout.TransformedKey(models.KindWeather, dateOf(key, models.KindWeather))
	data, err := common.MarshalCSV(parsed.Observations, l.cfg.Delimiter)
	if err != nil {
		return l.fileFailed(fr, err, logger)
	}
	if _, err := l.objects.Put(ctx, fr.Output, data); err != nil {
		return l.fileFailed(fr, err, logger)
	}
	if l.sink != nil {
		if err := l.sink.InsertWeather(ctx, report.RunID, parsed.Observations); err != nil {
			return l.fileFailed(fr, fmt.Errorf("warehouse insert: %w", err), logger)
		}
	}
	if err := storage.Move(ctx, l.objects, key, l.cfg.Layout.ProcessedKey(models.KindWeather, storage.BaseName(key))); err != nil {
		return l.fileFailed(fr, err, logger)
	}

	fr.Status = StatusProcessed
	fr.Rows = len(parsed.Observations)
	logger.Info("Weather file loaded", logging.Field{Key: logging.FieldCount, Value: fr.Rows})
	return fr
}

func (l *Loader) fileFailed(fr FileReport, err error, logger logging.Logger) FileReport {
	fr.Status = StatusFailed
	fr.Error = err.Error()
	if errors.Is(err, context.Canceled) {
		logger.Warn("File processing canceled")
	} else {
		logger.WithError(err).Error("File processing failed")
	}
	return fr
}

// dateOf extracts the date from a raw object name such as
// taxi_raw_2024-02-01.json. Unexpected names are used as they are.
func dateOf(key, kind string) string {
	base := strings.TrimSuffix(storage.BaseName(key), ".json")
	return strings.TrimPrefix(base, kind+"_raw_")
}
