// Package warehouse streams loaded rows into BigQuery.
package warehouse

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"

	"dzs/taxi-etl/internal/logging"
	"dzs/taxi-etl/internal/models"
)

const defaultBatchSize = 500

// Config names the BigQuery destination.
type Config struct {
	ProjectID    string
	Dataset      string
	TripsTable   string
	WeatherTable string
	BatchSize    int
}

// Inserter is the streaming insert call of *bigquery.Inserter.
type Inserter interface {
	Put(ctx context.Context, src interface{}) error
}

// TripRow is the BigQuery shape of an enriched trip.
type TripRow struct {
	TripID                 string    `bigquery:"trip_id"`
	TaxiID                 string    `bigquery:"taxi_id"`
	TripStartTimestamp     time.Time `bigquery:"trip_start_timestamp"`
	TripEndTimestamp       time.Time `bigquery:"trip_end_timestamp"`
	TripSeconds            int64     `bigquery:"trip_seconds"`
	TripMiles              *big.Rat  `bigquery:"trip_miles"` // NUMERIC
	PickupCommunityAreaID  int64     `bigquery:"pickup_community_area_id"`
	DropoffCommunityAreaID int64     `bigquery:"dropoff_community_area_id"`
	Fare                   *big.Rat  `bigquery:"fare"`
	Tips                   *big.Rat  `bigquery:"tips"`
	Tolls                  *big.Rat  `bigquery:"tolls"`
	Extras                 *big.Rat  `bigquery:"extras"`
	TripTotal              *big.Rat  `bigquery:"trip_total"`
	PaymentTypeID          int64     `bigquery:"payment_type_id"`
	CompanyID              int64     `bigquery:"company_id"`
	PickupLatitude         float64   `bigquery:"pickup_centroid_latitude"`
	PickupLongitude        float64   `bigquery:"pickup_centroid_longitude"`
	DropoffLatitude        float64   `bigquery:"dropoff_centroid_latitude"`
	DropoffLongitude       float64   `bigquery:"dropoff_centroid_longitude"`
	DatetimeForWeather     time.Time `bigquery:"datetime_for_weather"`
	RunID                  string    `bigquery:"run_id"`
}

// WeatherRow is the BigQuery shape of an hourly observation.
type WeatherRow struct {
	Datetime      time.Time `bigquery:"datetime"`
	Temperature   float64   `bigquery:"temperature"`
	WindSpeed     float64   `bigquery:"wind_speed"`
	Rain          float64   `bigquery:"rain"`
	Precipitation float64   `bigquery:"precipitation"`
	RunID         string    `bigquery:"run_id"`
}

// Sink inserts trips and weather rows. Rows carry an insert id so BigQuery
// drops the duplicates of a replayed file.
type Sink struct {
	client    *bigquery.Client
	trips     Inserter
	weather   Inserter
	batchSize int
	logger    logging.Logger
}

// NewSink opens a BigQuery client for cfg.
func NewSink(ctx context.Context, cfg Config, logger logging.Logger) (*Sink, error) {
	if cfg.ProjectID == "" || cfg.Dataset == "" {
		return nil, fmt.Errorf("warehouse project and dataset are required")
	}
	client, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewSink: creating client: %w", err)
	}
	ds := client.Dataset(cfg.Dataset)
	s := NewSinkWithInserters(ds.Table(cfg.TripsTable).Inserter(), ds.Table(cfg.WeatherTable).Inserter(), cfg.BatchSize, logger)
	s.client = client
	return s, nil
}

// NewSinkWithInserters creates a Sink over existing inserters.
func NewSinkWithInserters(trips, weather Inserter, batchSize int, logger logging.Logger) *Sink {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Sink{
		trips:     trips,
		weather:   weather,
		batchSize: batchSize,
		logger:    logging.Component(logger, "warehouse"),
	}
}

// Close closes the BigQuery client connection.
func (s *Sink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// InsertTrips streams trips in batches.
func (s *Sink) InsertTrips(ctx context.Context, runID string, trips []models.EnrichedTrip) error {
	rows := make([]*bigquery.StructSaver, len(trips))
	for i, t := range trips {
		rows[i] = &bigquery.StructSaver{Struct: NewTripRow(runID, t), InsertID: t.TripID}
	}
	if err := s.put(ctx, s.trips, rows); err != nil {
		return fmt.Errorf("InsertTrips: inserting rows: %w", err)
	}
	s.logger.Info("Trips inserted",
		logging.Field{Key: logging.FieldRunID, Value: runID},
		logging.Field{Key: logging.FieldCount, Value: len(rows)})
	return nil
}

// InsertWeather streams weather observations in batches.
func (s *Sink) InsertWeather(ctx context.Context, runID string, observations []models.WeatherObservation) error {
	rows := make([]*bigquery.StructSaver, len(observations))
	for i, o := range observations {
		rows[i] = &bigquery.StructSaver{
			Struct:   NewWeatherRow(runID, o),
			InsertID: o.Datetime.Format(models.OpenMeteoTimeLayout),
		}
	}
	if err := s.put(ctx, s.weather, rows); err != nil {
		return fmt.Errorf("InsertWeather: inserting rows: %w", err)
	}
	s.logger.Info("Weather inserted",
		logging.Field{Key: logging.FieldRunID, Value: runID},
		logging.Field{Key: logging.FieldCount, Value: len(rows)})
	return nil
}

func (s *Sink) put(ctx context.Context, inserter Inserter, rows []*bigquery.StructSaver) error {
	for start := 0; start < len(rows); start += s.batchSize {
		end := min(start+s.batchSize, len(rows))
		if err := inserter.Put(ctx, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// NewTripRow converts an enriched trip to its BigQuery row.
func NewTripRow(runID string, t models.EnrichedTrip) TripRow {
	return TripRow{
		TripID:                 t.TripID,
		TaxiID:                 t.TaxiID,
		TripStartTimestamp:     t.TripStartTimestamp,
		TripEndTimestamp:       t.TripEndTimestamp,
		TripSeconds:            t.TripSeconds,
		TripMiles:              t.TripMiles.Rat(),
		PickupCommunityAreaID:  t.PickupCommunityAreaID,
		DropoffCommunityAreaID: t.DropoffCommunityAreaID,
		Fare:                   t.Fare.Rat(),
		Tips:                   t.Tips.Rat(),
		Tolls:                  t.Tolls.Rat(),
		Extras:                 t.Extras.Rat(),
		TripTotal:              t.TripTotal.Rat(),
		PaymentTypeID:          t.PaymentTypeID,
		CompanyID:              t.CompanyID,
		PickupLatitude:         t.PickupLatitude,
		PickupLongitude:        t.PickupLongitude,
		DropoffLatitude:        t.DropoffLatitude,
		DropoffLongitude:       t.DropoffLongitude,
		DatetimeForWeather:     t.DatetimeForWeather,
		RunID:                  runID,
	}
}

// NewWeatherRow converts an observation to its BigQuery row.
func NewWeatherRow(runID string, o models.WeatherObservation) WeatherRow {
	return WeatherRow{
		Datetime:      o.Datetime,
		Temperature:   o.Temperature,
		WindSpeed:     o.WindSpeed,
		Rain:          o.Rain,
		Precipitation: o.Precipitation,
		RunID:         runID,
	}
}
