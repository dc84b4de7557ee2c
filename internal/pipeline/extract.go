// Package pipeline runs the extract and load stages of the taxi ETL.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"dzs/taxi-etl/internal/logging"
	"dzs/taxi-etl/internal/models"
	"dzs/taxi-etl/internal/storage"
)

// Fetcher downloads the raw payload of one day.
type Fetcher interface {
	FetchDay(ctx context.Context, day time.Time) ([]byte, error)
}

// ExtractResult lists the objects written by one extraction.
type ExtractResult struct {
	Day  string   `json:"day" yaml:"day"`
	Keys []string `json:"keys" yaml:"keys"`
}

// Extractor downloads taxi trips and weather for a day into the to-process
// prefixes of the object store.
type Extractor struct {
	taxi    Fetcher
	weather Fetcher
	objects storage.ObjectStore
	layout  models.Layout
	logger  logging.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(taxi, weather Fetcher, objects storage.ObjectStore, layout models.Layout, logger logging.Logger) *Extractor {
	return &Extractor{
		taxi:    taxi,
		weather: weather,
		objects: objects,
		layout:  layout,
		logger:  logging.Component(logger, "extract"),
	}
}

// DefaultDay returns the day lagMonths months before now. Trip data is
// published with a delay, so recent days are incomplete.
func DefaultDay(now time.Time, lagMonths int) time.Time {
	d := now.AddDate(0, -lagMonths, 0)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// Extract fetches both payloads for day and uploads them. Taxi data is
// fetched first; a failure stops the extraction before anything is written.
func (e *Extractor) Extract(ctx context.Context, day time.Time) (ExtractResult, error) {
	result := ExtractResult{Day: day.Format(models.DayLayout)}
	logger := e.logger.WithFields(logging.Field{Key: logging.FieldDay, Value: result.Day})

	sources := []struct {
		kind    string
		fetcher Fetcher
	}{
		{models.KindTaxi, e.taxi},
		{models.KindWeather, e.weather},
	}

	payloads := make([][]byte, len(sources))
	for i, src := range sources {
		data, err := src.fetcher.FetchDay(ctx, day)
		if err != nil {
			return result, fmt.Errorf("extract %s data: %w", src.kind, err)
		}
		payloads[i] = data
	}

	for i, src := range sources {
		key := e.layout.RawKey(src.kind, day)
		if _, err := e.objects.Put(ctx, key, payloads[i]); err != nil {
			return result, fmt.Errorf("upload %s data: %w", src.kind, err)
		}
		result.Keys = append(result.Keys, key)
		logger.Info("Raw data uploaded",
			logging.Field{Key: logging.FieldSource, Value: src.kind},
			logging.Field{Key: logging.FieldObjectKey, Value: key})
	}
	return result, nil
}
