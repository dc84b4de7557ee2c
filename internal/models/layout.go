package models

import (
	"fmt"
	"path"
	"time"
)

// Layout names the object keys the pipeline reads and writes. Prefixes end
// without a slash; keys are joined with "/".
type Layout struct {
	RawTaxiPrefix          string `mapstructure:"raw_taxi_prefix" yaml:"raw_taxi_prefix"`
	RawWeatherPrefix       string `mapstructure:"raw_weather_prefix" yaml:"raw_weather_prefix"`
	ProcessedTaxiPrefix    string `mapstructure:"processed_taxi_prefix" yaml:"processed_taxi_prefix"`
	ProcessedWeatherPrefix string `mapstructure:"processed_weather_prefix" yaml:"processed_weather_prefix"`
	TaxiTripsPrefix        string `mapstructure:"taxi_trips_prefix" yaml:"taxi_trips_prefix"`
	WeatherPrefix          string `mapstructure:"weather_prefix" yaml:"weather_prefix"`
	MapTablePrefix         string `mapstructure:"map_table_prefix" yaml:"map_table_prefix"`
	BackupPrefix           string `mapstructure:"backup_prefix" yaml:"backup_prefix"`
}

// DefaultLayout mirrors the bucket layout the pipeline has always used.
func DefaultLayout() Layout {
	return Layout{
		RawTaxiPrefix:          "raw_data/to_processed/taxi_data",
		RawWeatherPrefix:       "raw_data/to_processed/weather_data",
		ProcessedTaxiPrefix:    "raw_data/processed/taxi_data",
		ProcessedWeatherPrefix: "raw_data/processed/weather_data",
		TaxiTripsPrefix:        "transformed_data/taxi_trips",
		WeatherPrefix:          "transformed_data/weather",
		MapTablePrefix:         "transformed_data",
		BackupPrefix:           "transformed_data/master_table_previous_version",
	}
}

// RawPrefix returns the to-process prefix for kind, with a trailing slash
// suitable for listing.
func (l Layout) RawPrefix(kind string) string {
	if kind == KindWeather {
		return l.RawWeatherPrefix + "/"
	}
	return l.RawTaxiPrefix + "/"
}

// RawKey is where the extractor uploads the payload of kind for day.
func (l Layout) RawKey(kind string, day time.Time) string {
	return l.RawPrefix(kind) + fmt.Sprintf("%s_raw_%s.json", kind, day.Format(DayLayout))
}

// ProcessedKey is where a raw object named base is moved once loaded.
func (l Layout) ProcessedKey(kind, base string) string {
	if kind == KindWeather {
		return path.Join(l.ProcessedWeatherPrefix, base)
	}
	return path.Join(l.ProcessedTaxiPrefix, base)
}

// TransformedKey is the CSV written for a raw object of kind for the given
// date string.
func (l Layout) TransformedKey(kind, date string) string {
	if kind == KindWeather {
		return path.Join(l.WeatherPrefix, fmt.Sprintf("weather_%s.csv", date))
	}
	return path.Join(l.TaxiTripsPrefix, fmt.Sprintf("taxi_%s.csv", date))
}

// MapTableKey is the current version of a map table.
func (l Layout) MapTableKey(table string) string {
	return path.Join(l.MapTablePrefix, table, table+"_map_table.csv")
}

// BackupKey holds the version a map table had before the last save.
func (l Layout) BackupKey(table string) string {
	return path.Join(l.BackupPrefix, table+"_map_table_previous_version.csv")
}
