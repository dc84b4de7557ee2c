package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"dzs/taxi-etl/internal/models"
)

// Storage backends.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendGCS    = "gcs"
)

// Config represents the complete application configuration
type Config struct {
	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
	} `mapstructure:"log" yaml:"log"`

	CSV struct {
		Delimiter string `mapstructure:"delimiter" yaml:"delimiter"`
	} `mapstructure:"csv" yaml:"csv"`

	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	Layout models.Layout `mapstructure:"layout" yaml:"layout"`

	Reconcile struct {
		CaseSensitive bool `mapstructure:"case_sensitive" yaml:"case_sensitive"`
	} `mapstructure:"reconcile" yaml:"reconcile"`

	Sources struct {
		Taxi    TaxiSourceConfig    `mapstructure:"taxi" yaml:"taxi"`
		Weather WeatherSourceConfig `mapstructure:"weather" yaml:"weather"`
	} `mapstructure:"sources" yaml:"sources"`

	Extract struct {
		LagMonths int `mapstructure:"lag_months" yaml:"lag_months"`
	} `mapstructure:"extract" yaml:"extract"`

	Schedule struct {
		Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
		Cron    string `mapstructure:"cron" yaml:"cron"`
	} `mapstructure:"schedule" yaml:"schedule"`

	Server struct {
		Address string `mapstructure:"address" yaml:"address"`
	} `mapstructure:"server" yaml:"server"`

	Warehouse WarehouseConfig `mapstructure:"warehouse" yaml:"warehouse"`
}

// StorageConfig selects the object store backend.
type StorageConfig struct {
	Backend   string `mapstructure:"backend" yaml:"backend"`
	LocalRoot string `mapstructure:"local_root" yaml:"local_root"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
}

// HTTPSourceConfig holds the resilience settings shared by both sources.
type HTTPSourceConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries     int `mapstructure:"max_retries" yaml:"max_retries"`
}

// TaxiSourceConfig configures the Chicago Data Portal client.
type TaxiSourceConfig struct {
	HTTPSourceConfig `mapstructure:",squash" yaml:",inline"`
	URL              string `mapstructure:"url" yaml:"url"`
	AppToken         string `mapstructure:"app_token" yaml:"-"` // Never serialize the token
	Limit            int    `mapstructure:"limit" yaml:"limit"`
}

// WeatherSourceConfig configures the Open-Meteo client.
type WeatherSourceConfig struct {
	HTTPSourceConfig `mapstructure:",squash" yaml:",inline"`
	URL              string  `mapstructure:"url" yaml:"url"`
	Latitude         float64 `mapstructure:"latitude" yaml:"latitude"`
	Longitude        float64 `mapstructure:"longitude" yaml:"longitude"`
	Timezone         string  `mapstructure:"timezone" yaml:"timezone"`
}

// WarehouseConfig configures the optional BigQuery sink.
type WarehouseConfig struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
	ProjectID    string `mapstructure:"project_id" yaml:"project_id"`
	Dataset      string `mapstructure:"dataset" yaml:"dataset"`
	TripsTable   string `mapstructure:"trips_table" yaml:"trips_table"`
	WeatherTable string `mapstructure:"weather_table" yaml:"weather_table"`
	BatchSize    int    `mapstructure:"batch_size" yaml:"batch_size"`
}

// Timeout returns the per-request timeout.
func (c HTTPSourceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// flagBindings maps config keys to the root command's persistent flags.
var flagBindings = map[string]string{
	"log.level":          "log-level",
	"log.format":         "log-format",
	"csv.delimiter":      "csv-delimiter",
	"storage.backend":    "storage-backend",
	"storage.local_root": "local-root",
	"storage.bucket":     "bucket",
}

// InitializeConfig initializes Viper configuration with hierarchical loading
func InitializeConfig() (*Config, error) {
	return InitializeConfigWithFlags(nil)
}

// InitializeConfigWithFlags is InitializeConfig with command-line flags as
// the highest-priority source. A "config" flag, when set, names the config
// file explicitly.
func InitializeConfigWithFlags(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Config file locations
	if file := configFileFlag(flags); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.taxi-etl")
		v.AddConfigPath(".taxi-etl")
		v.AddConfigPath(".")
	}

	// 3. Environment variables
	v.SetEnvPrefix("TAXI_ETL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 4. Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	// 5. The Socrata app token keeps its conventional, unprefixed name
	if err := v.BindEnv("sources.taxi.app_token", "TAXI_ETL_SOURCES_TAXI_APP_TOKEN", "CHICAGO_API_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind CHICAGO_API_TOKEN: %w", err)
	}

	// 6. Flags override everything else
	if flags != nil {
		for key, name := range flagBindings {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 7. Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func configFileFlag(flags *pflag.FlagSet) string {
	if flags == nil {
		return ""
	}
	f := flags.Lookup("config")
	if f == nil {
		return ""
	}
	return f.Value.String()
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// CSV defaults
	v.SetDefault("csv.delimiter", ",")

	// Storage defaults
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.local_root", "data")
	v.SetDefault("storage.bucket", "")

	// Object layout defaults
	layout := models.DefaultLayout()
	v.SetDefault("layout.raw_taxi_prefix", layout.RawTaxiPrefix)
	v.SetDefault("layout.raw_weather_prefix", layout.RawWeatherPrefix)
	v.SetDefault("layout.processed_taxi_prefix", layout.ProcessedTaxiPrefix)
	v.SetDefault("layout.processed_weather_prefix", layout.ProcessedWeatherPrefix)
	v.SetDefault("layout.taxi_trips_prefix", layout.TaxiTripsPrefix)
	v.SetDefault("layout.weather_prefix", layout.WeatherPrefix)
	v.SetDefault("layout.map_table_prefix", layout.MapTablePrefix)
	v.SetDefault("layout.backup_prefix", layout.BackupPrefix)

	// Reconciliation defaults
	v.SetDefault("reconcile.case_sensitive", true)

	// Source defaults
	v.SetDefault("sources.taxi.url", "https://data.cityofchicago.org/resource/ajtu-isnz.json")
	v.SetDefault("sources.taxi.app_token", "")
	v.SetDefault("sources.taxi.limit", 30000)
	v.SetDefault("sources.taxi.timeout_seconds", 60)
	v.SetDefault("sources.taxi.max_retries", 3)
	v.SetDefault("sources.weather.url", "https://archive-api.open-meteo.com/v1/era5")
	v.SetDefault("sources.weather.latitude", 41.85)
	v.SetDefault("sources.weather.longitude", -87.65)
	v.SetDefault("sources.weather.timezone", "America/Chicago")
	v.SetDefault("sources.weather.timeout_seconds", 30)
	v.SetDefault("sources.weather.max_retries", 3)

	// Extract defaults
	v.SetDefault("extract.lag_months", 2)

	// Schedule defaults
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.cron", "0 6 * * *")

	// Server defaults
	v.SetDefault("server.address", ":8080")

	// Warehouse defaults
	v.SetDefault("warehouse.enabled", false)
	v.SetDefault("warehouse.project_id", "")
	v.SetDefault("warehouse.dataset", "chicago_taxi")
	v.SetDefault("warehouse.trips_table", "taxi_trips")
	v.SetDefault("warehouse.weather_table", "weather")
	v.SetDefault("warehouse.batch_size", 500)
}

// validateConfig validates the configuration values
func validateConfig(config *Config) error {
	// Validate log level
	if _, err := logrus.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", config.Log.Level)
	}

	// Validate log format
	if config.Log.Format != "text" && config.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", config.Log.Format)
	}

	// Validate CSV delimiter
	if len([]rune(config.CSV.Delimiter)) != 1 {
		return fmt.Errorf("CSV delimiter must be a single character, got: %s", config.CSV.Delimiter)
	}

	// Validate storage
	switch config.Storage.Backend {
	case BackendLocal:
		if config.Storage.LocalRoot == "" {
			return fmt.Errorf("storage.local_root is required for the local backend")
		}
	case BackendGCS:
		if config.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the gcs backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("invalid storage backend: %s (must be 'local', 'memory' or 'gcs')", config.Storage.Backend)
	}

	if config.Sources.Taxi.Limit < 1 {
		return fmt.Errorf("sources.taxi.limit must be positive, got: %d", config.Sources.Taxi.Limit)
	}
	for name, src := range map[string]HTTPSourceConfig{
		"taxi":    config.Sources.Taxi.HTTPSourceConfig,
		"weather": config.Sources.Weather.HTTPSourceConfig,
	} {
		if src.TimeoutSeconds < 1 || src.TimeoutSeconds > 600 {
			return fmt.Errorf("sources.%s.timeout_seconds must be between 1 and 600, got: %d", name, src.TimeoutSeconds)
		}
		if src.MaxRetries < 0 || src.MaxRetries > 10 {
			return fmt.Errorf("sources.%s.max_retries must be between 0 and 10, got: %d", name, src.MaxRetries)
		}
	}
	if _, err := time.LoadLocation(config.Sources.Weather.Timezone); err != nil {
		return fmt.Errorf("invalid sources.weather.timezone: %s", config.Sources.Weather.Timezone)
	}

	if config.Extract.LagMonths < 0 {
		return fmt.Errorf("extract.lag_months cannot be negative, got: %d", config.Extract.LagMonths)
	}

	if config.Schedule.Enabled {
		if _, err := cron.ParseStandard(config.Schedule.Cron); err != nil {
			return fmt.Errorf("invalid schedule.cron %q: %v", config.Schedule.Cron, err)
		}
	}

	if config.Warehouse.Enabled {
		if config.Warehouse.ProjectID == "" || config.Warehouse.Dataset == "" {
			return fmt.Errorf("warehouse.project_id and warehouse.dataset are required when the warehouse is enabled")
		}
	}

	return nil
}
