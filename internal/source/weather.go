package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"dzs/taxi-etl/internal/logging"
	"dzs/taxi-etl/internal/models"
)

// Open-Meteo ERA5 archive defaults for central Chicago.
const (
	DefaultWeatherURL      = "https://archive-api.open-meteo.com/v1/era5"
	DefaultLatitude        = 41.85
	DefaultLongitude       = -87.65
	DefaultWeatherTimezone = "America/Chicago"
	weatherHourly          = "temperature_2m,wind_speed_10m,rain,precipitation"
)

// WeatherConfig configures the Open-Meteo client.
type WeatherConfig struct {
	BaseURL   string
	Latitude  float64
	Longitude float64
	Timezone  string
	HTTP      HTTPClientConfig
}

// WeatherClient downloads hourly weather for one day as raw Open-Meteo JSON.
type WeatherClient struct {
	cfg     WeatherConfig
	circuit *gobreaker.CircuitBreaker
	logger  logging.Logger
}

// NewWeatherClient creates a WeatherClient, filling unset fields with defaults.
func NewWeatherClient(cfg WeatherConfig, logger logging.Logger) *WeatherClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultWeatherURL
	}
	if cfg.Latitude == 0 && cfg.Longitude == 0 {
		cfg.Latitude, cfg.Longitude = DefaultLatitude, DefaultLongitude
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultWeatherTimezone
	}
	if cfg.HTTP.Client == nil {
		cfg.HTTP = DefaultHTTPClientConfig()
	}
	return &WeatherClient{
		cfg:     cfg,
		circuit: newCircuitBreaker("openmeteo"),
		logger:  logging.Component(logger, "weather-source"),
	}
}

// FetchDay returns the hourly observations for day.
func (c *WeatherClient) FetchDay(ctx context.Context, day time.Time) ([]byte, error) {
	d := day.Format(models.DayLayout)
	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(c.cfg.Latitude, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(c.cfg.Longitude, 'f', -1, 64))
	values.Set("start_date", d)
	values.Set("end_date", d)
	values.Set("hourly", weatherHourly)
	values.Set("timezone", c.cfg.Timezone)
	u := c.cfg.BaseURL + "?" + values.Encode()

	build := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	body, err := fetch(ctx, c.cfg.HTTP, c.circuit, c.logger, build)
	if err != nil {
		return nil, fmt.Errorf("fetch weather for %s: %w", d, err)
	}
	c.logger.Info("Weather downloaded",
		logging.Field{Key: logging.FieldDay, Value: d},
		logging.Field{Key: logging.FieldCount, Value: len(body)})
	return body, nil
}
