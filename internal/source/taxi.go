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

// DefaultTaxiURL is the Chicago Data Portal taxi trips dataset.
const DefaultTaxiURL = "https://data.cityofchicago.org/resource/ajtu-isnz.json"

// DefaultTaxiLimit caps the rows returned for one day.
const DefaultTaxiLimit = 30000

// TaxiConfig configures the Socrata client.
type TaxiConfig struct {
	BaseURL  string
	AppToken string
	Limit    int
	HTTP     HTTPClientConfig
}

// TaxiClient downloads one day of taxi trips as raw Socrata JSON.
type TaxiClient struct {
	cfg     TaxiConfig
	circuit *gobreaker.CircuitBreaker
	logger  logging.Logger
}

// NewTaxiClient creates a TaxiClient, filling unset fields with defaults.
func NewTaxiClient(cfg TaxiConfig, logger logging.Logger) *TaxiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTaxiURL
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultTaxiLimit
	}
	if cfg.HTTP.Client == nil {
		cfg.HTTP = DefaultHTTPClientConfig()
	}
	return &TaxiClient{
		cfg:     cfg,
		circuit: newCircuitBreaker("socrata"),
		logger:  logging.Component(logger, "taxi-source"),
	}
}

// FetchDay returns the trips that started on day.
func (c *TaxiClient) FetchDay(ctx context.Context, day time.Time) ([]byte, error) {
	d := day.Format(models.DayLayout)
	values := url.Values{}
	values.Set("$where", fmt.Sprintf("trip_start_timestamp >= '%sT00:00:00' AND trip_start_timestamp <= '%sT23:59:59'", d, d))
	values.Set("$limit", strconv.Itoa(c.cfg.Limit))
	u := c.cfg.BaseURL + "?" + values.Encode()

	build := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.cfg.AppToken != "" {
			req.Header.Set("X-App-Token", c.cfg.AppToken)
		}
		return req, nil
	}

	start := time.Now()
	body, err := fetch(ctx, c.cfg.HTTP, c.circuit, c.logger, build)
	if err != nil {
		return nil, fmt.Errorf("fetch taxi trips for %s: %w", d, err)
	}
	c.logger.Info("Taxi trips downloaded",
		logging.Field{Key: logging.FieldDay, Value: d},
		logging.Field{Key: logging.FieldCount, Value: len(body)},
		logging.Field{Key: logging.FieldDuration, Value: time.Since(start).String()})
	return body, nil
}
