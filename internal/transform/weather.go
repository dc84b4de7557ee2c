package transform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"dzs/taxi-etl/internal/etlerror"
	"dzs/taxi-etl/internal/models"
)

// WeatherResult is the outcome of transforming one weather payload.
type WeatherResult struct {
	Observations []models.WeatherObservation
	Rejected     []*etlerror.ParseError
}

// WeatherObservations turns the hourly arrays of an Open-Meteo response into
// rows. Hours with a null measurement are rejected. Arrays of different
// lengths make the whole payload invalid.
func WeatherObservations(data []byte) (WeatherResult, error) {
	var resp models.WeatherResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return WeatherResult{}, fmt.Errorf("decode weather payload: %w", err)
	}

	h := resp.Hourly
	n := len(h.Time)
	series := map[string][]*float64{
		"temperature_2m": h.Temperature2m,
		"wind_speed_10m": h.WindSpeed10m,
		"rain":           h.Rain,
		"precipitation":  h.Precipitation,
	}
	for field, values := range series {
		if len(values) != n {
			return WeatherResult{}, &etlerror.ParseError{
				Source: models.KindWeather,
				Field:  field,
				Value:  strconv.Itoa(len(values)),
				Err:    fmt.Errorf("expected %d hourly values", n),
			}
		}
	}

	result := WeatherResult{Observations: make([]models.WeatherObservation, 0, n)}
	for i := 0; i < n; i++ {
		p := rowParser{source: models.KindWeather, row: i}
		ts, err := time.Parse(models.OpenMeteoTimeLayout, h.Time[i])
		if err != nil {
			p.fail("time", h.Time[i], err)
		}
		obs := models.WeatherObservation{
			Datetime:      ts,
			Temperature:   p.measure("temperature_2m", h.Temperature2m[i]),
			WindSpeed:     p.measure("wind_speed_10m", h.WindSpeed10m[i]),
			Rain:          p.measure("rain", h.Rain[i]),
			Precipitation: p.measure("precipitation", h.Precipitation[i]),
		}
		if p.err != nil {
			result.Rejected = append(result.Rejected, p.err)
			continue
		}
		result.Observations = append(result.Observations, obs)
	}
	return result, nil
}

func (p *rowParser) measure(field string, v *float64) float64 {
	if v == nil {
		p.fail(field, "null", ErrMissingValue)
		return 0
	}
	return *v
}
