package models

import "time"

// WeatherResponse is the subset of an Open-Meteo archive response the
// pipeline reads. Hourly values are parallel arrays indexed by Time.
type WeatherResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	Hourly    struct {
		Time          []string   `json:"time"`
		Temperature2m []*float64 `json:"temperature_2m"`
		WindSpeed10m  []*float64 `json:"wind_speed_10m"`
		Rain          []*float64 `json:"rain"`
		Precipitation []*float64 `json:"precipitation"`
	} `json:"hourly"`
}

// WeatherObservation is one hourly weather row.
type WeatherObservation struct {
	Datetime      time.Time `csv:"datetime" json:"datetime"`
	Temperature   float64   `csv:"temperature" json:"temperature"`
	WindSpeed     float64   `csv:"wind_speed" json:"wind_speed"`
	Rain          float64   `csv:"rain" json:"rain"`
	Precipitation float64   `csv:"precipitation" json:"precipitation"`
}
