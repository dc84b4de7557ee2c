package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLayout_Keys(t *testing.T) {
	l := DefaultLayout()
	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "raw_data/to_processed/taxi_data/", l.RawPrefix(KindTaxi))
	assert.Equal(t, "raw_data/to_processed/weather_data/", l.RawPrefix(KindWeather))
	assert.Equal(t, "raw_data/to_processed/taxi_data/taxi_raw_2024-02-01.json", l.RawKey(KindTaxi, day))
	assert.Equal(t, "raw_data/to_processed/weather_data/weather_raw_2024-02-01.json", l.RawKey(KindWeather, day))
	assert.Equal(t, "raw_data/processed/taxi_data/taxi_raw_2024-02-01.json", l.ProcessedKey(KindTaxi, "taxi_raw_2024-02-01.json"))
	assert.Equal(t, "transformed_data/taxi_trips/taxi_2024-02-01.csv", l.TransformedKey(KindTaxi, "2024-02-01"))
	assert.Equal(t, "transformed_data/weather/weather_2024-02-01.csv", l.TransformedKey(KindWeather, "2024-02-01"))
	assert.Equal(t, "transformed_data/payment_type/payment_type_map_table.csv", l.MapTableKey(TablePaymentType))
	assert.Equal(t, "transformed_data/master_table_previous_version/company_map_table_previous_version.csv", l.BackupKey(TableCompany))
}
