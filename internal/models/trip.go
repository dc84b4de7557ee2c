package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceTrip is one row of the Chicago taxi trips dataset as served by the
// Socrata API. Every value arrives as a string and any of them may be absent.
type SourceTrip struct {
	TripID                   *string `json:"trip_id"`
	TaxiID                   *string `json:"taxi_id"`
	TripStartTimestamp       *string `json:"trip_start_timestamp"`
	TripEndTimestamp         *string `json:"trip_end_timestamp"`
	TripSeconds              *string `json:"trip_seconds"`
	TripMiles                *string `json:"trip_miles"`
	PickupCommunityArea      *string `json:"pickup_community_area"`
	DropoffCommunityArea     *string `json:"dropoff_community_area"`
	Fare                     *string `json:"fare"`
	Tips                     *string `json:"tips"`
	Tolls                    *string `json:"tolls"`
	Extras                   *string `json:"extras"`
	TripTotal                *string `json:"trip_total"`
	PaymentType              *string `json:"payment_type"`
	Company                  *string `json:"company"`
	PickupCentroidLatitude   *string `json:"pickup_centroid_latitude"`
	PickupCentroidLongitude  *string `json:"pickup_centroid_longitude"`
	DropoffCentroidLatitude  *string `json:"dropoff_centroid_latitude"`
	DropoffCentroidLongitude *string `json:"dropoff_centroid_longitude"`
}

// Trip holds the typed, cleaned fields shared by raw and enriched trips.
type Trip struct {
	TripID                 string          `csv:"trip_id" json:"trip_id"`
	TaxiID                 string          `csv:"taxi_id" json:"taxi_id"`
	TripStartTimestamp     time.Time       `csv:"trip_start_timestamp" json:"trip_start_timestamp"`
	TripEndTimestamp       time.Time       `csv:"trip_end_timestamp" json:"trip_end_timestamp"`
	TripSeconds            int64           `csv:"trip_seconds" json:"trip_seconds"`
	TripMiles              decimal.Decimal `csv:"trip_miles" json:"trip_miles"`
	PickupCommunityAreaID  int64           `csv:"pickup_community_area_id" json:"pickup_community_area_id"`
	DropoffCommunityAreaID int64           `csv:"dropoff_community_area_id" json:"dropoff_community_area_id"`
	Fare                   decimal.Decimal `csv:"fare" json:"fare"`
	Tips                   decimal.Decimal `csv:"tips" json:"tips"`
	Tolls                  decimal.Decimal `csv:"tolls" json:"tolls"`
	Extras                 decimal.Decimal `csv:"extras" json:"extras"`
	TripTotal              decimal.Decimal `csv:"trip_total" json:"trip_total"`
	PickupLatitude         float64         `csv:"pickup_centroid_latitude" json:"pickup_centroid_latitude"`
	PickupLongitude        float64         `csv:"pickup_centroid_longitude" json:"pickup_centroid_longitude"`
	DropoffLatitude        float64         `csv:"dropoff_centroid_latitude" json:"dropoff_centroid_latitude"`
	DropoffLongitude       float64         `csv:"dropoff_centroid_longitude" json:"dropoff_centroid_longitude"`
	DatetimeForWeather     time.Time       `csv:"datetime_for_weather" json:"datetime_for_weather"`
}

// RawTrip is a cleaned trip that still carries its categorical fields as
// free text. It is the input of reconciliation.
type RawTrip struct {
	Trip
	PaymentType string `csv:"payment_type" json:"payment_type"`
	Company     string `csv:"company" json:"company"`
}

// EnrichedTrip is a trip whose categorical fields were replaced by map table
// surrogate ids.
type EnrichedTrip struct {
	Trip
	PaymentTypeID int64 `csv:"payment_type_id" json:"payment_type_id"`
	CompanyID     int64 `csv:"company_id" json:"company_id"`
}
