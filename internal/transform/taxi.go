// Package transform turns raw source payloads into typed rows.
package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dzs/taxi-etl/internal/etlerror"
	"dzs/taxi-etl/internal/models"
)

// ErrMissingValue is wrapped by a ParseError when a required field is absent.
var ErrMissingValue = errors.New("value is missing")

// TaxiResult is the outcome of transforming one taxi payload.
type TaxiResult struct {
	Trips    []models.RawTrip
	Rejected []*etlerror.ParseError
}

// TaxiTrips decodes a Socrata payload and converts every row to a RawTrip.
// Rows with a missing or unparsable non-categorical field are rejected; the
// categorical fields are passed through as found.
func TaxiTrips(data []byte) (TaxiResult, error) {
	var rows []models.SourceTrip
	if err := json.Unmarshal(data, &rows); err != nil {
		return TaxiResult{}, fmt.Errorf("decode taxi payload: %w", err)
	}

	result := TaxiResult{Trips: make([]models.RawTrip, 0, len(rows))}
	for i, row := range rows {
		trip, err := taxiTrip(i, row)
		if err != nil {
			result.Rejected = append(result.Rejected, err)
			continue
		}
		result.Trips = append(result.Trips, trip)
	}
	return result, nil
}

func taxiTrip(index int, row models.SourceTrip) (models.RawTrip, *etlerror.ParseError) {
	p := rowParser{source: models.KindTaxi, row: index}

	trip := models.Trip{
		TripID:                 p.str("trip_id", row.TripID),
		TaxiID:                 p.str("taxi_id", row.TaxiID),
		TripStartTimestamp:     p.timestamp("trip_start_timestamp", row.TripStartTimestamp),
		TripEndTimestamp:       p.timestamp("trip_end_timestamp", row.TripEndTimestamp),
		TripSeconds:            p.integer("trip_seconds", row.TripSeconds),
		TripMiles:              p.decimal("trip_miles", row.TripMiles),
		PickupCommunityAreaID:  p.integer("pickup_community_area", row.PickupCommunityArea),
		DropoffCommunityAreaID: p.integer("dropoff_community_area", row.DropoffCommunityArea),
		Fare:                   p.decimal("fare", row.Fare),
		Tips:                   p.decimal("tips", row.Tips),
		Tolls:                  p.decimal("tolls", row.Tolls),
		Extras:                 p.decimal("extras", row.Extras),
		TripTotal:              p.decimal("trip_total", row.TripTotal),
		PickupLatitude:         p.float("pickup_centroid_latitude", row.PickupCentroidLatitude),
		PickupLongitude:        p.float("pickup_centroid_longitude", row.PickupCentroidLongitude),
		DropoffLatitude:        p.float("dropoff_centroid_latitude", row.DropoffCentroidLatitude),
		DropoffLongitude:       p.float("dropoff_centroid_longitude", row.DropoffCentroidLongitude),
	}
	if p.err != nil {
		return models.RawTrip{}, p.err
	}
	trip.DatetimeForWeather = trip.TripStartTimestamp.Truncate(time.Hour)

	return models.RawTrip{
		Trip:        trip,
		PaymentType: deref(row.PaymentType),
		Company:     deref(row.Company),
	}, nil
}

// rowParser converts the string fields of one row and keeps the first error.
type rowParser struct {
	source string
	row    int
	err    *etlerror.ParseError
}

func (p *rowParser) fail(field, value string, err error) {
	if p.err == nil {
		p.err = &etlerror.ParseError{Source: p.source, Row: p.row, Field: field, Value: value, Err: err}
	}
}

func (p *rowParser) str(field string, v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		p.fail(field, "", ErrMissingValue)
		return ""
	}
	return *v
}

func (p *rowParser) timestamp(field string, v *string) time.Time {
	s := p.str(field, v)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(models.SocrataTimestampLayout, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, s); err == nil {
			return t
		}
		p.fail(field, s, err)
	}
	return t
}

// integer accepts "8" as well as "8.0", which Socrata emits for some
// numeric columns.
func (p *rowParser) integer(field string, v *string) int64 {
	s := p.str(field, v)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return n
	}
	d, derr := decimal.NewFromString(s)
	if derr != nil || !d.IsInteger() {
		p.fail(field, s, err)
		return 0
	}
	return d.IntPart()
}

func (p *rowParser) decimal(field string, v *string) decimal.Decimal {
	s := p.str(field, v)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		p.fail(field, s, err)
	}
	return d
}

func (p *rowParser) float(field string, v *string) float64 {
	s := p.str(field, v)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(field, s, err)
	}
	return f
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
