package models

// Map table names. They double as the name of the raw categorical column.
const (
	TablePaymentType = "payment_type"
	TableCompany     = "company"
)

// Categorical fields of a raw trip.
const (
	FieldPaymentType = "payment_type"
	FieldCompany     = "company"
)

// Dataset kinds handled by the pipeline.
const (
	KindTaxi    = "taxi"
	KindWeather = "weather"
)

// Layouts of the timestamps found in the source payloads and in file names.
const (
	SocrataTimestampLayout = "2006-01-02T15:04:05.000"
	OpenMeteoTimeLayout    = "2006-01-02T15:04"
	DayLayout              = "2006-01-02"
)

// File permissions
const (
	PermissionFile      = 0600
	PermissionDirectory = 0750
)
