package logging

// Standardized field names for structured logging.
const (
	FieldComponent = "component"
	FieldRunID     = "run_id"
	FieldSource    = "source"
	FieldObjectKey = "object_key"
	FieldTable     = "table"
	FieldKey       = "key"
	FieldSurrogate = "surrogate_id"
	FieldTripID    = "trip_id"
	FieldReason    = "reason"
	FieldOperation = "operation"
	FieldStatus    = "status"
	FieldError     = "error"
	FieldDuration  = "duration_ms"
	FieldCount     = "count"
	FieldDay       = "day"
	FieldRevision  = "revision"
	FieldURL       = "url"
	FieldAttempt   = "attempt"
)
