package models

import (
	"dzs/taxi-etl/internal/logging"
)

// ReconcileStats tracks counts for one reconciliation pass.
type ReconcileStats struct {
	Total          int `json:"total" yaml:"total"`                       // Records in the batch
	Enriched       int `json:"enriched" yaml:"enriched"`                 // Records rewritten with surrogate ids
	Rejected       int `json:"rejected" yaml:"rejected"`                 // Records excluded as malformed
	NewPaymentType int `json:"new_payment_types" yaml:"new_payment_types"` // Entries appended to payment_type
	NewCompany     int `json:"new_companies" yaml:"new_companies"`       // Entries appended to company
	Conflicts      int `json:"conflicts" yaml:"conflicts"`               // Duplicate key conflicts reported
}

// LogSummary logs a summary of the reconciliation counts
func (s ReconcileStats) LogSummary(logger logging.Logger, source string) {
	if logger == nil {
		return
	}

	logger.Info("Reconciliation summary",
		logging.Field{Key: logging.FieldSource, Value: source},
		logging.Field{Key: "total_records", Value: s.Total},
		logging.Field{Key: "enriched", Value: s.Enriched},
		logging.Field{Key: "rejected", Value: s.Rejected},
		logging.Field{Key: "new_payment_types", Value: s.NewPaymentType},
		logging.Field{Key: "new_companies", Value: s.NewCompany},
		logging.Field{Key: "conflicts", Value: s.Conflicts},
		logging.Field{Key: "success_rate", Value: s.SuccessRate()},
	)
}

// SuccessRate returns the share of enriched records as a percentage
func (s ReconcileStats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0.0
	}
	return float64(s.Enriched) / float64(s.Total) * 100.0
}

// Add accumulates another pass into s.
func (s *ReconcileStats) Add(other ReconcileStats) {
	s.Total += other.Total
	s.Enriched += other.Enriched
	s.Rejected += other.Rejected
	s.NewPaymentType += other.NewPaymentType
	s.NewCompany += other.NewCompany
	s.Conflicts += other.Conflicts
}
