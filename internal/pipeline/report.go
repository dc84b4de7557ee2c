package pipeline

import (
	"time"

	"dzs/taxi-etl/internal/etlerror"
	"dzs/taxi-etl/internal/models"
)

// File statuses recorded in a FileReport.
const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Rejection is a record left out of the output, with the reason.
type Rejection struct {
	File    string `json:"file" yaml:"file"`
	Row     int    `json:"row" yaml:"row"`
	TripID  string `json:"trip_id,omitempty" yaml:"trip_id,omitempty"`
	Field   string `json:"field" yaml:"field"`
	Value   string `json:"value" yaml:"value"`
	Message string `json:"message" yaml:"message"`
}

// Conflict is a group of map table keys that look like variants of one value.
type Conflict struct {
	Table    string   `json:"table" yaml:"table"`
	Variants []string `json:"variants" yaml:"variants"`
	IDs      []int64  `json:"ids" yaml:"ids"`
}

// FileReport describes the processing of one raw object.
type FileReport struct {
	Kind     string                `json:"kind" yaml:"kind"`
	Key      string                `json:"key" yaml:"key"`
	Output   string                `json:"output,omitempty" yaml:"output,omitempty"`
	Status   string                `json:"status" yaml:"status"`
	Error    string                `json:"error,omitempty" yaml:"error,omitempty"`
	Rows     int                   `json:"rows" yaml:"rows"`
	Rejected int                   `json:"rejected" yaml:"rejected"`
	Stats    models.ReconcileStats `json:"stats" yaml:"stats"`
}

// RunReport summarizes one load run.
type RunReport struct {
	RunID      string                       `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time                    `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time                    `json:"finished_at" yaml:"finished_at"`
	Files      []FileReport                 `json:"files" yaml:"files"`
	Stats      models.ReconcileStats        `json:"stats" yaml:"stats"`
	Added      map[string][]models.MapEntry `json:"added" yaml:"added"`
	TableSizes map[string]int               `json:"table_sizes" yaml:"table_sizes"`
	Rejections []Rejection                  `json:"rejections" yaml:"rejections"`
	Conflicts  []Conflict                   `json:"conflicts" yaml:"conflicts"`
	Error      string                       `json:"error,omitempty" yaml:"error,omitempty"`

	seenConflicts map[string]bool
}

// NewRunReport starts a report for the run identified by runID.
func NewRunReport(runID string, startedAt time.Time) *RunReport {
	return &RunReport{
		RunID:         runID,
		StartedAt:     startedAt,
		Added:         map[string][]models.MapEntry{},
		TableSizes:    map[string]int{},
		seenConflicts: map[string]bool{},
	}
}

// Duration is the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed counts the files that could not be processed.
func (r *RunReport) Failed() int {
	n := 0
	for _, f := range r.Files {
		if f.Status == StatusFailed {
			n++
		}
	}
	return n
}

// AddParseErrors records rows of file rejected during transformation.
func (r *RunReport) AddParseErrors(file string, errs []*etlerror.ParseError) {
	for _, e := range errs {
		msg := e.Error()
		if e.Err != nil {
			msg = e.Err.Error()
		}
		r.Rejections = append(r.Rejections, Rejection{
			File:    file,
			Row:     e.Row,
			Field:   e.Field,
			Value:   e.Value,
			Message: msg,
		})
	}
}

// AddMalformed records trips of file rejected by the reconciler.
func (r *RunReport) AddMalformed(file string, errs []*etlerror.MalformedRecordError) {
	for _, e := range errs {
		r.Rejections = append(r.Rejections, Rejection{
			File:    file,
			Row:     e.Index,
			TripID:  e.TripID,
			Field:   e.Field,
			Value:   e.Value,
			Message: e.Reason,
		})
	}
}

// AddConflicts records each conflict once per run; stored collisions are
// found again for every file.
func (r *RunReport) AddConflicts(conflicts []*etlerror.DuplicateKeyConflict) {
	if r.seenConflicts == nil {
		r.seenConflicts = map[string]bool{}
	}
	for _, c := range conflicts {
		key := c.Error()
		if r.seenConflicts[key] {
			continue
		}
		r.seenConflicts[key] = true
		r.Conflicts = append(r.Conflicts, Conflict{Table: c.Table, Variants: c.Variants, IDs: c.IDs})
	}
}
