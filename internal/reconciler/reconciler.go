// Package reconciler keeps the payment type and company map tables complete
// and stable while rewriting raw trips to use surrogate ids.
//
// Reconciliation is pure: tables go in as values and come back as new
// values. Persisting them is the loader's job.
package reconciler

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"dzs/taxi-etl/internal/etlerror"
	"dzs/taxi-etl/internal/models"
)

const reasonMissingValue = "value is required"

// Tables groups the map tables a trip batch is reconciled against.
type Tables struct {
	PaymentType models.MapTable
	Company     models.MapTable
}

// EmptyTables returns the tables used on a first run.
func EmptyTables() Tables {
	return Tables{
		PaymentType: models.EmptyMapTable(models.TablePaymentType),
		Company:     models.EmptyMapTable(models.TableCompany),
	}
}

// Result is the outcome of one reconciliation pass.
type Result struct {
	Records   []models.EnrichedTrip
	Tables    Tables
	Added     map[string][]models.MapEntry // New entries keyed by table name
	Rejected  []*etlerror.MalformedRecordError
	Conflicts []*etlerror.DuplicateKeyConflict
	Stats     models.ReconcileStats
}

// Err joins the rejections of the pass, or returns nil when there were none.
func (r Result) Err() error {
	if len(r.Rejected) == 0 {
		return nil
	}
	errs := make([]error, len(r.Rejected))
	for i, rej := range r.Rejected {
		errs[i] = rej
	}
	return errors.Join(errs...)
}

// Options configures a Reconciler.
type Options struct {
	CaseSensitive bool
}

// Reconciler assigns surrogate ids to categorical trip values.
type Reconciler struct {
	normalizer Normalizer
}

// New creates a Reconciler with the given normalization policy.
func New(opts Options) *Reconciler {
	return &Reconciler{normalizer: Normalizer{CaseSensitive: opts.CaseSensitive}}
}

// Normalizer returns the key normalization policy in use.
func (r *Reconciler) Normalizer() Normalizer {
	return r.normalizer
}

// value is a cleaned categorical value and its lookup key.
type value struct {
	raw string
	key string
}

type validTrip struct {
	trip        models.RawTrip
	paymentType value
	company     value
}

// Reconcile extends tables with the values first seen in batch and rewrites
// every well-formed trip with surrogate ids. Trips with an empty payment type
// or company are left out and reported in Result.Rejected; they add nothing
// to the tables. The input tables are not modified.
//
// The returned error is only non-nil when a table would break its own
// invariants, which indicates a corrupt input table.
func (r *Reconciler) Reconcile(batch []models.RawTrip, tables Tables) (Result, error) {
	result := Result{
		Records: make([]models.EnrichedTrip, 0, len(batch)),
		Tables:  tables,
		Added:   map[string][]models.MapEntry{},
	}
	result.Stats.Total = len(batch)

	valid := make([]validTrip, 0, len(batch))
	for i, trip := range batch {
		pt := r.valueOf(trip.PaymentType)
		co := r.valueOf(trip.Company)
		if pt.key == "" {
			result.Rejected = append(result.Rejected, malformed(i, trip, models.FieldPaymentType, trip.PaymentType))
		}
		if co.key == "" {
			result.Rejected = append(result.Rejected, malformed(i, trip, models.FieldCompany, trip.Company))
		}
		if pt.key == "" || co.key == "" {
			result.Stats.Rejected++
			continue
		}
		valid = append(valid, validTrip{trip: trip, paymentType: pt, company: co})
	}

	paymentValues := make([]value, len(valid))
	companyValues := make([]value, len(valid))
	for i, v := range valid {
		paymentValues[i] = v.paymentType
		companyValues[i] = v.company
	}

	ptTable, ptIndex, err := r.reconcileTable(tables.PaymentType, paymentValues, &result)
	if err != nil {
		return Result{}, err
	}
	coTable, coIndex, err := r.reconcileTable(tables.Company, companyValues, &result)
	if err != nil {
		return Result{}, err
	}
	result.Tables = Tables{PaymentType: ptTable, Company: coTable}
	result.Stats.NewPaymentType = len(result.Added[ptTable.Name()])
	result.Stats.NewCompany = len(result.Added[coTable.Name()])

	for _, v := range valid {
		result.Records = append(result.Records, models.EnrichedTrip{
			Trip:          v.trip.Trip,
			PaymentTypeID: ptIndex[v.paymentType.key],
			CompanyID:     coIndex[v.company.key],
		})
	}
	result.Stats.Enriched = len(result.Records)
	result.Stats.Conflicts = len(result.Conflicts)
	return result, nil
}

func (r *Reconciler) valueOf(raw string) value {
	cleaned := Clean(raw)
	return value{raw: cleaned, key: r.normalizer.fold(cleaned)}
}

// reconcileTable extends one table with the values it does not know yet and
// returns the normalized lookup index of the extended table. A new entry
// keeps the first spelling seen for its lookup key; ids follow the ascending
// byte order of the lookup keys.
func (r *Reconciler) reconcileTable(table models.MapTable, values []value, result *Result) (models.MapTable, map[string]int64, error) {
	index, collisions := r.index(table)
	result.Conflicts = append(result.Conflicts, collisions...)

	var unknown []value
	seen := map[string]bool{}
	for _, v := range values {
		if _, ok := index[v.key]; ok || seen[v.key] {
			continue
		}
		seen[v.key] = true
		unknown = append(unknown, v)
	}
	sort.Slice(unknown, func(i, j int) bool { return unknown[i].key < unknown[j].key })

	fresh := make([]string, len(unknown))
	for i, v := range unknown {
		fresh[i] = v.raw
	}
	extended, added, err := appendKeys(table, fresh)
	if err != nil {
		return models.MapTable{}, nil, err
	}
	for i, e := range added {
		index[unknown[i].key] = e.SurrogateID
	}
	if len(added) > 0 {
		result.Added[table.Name()] = added
		if r.normalizer.CaseSensitive {
			result.Conflicts = append(result.Conflicts, caseVariants(extended, added)...)
		}
	}
	return extended, index, nil
}

// index maps normalized keys to ids. Stored keys that collide under the
// active policy resolve to the lowest id and are reported.
func (r *Reconciler) index(table models.MapTable) (map[string]int64, []*etlerror.DuplicateKeyConflict) {
	groups := map[string][]models.MapEntry{}
	for _, e := range table.SortedEntries() {
		key := r.normalizer.Normalize(e.Key)
		groups[key] = append(groups[key], e)
	}

	index := make(map[string]int64, len(groups))
	var conflicts []*etlerror.DuplicateKeyConflict
	for key, entries := range groups {
		index[key] = entries[0].SurrogateID
		if len(entries) > 1 {
			conflicts = append(conflicts, conflictOf(table.Name(), entries))
		}
	}
	sortConflicts(conflicts)
	return index, conflicts
}

// ExtendTable appends the distinct values that are not yet keys of table,
// assigning consecutive ids from table.NextID() in ascending byte order of
// the value. Values are used as keys verbatim. It returns the new table and
// the entries that were added.
func ExtendTable(table models.MapTable, values []string) (models.MapTable, []models.MapEntry, error) {
	seen := make(map[string]struct{}, len(values))
	var fresh []string
	for _, v := range values {
		if _, ok := table.Lookup(v); ok {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		fresh = append(fresh, v)
	}
	sort.Strings(fresh)
	return appendKeys(table, fresh)
}

// appendKeys appends keys in the given order with consecutive ids from
// table.NextID().
func appendKeys(table models.MapTable, fresh []string) (models.MapTable, []models.MapEntry, error) {
	if len(fresh) == 0 {
		return table, nil, nil
	}
	next := table.NextID()
	added := make([]models.MapEntry, len(fresh))
	for i, v := range fresh {
		added[i] = models.MapEntry{Key: v, SurrogateID: next + int64(i)}
	}

	extended, err := table.Append(added...)
	if err != nil {
		return models.MapTable{}, nil, fmt.Errorf("extend map table %s: %w", table.Name(), err)
	}
	return extended, added, nil
}

// caseVariants reports groups of keys that only differ by case and include
// at least one of the entries just added.
func caseVariants(table models.MapTable, added []models.MapEntry) []*etlerror.DuplicateKeyConflict {
	groups := map[string][]models.MapEntry{}
	for _, e := range table.SortedEntries() {
		folded := strings.ToLower(e.Key)
		groups[folded] = append(groups[folded], e)
	}

	var conflicts []*etlerror.DuplicateKeyConflict
	reported := map[string]bool{}
	for _, e := range added {
		folded := strings.ToLower(e.Key)
		if reported[folded] || len(groups[folded]) < 2 {
			continue
		}
		reported[folded] = true
		conflicts = append(conflicts, conflictOf(table.Name(), groups[folded]))
	}
	sortConflicts(conflicts)
	return conflicts
}

func conflictOf(table string, entries []models.MapEntry) *etlerror.DuplicateKeyConflict {
	c := &etlerror.DuplicateKeyConflict{Table: table}
	for _, e := range entries {
		c.Variants = append(c.Variants, e.Key)
		c.IDs = append(c.IDs, e.SurrogateID)
	}
	return c
}

func sortConflicts(conflicts []*etlerror.DuplicateKeyConflict) {
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].IDs[0] < conflicts[j].IDs[0] })
}

func malformed(index int, trip models.RawTrip, field, value string) *etlerror.MalformedRecordError {
	return &etlerror.MalformedRecordError{
		Index:  index,
		TripID: trip.TripID,
		Field:  field,
		Value:  value,
		Reason: reasonMissingValue,
	}
}
