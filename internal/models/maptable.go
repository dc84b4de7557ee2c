package models

import (
	"fmt"
	"slices"
	"sort"
)

// MapEntry is one row of a map table: a categorical value and its surrogate id.
type MapEntry struct {
	Key         string `csv:"key" json:"key" yaml:"key"`
	SurrogateID int64  `csv:"surrogate_id" json:"surrogate_id" yaml:"surrogate_id"`
}

// MapTable is an append-only dictionary from categorical value to surrogate id.
//
// A MapTable is a value: Append returns a new table and never modifies the
// receiver, so a table handed to a caller cannot change underneath it.
type MapTable struct {
	name    string
	entries []MapEntry
	byKey   map[string]int64
	byID    map[int64]string
}

// EmptyMapTable returns a table with no entries, as used on the first run.
func EmptyMapTable(name string) MapTable {
	return MapTable{
		name:  name,
		byKey: map[string]int64{},
		byID:  map[int64]string{},
	}
}

// NewMapTable builds a table from persisted entries and checks its invariants.
func NewMapTable(name string, entries []MapEntry) (MapTable, error) {
	return EmptyMapTable(name).Append(entries...)
}

// Name returns the table name (payment_type, company).
func (t MapTable) Name() string {
	return t.name
}

// Len returns the number of entries.
func (t MapTable) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the entries in insertion order.
func (t MapTable) Entries() []MapEntry {
	return slices.Clone(t.entries)
}

// SortedEntries returns a copy of the entries ordered by surrogate id.
func (t MapTable) SortedEntries() []MapEntry {
	out := slices.Clone(t.entries)
	sort.Slice(out, func(i, j int) bool { return out[i].SurrogateID < out[j].SurrogateID })
	return out
}

// Lookup returns the surrogate id stored for key.
func (t MapTable) Lookup(key string) (int64, bool) {
	id, ok := t.byKey[key]
	return id, ok
}

// Resolve returns the key a surrogate id stands for.
func (t MapTable) Resolve(id int64) (string, bool) {
	key, ok := t.byID[id]
	return key, ok
}

// NextID returns the next unused surrogate id: max id + 1, or 0 for an empty table.
func (t MapTable) NextID() int64 {
	if len(t.entries) == 0 {
		return 0
	}
	var maxID int64
	for _, e := range t.entries {
		if e.SurrogateID > maxID {
			maxID = e.SurrogateID
		}
	}
	return maxID + 1
}

// Has reports whether key is in the table.
func (t MapTable) Has(key string) bool {
	_, ok := t.byKey[key]
	return ok
}

// Contains reports whether every entry of other is present, unchanged, in t.
func (t MapTable) Contains(other MapTable) bool {
	for _, e := range other.entries {
		id, ok := t.byKey[e.Key]
		if !ok || id != e.SurrogateID {
			return false
		}
	}
	return true
}

// Append returns a new table with entries added after the existing ones.
// It fails if an entry has an empty key, a negative id, or reuses a key or
// an id already present.
func (t MapTable) Append(entries ...MapEntry) (MapTable, error) {
	next := MapTable{
		name:    t.name,
		entries: make([]MapEntry, 0, len(t.entries)+len(entries)),
		byKey:   make(map[string]int64, len(t.entries)+len(entries)),
		byID:    make(map[int64]string, len(t.entries)+len(entries)),
	}
	next.entries = append(next.entries, t.entries...)
	for k, v := range t.byKey {
		next.byKey[k] = v
	}
	for k, v := range t.byID {
		next.byID[k] = v
	}

	for _, e := range entries {
		if e.Key == "" {
			return MapTable{}, fmt.Errorf("map table %s: empty key for surrogate id %d", t.name, e.SurrogateID)
		}
		if e.SurrogateID < 0 {
			return MapTable{}, fmt.Errorf("map table %s: negative surrogate id %d for key %q", t.name, e.SurrogateID, e.Key)
		}
		if id, exists := next.byKey[e.Key]; exists {
			return MapTable{}, fmt.Errorf("map table %s: duplicate key %q (ids %d and %d)", t.name, e.Key, id, e.SurrogateID)
		}
		if key, exists := next.byID[e.SurrogateID]; exists {
			return MapTable{}, fmt.Errorf("map table %s: surrogate id %d already assigned to %q", t.name, e.SurrogateID, key)
		}
		next.entries = append(next.entries, e)
		next.byKey[e.Key] = e.SurrogateID
		next.byID[e.SurrogateID] = e.Key
	}
	return next, nil
}
