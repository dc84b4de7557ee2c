package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"dzs/taxi-etl/internal/models"
	"dzs/taxi-etl/internal/storage"
)

// MockTableStore is an in-memory TableStore for testing. Revisions are save
// counters.
type MockTableStore struct {
	mu       sync.Mutex
	Tables   map[string]models.MapTable
	versions map[string]int
	Saves    int

	// Error flags for testing error conditions
	LoadError error
	SaveError error
}

// NewMockTableStore returns a store seeded with tables.
func NewMockTableStore(tables ...models.MapTable) *MockTableStore {
	m := &MockTableStore{Tables: map[string]models.MapTable{}, versions: map[string]int{}}
	for _, t := range tables {
		m.Tables[t.Name()] = t
		m.versions[t.Name()] = 1
	}
	return m
}

// Load returns the stored table or an empty one.
func (m *MockTableStore) Load(_ context.Context, name string) (models.MapTable, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadError != nil {
		return models.MapTable{}, "", m.LoadError
	}
	t, ok := m.Tables[name]
	if !ok {
		return models.EmptyMapTable(name), "", nil
	}
	return t, strconv.Itoa(m.versions[name]), nil
}

// Save stores the table when revision matches.
func (m *MockTableStore) Save(_ context.Context, table models.MapTable, revision string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return "", m.SaveError
	}
	current := ""
	if v, ok := m.versions[table.Name()]; ok {
		current = strconv.Itoa(v)
	}
	if current != revision {
		return "", fmt.Errorf("save %s: %w", table.Name(), storage.ErrPreconditionFailed)
	}
	m.Tables[table.Name()] = table
	m.versions[table.Name()]++
	m.Saves++
	return strconv.Itoa(m.versions[table.Name()]), nil
}
