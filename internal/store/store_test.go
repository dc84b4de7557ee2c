package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dzs/taxi-etl/internal/etlerror"
	"dzs/taxi-etl/internal/logging"
	"dzs/taxi-etl/internal/models"
	"dzs/taxi-etl/internal/storage"
)

func newTestStore(t *testing.T) (*MapTableStore, *storage.MemoryStore) {
	t.Helper()
	objects := storage.NewMemoryStore()
	return NewMapTableStore(objects, models.DefaultLayout(), ',', logging.NewNopLogger()), objects
}

func mustTable(t *testing.T, name string, entries ...models.MapEntry) models.MapTable {
	t.Helper()
	table, err := models.NewMapTable(name, entries)
	require.NoError(t, err)
	return table
}

func TestLoad_MissingTableIsEmpty(t *testing.T) {
	s, _ := newTestStore(t)

	table, revision, err := s.Load(context.Background(), models.TablePaymentType)
	require.NoError(t, err)
	assert.Equal(t, models.TablePaymentType, table.Name())
	assert.Equal(t, 0, table.Len())
	assert.Empty(t, revision)
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, objects := newTestStore(t)

	table := mustTable(t, models.TableCompany,
		models.MapEntry{Key: "Sun Taxi", SurrogateID: 1},
		models.MapEntry{Key: "Flash Cab", SurrogateID: 0})

	rev, err := s.Save(ctx, table, "")
	require.NoError(t, err)
	assert.NotEmpty(t, rev)

	obj, err := objects.Get(ctx, "transformed_data/company/company_map_table.csv")
	require.NoError(t, err)
	assert.Equal(t, "key,surrogate_id\nFlash Cab,0\nSun Taxi,1\n", string(obj.Data), "entries are written in id order")

	loaded, loadedRev, err := s.Load(ctx, models.TableCompany)
	require.NoError(t, err)
	assert.Equal(t, rev, loadedRev)
	assert.Equal(t, table.SortedEntries(), loaded.SortedEntries())
}

func TestSave_BacksUpPreviousVersion(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	v1 := mustTable(t, models.TablePaymentType, models.MapEntry{Key: "Cash", SurrogateID: 0})
	rev, err := s.Save(ctx, v1, "")
	require.NoError(t, err)

	backup, err := s.Backup(ctx, models.TablePaymentType)
	require.NoError(t, err)
	assert.Equal(t, 0, backup.Len(), "no backup before the first overwrite")

	v2, err := v1.Append(models.MapEntry{Key: "Mobile", SurrogateID: 1})
	require.NoError(t, err)
	_, err = s.Save(ctx, v2, rev)
	require.NoError(t, err)

	backup, err = s.Backup(ctx, models.TablePaymentType)
	require.NoError(t, err)
	assert.Equal(t, v1.SortedEntries(), backup.SortedEntries())
}

func TestSave_StaleRevisionRejected(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	table := mustTable(t, models.TablePaymentType, models.MapEntry{Key: "Cash", SurrogateID: 0})
	rev, err := s.Save(ctx, table, "")
	require.NoError(t, err)

	next, err := table.Append(models.MapEntry{Key: "Mobile", SurrogateID: 1})
	require.NoError(t, err)
	_, err = s.Save(ctx, next, rev)
	require.NoError(t, err)

	other, err := table.Append(models.MapEntry{Key: "Prcard", SurrogateID: 1})
	require.NoError(t, err)
	_, err = s.Save(ctx, other, rev)
	assert.ErrorIs(t, err, storage.ErrPreconditionFailed)

	loaded, _, err := s.Load(ctx, models.TablePaymentType)
	require.NoError(t, err)
	assert.True(t, loaded.Has("Mobile"))
	assert.False(t, loaded.Has("Prcard"))
}

func TestSave_LostRaceKeepsBackup(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	v1 := mustTable(t, models.TablePaymentType, models.MapEntry{Key: "Cash", SurrogateID: 0})
	rev1, err := s.Save(ctx, v1, "")
	require.NoError(t, err)

	v2, err := v1.Append(models.MapEntry{Key: "Mobile", SurrogateID: 1})
	require.NoError(t, err)
	_, err = s.Save(ctx, v2, rev1)
	require.NoError(t, err)

	v3, err := v1.Append(models.MapEntry{Key: "Prcard", SurrogateID: 1})
	require.NoError(t, err)
	_, err = s.Save(ctx, v3, rev1)
	require.ErrorIs(t, err, storage.ErrPreconditionFailed)
	var storageErr *etlerror.StorageError
	assert.True(t, errors.As(err, &storageErr))

	backup, err := s.Backup(ctx, models.TablePaymentType)
	require.NoError(t, err)
	assert.Equal(t, v1.SortedEntries(), backup.SortedEntries(), "backup still holds the version v2 replaced")
}

func TestSave_RevisionOfMissingTableRejected(t *testing.T) {
	ctx := context.Background()
	s, objects := newTestStore(t)

	table := mustTable(t, models.TableCompany, models.MapEntry{Key: "Flash Cab", SurrogateID: 0})
	_, err := s.Save(ctx, table, "stale")
	require.ErrorIs(t, err, storage.ErrPreconditionFailed)

	keys, err := objects.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys, "nothing written when the precondition fails")
}

func TestLoad_InvalidTable(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"duplicate key", "key,surrogate_id\nCash,0\nCash,1\n"},
		{"duplicate id", "key,surrogate_id\nCash,0\nMobile,0\n"},
		{"not a number", "key,surrogate_id\nCash,zero\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, objects := newTestStore(t)
			_, err := objects.Put(ctx, models.DefaultLayout().MapTableKey(models.TablePaymentType), []byte(tt.data))
			require.NoError(t, err)

			_, _, err = s.Load(ctx, models.TablePaymentType)
			require.Error(t, err)
			var validationErr *etlerror.ValidationError
			assert.True(t, errors.As(err, &validationErr))
		})
	}
}

func TestMockTableStore(t *testing.T) {
	ctx := context.Background()
	seed := mustTable(t, models.TablePaymentType, models.MapEntry{Key: "Cash", SurrogateID: 0})
	m := NewMockTableStore(seed)

	table, rev, err := m.Load(ctx, models.TablePaymentType)
	require.NoError(t, err)
	assert.Equal(t, "1", rev)
	assert.True(t, table.Has("Cash"))

	_, rev, err = m.Load(ctx, models.TableCompany)
	require.NoError(t, err)
	assert.Empty(t, rev)

	_, err = m.Save(ctx, seed, "0")
	assert.ErrorIs(t, err, storage.ErrPreconditionFailed)

	newRev, err := m.Save(ctx, seed, "1")
	require.NoError(t, err)
	assert.Equal(t, "2", newRev)
	assert.Equal(t, 1, m.Saves)
}
