package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dzs/taxi-etl/internal/etlerror"
	"dzs/taxi-etl/internal/logging"
)

func backends(t *testing.T) map[string]ObjectStore {
	t.Helper()
	local, err := NewLocalStore(t.TempDir(), logging.NewNopLogger())
	require.NoError(t, err)
	return map[string]ObjectStore{
		"memory": NewMemoryStore(),
		"local":  local,
	}
}

func TestObjectStore_GetPut(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, "a/b.csv")
			assert.ErrorIs(t, err, ErrNotFound)

			var storageErr *etlerror.StorageError
			assert.True(t, errors.As(err, &storageErr))

			rev, err := store.Put(ctx, "a/b.csv", []byte("key,surrogate_id\n"))
			require.NoError(t, err)
			assert.NotEmpty(t, rev)

			obj, err := store.Get(ctx, "a/b.csv")
			require.NoError(t, err)
			assert.Equal(t, "a/b.csv", obj.Key)
			assert.Equal(t, []byte("key,surrogate_id\n"), obj.Data)
			assert.Equal(t, rev, obj.Revision)
		})
	}
}

func TestObjectStore_PutIfMatch(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			rev, err := store.PutIfMatch(ctx, "t.csv", []byte("v1"), "")
			require.NoError(t, err)

			_, err = store.PutIfMatch(ctx, "t.csv", []byte("other"), "")
			assert.ErrorIs(t, err, ErrPreconditionFailed, "create-only write must fail when object exists")

			rev2, err := store.PutIfMatch(ctx, "t.csv", []byte("v2"), rev)
			require.NoError(t, err)
			assert.NotEqual(t, rev, rev2)

			_, err = store.PutIfMatch(ctx, "t.csv", []byte("v3"), rev)
			assert.ErrorIs(t, err, ErrPreconditionFailed, "stale revision must be rejected")

			obj, err := store.Get(ctx, "t.csv")
			require.NoError(t, err)
			assert.Equal(t, "v2", string(obj.Data))
		})
	}
}

func TestObjectStore_ListMoveDelete(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{
				"raw_data/to_processed/taxi_data/taxi_raw_2024-02-02.json",
				"raw_data/to_processed/taxi_data/taxi_raw_2024-02-01.json",
				"raw_data/to_processed/weather_data/weather_raw_2024-02-01.json",
			} {
				_, err := store.Put(ctx, k, []byte("[]"))
				require.NoError(t, err)
			}

			keys, err := store.List(ctx, "raw_data/to_processed/taxi_data/")
			require.NoError(t, err)
			assert.Equal(t, []string{
				"raw_data/to_processed/taxi_data/taxi_raw_2024-02-01.json",
				"raw_data/to_processed/taxi_data/taxi_raw_2024-02-02.json",
			}, keys)

			src := keys[0]
			dst := "raw_data/processed/taxi_data/" + BaseName(src)
			require.NoError(t, Move(ctx, store, src, dst))

			_, err = store.Get(ctx, src)
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = store.Get(ctx, dst)
			assert.NoError(t, err)

			require.NoError(t, store.Delete(ctx, dst))
			require.NoError(t, store.Delete(ctx, dst), "deleting a missing object is not an error")

			err = store.Copy(ctx, "missing.json", "other.json")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestObjectStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, "x")
			assert.ErrorIs(t, err, context.Canceled)
			_, err = store.Put(ctx, "x", nil)
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../outside.csv", []byte("x"))
	assert.Error(t, err)
	_, err = store.Get(context.Background(), "/etc/passwd")
	assert.Error(t, err)
}

func TestNewLocalStore_EmptyRoot(t *testing.T) {
	_, err := NewLocalStore("", nil)
	assert.Error(t, err)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "taxi_raw_2024-02-01.json", BaseName("raw_data/to_processed/taxi_data/taxi_raw_2024-02-01.json"))
	assert.Equal(t, "plain", BaseName("plain"))
}
