// Package store loads and saves map tables in the object store.
package store

import (
	"context"
	"errors"
	"fmt"

	"dzs/taxi-etl/internal/common"
	"dzs/taxi-etl/internal/etlerror"
	"dzs/taxi-etl/internal/logging"
	"dzs/taxi-etl/internal/models"
	"dzs/taxi-etl/internal/storage"
)

// TableStore persists map tables with optimistic concurrency.
type TableStore interface {
	// Load returns the stored table and the revision it was read at. A
	// missing table is returned empty with an empty revision.
	Load(ctx context.Context, name string) (models.MapTable, string, error)

	// Save writes table if the stored revision still equals revision and
	// returns the new revision.
	Save(ctx context.Context, table models.MapTable, revision string) (string, error)
}

// MapTableStore keeps each map table as a key,surrogate_id CSV object and
// backs up the previous version before every save.
type MapTableStore struct {
	objects   storage.ObjectStore
	layout    models.Layout
	delimiter rune
	logger    logging.Logger
}

// NewMapTableStore creates a store over objects.
func NewMapTableStore(objects storage.ObjectStore, layout models.Layout, delimiter rune, logger logging.Logger) *MapTableStore {
	return &MapTableStore{
		objects:   objects,
		layout:    layout,
		delimiter: delimiter,
		logger:    logging.Component(logger, "map-table-store"),
	}
}

// Load implements TableStore.
func (s *MapTableStore) Load(ctx context.Context, name string) (models.MapTable, string, error) {
	key := s.layout.MapTableKey(name)
	obj, err := s.objects.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Info("Map table not found, starting empty",
				logging.Field{Key: logging.FieldTable, Value: name},
				logging.Field{Key: logging.FieldObjectKey, Value: key})
			return models.EmptyMapTable(name), "", nil
		}
		return models.MapTable{}, "", fmt.Errorf("failed to load map table %s: %w", name, err)
	}

	table, err := s.decode(name, key, obj.Data)
	if err != nil {
		return models.MapTable{}, "", err
	}

	s.logger.Debug("Map table loaded",
		logging.Field{Key: logging.FieldTable, Value: name},
		logging.Field{Key: logging.FieldCount, Value: table.Len()},
		logging.Field{Key: logging.FieldRevision, Value: obj.Revision})
	return table, obj.Revision, nil
}

// Backup reads the previous version of a table, if one was saved.
func (s *MapTableStore) Backup(ctx context.Context, name string) (models.MapTable, error) {
	key := s.layout.BackupKey(name)
	obj, err := s.objects.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.EmptyMapTable(name), nil
		}
		return models.MapTable{}, fmt.Errorf("failed to load backup of map table %s: %w", name, err)
	}
	return s.decode(name, key, obj.Data)
}

// Save implements TableStore.
func (s *MapTableStore) Save(ctx context.Context, table models.MapTable, revision string) (string, error) {
	name := table.Name()
	key := s.layout.MapTableKey(name)

	data, err := common.MarshalCSV(table.SortedEntries(), s.delimiter)
	if err != nil {
		return "", fmt.Errorf("failed to encode map table %s: %w", name, err)
	}

	// The backup holds the bytes read at revision, so a stale writer never
	// overwrites it with a version it did not replace.
	if revision != "" {
		current, err := s.objects.Get(ctx, key)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("failed to read map table %s: %w", name, err)
		}
		if err != nil || current.Revision != revision {
			return "", fmt.Errorf("failed to save map table %s: %w", name,
				&etlerror.StorageError{Op: "put", Key: key, Err: storage.ErrPreconditionFailed})
		}
		if _, err := s.objects.Put(ctx, s.layout.BackupKey(name), current.Data); err != nil {
			return "", fmt.Errorf("failed to back up map table %s: %w", name, err)
		}
	}

	newRevision, err := s.objects.PutIfMatch(ctx, key, data, revision)
	if err != nil {
		return "", fmt.Errorf("failed to save map table %s: %w", name, err)
	}

	s.logger.Info("Map table saved",
		logging.Field{Key: logging.FieldTable, Value: name},
		logging.Field{Key: logging.FieldCount, Value: table.Len()},
		logging.Field{Key: logging.FieldRevision, Value: newRevision})
	return newRevision, nil
}

func (s *MapTableStore) decode(name, key string, data []byte) (models.MapTable, error) {
	entries, err := common.UnmarshalCSV[models.MapEntry](data, s.delimiter)
	if err != nil {
		return models.MapTable{}, &etlerror.ValidationError{Path: key, Reason: "unreadable map table", Err: err}
	}
	table, err := models.NewMapTable(name, entries)
	if err != nil {
		return models.MapTable{}, &etlerror.ValidationError{Path: key, Reason: "invalid map table", Err: err}
	}
	return table, nil
}
