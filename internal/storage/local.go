package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"dzs/taxi-etl/internal/logging"
)

// LocalStore maps object keys to files below a root directory. Revisions are
// content hashes; PutIfMatch is atomic within one process only.
type LocalStore struct {
	root   string
	logger logging.Logger
	mu     sync.Mutex
}

// NewLocalStore creates a LocalStore rooted at root, creating the directory
// if needed.
func NewLocalStore(root string, logger logging.Logger) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage root cannot be empty")
	}
	if err := EnsureDirectoryExists(root); err != nil {
		return nil, err
	}
	return &LocalStore{root: root, logger: logging.Component(logger, "local-store")}, nil
}

// Root returns the directory objects are stored under.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *LocalStore) Get(ctx context.Context, key string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	p, err := s.path(key)
	if err != nil {
		return Object{}, storageErr("get", key, err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Object{}, storageErr("get", key, ErrNotFound)
		}
		return Object{}, storageErr("get", key, err)
	}
	return Object{Key: key, Data: data, Revision: contentRevision(data)}, nil
}

func (s *LocalStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(key, data)
}

func (s *LocalStore) PutIfMatch(ctx context.Context, key string, data []byte, revision string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.path(key)
	if err != nil {
		return "", storageErr("put", key, err)
	}
	current := ""
	existing, err := os.ReadFile(p)
	switch {
	case err == nil:
		current = contentRevision(existing)
	case !errors.Is(err, fs.ErrNotExist):
		return "", storageErr("put", key, err)
	}
	if current != revision {
		return "", preconditionErr(key, revision, current)
	}
	return s.write(key, data)
}

// write replaces the file through a temporary file and a rename so readers
// never see a partial object.
func (s *LocalStore) write(key string, data []byte) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", storageErr("put", key, err)
	}
	if err := EnsureDirectoryExists(filepath.Dir(p)); err != nil {
		return "", storageErr("put", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return "", storageErr("put", key, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", storageErr("put", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", storageErr("put", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return "", storageErr("put", key, err)
	}
	s.logger.Debug("Object written",
		logging.Field{Key: logging.FieldObjectKey, Value: key},
		logging.Field{Key: logging.FieldCount, Value: len(data)})
	return contentRevision(data), nil
}

func (s *LocalStore) Copy(ctx context.Context, src, dst string) error {
	obj, err := s.Get(ctx, src)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.write(dst, obj.Data)
	return err
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return storageErr("delete", key, err)
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageErr("delete", key, err)
	}
	return nil
}

func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("list", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// DirectoryExists checks if a directory exists
func DirectoryExists(dirPath string) bool {
	info, err := os.Stat(dirPath)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && info.IsDir()
}

// EnsureDirectoryExists creates a directory if it doesn't exist
func EnsureDirectoryExists(dirPath string) error {
	if !DirectoryExists(dirPath) {
		if err := os.MkdirAll(dirPath, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return nil
}
