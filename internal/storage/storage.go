// Package storage provides the object storage backends the pipeline reads
// raw payloads from and writes transformed data and map tables to.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"dzs/taxi-etl/internal/etlerror"
)

var (
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrPreconditionFailed is returned by PutIfMatch when the stored
	// revision differs from the expected one.
	ErrPreconditionFailed = errors.New("object revision precondition failed")
)

// Object is the content of a stored object and the revision it was read at.
type Object struct {
	Key      string
	Data     []byte
	Revision string
}

// ObjectStore is a flat key/value object store with prefix listing.
type ObjectStore interface {
	// Get reads an object. It returns ErrNotFound when the key does not exist.
	Get(ctx context.Context, key string) (Object, error)

	// Put writes an object unconditionally and returns its new revision.
	Put(ctx context.Context, key string, data []byte) (string, error)

	// PutIfMatch writes an object only if its current revision equals
	// revision. An empty revision requires that the object does not exist.
	PutIfMatch(ctx context.Context, key string, data []byte, revision string) (string, error)

	// Copy duplicates src to dst, overwriting dst.
	Copy(ctx context.Context, src, dst string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Move copies src to dst and then deletes src.
func Move(ctx context.Context, store ObjectStore, src, dst string) error {
	if err := store.Copy(ctx, src, dst); err != nil {
		return err
	}
	return store.Delete(ctx, src)
}

// BaseName returns the last path segment of an object key.
func BaseName(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}

// contentRevision derives a revision from the object content.
func contentRevision(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func storageErr(op, key string, err error) error {
	return &etlerror.StorageError{Op: op, Key: key, Err: err}
}

func preconditionErr(key, want, got string) error {
	return storageErr("put", key, fmt.Errorf("%w: want %q, have %q", ErrPreconditionFailed, want, got))
}
