package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"dzs/taxi-etl/internal/logging"
)

// GCSStore stores objects in a Google Cloud Storage bucket. Revisions are
// object generations, so PutIfMatch is safe across processes.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
	logger logging.Logger
}

// NewGCSStore opens a client using Application Default Credentials.
func NewGCSStore(ctx context.Context, bucket string, logger logging.Logger) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket name cannot be empty")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{
		client: client,
		bucket: client.Bucket(bucket),
		name:   bucket,
		logger: logging.Component(logger, "gcs-store"),
	}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) Get(ctx context.Context, key string) (Object, error) {
	rc, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return Object{}, storageErr("get", key, ErrNotFound)
		}
		return Object{}, storageErr("get", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return Object{}, storageErr("get", key, err)
	}
	return Object{Key: key, Data: data, Revision: strconv.FormatInt(rc.Attrs.Generation, 10)}, nil
}

func (s *GCSStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	return s.write(ctx, s.bucket.Object(key), key, data)
}

func (s *GCSStore) PutIfMatch(ctx context.Context, key string, data []byte, revision string) (string, error) {
	obj := s.bucket.Object(key)
	if revision == "" {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	} else {
		generation, err := strconv.ParseInt(revision, 10, 64)
		if err != nil {
			return "", storageErr("put", key, fmt.Errorf("invalid revision %q: %w", revision, err))
		}
		obj = obj.If(storage.Conditions{GenerationMatch: generation})
	}
	return s.write(ctx, obj, key, data)
}

func (s *GCSStore) write(ctx context.Context, obj *storage.ObjectHandle, key string, data []byte) (string, error) {
	w := obj.NewWriter(ctx)
	if strings.HasSuffix(key, ".csv") {
		w.ContentType = "text/csv"
	} else if strings.HasSuffix(key, ".json") {
		w.ContentType = "application/json"
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", storageErr("put", key, err)
	}
	if err := w.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return "", storageErr("put", key, ErrPreconditionFailed)
		}
		return "", storageErr("put", key, err)
	}
	s.logger.Debug("Object uploaded",
		logging.Field{Key: logging.FieldObjectKey, Value: "gs://" + s.name + "/" + key},
		logging.Field{Key: logging.FieldCount, Value: len(data)})
	return strconv.FormatInt(w.Attrs().Generation, 10), nil
}

func (s *GCSStore) Copy(ctx context.Context, src, dst string) error {
	_, err := s.bucket.Object(dst).CopierFrom(s.bucket.Object(src)).Run(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return storageErr("copy", src, ErrNotFound)
		}
		return storageErr("copy", src, err)
	}
	return nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.bucket.Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return storageErr("delete", key, err)
	}
	return nil
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, storageErr("list", prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}
