package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"github.com/andywolf/triagebot/internal/blob"
)

// maxObjectSize bounds downloads; stored objects are short text values.
const maxObjectSize = 1 << 20

// StorageStore is a blob.Store backed by Google Cloud Storage. Containers
// map to buckets.
type StorageStore struct {
	service *storage.Service
}

var _ blob.Store = (*StorageStore)(nil)

// NewStorageStore creates a GCS-backed store. credentialsJSON is a
// service-account key; when empty, Application Default Credentials are used.
func NewStorageStore(ctx context.Context, credentialsJSON string, opts ...option.ClientOption) (*StorageStore, error) {
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	opts = append(opts, option.WithScopes(storage.DevstorageReadWriteScope))

	service, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &StorageStore{service: service}, nil
}

// UploadText writes content to bucket/name, replacing any existing object.
func (s *StorageStore) UploadText(ctx context.Context, name, content, container string) error {
	obj := &storage.Object{
		Name:        name,
		ContentType: "text/plain; charset=utf-8",
	}
	_, err := s.service.Objects.Insert(container, obj).
		Name(name).
		Media(strings.NewReader(content)).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to upload %s/%s: %w", container, name, err)
	}
	return nil
}

// DownloadText reads bucket/name. A missing object or bucket yields
// blob.ErrNotFound.
func (s *StorageStore) DownloadText(ctx context.Context, name, container string) (string, error) {
	resp, err := s.service.Objects.Get(container, name).Context(ctx).Download()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			return "", fmt.Errorf("%s/%s: %w", container, name, blob.ErrNotFound)
		}
		return "", fmt.Errorf("failed to download %s/%s: %w", container, name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxObjectSize))
	if err != nil {
		return "", fmt.Errorf("failed to read %s/%s: %w", container, name, err)
	}
	return string(data), nil
}
