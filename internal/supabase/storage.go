package supabase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	storage "github.com/supabase-community/storage-go"
)

// ErrObjectNotFound is returned by Get when the bucket has no object at the path.
var ErrObjectNotFound = errors.New("storage object not found")

// StorageClient keeps scan artifacts in a private bucket. Objects are only
// served through the owner-scoped API routes, never by public URL.
type StorageClient struct {
	client *storage.Client
	bucket string
}

func NewStorageClient(supabaseURL, serviceRoleKey, bucket string) *StorageClient {
	baseURL := strings.TrimRight(supabaseURL, "/")
	client := storage.NewClient(baseURL+"/storage/v1", serviceRoleKey, nil)

	return &StorageClient{
		client: client,
		bucket: bucket,
	}
}

// Put uploads data to path, replacing any existing object.
func (s *StorageClient) Put(_ context.Context, path string, data []byte, contentType string) error {
	upsert := true
	_, err := s.client.UploadFile(s.bucket, path, bytes.NewReader(data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", path, err)
	}
	return nil
}

func (s *StorageClient) Get(_ context.Context, path string) ([]byte, error) {
	data, err := s.client.DownloadFile(s.bucket, path)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to download %s: %w", path, err)
	}
	return data, nil
}

func (s *StorageClient) Delete(_ context.Context, path string) error {
	if _, err := s.client.RemoveFile(s.bucket, []string{path}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// storage-go reports missing objects only through the error text.
func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404")
}
