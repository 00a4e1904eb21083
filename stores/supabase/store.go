package supabase

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"polotno-studio/core"

	"github.com/sirupsen/logrus"
	storage "github.com/supabase-community/storage-go"
)

const folderPlaceholder = ".emptyFolderPlaceholder"

// storageStore keeps every key as an object in one Supabase Storage bucket.
// Objects carry no kind tag, so reads come back as binary.
type storageStore struct {
	client *storage.Client
	bucket string
}

// NewStore creates a Supabase Storage backed store.
func NewStore(supabaseURL, serviceKey, bucket string) *storageStore {
	baseURL := strings.TrimSuffix(supabaseURL, "/")
	client := storage.NewClient(baseURL+"/storage/v1", serviceKey, nil)
	return &storageStore{client: client, bucket: bucket}
}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404")
}

func (s *storageStore) Read(ctx context.Context, key string) (core.Value, error) {
	data, err := s.client.DownloadFile(s.bucket, key)
	if err != nil {
		if isNotFound(err) {
			return core.Value{}, fmt.Errorf("read %s: %w", key, core.ErrNotFound)
		}
		return core.Value{}, fmt.Errorf("failed to download %s: %w", key, err)
	}
	return core.BinaryValue(data), nil
}

func (s *storageStore) Write(ctx context.Context, key string, value core.Value) error {
	data, err := value.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	contentType := "application/octet-stream"
	if value.Kind != core.KindBinary {
		contentType = "application/json"
	}
	upsert := true
	_, err = s.client.UploadFile(s.bucket, key, bytes.NewReader(data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	logrus.WithFields(logrus.Fields{"key": key, "data_length": len(data)}).Debug("Object uploaded")
	return nil
}

func (s *storageStore) Delete(ctx context.Context, key string) error {
	if _, err := s.client.RemoveFile(s.bucket, []string{key}); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// Mkdir uploads the placeholder object Supabase uses to materialize empty folders.
func (s *storageStore) Mkdir(ctx context.Context, path string, createMissingParents bool) error {
	contentType := "text/plain"
	upsert := true
	_, err := s.client.UploadFile(s.bucket, strings.TrimSuffix(path, "/")+"/"+folderPlaceholder, bytes.NewReader(nil), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return fmt.Errorf("failed to create folder %s: %w", path, err)
	}
	return nil
}
