package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"polotno-studio/core"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const kindMetadataKey = "kind"

type s3Store struct {
	s3Client *s3.Client
	bucket   string
}

// NewClient loads the default AWS configuration and returns an S3 client.
func NewClient() *s3.Client {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}
	return s3.NewFromConfig(cfg)
}

// NewStore creates a new S3-based store. The value kind travels as object metadata.
func NewStore(client *s3.Client, bucketName string) *s3Store {
	return &s3Store{
		s3Client: client,
		bucket:   bucketName,
	}
}

func objectKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("invalid key: must not be empty")
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("invalid key %q: must not contain empty or dot segments", key)
		}
	}
	return path.Clean(key), nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

func (s *s3Store) Read(ctx context.Context, key string) (core.Value, error) {
	objKey, err := objectKey(key)
	if err != nil {
		return core.Value{}, err
	}
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		if isNotFound(err) {
			return core.Value{}, fmt.Errorf("read %s: %w", key, core.ErrNotFound)
		}
		return core.Value{}, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.Value{}, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	v, err := core.StoredValue(core.ParseValueKind(resp.Metadata[kindMetadataKey]), data)
	if err != nil {
		return core.Value{}, fmt.Errorf("failed to decode object %s: %w", key, err)
	}
	return v, nil
}

func (s *s3Store) Write(ctx context.Context, key string, value core.Value) error {
	objKey, err := objectKey(key)
	if err != nil {
		return err
	}
	data, err := value.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	contentType := "application/octet-stream"
	if value.Kind != core.KindBinary {
		contentType = "application/json"
	}
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{kindMetadataKey: value.Kind.String()},
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// Delete is idempotent: S3 does not report missing keys on delete.
func (s *s3Store) Delete(ctx context.Context, key string) error {
	objKey, err := objectKey(key)
	if err != nil {
		return err
	}
	_, err = s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// Mkdir writes a zero-byte "dir/" marker; S3 has no directories otherwise.
func (s *s3Store) Mkdir(ctx context.Context, dir string, createMissingParents bool) error {
	objKey, err := objectKey(dir)
	if err != nil {
		return err
	}
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey + "/"),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
