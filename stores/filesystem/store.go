package filesystem

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"polotno-studio/core"

	"github.com/sirupsen/logrus"
)

// fsStore keeps one file per key under basePath. Reads come back as binary,
// the same way a file read does on the remote file API.
type fsStore struct {
	basePath string
}

// NewStore creates a new filesystem-based store.
func NewStore(basePath string) *fsStore {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		log.Fatalf("failed to create base directory: %v", err)
	}
	return &fsStore{basePath: basePath}
}

func (s *fsStore) path(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("key cannot be empty")
	}
	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(filepath.Join(s.basePath, filepath.FromSlash(key)))
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key %q: access denied", key)
	}
	return absPath, nil
}

func (s *fsStore) Read(ctx context.Context, key string) (core.Value, error) {
	filePath, err := s.path(key)
	if err != nil {
		return core.Value{}, err
	}
	log := logrus.WithFields(logrus.Fields{"key": key, "file_path": filePath})

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug("Key not found")
			return core.Value{}, fmt.Errorf("read %s: %w", key, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to read value")
		return core.Value{}, err
	}
	return core.BinaryValue(data), nil
}

func (s *fsStore) Write(ctx context.Context, key string, value core.Value) error {
	filePath, err := s.path(key)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"key": key, "file_path": filePath})

	data, err := value.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		log.WithError(err).Error("Failed to create directory")
		return err
	}

	// Write through a temp file so a crash never leaves a torn value.
	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		os.Remove(tmp.Name())
		log.WithError(err).Error("Failed to write value")
		return err
	}

	log.WithField("data_length", len(data)).Debug("Value written")
	return nil
}

func (s *fsStore) Delete(ctx context.Context, key string) error {
	filePath, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", key, core.ErrNotFound)
		}
		logrus.WithField("key", key).WithError(err).Error("Failed to delete value")
		return err
	}
	return nil
}

func (s *fsStore) Mkdir(ctx context.Context, path string, createMissingParents bool) error {
	dirPath, err := s.path(path)
	if err != nil {
		return err
	}
	if createMissingParents {
		return os.MkdirAll(dirPath, 0755)
	}
	return os.Mkdir(dirPath, 0755)
}
