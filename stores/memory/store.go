package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"polotno-studio/core"

	"github.com/sirupsen/logrus"
)

// memStore keeps values exactly as written, kind included.
type memStore struct {
	mu     sync.RWMutex
	values map[string]core.Value
}

// NewStore creates a new in-memory store.
func NewStore() *memStore {
	return &memStore{values: make(map[string]core.Value)}
}

func (s *memStore) Read(ctx context.Context, key string) (core.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		logrus.WithField("key", key).Debug("Key not found")
		return core.Value{}, fmt.Errorf("read %s: %w", key, core.ErrNotFound)
	}
	return v, nil
}

func (s *memStore) Write(ctx context.Context, key string, value core.Value) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if value.Kind != core.KindParsed {
		value.Bytes = append([]byte(nil), value.Bytes...)
	}
	s.values[key] = value
	logrus.WithFields(logrus.Fields{
		"key":  key,
		"kind": value.Kind.String(),
	}).Debug("Value written")
	return nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[key]; !ok {
		return fmt.Errorf("delete %s: %w", key, core.ErrNotFound)
	}
	delete(s.values, key)
	return nil
}

// Keys lists the stored keys with the given prefix, sorted.
func (s *memStore) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Mkdir records nothing; directories are implicit in a flat namespace.
func (s *memStore) Mkdir(ctx context.Context, path string, createMissingParents bool) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	return nil
}
