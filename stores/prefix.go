package stores

import (
	"context"

	"polotno-studio/core"
)

type prefixedStore struct {
	store  core.KeyValueStore
	prefix string
}

// WithPrefix scopes store to keys under prefix.
func WithPrefix(store core.KeyValueStore, prefix string) core.KeyValueStore {
	return &prefixedStore{store: store, prefix: prefix}
}

func (p *prefixedStore) Read(ctx context.Context, key string) (core.Value, error) {
	return p.store.Read(ctx, p.prefix+key)
}

func (p *prefixedStore) Write(ctx context.Context, key string, value core.Value) error {
	return p.store.Write(ctx, p.prefix+key, value)
}

func (p *prefixedStore) Delete(ctx context.Context, key string) error {
	return p.store.Delete(ctx, p.prefix+key)
}

func (p *prefixedStore) Mkdir(ctx context.Context, path string, createMissingParents bool) error {
	if fs, ok := p.store.(core.FileSystem); ok {
		return fs.Mkdir(ctx, p.prefix+path, createMissingParents)
	}
	return nil
}
