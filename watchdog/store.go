package watchdog

import (
	"context"

	"polotno-studio/core"
)

type guardedStore struct {
	store core.KeyValueStore
	w     *Watchdog
}

// Wrap guards every call on store. Mkdir is guarded too when store supports it.
func Wrap(store core.KeyValueStore, w *Watchdog) core.KeyValueStore {
	return &guardedStore{store: store, w: w}
}

func (g *guardedStore) Read(ctx context.Context, key string) (core.Value, error) {
	var v core.Value
	err := g.w.Guard(ctx, "read", []any{key}, func() error {
		var err error
		v, err = g.store.Read(ctx, key)
		return err
	})
	return v, err
}

func (g *guardedStore) Write(ctx context.Context, key string, value core.Value) error {
	args := []any{key, value.Kind.String(), len(value.Bytes)}
	return g.w.Guard(ctx, "write", args, func() error {
		return g.store.Write(ctx, key, value)
	})
}

func (g *guardedStore) Delete(ctx context.Context, key string) error {
	return g.w.Guard(ctx, "delete", []any{key}, func() error {
		return g.store.Delete(ctx, key)
	})
}

func (g *guardedStore) Mkdir(ctx context.Context, path string, createMissingParents bool) error {
	fs, ok := g.store.(core.FileSystem)
	if !ok {
		return nil
	}
	return g.w.Guard(ctx, "mkdir", []any{path, createMissingParents}, func() error {
		return fs.Mkdir(ctx, path, createMissingParents)
	})
}
