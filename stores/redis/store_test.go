package redis

import (
	"context"
	"errors"
	"os"
	"testing"

	"polotno-studio/core"

	"github.com/oklog/ulid/v2"
)

// These tests need a live server; set REDIS_ADDR to run them.
func newTestStore(t *testing.T) *redisStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	store := NewStore(addr, os.Getenv("REDIS_PASSWORD"), "studio-test:"+ulid.Make().String()+":")
	t.Cleanup(func() { store.Close() })
	return store
}

func TestWriteRead_Kinds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Write(ctx, "list", core.ParsedValue([]core.DesignSummary{{ID: "a"}})); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	v, err := store.Read(ctx, "list")
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if v.Kind != core.KindParsed {
		t.Errorf("Read() kind = %v, want parsed", v.Kind)
	}

	if err := store.Write(ctx, "blob", core.BinaryValue([]byte{0, 1, 2})); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	v, err = store.Read(ctx, "blob")
	if err != nil || v.Kind != core.KindBinary || len(v.Bytes) != 3 {
		t.Errorf("Read(blob) = %+v, %v", v, err)
	}
}

func TestReadDelete_NotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Read(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Read() error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}
