package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"polotno-studio/core"
)

func newTestStore(t *testing.T) *sqliteStore {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "studio.db"))
	t.Cleanup(func() { store.Close() })
	return store
}

func TestWriteRead_Kinds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Write(ctx, "preview", core.BinaryValue([]byte{0xff, 0xd8})); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if err := store.Write(ctx, "doc", core.TextValue(`{"pages":[]}`)); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if err := store.Write(ctx, "list", core.ParsedValue([]core.DesignSummary{{ID: "a", Name: "A"}})); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	v, err := store.Read(ctx, "preview")
	if err != nil || v.Kind != core.KindBinary || len(v.Bytes) != 2 {
		t.Errorf("Read(preview) = %+v, %v", v, err)
	}
	v, err = store.Read(ctx, "doc")
	if err != nil || v.Kind != core.KindText || string(v.Bytes) != `{"pages":[]}` {
		t.Errorf("Read(doc) = %+v, %v", v, err)
	}
	v, err = store.Read(ctx, "list")
	if err != nil || v.Kind != core.KindParsed {
		t.Fatalf("Read(list) = %+v, %v", v, err)
	}
	var list []core.DesignSummary
	if err := v.DecodeJSON(&list); err != nil {
		t.Fatalf("DecodeJSON() failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != "a" {
		t.Errorf("decoded list = %v", list)
	}
}

func TestWrite_Overwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Write(ctx, "k", core.TextValue("one"))
	store.Write(ctx, "k", core.BinaryValue([]byte("two")))

	v, err := store.Read(ctx, "k")
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if v.Kind != core.KindBinary || string(v.Bytes) != "two" {
		t.Errorf("Read() = %+v", v)
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

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Write(ctx, "k", core.TextValue("v"))
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Read(ctx, "k"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Read() after Delete() error = %v", err)
	}
}
