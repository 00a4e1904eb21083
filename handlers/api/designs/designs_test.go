package designs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"polotno-studio/core"
	"polotno-studio/designs"
	"polotno-studio/stores"
	"polotno-studio/stores/memory"

	"github.com/go-chi/chi/v5"
)

type signedOut struct{}

func (signedOut) IsSignedIn() bool                                    { return false }
func (signedOut) SignIn(ctx context.Context, credential string) error { return nil }
func (signedOut) User() (core.User, bool)                             { return core.User{}, false }

func newRepo(t *testing.T) *designs.Repository {
	t.Helper()
	sel := stores.NewSelector(memory.NewStore(), memory.NewStore(), signedOut{}, nil)
	return designs.NewRepository(sel)
}

func withID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestHandleList_Empty(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleList(newRepo(t))(rec, httptest.NewRequest(http.MethodGet, "/api/designs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestHandleGet(t *testing.T) {
	repo := newRepo(t)
	res, _ := repo.Save(context.Background(), designs.SaveInput{
		Name:      "Card",
		StoreJSON: json.RawMessage(`{"pages":[]}`),
		Preview:   []byte{0xff, 0xd8, 0xff},
	})

	rec := httptest.NewRecorder()
	HandleGet(repo)(rec, withID(httptest.NewRequest(http.MethodGet, "/", nil), res.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var loaded designs.Loaded
	if err := json.NewDecoder(rec.Body).Decode(&loaded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if loaded.Name != "Card" || string(loaded.StoreJSON) != `{"pages":[]}` {
		t.Errorf("loaded = %+v", loaded)
	}

	rec = httptest.NewRecorder()
	HandlePreview(repo)(rec, withID(httptest.NewRequest(http.MethodGet, "/", nil), res.ID))
	if !strings.Contains(rec.Body.String(), "data:image/jpeg;base64,") {
		t.Errorf("preview body = %s", rec.Body.String())
	}
}

func TestHandleGet_NotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleGet(newRepo(t))(rec, withID(httptest.NewRequest(http.MethodGet, "/", nil), "nope"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleDelete(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	res, _ := repo.Save(ctx, designs.SaveInput{StoreJSON: json.RawMessage(`{}`)})

	rec := httptest.NewRecorder()
	HandleDelete(repo)(rec, withID(httptest.NewRequest(http.MethodDelete, "/", nil), res.ID))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if list, _ := repo.List(ctx); len(list) != 0 {
		t.Errorf("list after delete = %v", list)
	}
}
