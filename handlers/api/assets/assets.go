package assets

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"polotno-studio/assets"
	"polotno-studio/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

const maxUploadSize = 50 << 20

type Repository interface {
	List(ctx context.Context) ([]core.AssetSummary, error)
	Upload(ctx context.Context, in assets.UploadInput) (core.AssetSummary, error)
	Delete(ctx context.Context, id string) error
	URL(ctx context.Context, id string) (string, error)
	PreviewURL(ctx context.Context, id string) (string, error)
}

func fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrNotSignedIn):
		status = http.StatusUnauthorized
	case errors.Is(err, assets.ErrProvisioningExhausted):
		status = http.StatusServiceUnavailable
	}
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}

func HandleList(repo Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := repo.List(r.Context())
		if err != nil {
			logrus.WithError(err).Error("Failed to list assets")
			fail(w, r, err, "Failed to list assets")
			return
		}
		render.JSON(w, r, list)
	}
}

func readPart(form *multipart.Form, name string) ([]byte, error) {
	files := form.File[name]
	if len(files) == 0 {
		return nil, nil
	}
	f, err := files[0].Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// HandleUpload takes a multipart form with a "file" part, an optional
// "preview" part and a "type" field.
func HandleUpload(repo Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid multipart body"})
			return
		}

		data, err := readPart(r.MultipartForm, "file")
		if err != nil || data == nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "File is required"})
			return
		}
		preview, err := readPart(r.MultipartForm, "preview")
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid preview"})
			return
		}
		kind := r.FormValue("type")
		if kind == "" {
			kind = "image"
		}

		summary, err := repo.Upload(r.Context(), assets.UploadInput{Type: kind, Data: data, Preview: preview})
		if err != nil {
			logrus.WithError(err).Error("Failed to upload asset")
			fail(w, r, err, "Failed to upload asset")
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, summary)
	}
}

func HandleDelete(repo Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := repo.Delete(r.Context(), id); err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "asset_id": id}).Error("Failed to delete asset")
			fail(w, r, err, "Failed to delete asset")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleURL resolves the asset, or its preview with ?preview=true.
func HandleURL(repo Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		resolve := repo.URL
		if r.URL.Query().Get("preview") == "true" {
			resolve = repo.PreviewURL
		}

		url, err := resolve(r.Context(), id)
		if err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "asset_id": id}).Warn("Failed to resolve asset URL")
			fail(w, r, err, "Failed to resolve asset URL")
			return
		}
		render.JSON(w, r, map[string]string{"url": url})
	}
}
