package designs

import (
	"context"
	"errors"
	"net/http"

	"polotno-studio/core"
	"polotno-studio/designs"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type Repository interface {
	List(ctx context.Context) ([]core.DesignSummary, error)
	LoadByID(ctx context.Context, id string) (*designs.Loaded, error)
	Delete(ctx context.Context, id string) error
	PreviewURL(ctx context.Context, id string) (string, error)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrNotSignedIn):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func HandleList(repo Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := repo.List(r.Context())
		if err != nil {
			logrus.WithError(err).Error("Failed to list designs")
			render.Status(r, statusFor(err))
			render.JSON(w, r, map[string]string{"error": "Failed to list designs"})
			return
		}
		render.JSON(w, r, list)
	}
}

func HandleGet(repo Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		loaded, err := repo.LoadByID(r.Context(), id)
		if err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "design_id": id}).Warn("Failed to load design")
			render.Status(r, statusFor(err))
			render.JSON(w, r, map[string]string{"error": "Failed to load design"})
			return
		}
		render.JSON(w, r, loaded)
	}
}

func HandleDelete(repo Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := repo.Delete(r.Context(), id); err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "design_id": id}).Error("Failed to delete design")
			render.Status(r, statusFor(err))
			render.JSON(w, r, map[string]string{"error": "Failed to delete design"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandlePreview(repo Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		url, err := repo.PreviewURL(r.Context(), id)
		if err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "design_id": id}).Warn("Failed to resolve preview")
			render.Status(r, statusFor(err))
			render.JSON(w, r, map[string]string{"error": "Preview not found"})
			return
		}
		render.JSON(w, r, map[string]string{"url": url})
	}
}
