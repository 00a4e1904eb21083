package project

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"polotno-studio/project"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

const maxDocumentSize = 20 << 20

type Controller interface {
	State() project.State
	Save(ctx context.Context)
	CreateNewDesign(ctx context.Context)
	Duplicate(ctx context.Context)
	LoadByID(ctx context.Context, id string)
	Rename(name string)
	SetLanguage(ctx context.Context, lang string) error
}

// Document is the scene the editor edits.
type Document interface {
	ToJSON() json.RawMessage
	Update(raw json.RawMessage) error
}

func HandleState(c Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, c.State())
	}
}

func HandleGetDocument(doc Document) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc.ToJSON())
	}
}

// HandlePutDocument receives an edit from the editor. It counts as a change
// and schedules the autosave.
func HandlePutDocument(doc Document) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentSize))
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Failed to read request body"})
			return
		}
		defer r.Body.Close()

		if err := doc.Update(body); err != nil {
			logrus.WithError(err).Warn("Rejected document update")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Document must be a JSON object"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Controller operations never fail the request; the resulting state says
// what happened.
func handleOp(c Controller, op func(r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		op(r)
		render.JSON(w, r, c.State())
	}
}

func HandleSave(c Controller) http.HandlerFunc {
	return handleOp(c, func(r *http.Request) { c.Save(r.Context()) })
}

func HandleNew(c Controller) http.HandlerFunc {
	return handleOp(c, func(r *http.Request) { c.CreateNewDesign(r.Context()) })
}

func HandleDuplicate(c Controller) http.HandlerFunc {
	return handleOp(c, func(r *http.Request) { c.Duplicate(r.Context()) })
}

func HandleLoad(c Controller) http.HandlerFunc {
	return handleOp(c, func(r *http.Request) { c.LoadByID(r.Context(), chi.URLParam(r, "id")) })
}

func HandleRename(c Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid JSON in request body"})
			return
		}
		c.Rename(body.Name)
		render.JSON(w, r, c.State())
	}
}

func HandleLanguage(c Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Language string `json:"language"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Language == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Language is required"})
			return
		}
		if err := c.SetLanguage(r.Context(), body.Language); err != nil {
			logrus.WithError(err).Error("Failed to persist language")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to save language"})
			return
		}
		render.JSON(w, r, c.State())
	}
}
