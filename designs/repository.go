// Package designs stores designs (scene JSON plus preview) and the design index
// in whichever backend is current.
package designs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"polotno-studio/core"
	"polotno-studio/stores"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// Backends is the view of the storage selector the repository needs.
type Backends interface {
	Current() (core.KeyValueStore, stores.Backend, error)
	Local() core.KeyValueStore
	Remote() (core.KeyValueStore, error)
}

type (
	// Loaded is the result of LoadByID. Indexed is false when the id has no index entry.
	Loaded struct {
		StoreJSON json.RawMessage `json:"storeJSON"`
		Name      string          `json:"name"`
		Indexed   bool            `json:"indexed"`
	}

	SaveInput struct {
		ID        string
		Name      string
		StoreJSON json.RawMessage
		Preview   []byte
	}

	SaveResult struct {
		ID     string      `json:"id"`
		Status core.Status `json:"status"`
	}
)

type Repository struct {
	backends Backends
	newID    func() string
}

func NewRepository(backends Backends) *Repository {
	return &Repository{
		backends: backends,
		newID:    func() string { return ulid.Make().String() },
	}
}

func readList(ctx context.Context, store core.KeyValueStore) ([]core.DesignSummary, error) {
	v, err := store.Read(ctx, core.DesignsListKey)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return []core.DesignSummary{}, nil
		}
		return nil, err
	}
	var list []core.DesignSummary
	if err := v.DecodeJSON(&list); err != nil {
		return nil, fmt.Errorf("decode design index: %w", err)
	}
	if list == nil {
		list = []core.DesignSummary{}
	}
	return list, nil
}

func writeList(ctx context.Context, store core.KeyValueStore, list []core.DesignSummary) error {
	return store.Write(ctx, core.DesignsListKey, core.ParsedValue(list))
}

func deleteIgnoringMissing(ctx context.Context, store core.KeyValueStore, key string) error {
	if err := store.Delete(ctx, key); err != nil && !errors.Is(err, core.ErrNotFound) {
		return err
	}
	return nil
}

// List returns the design index of the current backend.
func (r *Repository) List(ctx context.Context) ([]core.DesignSummary, error) {
	store, _, err := r.backends.Current()
	if err != nil {
		return nil, err
	}
	return readList(ctx, store)
}

// LoadByID reads the scene JSON of id and looks its name up in the index.
// A read or parse failure of the JSON is returned; a missing index entry is not.
func (r *Repository) LoadByID(ctx context.Context, id string) (*Loaded, error) {
	store, _, err := r.backends.Current()
	if err != nil {
		return nil, err
	}

	v, err := store.Read(ctx, core.DesignJSONKey(id))
	if err != nil {
		return nil, fmt.Errorf("load design %s: %w", id, err)
	}
	raw, err := v.Raw()
	if err != nil {
		return nil, fmt.Errorf("load design %s: %w", id, err)
	}

	list, err := readList(ctx, store)
	if err != nil {
		return nil, err
	}
	loaded := &Loaded{StoreJSON: raw}
	for _, d := range list {
		if d.ID == id {
			loaded.Name = d.Name
			loaded.Indexed = true
			break
		}
	}
	return loaded, nil
}

// Save writes the preview, then the JSON, then the index entry. An empty ID
// allocates a new one. There is no conflict check: the last writer wins.
func (r *Repository) Save(ctx context.Context, in SaveInput) (SaveResult, error) {
	store, backend, err := r.backends.Current()
	if err != nil {
		return SaveResult{}, err
	}

	id := in.ID
	if id == "" {
		id = r.newID()
	}
	log := logrus.WithFields(logrus.Fields{"design_id": id, "backend": backend})

	if in.Preview != nil {
		if err := store.Write(ctx, core.DesignPreviewKey(id), core.BinaryValue(in.Preview)); err != nil {
			log.WithError(err).Error("Failed to write design preview")
			return SaveResult{}, fmt.Errorf("save preview %s: %w", id, err)
		}
	}
	if err := store.Write(ctx, core.DesignJSONKey(id), core.TextValue(string(in.StoreJSON))); err != nil {
		log.WithError(err).Error("Failed to write design JSON")
		return SaveResult{}, fmt.Errorf("save design %s: %w", id, err)
	}

	list, err := readList(ctx, store)
	if err != nil {
		return SaveResult{}, err
	}
	found := false
	for i := range list {
		if list[i].ID == id {
			list[i].Name = in.Name
			found = true
			break
		}
	}
	if !found {
		list = append(list, core.DesignSummary{ID: id, Name: in.Name})
	}
	if err := writeList(ctx, store, list); err != nil {
		return SaveResult{}, fmt.Errorf("update design index: %w", err)
	}

	log.Info("Design saved")
	return SaveResult{ID: id, Status: core.StatusSaved}, nil
}

// Delete drops the index entry first, then both blobs, so the index never
// points at a half-deleted design.
func (r *Repository) Delete(ctx context.Context, id string) error {
	store, _, err := r.backends.Current()
	if err != nil {
		return err
	}

	list, err := readList(ctx, store)
	if err != nil {
		return err
	}
	kept := make([]core.DesignSummary, 0, len(list))
	for _, d := range list {
		if d.ID != id {
			kept = append(kept, d)
		}
	}
	if err := writeList(ctx, store, kept); err != nil {
		return fmt.Errorf("update design index: %w", err)
	}

	return errors.Join(
		deleteIgnoringMissing(ctx, store, core.DesignJSONKey(id)),
		deleteIgnoringMissing(ctx, store, core.DesignPreviewKey(id)),
	)
}

// PreviewURL returns the preview of id as a data URL.
func (r *Repository) PreviewURL(ctx context.Context, id string) (string, error) {
	store, _, err := r.backends.Current()
	if err != nil {
		return "", err
	}
	v, err := store.Read(ctx, core.DesignPreviewKey(id))
	if err != nil {
		return "", fmt.Errorf("load preview %s: %w", id, err)
	}
	return DataURL(v)
}

// DataURL encodes a stored blob as a transient data URL.
func DataURL(v core.Value) (string, error) {
	data, err := v.Encode()
	if err != nil {
		return "", err
	}
	return "data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// BackupFromLocalToCloud copies every locally indexed design to the account,
// appends the entries to the remote index, then clears the local designs.
// It returns the number of designs in the remote index. With nothing stored
// locally it only reads. Concurrent calls are not guarded and can append twice.
func (r *Repository) BackupFromLocalToCloud(ctx context.Context) (int, error) {
	local := r.backends.Local()
	remote, err := r.backends.Remote()
	if err != nil {
		return 0, err
	}

	localList, err := readList(ctx, local)
	if err != nil {
		return 0, fmt.Errorf("read local index: %w", err)
	}
	remoteList, err := readList(ctx, remote)
	if err != nil {
		return 0, fmt.Errorf("read remote index: %w", err)
	}
	if len(localList) == 0 {
		return len(remoteList), nil
	}

	for _, d := range localList {
		log := logrus.WithField("design_id", d.ID)

		doc, err := local.Read(ctx, core.DesignJSONKey(d.ID))
		if errors.Is(err, core.ErrNotFound) {
			log.Warn("Local design has no JSON, skipping")
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("read local design %s: %w", d.ID, err)
		}
		if err := remote.Write(ctx, core.DesignJSONKey(d.ID), doc); err != nil {
			return 0, fmt.Errorf("copy design %s: %w", d.ID, err)
		}

		preview, err := local.Read(ctx, core.DesignPreviewKey(d.ID))
		switch {
		case errors.Is(err, core.ErrNotFound):
			log.Warn("Local design has no preview")
		case err != nil:
			return 0, fmt.Errorf("read local preview %s: %w", d.ID, err)
		default:
			if err := remote.Write(ctx, core.DesignPreviewKey(d.ID), preview); err != nil {
				return 0, fmt.Errorf("copy preview %s: %w", d.ID, err)
			}
		}

		remoteList = append(remoteList, d)
	}

	if err := writeList(ctx, remote, remoteList); err != nil {
		return 0, fmt.Errorf("update remote index: %w", err)
	}

	if err := deleteIgnoringMissing(ctx, local, core.DesignsListKey); err != nil {
		return 0, fmt.Errorf("clear local index: %w", err)
	}
	var errs []error
	for _, d := range localList {
		errs = append(errs,
			deleteIgnoringMissing(ctx, local, core.DesignJSONKey(d.ID)),
			deleteIgnoringMissing(ctx, local, core.DesignPreviewKey(d.ID)),
		)
	}
	if err := errors.Join(errs...); err != nil {
		logrus.WithError(err).Warn("Some local design blobs were not removed after backup")
	}

	logrus.WithFields(logrus.Fields{
		"copied":       len(localList),
		"remote_count": len(remoteList),
	}).Info("Backed up local designs to cloud")
	return len(remoteList), nil
}
