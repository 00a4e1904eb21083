// Package assets stores uploaded images and videos and resolves their public URLs.
package assets

import (
	"context"
	"errors"
	"fmt"

	"polotno-studio/core"
	"polotno-studio/designs"
	"polotno-studio/stores"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// UploadDir is the account directory served by the hosting subdomain.
const UploadDir = "uploads"

type Backends interface {
	Current() (core.KeyValueStore, stores.Backend, error)
}

type UploadInput struct {
	ID      string
	Type    string
	Data    []byte
	Preview []byte
}

type Repository struct {
	backends      Backends
	account       core.Account
	provisioner   *Provisioner
	hostingDomain string
	newID         func() string
}

func NewRepository(backends Backends, account core.Account, provisioner *Provisioner, hostingDomain string) *Repository {
	return &Repository{
		backends:      backends,
		account:       account,
		provisioner:   provisioner,
		hostingDomain: hostingDomain,
		newID:         func() string { return ulid.Make().String() },
	}
}

func readList(ctx context.Context, store core.KeyValueStore) ([]core.AssetSummary, error) {
	v, err := store.Read(ctx, core.AssetsListKey)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return []core.AssetSummary{}, nil
		}
		return nil, err
	}
	var list []core.AssetSummary
	if err := v.DecodeJSON(&list); err != nil {
		return nil, fmt.Errorf("decode asset index: %w", err)
	}
	if list == nil {
		list = []core.AssetSummary{}
	}
	return list, nil
}

func (r *Repository) List(ctx context.Context) ([]core.AssetSummary, error) {
	store, _, err := r.backends.Current()
	if err != nil {
		return nil, err
	}
	return readList(ctx, store)
}

// Upload writes the asset and its preview, then appends it to the index.
func (r *Repository) Upload(ctx context.Context, in UploadInput) (core.AssetSummary, error) {
	store, backend, err := r.backends.Current()
	if err != nil {
		return core.AssetSummary{}, err
	}

	id := in.ID
	if id == "" {
		id = r.newID()
	}
	log := logrus.WithFields(logrus.Fields{"asset_id": id, "backend": backend, "type": in.Type})

	if err := store.Write(ctx, core.UploadKey(id), core.BinaryValue(in.Data)); err != nil {
		log.WithError(err).Error("Failed to write asset")
		return core.AssetSummary{}, fmt.Errorf("upload asset %s: %w", id, err)
	}
	if in.Preview != nil {
		if err := store.Write(ctx, core.UploadPreviewKey(id), core.BinaryValue(in.Preview)); err != nil {
			return core.AssetSummary{}, fmt.Errorf("upload asset preview %s: %w", id, err)
		}
	}

	list, err := readList(ctx, store)
	if err != nil {
		return core.AssetSummary{}, err
	}
	summary := core.AssetSummary{ID: id, Type: in.Type}
	replaced := false
	for i := range list {
		if list[i].ID == id {
			list[i] = summary
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, summary)
	}
	if err := store.Write(ctx, core.AssetsListKey, core.ParsedValue(list)); err != nil {
		return core.AssetSummary{}, fmt.Errorf("update asset index: %w", err)
	}

	log.WithField("data_length", len(in.Data)).Info("Asset uploaded")
	return summary, nil
}

// Delete drops the index entry, then the asset and its preview.
func (r *Repository) Delete(ctx context.Context, id string) error {
	store, _, err := r.backends.Current()
	if err != nil {
		return err
	}

	list, err := readList(ctx, store)
	if err != nil {
		return err
	}
	kept := make([]core.AssetSummary, 0, len(list))
	for _, a := range list {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	if err := store.Write(ctx, core.AssetsListKey, core.ParsedValue(kept)); err != nil {
		return fmt.Errorf("update asset index: %w", err)
	}

	var errs []error
	for _, key := range []string{core.UploadKey(id), core.UploadPreviewKey(id)} {
		if err := store.Delete(ctx, key); err != nil && !errors.Is(err, core.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// URL resolves the asset for display: the account's public subdomain when
// signed in, a transient data URL of the local blob otherwise.
func (r *Repository) URL(ctx context.Context, id string) (string, error) {
	return r.resolve(ctx, id, core.UploadKey(id), id)
}

// PreviewURL resolves the asset's preview the same way as URL.
func (r *Repository) PreviewURL(ctx context.Context, id string) (string, error) {
	return r.resolve(ctx, id, core.UploadPreviewKey(id), id+"-preview")
}

func (r *Repository) resolve(ctx context.Context, id, key, name string) (string, error) {
	store, backend, err := r.backends.Current()
	if err != nil {
		return "", err
	}

	if backend == stores.BackendRemote {
		user, ok := r.account.User()
		if !ok {
			return "", core.ErrNotSignedIn
		}
		sub, err := r.provisioner.Subdomain(ctx, user)
		if err != nil {
			return "", fmt.Errorf("resolve asset %s: %w", id, err)
		}
		return fmt.Sprintf("https://%s.%s/%s", sub, r.hostingDomain, name), nil
	}

	v, err := store.Read(ctx, key)
	if err != nil {
		return "", fmt.Errorf("resolve asset %s: %w", id, err)
	}
	return designs.DataURL(v)
}
