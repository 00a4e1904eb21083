package core

import "encoding/json"

type (
	// Design is a persisted user document: the serialized scene plus its preview image.
	Design struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		StoreJSON json.RawMessage `json:"storeJSON"`
		Preview   []byte          `json:"-"`
	}

	// DesignSummary is one entry of the design index.
	DesignSummary struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	// Asset is an uploaded image or video plus its generated preview.
	Asset struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Data    []byte `json:"-"`
		Preview []byte `json:"-"`
	}

	// AssetSummary is one entry of the asset index.
	AssetSummary struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}

	// Status is the save state of the open design.
	Status string
)

const (
	StatusSaved      Status = "saved"
	StatusHasChanges Status = "has-changes"
	StatusSaving     Status = "saving"
	StatusLoading    Status = "loading"
)

// Persisted keys shared by every backend.
const (
	DesignsListKey = "designs-list"
	AssetsListKey  = "assets-list"
)

func DesignJSONKey(id string) string {
	return "designs/" + id + ".json"
}

func DesignPreviewKey(id string) string {
	return "designs/" + id + ".jpg"
}

func UploadKey(id string) string {
	return "uploads/" + id
}

func UploadPreviewKey(id string) string {
	return "uploads/" + id + "-preview"
}
