// Package scene holds the canvas document the editor pushes to the daemon.
package scene

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/oklog/ulid/v2"
)

const (
	DefaultWidth  = 1080
	DefaultHeight = 1080
)

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

var namedColors = map[string]string{
	"white":       "#ffffff",
	"black":       "#000000",
	"transparent": "#ffffff00",
	"red":         "#ff0000",
	"green":       "#008000",
	"blue":        "#0000ff",
	"gray":        "#808080",
	"grey":        "#808080",
}

type (
	element struct {
		Type     string  `json:"type"`
		X        float64 `json:"x"`
		Y        float64 `json:"y"`
		Width    float64 `json:"width"`
		Height   float64 `json:"height"`
		Rotation float64 `json:"rotation"`
		Fill     string  `json:"fill"`
		Visible  *bool   `json:"visible,omitempty"`
	}

	page struct {
		ID         string    `json:"id"`
		Background string    `json:"background"`
		Children   []element `json:"children"`
	}

	// layout is the part of the scene the daemon interprets. Everything else is
	// carried through untouched.
	layout struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
		Pages  []page  `json:"pages"`
	}
)

// Document is the serialized scene of the open design. Edits arrive through
// Update and fire change listeners; LoadJSON, Clear and AddPage are
// programmatic and stay silent.
type Document struct {
	mu        sync.RWMutex
	raw       json.RawMessage
	listeners map[int]func()
	nextID    int
}

func NewDocument() *Document {
	d := &Document{listeners: make(map[int]func())}
	d.Clear()
	return d
}

func (d *Document) ToJSON() json.RawMessage {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append(json.RawMessage(nil), d.raw...)
}

// LoadJSON replaces the scene. The payload must be a JSON object.
func (d *Document) LoadJSON(raw json.RawMessage) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return fmt.Errorf("scene is not a JSON object: %w", err)
	}
	d.mu.Lock()
	d.raw = append(json.RawMessage(nil), raw...)
	d.mu.Unlock()
	return nil
}

// Update applies an edit pushed by the editor and notifies listeners.
func (d *Document) Update(raw json.RawMessage) error {
	if err := d.LoadJSON(raw); err != nil {
		return err
	}
	d.mu.RLock()
	fns := make([]func(), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	d.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
	return nil
}

// Clear resets the scene to an empty canvas with no pages.
func (d *Document) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.raw = json.RawMessage(fmt.Sprintf(`{"width":%d,"height":%d,"pages":[]}`, DefaultWidth, DefaultHeight))
}

// AddPage appends a blank white page.
func (d *Document) AddPage() {
	d.mu.Lock()
	defer d.mu.Unlock()

	var doc map[string]any
	if err := json.Unmarshal(d.raw, &doc); err != nil {
		doc = map[string]any{"width": DefaultWidth, "height": DefaultHeight}
	}
	pages, _ := doc["pages"].([]any)
	doc["pages"] = append(pages, map[string]any{
		"id":         ulid.Make().String(),
		"background": "white",
		"children":   []any{},
	})
	raw, err := json.Marshal(doc)
	if err != nil {
		return
	}
	d.raw = raw
}

// OnChange registers fn for editor edits.
func (d *Document) OnChange(fn func()) (cancel func()) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.listeners, id)
		d.mu.Unlock()
	}
}

// RenderPreview rasterizes the first page at pixelRatio. Only backgrounds and
// element bounding boxes are drawn.
func (d *Document) RenderPreview(pixelRatio float64) (image.Image, error) {
	var l layout
	if err := json.Unmarshal(d.ToJSON(), &l); err != nil {
		return nil, fmt.Errorf("decode scene: %w", err)
	}
	if l.Width <= 0 {
		l.Width = DefaultWidth
	}
	if l.Height <= 0 {
		l.Height = DefaultHeight
	}
	if pixelRatio <= 0 {
		pixelRatio = 1
	}

	w := int(math.Max(1, math.Round(l.Width*pixelRatio)))
	h := int(math.Max(1, math.Round(l.Height*pixelRatio)))
	dc := gg.NewContext(w, h)
	dc.Scale(pixelRatio, pixelRatio)

	background := "white"
	var children []element
	if len(l.Pages) > 0 {
		if l.Pages[0].Background != "" {
			background = l.Pages[0].Background
		}
		children = l.Pages[0].Children
	}
	dc.SetHexColor(cssColor(background, "#ffffff"))
	dc.DrawRectangle(0, 0, l.Width, l.Height)
	dc.Fill()

	for _, el := range children {
		if el.Visible != nil && !*el.Visible {
			continue
		}
		if el.Width <= 0 || el.Height <= 0 {
			continue
		}
		dc.Push()
		if el.Rotation != 0 {
			dc.RotateAbout(gg.Radians(el.Rotation), el.X, el.Y)
		}
		dc.SetHexColor(cssColor(el.Fill, "#c8c8c8"))
		dc.DrawRectangle(el.X, el.Y, el.Width, el.Height)
		dc.Fill()
		dc.Pop()
	}

	return dc.Image(), nil
}

func cssColor(c, fallback string) string {
	c = strings.TrimSpace(strings.ToLower(c))
	if named, ok := namedColors[c]; ok {
		return named
	}
	if hexColor.MatchString(c) {
		return c
	}
	return fallback
}
