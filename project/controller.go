// Package project owns the open design: its identity, save status, autosave
// scheduling, first-load resolution and the local to cloud migration.
package project

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"polotno-studio/core"
	"polotno-studio/designs"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
)

const (
	// Local keys. These never move to the account.
	LegacyStateKey  = "polotno-state"
	LastDesignIDKey = "last-design-id"
	LanguageKey     = "polotno-language"

	DefaultAutosaveDelay = 5 * time.Second
	DefaultPollInterval  = time.Second

	previewMaxSize    = 200
	previewQuality    = 70
	defaultLanguage   = "en"
	previewPixelRatio = 0.2
)

// Document is the canvas scene the controller persists.
type Document interface {
	ToJSON() json.RawMessage
	LoadJSON(raw json.RawMessage) error
	Clear()
	AddPage()
	RenderPreview(pixelRatio float64) (image.Image, error)
	OnChange(fn func()) (cancel func())
}

// Designs is the part of the design repository the controller drives.
type Designs interface {
	LoadByID(ctx context.Context, id string) (*designs.Loaded, error)
	Save(ctx context.Context, in designs.SaveInput) (designs.SaveResult, error)
	BackupFromLocalToCloud(ctx context.Context) (int, error)
}

// Account is the remote account the controller signs in and out of.
type Account interface {
	core.Account
	SignOut()
}

// State is a snapshot of the open project.
type State struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Status       core.Status `json:"status"`
	CloudEnabled bool        `json:"cloudEnabled"`
	Language     string      `json:"language"`
	DesignsCount int         `json:"designsCount"`
}

type Options struct {
	Document      Document
	Designs       Designs
	Local         core.KeyValueStore
	Account       Account
	Clock         Clock
	AutosaveDelay time.Duration
	PollInterval  time.Duration
}

type Controller struct {
	doc      Document
	designs  Designs
	local    core.KeyValueStore
	account  Account
	clock    Clock
	delay    time.Duration
	interval time.Duration

	mu           sync.Mutex
	state        State
	timer        Timer
	timerGen     int
	saving       int
	changedWhile bool
	ctx          context.Context

	listenersMu sync.Mutex
	listeners   map[int]func(State)
	nextID      int
}

func NewController(opts Options) *Controller {
	c := &Controller{
		doc:       opts.Document,
		designs:   opts.Designs,
		local:     opts.Local,
		account:   opts.Account,
		clock:     opts.Clock,
		delay:     opts.AutosaveDelay,
		interval:  opts.PollInterval,
		ctx:       context.Background(),
		listeners: make(map[int]func(State)),
	}
	if c.clock == nil {
		c.clock = realClock{}
	}
	if c.delay <= 0 {
		c.delay = DefaultAutosaveDelay
	}
	if c.interval <= 0 {
		c.interval = DefaultPollInterval
	}
	c.state = State{
		Status:       core.StatusSaved,
		Language:     defaultLanguage,
		CloudEnabled: c.account.IsSignedIn(),
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every state change.
func (c *Controller) Subscribe(fn func(State)) (cancel func()) {
	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

func (c *Controller) notify() {
	s := c.State()
	c.listenersMu.Lock()
	fns := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenersMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

func (c *Controller) update(fn func(s *State)) {
	c.mu.Lock()
	fn(&c.state)
	c.mu.Unlock()
	c.notify()
}

// RequestSave marks the project dirty and restarts the autosave timer, so a
// burst of edits produces one save after the last of them.
func (c *Controller) RequestSave() {
	c.mu.Lock()
	if c.saving > 0 {
		c.changedWhile = true
	} else {
		c.state.Status = core.StatusHasChanges
	}
	c.armLocked()
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) armLocked() {
	c.stopTimerLocked()
	gen := c.timerGen
	c.timer = c.clock.AfterFunc(c.delay, func() { c.autosave(gen) })
}

// stopTimerLocked stops the pending timer and invalidates a callback that
// already fired but has not taken the lock yet.
func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

func (c *Controller) autosave(gen int) {
	c.mu.Lock()
	if gen != c.timerGen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	if c.saving > 0 {
		// A save is in flight; try again after another quiet period.
		c.armLocked()
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.mu.Unlock()

	c.Save(ctx)
}

// Save persists the document now. Failures are logged and leave the project
// marked saved; the next edit schedules another attempt.
func (c *Controller) Save(ctx context.Context) {
	c.mu.Lock()
	c.stopTimerLocked()
	c.saving++
	c.changedWhile = false
	c.state.Status = core.StatusSaving
	in := designs.SaveInput{ID: c.state.ID, Name: c.state.Name}
	c.mu.Unlock()
	c.notify()

	in.StoreJSON = c.doc.ToJSON()
	in.Preview = c.preview()

	log := logrus.WithField("design_id", in.ID)
	res, err := c.designs.Save(ctx, in)
	if err != nil {
		log.WithError(err).Error("Failed to save design")
	}

	adopted := false
	c.update(func(s *State) {
		c.saving--
		// A design opened while saving keeps its own id.
		if err == nil && s.ID == in.ID {
			s.ID = res.ID
			adopted = true
		}
		switch {
		case c.saving > 0:
			s.Status = core.StatusSaving
		case c.changedWhile:
			s.Status = core.StatusHasChanges
		default:
			s.Status = core.StatusSaved
		}
	})

	if adopted {
		if err := c.local.Write(ctx, LastDesignIDKey, core.TextValue(res.ID)); err != nil {
			log.WithError(err).Warn("Failed to remember last design")
		}
	}
}

func (c *Controller) preview() []byte {
	img, err := c.doc.RenderPreview(previewPixelRatio)
	if err != nil {
		logrus.WithError(err).Warn("Failed to render preview")
		return nil
	}
	img = capSize(img, previewMaxSize)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: previewQuality}); err != nil {
		logrus.WithError(err).Warn("Failed to encode preview")
		return nil
	}
	return buf.Bytes()
}

// capSize scales img down so neither side exceeds limit.
func capSize(img image.Image, limit int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= limit && h <= limit {
		return img
	}
	if w >= h {
		h = h * limit / w
		w = limit
	} else {
		w = w * limit / h
		h = limit
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// FirstLoad restores the session on start: language, then either the legacy
// single document (migrated into the repository) or the last opened design.
func (c *Controller) FirstLoad(ctx context.Context) error {
	if v, err := c.local.Read(ctx, LanguageKey); err == nil {
		if lang, err := v.Encode(); err == nil && len(lang) > 0 {
			c.update(func(s *State) { s.Language = string(lang) })
		}
	}

	legacy, err := c.local.Read(ctx, LegacyStateKey)
	switch {
	case err == nil:
		return c.migrateLegacy(ctx, legacy)
	case !errors.Is(err, core.ErrNotFound):
		logrus.WithError(err).Warn("Failed to read legacy state")
	}

	v, err := c.local.Read(ctx, LastDesignIDKey)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			logrus.WithError(err).Warn("Failed to read last design id")
		}
		return nil
	}
	id, err := v.Encode()
	if err != nil || len(id) == 0 {
		return nil
	}
	c.LoadByID(ctx, string(id))
	return nil
}

func (c *Controller) migrateLegacy(ctx context.Context, legacy core.Value) error {
	raw, err := legacy.Raw()
	if err != nil {
		return fmt.Errorf("legacy state: %w", err)
	}
	if err := c.doc.LoadJSON(raw); err != nil {
		return fmt.Errorf("legacy state: %w", err)
	}
	if err := c.local.Delete(ctx, LegacyStateKey); err != nil && !errors.Is(err, core.ErrNotFound) {
		logrus.WithError(err).Warn("Failed to remove legacy state")
	}
	logrus.Info("Migrating legacy document into design repository")
	c.Save(ctx)
	return nil
}

// LoadByID opens a design. On failure the project falls back to a new
// untitled design. It always ends saved.
func (c *Controller) LoadByID(ctx context.Context, id string) {
	c.update(func(s *State) { s.Status = core.StatusLoading })

	log := logrus.WithField("design_id", id)
	if err := c.local.Write(ctx, LastDesignIDKey, core.TextValue(id)); err != nil {
		log.WithError(err).Warn("Failed to remember last design")
	}

	loaded, err := c.designs.LoadByID(ctx, id)
	if err == nil {
		err = c.doc.LoadJSON(loaded.StoreJSON)
	}
	if err != nil {
		log.WithError(err).Error("Failed to load design")
		if err := c.local.Delete(ctx, LastDesignIDKey); err != nil && !errors.Is(err, core.ErrNotFound) {
			log.WithError(err).Warn("Failed to forget last design")
		}
		c.update(func(s *State) {
			s.ID = ""
			s.Name = ""
			s.Status = core.StatusSaved
		})
		return
	}

	c.update(func(s *State) {
		s.ID = id
		s.Name = loaded.Name
		s.Status = core.StatusSaved
	})
}

// SignIn signs the account in and moves local designs to it.
func (c *Controller) SignIn(ctx context.Context, credential string) error {
	if err := c.account.SignIn(ctx, credential); err != nil {
		return err
	}
	c.update(func(s *State) { s.CloudEnabled = true })

	count, err := c.designs.BackupFromLocalToCloud(ctx)
	if err != nil {
		return fmt.Errorf("backup designs: %w", err)
	}
	c.update(func(s *State) { s.DesignsCount = count })
	return nil
}

func (c *Controller) SignOut() {
	c.account.SignOut()
	c.update(func(s *State) { s.CloudEnabled = false })
}

// CreateNewDesign replaces the canvas with one blank page and saves it as a
// new design.
func (c *Controller) CreateNewDesign(ctx context.Context) {
	c.doc.Clear()
	c.doc.AddPage()
	c.update(func(s *State) {
		s.ID = ""
		s.Name = ""
	})
	c.Save(ctx)
}

// Duplicate saves the current canvas under a new id.
func (c *Controller) Duplicate(ctx context.Context) {
	c.update(func(s *State) { s.ID = "" })
	c.Save(ctx)
}

func (c *Controller) Rename(name string) {
	c.mu.Lock()
	c.state.Name = name
	c.mu.Unlock()
	c.RequestSave()
}

func (c *Controller) SetLanguage(ctx context.Context, lang string) error {
	c.update(func(s *State) { s.Language = lang })
	return c.local.Write(ctx, LanguageKey, core.TextValue(lang))
}

// Run watches document edits and the account's sign-in state until ctx is done.
// Accounts without push notifications are polled.
func (c *Controller) Run(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	stopDoc := c.doc.OnChange(c.RequestSave)
	defer stopDoc()

	setCloud := func(signedIn bool) {
		if c.State().CloudEnabled != signedIn {
			c.update(func(s *State) { s.CloudEnabled = signedIn })
		}
	}

	if n, ok := c.account.(core.AccountNotifier); ok {
		stop := n.Subscribe(setCloud)
		defer stop()
		<-ctx.Done()
	} else {
		logrus.Warn("Account has no change notifications, polling sign-in state")
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
				setCloud(c.account.IsSignedIn())
			}
		}
	}

	c.mu.Lock()
	c.stopTimerLocked()
	c.mu.Unlock()
}
