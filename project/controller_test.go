package project

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"polotno-studio/core"
	"polotno-studio/designs"
	"polotno-studio/scene"
	"polotno-studio/stores"
	"polotno-studio/stores/memory"
)

type fakeTimer struct {
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
	clock   *fakeClock
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now + d, f: f, clock: c}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves time forward, running due timers in order. Callbacks run
// without the clock lock held and may schedule or advance further.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			if c.now < target {
				c.now = target
			}
			c.mu.Unlock()
			return
		}
		c.now = next.at
		next.fired = true
		c.mu.Unlock()
		next.f()
	}
}

type stubAccount struct {
	mu       sync.Mutex
	signedIn bool
	user     core.User
	failWith error
}

func (a *stubAccount) IsSignedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.signedIn
}

func (a *stubAccount) SignIn(ctx context.Context, credential string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failWith != nil {
		return a.failWith
	}
	a.signedIn = true
	a.user = core.User{Subject: credential}
	return nil
}

func (a *stubAccount) User() (core.User, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user, a.signedIn
}

func (a *stubAccount) SignOut() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.signedIn = false
	a.user = core.User{}
}

type savedAt struct {
	in designs.SaveInput
	at time.Duration
}

// recordingDesigns wraps a real repository and records every save.
type recordingDesigns struct {
	*designs.Repository
	clock    *fakeClock
	failSave error
	during   func()

	mu    sync.Mutex
	saves []savedAt
}

func (d *recordingDesigns) Save(ctx context.Context, in designs.SaveInput) (designs.SaveResult, error) {
	d.mu.Lock()
	d.saves = append(d.saves, savedAt{in: in, at: d.clock.Now()})
	during := d.during
	d.during = nil
	d.mu.Unlock()

	if during != nil {
		during()
	}
	if d.failSave != nil {
		return designs.SaveResult{}, d.failSave
	}
	return d.Repository.Save(ctx, in)
}

func (d *recordingDesigns) Saves() []savedAt {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]savedAt(nil), d.saves...)
}

type fixture struct {
	local, remote core.KeyValueStore
	account       *stubAccount
	clock         *fakeClock
	doc           *scene.Document
	designs       *recordingDesigns
	c             *Controller
}

func newFixture() *fixture {
	f := &fixture{
		local:   memory.NewStore(),
		remote:  memory.NewStore(),
		account: &stubAccount{},
		clock:   &fakeClock{},
		doc:     scene.NewDocument(),
	}
	sel := stores.NewSelector(f.local, f.remote, f.account, nil)
	f.designs = &recordingDesigns{Repository: designs.NewRepository(sel), clock: f.clock}
	f.c = NewController(Options{
		Document:      f.doc,
		Designs:       f.designs,
		Local:         f.local,
		Account:       f.account,
		Clock:         f.clock,
		AutosaveDelay: 5 * time.Second,
		PollInterval:  10 * time.Millisecond,
	})
	return f
}

func TestAutosave_CoalescesBurst(t *testing.T) {
	f := newFixture()

	for i := 0; i < 5; i++ {
		f.c.RequestSave()
		if got := f.c.State().Status; got != core.StatusHasChanges {
			t.Fatalf("status after change = %q, want has-changes", got)
		}
		f.clock.Advance(time.Second)
	}
	// Last change at t=4s.
	f.clock.Advance(4*time.Second - time.Millisecond)
	if n := len(f.designs.Saves()); n != 0 {
		t.Fatalf("saved %d times before the quiet period ended", n)
	}

	f.clock.Advance(time.Millisecond)
	saves := f.designs.Saves()
	if len(saves) != 1 {
		t.Fatalf("saves = %d, want 1", len(saves))
	}
	if saves[0].at != 9*time.Second {
		t.Errorf("save at %v, want 9s", saves[0].at)
	}

	s := f.c.State()
	if s.Status != core.StatusSaved || s.ID == "" {
		t.Errorf("state after autosave = %+v", s)
	}

	f.clock.Advance(time.Minute)
	if n := len(f.designs.Saves()); n != 1 {
		t.Errorf("saves after idle = %d, want 1", n)
	}
}

func TestSave_AdoptsIDAndRemembersIt(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.c.Save(ctx)
	id := f.c.State().ID
	if id == "" {
		t.Fatal("Save() did not adopt an id")
	}
	v, err := f.local.Read(ctx, LastDesignIDKey)
	if err != nil {
		t.Fatalf("last design id not stored: %v", err)
	}
	if got, _ := v.Encode(); string(got) != id {
		t.Errorf("last design id = %q, want %q", got, id)
	}

	f.c.Save(ctx)
	if f.c.State().ID != id {
		t.Errorf("second save changed id")
	}
	saves := f.designs.Saves()
	if saves[1].in.ID != id {
		t.Errorf("second save sent id %q, want %q", saves[1].in.ID, id)
	}
	if len(saves[0].in.Preview) == 0 {
		t.Error("save carried no preview")
	}
}

func TestSave_FailureStillEndsSaved(t *testing.T) {
	f := newFixture()
	f.designs.failSave = errors.New("network down")

	f.c.RequestSave()
	f.clock.Advance(5 * time.Second)

	s := f.c.State()
	if s.Status != core.StatusSaved {
		t.Errorf("status = %q, want saved", s.Status)
	}
	if s.ID != "" {
		t.Errorf("failed save adopted id %q", s.ID)
	}
	f.clock.Advance(time.Minute)
	if n := len(f.designs.Saves()); n != 1 {
		t.Errorf("failed save was retried automatically: %d saves", n)
	}
}

func TestSave_ChangeDuringSave(t *testing.T) {
	f := newFixture()
	f.designs.during = func() {
		f.c.RequestSave()
		// The timer fires while the first save is still running.
		f.clock.Advance(5 * time.Second)
	}

	f.c.Save(context.Background())

	if n := len(f.designs.Saves()); n != 1 {
		t.Fatalf("timer fired a save during an in-flight save: %d saves", n)
	}
	if got := f.c.State().Status; got != core.StatusHasChanges {
		t.Errorf("status = %q, want has-changes", got)
	}

	f.clock.Advance(5 * time.Second)
	if n := len(f.designs.Saves()); n != 2 {
		t.Errorf("saves = %d, want 2", n)
	}
	if got := f.c.State().Status; got != core.StatusSaved {
		t.Errorf("status = %q, want saved", got)
	}
}

func TestAutosave_StaleTimerCallbackIgnored(t *testing.T) {
	f := newFixture()

	f.c.RequestSave()
	f.clock.mu.Lock()
	stale := f.clock.timers[0].f
	f.clock.mu.Unlock()

	// An edit lands after the first timer fired but before its callback ran.
	f.clock.Advance(time.Second)
	f.c.RequestSave()
	stale()

	if n := len(f.designs.Saves()); n != 0 {
		t.Fatalf("superseded timer saved: %d saves", n)
	}
	if got := f.c.State().Status; got != core.StatusHasChanges {
		t.Errorf("status = %q, want has-changes", got)
	}

	f.clock.Advance(5 * time.Second)
	saves := f.designs.Saves()
	if len(saves) != 1 || saves[0].at != 6*time.Second {
		t.Fatalf("saves = %+v, want one at 6s", saves)
	}
	f.clock.Advance(time.Minute)
	if n := len(f.designs.Saves()); n != 1 {
		t.Errorf("saves after idle = %d, want 1", n)
	}
}

func TestSave_LoadDuringSaveKeepsLoadedDesign(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	other, _ := f.designs.Repository.Save(ctx, designs.SaveInput{
		Name:      "Flyer",
		StoreJSON: json.RawMessage(`{"width":10,"height":10,"pages":[]}`),
	})
	f.designs.during = func() {
		f.c.LoadByID(ctx, other.ID)
	}

	f.c.Save(ctx)

	if s := f.c.State(); s.ID != other.ID || s.Name != "Flyer" {
		t.Errorf("state = %+v, want the loaded design", s)
	}
	v, err := f.local.Read(ctx, LastDesignIDKey)
	if err != nil {
		t.Fatalf("last design id missing: %v", err)
	}
	if got, _ := v.Encode(); string(got) != other.ID {
		t.Errorf("last design id = %q, want %q", got, other.ID)
	}
}

func TestFirstLoad_MigratesLegacyDocument(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	legacy := `{"width":500,"height":500,"pages":[{"id":"p1","children":[]}]}`
	f.local.Write(ctx, LegacyStateKey, core.TextValue(legacy))

	if err := f.c.FirstLoad(ctx); err != nil {
		t.Fatalf("FirstLoad() failed: %v", err)
	}

	if string(f.doc.ToJSON()) != legacy {
		t.Errorf("document = %s", f.doc.ToJSON())
	}
	if _, err := f.local.Read(ctx, LegacyStateKey); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("legacy key not removed: %v", err)
	}
	list, _ := f.designs.List(ctx)
	if len(list) != 1 || list[0].ID != f.c.State().ID {
		t.Errorf("design index = %v, state = %+v", list, f.c.State())
	}
}

func TestFirstLoad_OpensLastDesign(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	doc := json.RawMessage(`{"width":10,"height":10,"pages":[]}`)
	res, _ := f.designs.Repository.Save(ctx, designs.SaveInput{Name: "Poster", StoreJSON: doc})
	f.local.Write(ctx, LastDesignIDKey, core.TextValue(res.ID))

	if err := f.c.FirstLoad(ctx); err != nil {
		t.Fatalf("FirstLoad() failed: %v", err)
	}

	s := f.c.State()
	if s.ID != res.ID || s.Name != "Poster" || s.Status != core.StatusSaved {
		t.Errorf("state = %+v", s)
	}
	if string(f.doc.ToJSON()) != string(doc) {
		t.Errorf("document = %s", f.doc.ToJSON())
	}
}

func TestFirstLoad_NothingStored(t *testing.T) {
	f := newFixture()
	if err := f.c.FirstLoad(context.Background()); err != nil {
		t.Fatalf("FirstLoad() failed: %v", err)
	}
	if s := f.c.State(); s.ID != "" || s.Status != core.StatusSaved {
		t.Errorf("state = %+v", s)
	}
	if n := len(f.designs.Saves()); n != 0 {
		t.Errorf("FirstLoad() saved %d times", n)
	}
}

func TestLoadByID_FailureResetsToUntitled(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.c.Save(ctx)
	f.c.Rename("Old")

	var seen []core.Status
	cancel := f.c.Subscribe(func(s State) { seen = append(seen, s.Status) })
	defer cancel()

	f.c.LoadByID(ctx, "missing")

	s := f.c.State()
	if s.ID != "" || s.Name != "" || s.Status != core.StatusSaved {
		t.Errorf("state = %+v", s)
	}
	if _, err := f.local.Read(ctx, LastDesignIDKey); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("last design id not forgotten: %v", err)
	}
	if len(seen) == 0 || seen[0] != core.StatusLoading {
		t.Errorf("statuses = %v, want loading first", seen)
	}
}

func TestLoadByID_MalformedJSON(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.local.Write(ctx, core.DesignJSONKey("bad"), core.TextValue("{nope"))

	f.c.LoadByID(ctx, "bad")
	if s := f.c.State(); s.ID != "" || s.Status != core.StatusSaved {
		t.Errorf("state = %+v", s)
	}
}

func TestSignIn_BacksUpLocalDesigns(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.c.Save(ctx)
	f.c.Duplicate(ctx)

	if err := f.c.SignIn(ctx, "user-1"); err != nil {
		t.Fatalf("SignIn() failed: %v", err)
	}

	s := f.c.State()
	if !s.CloudEnabled || s.DesignsCount != 2 {
		t.Errorf("state = %+v", s)
	}
	v, err := f.local.Read(ctx, core.DesignsListKey)
	if err == nil {
		var list []core.DesignSummary
		v.DecodeJSON(&list)
		if len(list) != 0 {
			t.Errorf("local index after backup = %v", list)
		}
	}
}

func TestSignIn_AccountFailure(t *testing.T) {
	f := newFixture()
	f.account.failWith = errors.New("popup closed")

	if err := f.c.SignIn(context.Background(), "x"); err == nil {
		t.Fatal("SignIn() succeeded")
	}
	if f.c.State().CloudEnabled {
		t.Error("cloud enabled after failed sign-in")
	}
}

func TestSignOut(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.c.SignIn(ctx, "u")
	f.c.SignOut()

	if f.c.State().CloudEnabled || f.account.IsSignedIn() {
		t.Error("still signed in after SignOut()")
	}
}

func TestCreateNewDesignAndDuplicate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.c.CreateNewDesign(ctx)
	first := f.c.State().ID
	var doc struct {
		Pages []json.RawMessage `json:"pages"`
	}
	json.Unmarshal(f.doc.ToJSON(), &doc)
	if len(doc.Pages) != 1 {
		t.Errorf("new design has %d pages, want 1", len(doc.Pages))
	}

	f.c.Duplicate(ctx)
	second := f.c.State().ID
	if first == "" || second == "" || first == second {
		t.Errorf("ids = %q, %q", first, second)
	}

	f.c.CreateNewDesign(ctx)
	if third := f.c.State().ID; third == first || third == second {
		t.Errorf("new design reused id %q", third)
	}
	list, _ := f.designs.List(ctx)
	if len(list) != 3 {
		t.Errorf("designs = %d, want 3", len(list))
	}
}

func TestRename_SchedulesSave(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.c.Rename("Flyer")
	f.clock.Advance(5 * time.Second)

	list, _ := f.designs.List(ctx)
	if len(list) != 1 || list[0].Name != "Flyer" {
		t.Errorf("design index = %v", list)
	}
}

func TestLanguage_PersistsLocally(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.account.SignIn(ctx, "u")

	if err := f.c.SetLanguage(ctx, "fr"); err != nil {
		t.Fatalf("SetLanguage() failed: %v", err)
	}

	restarted := NewController(Options{
		Document: scene.NewDocument(),
		Designs:  f.designs,
		Local:    f.local,
		Account:  f.account,
		Clock:    f.clock,
	})
	restarted.FirstLoad(ctx)
	if got := restarted.State().Language; got != "fr" {
		t.Errorf("language = %q, want fr", got)
	}
}

func TestRun_PollsAccountWithoutNotifier(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.c.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	f.account.SignIn(ctx, "u")
	deadline := time.Now().Add(2 * time.Second)
	for !f.c.State().CloudEnabled {
		if time.Now().After(deadline) {
			t.Fatal("sign-in was never observed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type notifyingAccount struct {
	stubAccount
	mu  sync.Mutex
	fns []func(bool)
}

func (a *notifyingAccount) Subscribe(fn func(bool)) func() {
	a.mu.Lock()
	a.fns = append(a.fns, fn)
	a.mu.Unlock()
	return func() {}
}

func (a *notifyingAccount) push(signedIn bool) {
	a.mu.Lock()
	fns := append(([]func(bool))(nil), a.fns...)
	a.mu.Unlock()
	for _, fn := range fns {
		fn(signedIn)
	}
}

func (a *notifyingAccount) subscribers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.fns)
}

func TestRun_SubscribesAndWatchesDocument(t *testing.T) {
	f := newFixture()
	account := &notifyingAccount{}
	f.c.account = account

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.c.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(2 * time.Second)
	for account.subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Run() never subscribed")
		}
		time.Sleep(time.Millisecond)
	}
	account.push(true)
	if !f.c.State().CloudEnabled {
		t.Error("push notification not applied")
	}

	// The document listener is registered before the account subscription.
	f.doc.Update(json.RawMessage(`{"pages":[]}`))
	if got := f.c.State().Status; got != core.StatusHasChanges {
		t.Errorf("status after edit = %q, want has-changes", got)
	}
}

func TestCapSize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1000, 500))
	got := capSize(img, 200).Bounds()
	if got.Dx() != 200 || got.Dy() != 100 {
		t.Errorf("capSize() = %v, want 200x100", got)
	}

	small := image.NewRGBA(image.Rect(0, 0, 50, 80))
	if capSize(small, 200) != image.Image(small) {
		t.Error("capSize() resized an image already within bounds")
	}
}
