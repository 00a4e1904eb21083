// Package credits meters rate-limited features such as AI generation.
package credits

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"polotno-studio/core"

	"github.com/sirupsen/logrus"
)

// DefaultWindow is how long an allowance lasts before it refills.
const DefaultWindow = 24 * time.Hour

// ErrNoCredits is returned by Consume when the allowance is spent.
var ErrNoCredits = errors.New("no credits left")

type balance struct {
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// Ledger keeps one balance per feature in the current backend, so a signed-in
// account carries its balance across devices.
type Ledger struct {
	store     core.KeyValueStore
	allowance int
	window    time.Duration
	now       func() time.Time

	mu sync.Mutex
}

func NewLedger(store core.KeyValueStore, allowance int, window time.Duration) *Ledger {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Ledger{store: store, allowance: allowance, window: window, now: time.Now}
}

func key(feature string) string {
	return "credits/" + feature
}

func (l *Ledger) load(ctx context.Context, feature string) (balance, error) {
	now := l.now()
	fresh := balance{Remaining: l.allowance, ResetAt: now.Add(l.window)}

	v, err := l.store.Read(ctx, key(feature))
	if errors.Is(err, core.ErrNotFound) {
		return fresh, nil
	}
	if err != nil {
		return balance{}, err
	}
	var b balance
	if err := v.DecodeJSON(&b); err != nil {
		logrus.WithError(err).WithField("feature", feature).Warn("Discarding unreadable credit balance")
		return fresh, nil
	}
	if !now.Before(b.ResetAt) {
		return fresh, nil
	}
	return b, nil
}

// Remaining reports the balance of feature and when it refills.
func (l *Ledger) Remaining(ctx context.Context, feature string) (int, time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.load(ctx, feature)
	if err != nil {
		return 0, time.Time{}, err
	}
	return b.Remaining, b.ResetAt, nil
}

// Consume spends one credit of feature and returns what is left.
func (l *Ledger) Consume(ctx context.Context, feature string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.load(ctx, feature)
	if err != nil {
		return 0, err
	}
	if b.Remaining <= 0 {
		return 0, fmt.Errorf("%s: %w", feature, ErrNoCredits)
	}
	b.Remaining--
	if err := l.store.Write(ctx, key(feature), core.ParsedValue(b)); err != nil {
		return 0, fmt.Errorf("save credit balance: %w", err)
	}
	return b.Remaining, nil
}
