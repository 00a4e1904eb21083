// Package watchdog reports remote calls that take too long. It never cancels them.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"polotno-studio/core"

	"github.com/sirupsen/logrus"
)

// DefaultTimeout is how long a remote call may run before it is reported.
const DefaultTimeout = 15 * time.Second

const probeTimeout = 5 * time.Second

// ErrSlowCall is the error captured for a call that outlived the timeout.
var ErrSlowCall = errors.New("remote call did not settle in time")

// Prober reports, best effort, whether the remote service answers at all.
type Prober func(ctx context.Context) string

type Watchdog struct {
	timeout time.Duration
	sink    core.Diagnostics
	probe   Prober
}

func New(timeout time.Duration, sink core.Diagnostics, probe Prober) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Watchdog{timeout: timeout, sink: sink, probe: probe}
}

// Guard runs fn and returns its result unchanged. If fn has not returned after
// the timeout, a report goes to the diagnostics sink while fn keeps running.
// The timer is stopped as soon as fn returns.
func (w *Watchdog) Guard(ctx context.Context, op string, args []any, fn func() error) error {
	start := time.Now()
	timer := time.AfterFunc(w.timeout, func() {
		w.report(op, args, start)
	})
	defer timer.Stop()

	return fn()
}

func (w *Watchdog) report(op string, args []any, start time.Time) {
	fields := map[string]any{
		"operation": op,
		"args":      args,
		"elapsed":   time.Since(start).String(),
	}
	if w.probe != nil {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		fields["reachability"] = w.probe(ctx)
		cancel()
	}
	if w.sink != nil {
		w.sink.CaptureException(fmt.Errorf("%s: %w", op, ErrSlowCall), fields)
	}
}

// LogSink sends diagnostics to logrus.
type LogSink struct{}

func (LogSink) CaptureException(err error, context map[string]any) {
	logrus.WithError(err).WithFields(logrus.Fields(context)).Error("Captured exception")
}

// HTTPProbe checks url with a HEAD request.
func HTTPProbe(url string, client *http.Client) Prober {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) string {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return "unreachable: " + err.Error()
		}
		resp, err := client.Do(req)
		if err != nil {
			return "unreachable: " + err.Error()
		}
		resp.Body.Close()
		return fmt.Sprintf("reachable: %s", resp.Status)
	}
}
