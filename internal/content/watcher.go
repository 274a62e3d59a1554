package content

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/keithlinneman/siteedge/internal/cryptoutil"
	"github.com/keithlinneman/siteedge/internal/log"
	"github.com/keithlinneman/siteedge/internal/xerrors"
)

const (
	DefaultPollInterval   = 30 * time.Second
	DefaultStaleThreshold = 30 * time.Minute

	maxBackoff = 5 * time.Minute
)

// Errors returned by Watcher.Poll, one per failure stage.
var (
	ErrPointerFetch = errors.New("content: fetch bundle pointer")
	ErrBundleLoad   = errors.New("content: load bundle")
	ErrValidation   = errors.New("content: bundle failed validation")
)

// BundleFetcher is the slice of *Loader the watcher depends on.
type BundleFetcher interface {
	FetchCurrentBundleHash(ctx context.Context) (string, error)
	LoadHash(ctx context.Context, hash string) (*Snapshot, error)
}

// WatcherMetrics is satisfied by *metrics.ServerMetrics.
type WatcherMetrics interface {
	IncWatcherPolls()
	IncWatcherSwaps()
	IncWatcherError(stage string)
	ObserveBundleLoadDuration(seconds float64)
	SetWatcherLastSuccess(t time.Time)
	SetWatcherStale(stale bool)
}

type nopWatcherMetrics struct{}

func (nopWatcherMetrics) IncWatcherPolls()                  {}
func (nopWatcherMetrics) IncWatcherSwaps()                  {}
func (nopWatcherMetrics) IncWatcherError(string)            {}
func (nopWatcherMetrics) ObserveBundleLoadDuration(float64) {}
func (nopWatcherMetrics) SetWatcherLastSuccess(time.Time)   {}
func (nopWatcherMetrics) SetWatcherStale(bool)              {}

// metricsUnset reports a nil interface or an interface holding a nil pointer.
func metricsUnset(m WatcherMetrics) bool {
	if m == nil {
		return true
	}
	v := reflect.ValueOf(m)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

type WatcherOptions struct {
	Logger       log.Logger
	Fetcher      BundleFetcher
	Manager      *Manager
	Metrics      WatcherMetrics
	PollInterval time.Duration

	// Validation defaults to DefaultValidationOptions.
	Validation *ValidationOptions

	// OnSwap runs on the poll goroutine after every swap. Panics are logged.
	OnSwap func(Meta)

	// StaleThreshold is how long pointer fetches may fail before the
	// watcher reports stale content.
	StaleThreshold time.Duration
}

// Watcher polls the bundle pointer and swaps new bundles into a Manager.
// The active snapshot is only replaced by one that passed validation.
type Watcher struct {
	opts       WatcherOptions
	validation ValidationOptions
	now        func() time.Time

	current     string
	failures    int
	lastSuccess time.Time
	stale       bool
	swaps       int64
}

func NewWatcher(opts WatcherOptions) (*Watcher, error) {
	if opts.Fetcher == nil || opts.Manager == nil {
		return nil, xerrors.New("content watcher needs a Fetcher and a Manager")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if metricsUnset(opts.Metrics) {
		opts.Metrics = nopWatcherMetrics{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = DefaultStaleThreshold
	}
	w := &Watcher{
		opts:       opts,
		validation: DefaultValidationOptions(),
		now:        time.Now,
	}
	if opts.Validation != nil {
		w.validation = *opts.Validation
	}
	// the startup snapshot counts as current so the first poll is a no-op
	if snap, ok := opts.Manager.Get(); ok {
		w.current = snap.Meta.SHA256
	}
	w.lastSuccess = w.now()
	return w, nil
}

// Run polls until ctx is done. Pointer fetch failures back off exponentially.
func (w *Watcher) Run(ctx context.Context) error {
	L := w.opts.Logger
	L.Info(ctx, "content watcher starting",
		"poll_interval", w.opts.PollInterval.String(),
		"current_hash", truncHash(w.current),
	)

	timer := time.NewTimer(w.opts.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			L.Info(ctx, "content watcher stopping", "swaps", w.swaps)
			return ctx.Err()
		case <-timer.C:
		}

		err := w.Poll(ctx)
		next := w.opts.PollInterval
		if errors.Is(err, ErrPointerFetch) {
			next = w.backoff()
			L.Warn(ctx, "content watcher backing off",
				"consecutive_failures", w.failures,
				"next_poll_in", next.String(),
			)
		}
		timer.Reset(next)
	}
}

// Poll runs one fetch, compare, load, validate and swap cycle.
func (w *Watcher) Poll(ctx context.Context) error {
	L := w.opts.Logger
	m := w.opts.Metrics
	m.IncWatcherPolls()

	hash, err := w.opts.Fetcher.FetchCurrentBundleHash(ctx)
	if err != nil {
		w.failures++
		L.Error(ctx, err, "content watcher pointer fetch failed", "consecutive_failures", w.failures)
		w.countError("pointer")
		w.checkStale(ctx)
		return xerrors.Wrap(errors.Join(ErrPointerFetch, err), "poll")
	}
	w.recovered(ctx)

	if w.current != "" && cryptoutil.HashEqual(hash, w.current) {
		return nil
	}

	L.Info(ctx, "new content bundle detected",
		"old_hash", truncHash(w.current),
		"new_hash", truncHash(hash),
	)

	start := w.now()
	snap, err := w.opts.Fetcher.LoadHash(ctx, hash)
	m.ObserveBundleLoadDuration(w.now().Sub(start).Seconds())
	if err != nil {
		L.Error(ctx, err, "content bundle load failed, keeping current content", "hash", truncHash(hash))
		w.countError("load")
		return xerrors.Wrap(errors.Join(ErrBundleLoad, err), "poll")
	}

	if err := ValidateSnapshot(snap, w.validation); err != nil {
		L.Error(ctx, err, "content bundle rejected, keeping current content",
			"rejected_hash", truncHash(hash),
			"current_hash", truncHash(w.current),
		)
		w.countError("validation")
		return xerrors.Wrap(errors.Join(ErrValidation, err), "poll")
	}

	old := w.current
	w.opts.Manager.Set(*snap)
	w.current = hash
	w.swaps++
	m.IncWatcherSwaps()
	L.Info(ctx, "content bundle swapped",
		"old_hash", truncHash(old),
		"new_hash", truncHash(hash),
		"version", snap.Meta.Version,
		"swaps", w.swaps,
	)
	w.notify(ctx, snap.Meta)
	return nil
}

func (w *Watcher) notify(ctx context.Context, meta Meta) {
	if w.opts.OnSwap == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.opts.Logger.Error(ctx, xerrors.Newf("OnSwap panic: %v", r), "content watcher swap callback panicked")
		}
	}()
	w.opts.OnSwap(meta)
}

func (w *Watcher) countError(stage string) {
	w.opts.Metrics.IncWatcherError(stage)
}

func (w *Watcher) recovered(ctx context.Context) {
	now := w.now()
	w.lastSuccess = now
	w.opts.Metrics.SetWatcherLastSuccess(now)
	if w.failures > 0 {
		w.opts.Logger.Info(ctx, "content watcher recovered", "after_failures", w.failures)
		w.failures = 0
	}
	if w.stale {
		w.stale = false
		w.opts.Metrics.SetWatcherStale(false)
	}
}

// checkStale flips into the stale state once, after StaleThreshold of failures.
func (w *Watcher) checkStale(ctx context.Context) {
	since := w.now().Sub(w.lastSuccess)
	if w.stale || since <= w.opts.StaleThreshold {
		return
	}
	w.stale = true
	w.opts.Metrics.SetWatcherStale(true)
	w.opts.Logger.Error(ctx, xerrors.Newf("last successful pointer fetch was %s ago", since.Truncate(time.Second)),
		"content may be stale")
}

// backoff doubles the interval per consecutive failure, capped at maxBackoff.
func (w *Watcher) backoff() time.Duration {
	d := w.opts.PollInterval
	for i := 0; i < w.failures && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

func truncHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
