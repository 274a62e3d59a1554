package content

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/keithlinneman/siteedge/internal/log"
	"github.com/keithlinneman/siteedge/internal/xerrors"
)

const defaultDebounce = 250 * time.Millisecond

// ReloadMetrics is satisfied by *metrics.ServerMetrics.
type ReloadMetrics interface {
	IncContentReload(result string)
}

type DirSourceOptions struct {
	Logger     log.Logger
	Dir        string
	Manager    *Manager
	Metrics    ReloadMetrics
	Validation *ValidationOptions

	// Debounce collapses bursts of filesystem events into one reload.
	Debounce time.Duration

	// OnReload runs after every published reload.
	OnReload func(Meta)
}

// DirSource serves a local directory, reloading it when files change.
// Every reload is a full in-memory copy, validated before it is published.
type DirSource struct {
	opts       DirSourceOptions
	validation ValidationOptions
}

func NewDirSource(opts DirSourceOptions) (*DirSource, error) {
	if opts.Dir == "" {
		return nil, xerrors.New("content dir is required")
	}
	if opts.Manager == nil {
		return nil, xerrors.New("content dir source needs a Manager")
	}
	abs, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, xerrors.Wrap(err, "resolve content dir")
	}
	opts.Dir = abs
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	d := &DirSource{opts: opts, validation: DefaultValidationOptions()}
	if opts.Validation != nil {
		d.validation = *opts.Validation
	}
	return d, nil
}

// Reload copies the directory and swaps it in if it validates.
// On failure the active snapshot is left alone.
func (d *DirSource) Reload(ctx context.Context) error {
	snap, err := snapshotFromFS(os.DirFS(d.opts.Dir), SourceDir)
	if err == nil {
		err = ValidateSnapshot(snap, d.validation)
	}
	if err != nil {
		d.count("error")
		d.opts.Logger.Error(ctx, err, "content dir reload failed, keeping current content", "dir", d.opts.Dir)
		return err
	}
	d.opts.Manager.Set(*snap)
	d.count("ok")
	if d.opts.OnReload != nil {
		d.opts.OnReload(snap.Meta)
	}
	d.opts.Logger.Info(ctx, "content dir loaded",
		"dir", d.opts.Dir,
		"hash", truncHash(snap.Meta.SHA256),
		"version", snap.Meta.Version,
	)
	return nil
}

func (d *DirSource) count(result string) {
	if d.opts.Metrics != nil {
		d.opts.Metrics.IncContentReload(result)
	}
}

// Run watches the directory tree until ctx is done.
func (d *DirSource) Run(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return xerrors.Wrap(err, "create fsnotify watcher")
	}
	defer w.Close()

	if err := addTree(w, d.opts.Dir); err != nil {
		return err
	}
	d.opts.Logger.Info(ctx, "watching content dir", "dir", d.opts.Dir)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				// new subdirectories need their own watch
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addTree(w, ev.Name); err != nil {
						d.opts.Logger.Warn(ctx, "watch new content subdir failed", "path", ev.Name, "err", err)
					}
				}
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(d.opts.Debounce)
			} else {
				timer.Reset(d.opts.Debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			_ = d.Reload(ctx)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			d.opts.Logger.Warn(ctx, "content dir watch error", "err", err)
		}
	}
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !de.IsDir() {
			return nil
		}
		if err := w.Add(p); err != nil {
			return xerrors.Wrapf(err, "watch %s", p)
		}
		return nil
	})
}
