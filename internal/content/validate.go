package content

import (
	"io/fs"

	"github.com/keithlinneman/siteedge/internal/xerrors"
)

// ValidationOptions controls ValidateSnapshot.
type ValidationOptions struct {
	// Locales are the routed locale codes. Each needs a root page at
	// {l}.html or {l}/index.html. With no locales, index.html is required.
	Locales []string

	// MinFiles rejects snapshots with fewer files. 0 disables the check.
	MinFiles int
}

func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{MinFiles: 1}
}

// ValidateSnapshot is run on every candidate before it replaces the active
// snapshot. It reports the first failure.
func ValidateSnapshot(snap *Snapshot, opts ValidationOptions) error {
	if snap == nil {
		return xerrors.New("validate: snapshot is nil")
	}
	if snap.FS == nil {
		return xerrors.New("validate: snapshot has nil filesystem")
	}

	if len(opts.Locales) == 0 {
		if err := nonEmptyFile(snap.FS, "index.html"); err != nil {
			return err
		}
	}
	for _, l := range opts.Locales {
		if localeRoot(snap.FS, l) == "" {
			return xerrors.Newf("validate: locale %q has no %s.html or %s/index.html", l, l, l)
		}
	}

	if opts.MinFiles > 0 {
		n, err := countFiles(snap.FS)
		if err != nil {
			return xerrors.Wrap(err, "validate: counting files")
		}
		if n < opts.MinFiles {
			return xerrors.Newf("validate: snapshot has %d files, minimum is %d", n, opts.MinFiles)
		}
	}
	return nil
}

// localeRoot returns the file serving /{l}, or "".
func localeRoot(fsys fs.FS, l string) string {
	for _, name := range []string{l + ".html", l + "/index.html"} {
		if nonEmptyFile(fsys, name) == nil {
			return name
		}
	}
	return ""
}

func nonEmptyFile(fsys fs.FS, name string) error {
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return xerrors.Wrapf(err, "validate: %s not found", name)
	}
	if info.IsDir() {
		return xerrors.Newf("validate: %s is a directory", name)
	}
	if info.Size() == 0 {
		return xerrors.Newf("validate: %s is empty", name)
	}
	return nil
}

func countFiles(fsys fs.FS) (int, error) {
	n := 0
	err := fs.WalkDir(fsys, ".", func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	return n, err
}
