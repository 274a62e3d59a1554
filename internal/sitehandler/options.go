package sitehandler

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/keithlinneman/siteedge/internal/content"
	"github.com/keithlinneman/siteedge/internal/log"
)

var ErrInvalidOptions = errors.New("sitehandler: invalid options")

type SnapshotProvider interface {
	Get() (*content.Snapshot, bool)
}

type Options struct {
	Logger log.Logger
	// Active content
	Content SnapshotProvider
	// embedded pages used when the snapshot cannot answer
	FallbackFS fs.FS

	// MaintenanceFile and Fallback404File live in FallbackFS.
	// NotFoundFile is looked up in the snapshot, first under the request
	// locale ({locale}/404.html) and then at the root.
	MaintenanceFile string // default: "maintenance.html"
	Fallback404File string // default: "404.html"
	NotFoundFile    string // default: "404.html"

	// Cache policies applied by file extension.
	HTMLCacheControl  string // default: "no-cache"
	AssetCacheControl string // default: "public, max-age=31536000, immutable"
	OtherCacheControl string // default: "public, max-age=3600"

	// RetryAfterSeconds is sent with the maintenance page. default: 60
	RetryAfterSeconds int
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.MaintenanceFile == "" {
		o.MaintenanceFile = "maintenance.html"
	}
	if o.Fallback404File == "" {
		o.Fallback404File = "404.html"
	}
	if o.NotFoundFile == "" {
		o.NotFoundFile = "404.html"
	}
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	if o.AssetCacheControl == "" {
		o.AssetCacheControl = "public, max-age=31536000, immutable"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=3600"
	}
	if o.RetryAfterSeconds <= 0 {
		o.RetryAfterSeconds = 60
	}
}

func (o *Options) validate() error {
	var errs []error
	if o.Content == nil {
		errs = append(errs, fmt.Errorf("%w: Content is nil", ErrInvalidOptions))
	}
	if o.FallbackFS == nil {
		errs = append(errs, fmt.Errorf("%w: FallbackFS is nil", ErrInvalidOptions))
	} else if !existsFile(o.FallbackFS, o.MaintenanceFile) {
		// fail on boot if mispackaged
		errs = append(errs, fmt.Errorf("%w: missing %q in fallback FS", ErrInvalidOptions, o.MaintenanceFile))
	}
	return errors.Join(errs...)
}
