package content

import (
	"io/fs"
	"time"

	"github.com/keithlinneman/siteedge/internal/xerrors"
)

// SeedSnapshot copies an embedded site into a snapshot, typically
// webassets.SeedSiteFS, so the server has something to serve before the
// first bundle arrives.
func SeedSnapshot(fsys fs.FS) (*Snapshot, error) {
	return snapshotFromFS(fsys, SourceSeed)
}

func snapshotFromFS(fsys fs.FS, src Source) (*Snapshot, error) {
	mfs, sum, err := copyFS(fsys)
	if err != nil {
		return nil, xerrors.Wrapf(err, "copy %s content", src)
	}
	now := time.Now().UTC()
	meta := Meta{SHA256: sum, Source: src, VerifiedAt: now}
	rel, err := readRelease(mfs)
	if err != nil {
		return nil, err
	}
	rel.apply(&meta)
	return &Snapshot{FS: mfs, Meta: meta, LoadedAt: now}, nil
}
