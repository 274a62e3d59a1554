package content

import (
	"errors"
	"io/fs"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/keithlinneman/siteedge/internal/xerrors"
)

// ReleaseFile is the optional manifest at the root of a bundle or export
// directory. It only feeds Meta; nothing else depends on it.
const ReleaseFile = "release.yaml"

type release struct {
	Version string    `yaml:"version"`
	Commit  string    `yaml:"commit"`
	BuiltAt time.Time `yaml:"built_at"`
}

// readRelease returns a zero release when the manifest is absent.
func readRelease(fsys fs.FS) (release, error) {
	data, err := fs.ReadFile(fsys, ReleaseFile)
	if errors.Is(err, fs.ErrNotExist) {
		return release{}, nil
	}
	if err != nil {
		return release{}, xerrors.Wrapf(err, "read %s", ReleaseFile)
	}
	var r release
	if err := yaml.Unmarshal(data, &r); err != nil {
		return release{}, xerrors.Wrapf(err, "parse %s", ReleaseFile)
	}
	return r, nil
}

func (r release) apply(m *Meta) {
	m.Version = r.Version
	m.Commit = r.Commit
	m.BuiltAt = r.BuiltAt
}
