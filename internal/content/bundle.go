package content

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"path"
	"strings"
	"testing/fstest"

	"github.com/keithlinneman/siteedge/internal/pathutil"
	"github.com/keithlinneman/siteedge/internal/xerrors"
)

const (
	// maxBundleSize caps the compressed bundle read from S3.
	maxBundleSize int64 = 50 << 20

	// maxSingleFile caps any one extracted or copied file.
	maxSingleFile int64 = 10 << 20

	// maxTotalExtract caps the sum of all file sizes in a snapshot.
	maxTotalExtract int64 = 100 << 20

	// maxSignatureSize caps the detached signature object.
	maxSignatureSize int64 = 16 << 10
)

// readWithHash reads at most maxSize bytes, hashing as it goes.
func readWithHash(r io.Reader, maxSize int64) ([]byte, string, error) {
	h := sha256.New()
	data, err := io.ReadAll(io.TeeReader(io.LimitReader(r, maxSize+1), h))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > maxSize {
		return nil, "", xerrors.Newf("content exceeds max size of %d bytes", maxSize)
	}
	return data, hex.EncodeToString(h.Sum(nil)), nil
}

// archivePath cleans a tar entry name. skip is true for the archive root.
func archivePath(name string) (clean string, skip bool, err error) {
	if strings.ContainsAny(name, "\x00\\") {
		return "", false, xerrors.Newf("invalid character in archive path %q", name)
	}
	if path.IsAbs(name) {
		return "", false, xerrors.Newf("absolute path in archive: %s", name)
	}
	if pathutil.HasDotDotSegment(name) {
		return "", false, xerrors.Newf("path traversal in archive: %s", name)
	}
	clean = path.Clean(strings.TrimPrefix(name, "./"))
	if clean == "." || clean == "" {
		return "", true, nil
	}
	if !fs.ValidPath(clean) {
		return "", false, xerrors.Newf("invalid archive path %q", name)
	}
	return clean, false, nil
}

// extractTarGz unpacks a gzip'd tar into memory. Only regular files and
// directories are accepted; links and devices fail the whole bundle.
func extractTarGz(data []byte) (fstest.MapFS, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, xerrors.Wrap(err, "open gzip")
	}
	defer gr.Close()

	mfs := make(fstest.MapFS)
	tr := tar.NewReader(gr)
	var total int64
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, xerrors.Wrap(err, "read tar header")
		}

		name, skip, err := archivePath(hdr.Name)
		if err != nil {
			return nil, err
		}
		if skip {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			continue
		case tar.TypeReg:
			if hdr.Size > maxSingleFile {
				return nil, xerrors.Newf("file %s exceeds max size (%d > %d)", name, hdr.Size, maxSingleFile)
			}
			body, err := io.ReadAll(io.LimitReader(tr, maxSingleFile+1))
			if err != nil {
				return nil, xerrors.Wrapf(err, "read %s", name)
			}
			if int64(len(body)) > maxSingleFile {
				return nil, xerrors.Newf("file %s exceeds max size after read", name)
			}
			total += int64(len(body))
			if total > maxTotalExtract {
				return nil, xerrors.Newf("total extracted size exceeds %d bytes", maxTotalExtract)
			}
			mfs[name] = &fstest.MapFile{Data: body, Mode: hdr.FileInfo().Mode().Perm()}
		default:
			return nil, xerrors.Newf("unsupported entry type %d in archive: %s", hdr.Typeflag, name)
		}
	}
	return mfs, nil
}

// copyFS reads every regular file of fsys into memory and returns the copy
// with a digest over (path, file digest) pairs in walk order. Symlinks and
// other non-regular entries are skipped.
func copyFS(fsys fs.FS) (fstest.MapFS, string, error) {
	mfs := make(fstest.MapFS)
	tree := sha256.New()
	var total int64

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxSingleFile {
			return xerrors.Newf("file %s exceeds max size (%d > %d)", p, info.Size(), maxSingleFile)
		}
		f, err := fsys.Open(p)
		if err != nil {
			return err
		}
		body, sum, err := readWithHash(f, maxSingleFile)
		_ = f.Close()
		if err != nil {
			return xerrors.Wrapf(err, "read %s", p)
		}
		total += int64(len(body))
		if total > maxTotalExtract {
			return xerrors.Newf("total size exceeds %d bytes", maxTotalExtract)
		}
		mfs[p] = &fstest.MapFile{Data: body, Mode: info.Mode().Perm(), ModTime: info.ModTime()}
		io.WriteString(tree, p+"\x00"+sum+"\n")
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return mfs, hex.EncodeToString(tree.Sum(nil)), nil
}
