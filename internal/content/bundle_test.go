package content

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"strings"
	"testing"
	"testing/fstest"
)

func TestExtractTarGz(t *testing.T) {
	data := tarGz(t, map[string]string{
		"./en/index.html": "hello",
		"ar/index.html":   "marhaba",
	})
	mfs, err := extractTarGz(data)
	if err != nil {
		t.Fatalf("extractTarGz: %v", err)
	}
	if string(mfs["en/index.html"].Data) != "hello" || string(mfs["ar/index.html"].Data) != "marhaba" {
		t.Fatalf("unexpected contents: %v", mfs)
	}
}

func TestExtractTarGz_RejectsUnsafeEntries(t *testing.T) {
	tests := []struct {
		name string
		hdr  tar.Header
		want string
	}{
		{"traversal", tar.Header{Name: "../etc/passwd", Typeflag: tar.TypeReg}, "path traversal"},
		{"absolute", tar.Header{Name: "/etc/passwd", Typeflag: tar.TypeReg}, "absolute path"},
		{"backslash", tar.Header{Name: `a\b`, Typeflag: tar.TypeReg}, "invalid character"},
		{"symlink", tar.Header{Name: "link", Typeflag: tar.TypeSymlink, Linkname: "/etc"}, "unsupported entry"},
		{"oversize", tar.Header{Name: "big", Typeflag: tar.TypeReg, Size: maxSingleFile + 1}, "exceeds max size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			gw := gzip.NewWriter(&buf)
			tw := tar.NewWriter(gw)
			hdr := tt.hdr
			hdr.Mode = 0o644
			// header-only archive; body size is never reached for rejected entries
			_ = tw.WriteHeader(&hdr)
			_ = tw.Flush()
			_ = gw.Close()

			_, err := extractTarGz(buf.Bytes())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestExtractTarGz_NotGzip(t *testing.T) {
	if _, err := extractTarGz([]byte("plain")); err == nil {
		t.Fatal("expected error for non-gzip data")
	}
}

func TestReadWithHash(t *testing.T) {
	data, sum, err := readWithHash(strings.NewReader("abc"), 3)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "abc" || sum != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("got %q %s", data, sum)
	}
	if _, _, err := readWithHash(strings.NewReader("abcd"), 3); err == nil {
		t.Fatal("expected size error")
	}
}

func TestCopyFS_TreeHashStable(t *testing.T) {
	a, sumA, err := copyFS(siteFS())
	if err != nil {
		t.Fatal(err)
	}
	_, sumB, _ := copyFS(siteFS())
	if sumA != sumB {
		t.Fatalf("tree hash not deterministic: %s vs %s", sumA, sumB)
	}
	if len(a) != 3 {
		t.Fatalf("copied %d files", len(a))
	}

	changed := siteFS()
	changed["robots.txt"] = &fstest.MapFile{Data: []byte("Disallow: /\n")}
	_, sumC, _ := copyFS(changed)
	if sumC == sumA {
		t.Fatal("tree hash ignores file contents")
	}
}
