package content

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"sort"
	"testing"
	"testing/fstest"
)

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)

	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		body := files[n]
		if err := tw.WriteHeader(&tar.Header{Name: n, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func siteFS() fstest.MapFS {
	return fstest.MapFS{
		"en/index.html": {Data: []byte("<h1>en</h1>")},
		"ar.html":       {Data: []byte("<h1>ar</h1>")},
		"robots.txt":    {Data: []byte("User-agent: *\n")},
	}
}

func bilingual() *ValidationOptions {
	return &ValidationOptions{Locales: []string{"en", "ar"}, MinFiles: 1}
}
