package content

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type reloadCounter struct{ ok, failed int }

func (r *reloadCounter) IncContentReload(result string) {
	if result == "ok" {
		r.ok++
	} else {
		r.failed++
	}
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDirSource_Reload(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "en/index.html", "en")
	writeFile(t, dir, "ar/index.html", "ar")

	m := NewManager()
	rc := &reloadCounter{}
	var reloaded []Meta
	d, err := NewDirSource(DirSourceOptions{
		Dir:        dir,
		Manager:    m,
		Metrics:    rc,
		Validation: bilingual(),
		OnReload:   func(meta Meta) { reloaded = append(reloaded, meta) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if m.Source() != SourceDir || rc.ok != 1 {
		t.Fatalf("source=%q ok=%d", m.Source(), rc.ok)
	}
	if len(reloaded) != 1 || reloaded[0].SHA256 != m.ContentHash() {
		t.Fatalf("OnReload saw %+v", reloaded)
	}
	first := m.ContentHash()

	// breaking the tree keeps the previous snapshot
	if err := os.Remove(filepath.Join(dir, "ar", "index.html")); err != nil {
		t.Fatal(err)
	}
	if err := d.Reload(context.Background()); err == nil {
		t.Fatal("expected validation failure")
	}
	if m.ContentHash() != first || rc.failed != 1 {
		t.Fatalf("hash=%q failed=%d", m.ContentHash(), rc.failed)
	}
}

func TestDirSource_RunPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "en.html", "en")
	writeFile(t, dir, "ar.html", "ar")

	m := NewManager()
	d, err := NewDirSource(DirSourceOptions{Dir: dir, Manager: m, Validation: bilingual(), Debounce: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := m.ContentHash()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// give the watcher time to register
	time.Sleep(50 * time.Millisecond)
	writeFile(t, dir, "en.html", "en v2")

	deadline := time.Now().Add(5 * time.Second)
	for m.ContentHash() == before {
		if time.Now().After(deadline) {
			t.Fatal("content dir change was not picked up")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewDirSource_Validation(t *testing.T) {
	if _, err := NewDirSource(DirSourceOptions{Manager: NewManager()}); err == nil {
		t.Fatal("expected error without dir")
	}
	if _, err := NewDirSource(DirSourceOptions{Dir: t.TempDir()}); err == nil {
		t.Fatal("expected error without manager")
	}
}
