// Package webassets embeds the pages the server can always answer with:
// the maintenance and fallback 404 pages, and a minimal bilingual seed site
// served until real content is loaded.
package webassets

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
)

//go:embed fallback seed
var embedded embed.FS

func FallbackFS() fs.FS {
	sub, err := fs.Sub(embedded, "fallback")
	if err != nil {
		panic(fmt.Errorf("webassets: fallback subfs: %w", err))
	}
	return sub
}

// SeedSiteFS returns the seed site, and false if it holds no HTML pages.
func SeedSiteFS() (fs.FS, bool) {
	sub, err := fs.Sub(embedded, "seed")
	if err != nil {
		return nil, false
	}
	pages := 0
	_ = fs.WalkDir(sub, ".", func(p string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && strings.HasSuffix(p, ".html") {
			pages++
		}
		return err
	})
	return sub, pages > 0
}
