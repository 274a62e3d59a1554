package sitehandler

import (
	"io/fs"
	"path"
	"strings"

	"github.com/keithlinneman/siteedge/internal/pathutil"
)

// resolvePath maps a canonical URL path onto a file in fsys. It never
// redirects: the router has already put the path in canonical form, so a
// trailing slash or index.html here means the request skipped the router
// and is simply looked up as given.
//
//	/               -> index.html
//	/x.ext          -> x.ext
//	/en/contact     -> en/contact.html, then en/contact/index.html
func resolvePath(urlPath string, fsys fs.FS) (string, bool) {
	p := urlPath
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !pathutil.IsSafeURLPath(p) {
		return "", false
	}

	name := strings.Trim(path.Clean(p), "/")
	if name == "" {
		return found(fsys, "index.html")
	}
	if strings.HasSuffix(p, "/") {
		return found(fsys, name+"/index.html")
	}
	if path.Ext(name) != "" {
		if f, ok := found(fsys, name); ok {
			return f, true
		}
	}
	if f, ok := found(fsys, name+".html"); ok {
		return f, true
	}
	return found(fsys, name+"/index.html")
}

func found(fsys fs.FS, name string) (string, bool) {
	if existsFile(fsys, name) {
		return name, true
	}
	return "", false
}

func existsFile(fsys fs.FS, name string) bool {
	if name == "" || !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
