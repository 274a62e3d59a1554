package sitehandler

import (
	"bytes"
	"io"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/keithlinneman/siteedge/internal/routing"
)

// Handler serves the active content snapshot. It sits behind the routing
// finalizer and does not redirect.
type Handler struct {
	opts Options
}

func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: opts}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	snap, ok := h.opts.Content.Get()
	if !ok {
		h.serveMaintenance(w, r)
		return
	}

	file, ok := resolvePath(r.URL.Path, snap.FS)
	if !ok {
		h.serveNotFound(w, r, snap.FS)
		return
	}

	if cc := cacheControlForFile(file, &h.opts); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
	serveFile(w, r, snap.FS, file)
}

// serveFile writes name with http.ServeContent. http.ServeFileFS is avoided
// because it redirects any request path ending in /index.html.
func serveFile(w http.ResponseWriter, r *http.Request, fsys fs.FS, name string) {
	f, err := fsys.Open(name)
	if err != nil {
		http.Error(w, "404 page not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "500 internal server error", http.StatusInternalServerError)
		return
	}
	rs, ok := f.(io.ReadSeeker)
	if !ok {
		// every snapshot FS in this repo is seekable; read through otherwise
		data, err := io.ReadAll(f)
		if err != nil {
			http.Error(w, "500 internal server error", http.StatusInternalServerError)
			return
		}
		rs = bytes.NewReader(data)
	}
	http.ServeContent(w, r, name, info.ModTime(), rs)
}

func (h *Handler) serveMaintenance(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", strconv.Itoa(h.opts.RetryAfterSeconds))
	serveFileWithStatus(w, r, http.StatusServiceUnavailable, h.opts.FallbackFS, h.opts.MaintenanceFile)
}

// notFoundCandidates lists the snapshot 404 pages to try, most specific first.
func (h *Handler) notFoundCandidates(r *http.Request) []string {
	names := make([]string, 0, 2)
	if d, ok := routing.DecisionFromContext(r.Context()); ok && d.Locale != "" {
		names = append(names, string(d.Locale)+"/"+h.opts.NotFoundFile)
	}
	return append(names, h.opts.NotFoundFile)
}

func (h *Handler) serveNotFound(w http.ResponseWriter, r *http.Request, siteFS fs.FS) {
	w.Header().Set("Cache-Control", "no-store")

	for _, name := range h.notFoundCandidates(r) {
		if existsFile(siteFS, name) {
			serveFileWithStatus(w, r, http.StatusNotFound, siteFS, name)
			return
		}
	}
	if existsFile(h.opts.FallbackFS, h.opts.Fallback404File) {
		serveFileWithStatus(w, r, http.StatusNotFound, h.opts.FallbackFS, h.opts.Fallback404File)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("404 page not found"))
}

// statusOverrideWriter forces the first status written, since
// http.ServeContent answers 200 for a file it can serve.
type statusOverrideWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusOverrideWriter) WriteHeader(code int) {
	if w.wroteHeader {
		w.ResponseWriter.WriteHeader(code)
		return
	}
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(w.status)
}

func (w *statusOverrideWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(w.status)
	}
	return w.ResponseWriter.Write(b)
}

func serveFileWithStatus(w http.ResponseWriter, r *http.Request, status int, fsys fs.FS, name string) {
	// conditional and range requests would turn the error page into a 304, 412 or 206
	r = r.Clone(r.Context())
	for _, k := range []string{"If-Modified-Since", "If-None-Match", "If-Match", "If-Unmodified-Since", "If-Range", "Range"} {
		r.Header.Del(k)
	}
	sw := &statusOverrideWriter{ResponseWriter: w, status: status}
	serveFile(sw, r, fsys, name)
}
