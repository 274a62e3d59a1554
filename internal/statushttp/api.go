// Package statushttp serves a JSON view of what this instance is running:
// the build, the active content snapshot and the routing policy.
// It is mounted on the ops listener only.
package statushttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/siteedge/internal/content"
	"github.com/keithlinneman/siteedge/internal/log"
	"github.com/keithlinneman/siteedge/internal/routing"
	"github.com/keithlinneman/siteedge/internal/version"
)

// SnapshotProvider is satisfied by *content.Manager.
type SnapshotProvider interface {
	Get() (*content.Snapshot, bool)
}

type API struct {
	content SnapshotProvider
	router  *routing.Router
	build   version.Info
	logger  log.Logger
	now     func() time.Time
}

func NewAPI(c SnapshotProvider, rt *routing.Router, build version.Info, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{
		content: c,
		router:  rt,
		build:   build,
		logger:  logger,
		now:     time.Now,
	}
}

// Handler serves /, /content and /routing relative to its mount point.
func (api *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/", api.HandleStatus)
	r.Get("/content", api.HandleContent)
	r.Get("/routing", api.HandleRouting)
	return r
}

func (api *API) contentStatus() (ContentStatus, bool) {
	snap, ok := api.content.Get()
	if !ok {
		return ContentStatus{Error: content.ErrNoSnapshot.Error()}, false
	}
	return ContentStatus{
		Meta:     snap.Meta,
		LoadedAt: snap.LoadedAt.UTC().Truncate(time.Second),
	}, true
}

func (api *API) routingStatus() *RoutingStatus {
	if api.router == nil {
		return nil
	}
	c := api.router.Config()
	return &RoutingStatus{
		Locales:         c.Locales,
		DefaultLocale:   c.DefaultLocale,
		CanonicalOrigin: c.CanonicalOrigin,
		OverrideParam:   c.OverrideParam,
		CookieName:      c.Cookie.Name,
	}
}

// HandleStatus always answers 200; a missing snapshot is reported in the body
// so the page stays useful while the instance is in maintenance.
func (api *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	cs, _ := api.contentStatus()
	api.writeJSON(r.Context(), w, http.StatusOK, StatusResponse{
		Build:      api.build,
		Content:    cs,
		Routing:    api.routingStatus(),
		ServerTime: api.now().UTC().Truncate(time.Second),
	})
}

func (api *API) HandleContent(w http.ResponseWriter, r *http.Request) {
	cs, ok := api.contentStatus()
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	api.logger.Debug(r.Context(), "served content status", "version", cs.Meta.Version, "hash", cs.Meta.SHA256)
	api.writeJSON(r.Context(), w, status, cs)
}

func (api *API) HandleRouting(w http.ResponseWriter, r *http.Request) {
	rs := api.routingStatus()
	if rs == nil {
		api.writeJSON(r.Context(), w, http.StatusNotFound, map[string]string{"error": "routing disabled"})
		return
	}
	api.writeJSON(r.Context(), w, http.StatusOK, rs)
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
