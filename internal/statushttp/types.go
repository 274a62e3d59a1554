package statushttp

import (
	"time"

	"github.com/keithlinneman/siteedge/internal/content"
	"github.com/keithlinneman/siteedge/internal/routing"
	"github.com/keithlinneman/siteedge/internal/version"
)

type StatusResponse struct {
	Build      version.Info   `json:"build"`
	Content    ContentStatus  `json:"content"`
	Routing    *RoutingStatus `json:"routing,omitempty"`
	ServerTime time.Time      `json:"server_time"`
}

type ContentStatus struct {
	Meta     content.Meta `json:"meta"`
	LoadedAt time.Time    `json:"loaded_at,omitzero"`
	Error    string       `json:"error,omitempty"`
}

// RoutingStatus is the part of the routing policy worth eyeballing in prod.
// routecheck config prints the whole thing.
type RoutingStatus struct {
	Locales         []routing.Locale `json:"locales"`
	DefaultLocale   routing.Locale   `json:"default_locale"`
	CanonicalOrigin string           `json:"canonical_origin,omitempty"`
	OverrideParam   string           `json:"override_param"`
	CookieName      string           `json:"cookie_name"`
}
