package routing

import (
	"bytes"
	"errors"
	"io"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/keithlinneman/siteedge/internal/xerrors"
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("routing: invalid config")

// Config is the externally supplied routing policy. It is read once at
// startup, compiled by New, and never consulted again afterwards.
type Config struct {
	// Locales is the supported locale set; DefaultLocale must be a member.
	Locales       []Locale `yaml:"locales"`
	DefaultLocale Locale   `yaml:"default_locale"`

	// OverrideParam is the query key carrying an explicit locale choice.
	// It is always part of the strip set.
	OverrideParam string `yaml:"override_param"`

	// LocaleLessPrefixes are top-level sections that exist without a locale
	// segment until canonicalized (/contact, /blog/x).
	LocaleLessPrefixes []string `yaml:"localeless_prefixes"`

	// Asset matching: directory prefixes ("/brand/"), exact files
	// ("/favicon.svg") and extensions (".png"). Extensions match case-insensitively.
	AssetPrefixes   []string `yaml:"asset_prefixes"`
	AssetFiles      []string `yaml:"asset_files"`
	AssetExtensions []string `yaml:"asset_extensions"`

	// SEOBypassPaths are exact paths that are never rewritten beyond
	// normalization and never have their query touched.
	SEOBypassPaths []string `yaml:"seo_bypass_paths"`

	// StripParams are query keys removed from every non-bypass request.
	StripParams []string `yaml:"strip_params"`

	// Aliases renames legacy paths after normalization (/sitemap-index.xml -> /sitemap.xml).
	Aliases map[string]string `yaml:"aliases"`

	Cookie CookieConfig `yaml:"cookie"`

	// CanonicalOrigin, when set, is used for every Location header instead of
	// the origin the request arrived on (scheme://host, no trailing slash).
	CanonicalOrigin string `yaml:"canonical_origin"`
}

// CookieConfig names the stored locale preference.
type CookieConfig struct {
	Name          string `yaml:"name"`
	MaxAgeSeconds int    `yaml:"max_age_seconds"`
	Secure        bool   `yaml:"secure"`
}

// DefaultConfig returns the policy the site ships with.
func DefaultConfig() Config {
	return Config{
		Locales:            []Locale{"en", "ar"},
		DefaultLocale:      "en",
		OverrideParam:      "lang",
		LocaleLessPrefixes: []string{"about", "contact", "projects", "services", "blog"},
		AssetPrefixes:      []string{"/_next/", "/assets/", "/brand/", "/reviews/", "/skills/"},
		AssetFiles:         []string{"/favicon.svg", "/og-cover.svg"},
		AssetExtensions:    []string{".png", ".jpg", ".jpeg", ".webp", ".svg", ".ico", ".css", ".js", ".map"},
		SEOBypassPaths:     []string{"/robots.txt", "/sitemap.xml", "/llms.txt", "/ai.txt"},
		StripParams: []string{
			"lang",
			"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
			"gclid", "fbclid",
			"mc_cid", "mc_eid",
		},
		Aliases: map[string]string{
			"/sitemap-index.xml": "/sitemap.xml",
		},
		Cookie: CookieConfig{
			Name:          "lang",
			MaxAgeSeconds: 60 * 60 * 24 * 365,
		},
	}
}

// Clone returns a deep copy so callers can't mutate a compiled policy through shared slices.
func (c Config) Clone() Config {
	out := c
	out.Locales = slices.Clone(c.Locales)
	out.LocaleLessPrefixes = slices.Clone(c.LocaleLessPrefixes)
	out.AssetPrefixes = slices.Clone(c.AssetPrefixes)
	out.AssetFiles = slices.Clone(c.AssetFiles)
	out.AssetExtensions = slices.Clone(c.AssetExtensions)
	out.SEOBypassPaths = slices.Clone(c.SEOBypassPaths)
	out.StripParams = slices.Clone(c.StripParams)
	out.Aliases = maps.Clone(c.Aliases)
	return out
}

// LoadConfig reads a YAML routing policy from path. Environment variables
// are expanded and keys absent from the file keep their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, xerrors.Wrapf(err, "read routing config %s", path)
	}
	c, err := ParseConfig(data)
	if err != nil {
		return Config{}, xerrors.Wrapf(err, "parse routing config %s", path)
	}
	return c, nil
}

// ParseConfig decodes a YAML routing policy over DefaultConfig. Unknown keys
// are rejected. A key present in the file replaces its default wholesale, so
// `aliases: {}` leaves no aliases and lists are never appended to.
func ParseConfig(data []byte) (Config, error) {
	c := DefaultConfig()
	expanded := []byte(os.ExpandEnv(string(data)))

	// yaml.v3 merges into a non-nil map, so drop the default aliases first
	var present struct {
		Aliases *yaml.Node `yaml:"aliases"`
	}
	if err := yaml.Unmarshal(expanded, &present); err != nil {
		return Config{}, err
	}
	if present.Aliases != nil {
		c.Aliases = nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	return c, nil
}

// YAML renders c the way LoadConfig expects to read it.
func (c Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
