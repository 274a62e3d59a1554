package routing

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func wantErrContains(t *testing.T, err error, substr string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", substr)
	}
	if !strings.Contains(err.Error(), substr) {
		t.Fatalf("expected error containing %q, got %q", substr, err.Error())
	}
}

func TestNew_DefaultConfigValid(t *testing.T) {
	rt, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rt.DefaultLocale() != "en" {
		t.Fatalf("default = %q", rt.DefaultLocale())
	}
	if got := rt.Locales(); len(got) != 2 || got[0] != "en" || got[1] != "ar" {
		t.Fatalf("locales = %v", got)
	}
}

func TestNew_OverrideParamAlwaysStripped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OverrideParam = "hl"
	cfg.StripParams = []string{"utm_source"}
	rt := MustNew(cfg)

	if got := rt.StripQuery("hl=ar&x=1"); got != "x=1" {
		t.Fatalf("StripQuery = %q, want x=1", got)
	}
	found := false
	for _, k := range rt.Config().StripParams {
		if k == "hl" {
			found = true
		}
	}
	if !found {
		t.Fatalf("compiled strip set is missing the override key: %v", rt.Config().StripParams)
	}
}

func TestNew_DoesNotAliasCallerSlices(t *testing.T) {
	cfg := DefaultConfig()
	rt := MustNew(cfg)
	cfg.LocaleLessPrefixes[0] = "changed"
	cfg.Aliases["/x"] = "/y"

	if got := rt.Classify("/about"); got.Kind != ClassLocaleLessKnown {
		t.Fatalf("router was affected by caller mutation: %+v", got)
	}
	if got := rt.Normalize("/x"); got != "/x" {
		t.Fatalf("alias leaked into router: %q", got)
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{"no locales", func(c *Config) { c.Locales = nil }, "at least one locale"},
		{"default missing", func(c *Config) { c.DefaultLocale = "fr" }, "default locale"},
		{"uppercase locale", func(c *Config) { c.Locales = []Locale{"en", "AR"} }, "lowercase"},
		{"duplicate locale", func(c *Config) { c.Locales = []Locale{"en", "ar", "ar"} }, "listed twice"},
		{"shared base", func(c *Config) { c.Locales = []Locale{"en", "pt-br", "pt-pt"} }, "share language"},
		{"no override", func(c *Config) { c.OverrideParam = "" }, "override_param"},
		{"no cookie name", func(c *Config) { c.Cookie.Name = "" }, "cookie.name"},
		{"negative max age", func(c *Config) { c.Cookie.MaxAgeSeconds = -1 }, "max_age"},
		{"prefix with slash", func(c *Config) { c.LocaleLessPrefixes = []string{"a/b"} }, "single path segment"},
		{"prefix is locale", func(c *Config) { c.LocaleLessPrefixes = []string{"ar"} }, "collides"},
		{"asset prefix shape", func(c *Config) { c.AssetPrefixes = []string{"/brand"} }, "asset prefix"},
		{"asset file relative", func(c *Config) { c.AssetFiles = []string{"favicon.svg"} }, "asset file"},
		{"asset ext shape", func(c *Config) { c.AssetExtensions = []string{"png"} }, "asset extension"},
		{"empty strip key", func(c *Config) { c.StripParams = []string{""} }, "empty key"},
		{"alias source unnormalized", func(c *Config) { c.Aliases = map[string]string{"/old/": "/new"} }, "alias source"},
		{"alias target unnormalized", func(c *Config) { c.Aliases = map[string]string{"/old": "/new/index.html"} }, "alias target"},
		{"alias self", func(c *Config) { c.Aliases = map[string]string{"/old": "/old"} }, "maps to itself"},
		{"alias chain", func(c *Config) { c.Aliases = map[string]string{"/a": "/b", "/b": "/c"} }, "itself an alias source"},
		{"alias locale source", func(c *Config) { c.Aliases = map[string]string{"/ar/old": "/x"} }, "locale segment"},
		{"bypass unnormalized", func(c *Config) { c.SEOBypassPaths = []string{"/robots.txt/"} }, "bypass path"},
		{"bypass aliased", func(c *Config) { c.Aliases = map[string]string{"/robots.txt": "/x"} }, "also an alias source"},
		{"origin with path", func(c *Config) { c.CanonicalOrigin = "https://example.com/en" }, "canonical_origin"},
		{"origin scheme", func(c *Config) { c.CanonicalOrigin = "ftp://example.com" }, "canonical_origin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			wantErrContains(t, err, tt.substr)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("error does not wrap ErrInvalidConfig: %v", err)
			}
		})
	}
}

func TestNew_CanonicalOriginTrimmed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CanonicalOrigin = "https://example.com/"
	rt := MustNew(cfg)
	if got := rt.Config().CanonicalOrigin; got != "https://example.com" {
		t.Fatalf("origin = %q", got)
	}
}

func TestParseConfig_OverlaysDefaults(t *testing.T) {
	t.Setenv("SITEEDGE_TEST_ORIGIN", "https://portfolio.example")

	c, err := ParseConfig([]byte(`
locales: [en, ar, fr]
canonical_origin: ${SITEEDGE_TEST_ORIGIN}
aliases:
  /old-blog: /blog
cookie:
  name: site_lang
`))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if len(c.Locales) != 3 || c.Locales[2] != "fr" {
		t.Fatalf("locales = %v", c.Locales)
	}
	if c.CanonicalOrigin != "https://portfolio.example" {
		t.Fatalf("origin = %q", c.CanonicalOrigin)
	}
	if c.DefaultLocale != "en" || c.OverrideParam != "lang" {
		t.Fatalf("defaults lost: %+v", c)
	}
	if len(c.Aliases) != 1 || c.Aliases["/old-blog"] != "/blog" {
		t.Fatalf("aliases = %v, want only the file's entry", c.Aliases)
	}
	if c.Cookie.Name != "site_lang" || c.Cookie.MaxAgeSeconds != 31536000 {
		t.Fatalf("cookie = %+v", c.Cookie)
	}
	if _, err := New(c); err != nil {
		t.Fatalf("New: %v", err)
	}
}

func TestParseConfig_AliasesReplaceDefaults(t *testing.T) {
	for _, tc := range []struct {
		name string
		doc  string
		want map[string]string
	}{
		{"absent keeps defaults", "default_locale: en\n", DefaultConfig().Aliases},
		{"empty map clears", "aliases: {}\n", map[string]string{}},
		{"null clears", "aliases:\n", map[string]string{}},
		{"own entries only", "aliases:\n  /old-map.xml: /sitemap.xml\n", map[string]string{"/old-map.xml": "/sitemap.xml"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c, err := ParseConfig([]byte(tc.doc))
			if err != nil {
				t.Fatalf("ParseConfig: %v", err)
			}
			if len(c.Aliases) != len(tc.want) {
				t.Fatalf("aliases = %v, want %v", c.Aliases, tc.want)
			}
			for k, v := range tc.want {
				if c.Aliases[k] != v {
					t.Fatalf("aliases = %v, want %v", c.Aliases, tc.want)
				}
			}
			if _, err := New(c); err != nil {
				t.Fatalf("New: %v", err)
			}
		})
	}

	// an alias dropped from the file no longer redirects
	c, err := ParseConfig([]byte("aliases: {}\n"))
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "http://example.com/sitemap-index.xml", nil)
	rc, err := NewRequestContext(req)
	if err != nil {
		t.Fatal(err)
	}
	if d := MustNew(c).Decide(rc); d.TargetPath == "/sitemap.xml" {
		t.Fatalf("removed alias still applied: %+v", d)
	}
}

func TestParseConfig_Empty(t *testing.T) {
	c, err := ParseConfig(nil)
	if err != nil {
		t.Fatalf("ParseConfig(nil): %v", err)
	}
	if c.DefaultLocale != "en" {
		t.Fatalf("got %+v", c)
	}
}

func TestParseConfig_UnknownKey(t *testing.T) {
	_, err := ParseConfig([]byte("locale: [en]\n"))
	wantErrContains(t, err, "locale")
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "routing.yaml")
	if err := os.WriteFile(p, []byte("default_locale: ar\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.DefaultLocale != "ar" {
		t.Fatalf("default = %q", c.DefaultLocale)
	}

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	wantErrContains(t, err, "read routing config")
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	want := DefaultConfig()
	want.CanonicalOrigin = "https://example.com"

	data, err := want.YAML()
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}
	got, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig: %v\n%s", err, data)
	}
	if got.CanonicalOrigin != want.CanonicalOrigin || len(got.StripParams) != len(want.StripParams) {
		t.Fatalf("round trip mismatch:\n%s", data)
	}
}
