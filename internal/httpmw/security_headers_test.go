package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// noContent writes a bare status so only middleware-set headers show up.
var noContent = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func serveSecurity(opts SecurityOptions) http.Header {
	rec := httptest.NewRecorder()
	SecurityHeaders(opts)(noContent).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec.Header()
}

func TestSecurityHeaders_Defaults(t *testing.T) {
	h := serveSecurity(SecurityOptions{})

	if h.Get("Strict-Transport-Security") != "" {
		t.Fatal("HSTS sent without opting in")
	}
	if h.Get("Content-Security-Policy") != DefaultCSP {
		t.Fatalf("CSP = %q", h.Get("Content-Security-Policy"))
	}
	for k, want := range map[string]string{
		"X-Frame-Options":              "DENY",
		"X-Content-Type-Options":       "nosniff",
		"Referrer-Policy":              "strict-origin-when-cross-origin",
		"Cross-Origin-Opener-Policy":   "same-origin",
		"Cross-Origin-Resource-Policy": "same-origin",
	} {
		if got := h.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestSecurityHeaders_SetBeforeNext(t *testing.T) {
	rec := httptest.NewRecorder()
	var inner http.Header
	SecurityHeaders(SecurityOptions{})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		inner = w.Header().Clone()
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if inner.Get("X-Content-Type-Options") != "nosniff" || inner.Get("Referrer-Policy") == "" {
		t.Fatalf("headers not set before next ran: %v", inner)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSecurityHeaders_Options(t *testing.T) {
	h := serveSecurity(SecurityOptions{HSTS: true, HSTSMaxAgeSeconds: 600, CSP: "-"})
	if got := h.Get("Strict-Transport-Security"); got != "max-age=600; includeSubDomains" {
		t.Fatalf("HSTS = %q", got)
	}
	if _, ok := h["Content-Security-Policy"]; ok {
		t.Fatal("CSP not disabled")
	}

	h = serveSecurity(SecurityOptions{HSTS: true, CSP: "default-src 'none'"})
	if got := h.Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Fatalf("HSTS = %q", got)
	}
	if h.Get("Content-Security-Policy") != "default-src 'none'" {
		t.Fatal("custom CSP not applied")
	}
}
