package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/keithlinneman/siteedge/internal/routing"
	"github.com/keithlinneman/siteedge/internal/version"
)

func gatherMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestNew_RegistersCollectors(t *testing.T) {
	m := New()
	m.SetBuildInfo("server", version.Info{App: "siteedge", Version: "v1.2.3", Commit: "abc"})

	mf := gatherMetric(t, m.Registry(), "build_info")
	if mf == nil {
		t.Fatal("build_info not registered")
	}
	got := mf.GetMetric()[0]
	if labelValue(got, "version") != "v1.2.3" || labelValue(got, "vcs_dirty") != "unknown" {
		t.Fatalf("labels = %v", got.GetLabel())
	}
	if gatherMetric(t, m.Registry(), "go_goroutines") == nil {
		t.Fatal("go collector missing")
	}
}

func TestHandler_ServesExposition(t *testing.T) {
	m := New()
	m.IncHttpPanic()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "http_panic_total 1") {
		t.Fatalf("exposition missing panic counter:\n%s", body)
	}
}

func TestObserveDecision(t *testing.T) {
	m := New()
	ctx := context.Background()

	m.ObserveDecision(ctx, routing.Decision{
		Action:        routing.Redirect,
		Class:         routing.RouteClass{Kind: routing.ClassRoot},
		Locale:        "ar",
		Source:        routing.SourceQuery,
		PersistLocale: true,
	})
	m.ObserveDecision(ctx, routing.Decision{
		Action: routing.PassThrough,
		Class:  routing.RouteClass{Kind: routing.ClassAsset},
	})
	m.ObserveMalformed(ctx, routing.ErrMalformedRequest)

	mf := gatherMetric(t, m.Registry(), "routing_decisions_total")
	if mf == nil || len(mf.GetMetric()) != 2 {
		t.Fatalf("decisions = %v", mf)
	}
	for _, mm := range mf.GetMetric() {
		class, action := labelValue(mm, "class"), labelValue(mm, "action")
		if !(class == "root" && action == "redirect") && !(class == "asset" && action == "pass_through") {
			t.Fatalf("unexpected series class=%q action=%q", class, action)
		}
	}

	loc := gatherMetric(t, m.Registry(), "routing_locale_resolutions_total")
	if loc == nil || len(loc.GetMetric()) != 1 {
		t.Fatalf("asset decision must not count a locale: %v", loc)
	}
	if got := loc.GetMetric()[0]; labelValue(got, "locale") != "ar" || labelValue(got, "source") != "query" {
		t.Fatalf("labels = %v", got.GetLabel())
	}

	if v := gatherMetric(t, m.Registry(), "routing_locale_cookie_writes_total").GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Fatalf("cookie writes = %v", v)
	}
	if v := gatherMetric(t, m.Registry(), "routing_malformed_requests_total").GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Fatalf("malformed = %v", v)
	}
}

func TestContentSetters(t *testing.T) {
	m := New()
	m.SetContentSource("seed")
	m.SetContentSource("s3")
	m.SetContentBundle("deadbeef")
	m.SetContentBundle("")
	m.IncContentReload("ok")
	m.IncWatcherError("ssm")
	m.SetWatcherStale(true)

	src := gatherMetric(t, m.Registry(), "content_source_info")
	if len(src.GetMetric()) != 1 || labelValue(src.GetMetric()[0], "source") != "s3" {
		t.Fatalf("content_source_info = %v", src)
	}
	if mf := gatherMetric(t, m.Registry(), "content_bundle_info"); mf != nil && len(mf.GetMetric()) != 0 {
		t.Fatalf("bundle info not cleared: %v", mf)
	}
	if v := gatherMetric(t, m.Registry(), "content_watcher_stale").GetMetric()[0].GetGauge().GetValue(); v != 1 {
		t.Fatalf("stale = %v", v)
	}
}
