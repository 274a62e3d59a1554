package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keithlinneman/siteedge/internal/httpmw"
)

func newTestLimiter(t *testing.T, opts ...Option) *IPLimiter {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, append([]Option{WithRate(1, 3), WithTTL(time.Hour)}, opts...)...)
}

func TestCheck_BurstThenDeny(t *testing.T) {
	l := newTestLimiter(t)
	for i := 0; i < 3; i++ {
		if l.check("10.0.0.1") != allowed {
			t.Fatalf("request %d denied inside burst", i+1)
		}
	}
	if l.check("10.0.0.1") != denied {
		t.Fatal("request past burst allowed")
	}
	if l.check("10.0.0.2") != allowed {
		t.Fatal("second address shares the first's bucket")
	}
}

func TestCheck_Refill(t *testing.T) {
	l := newTestLimiter(t)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		l.check("ip")
	}
	if l.check("ip") != denied {
		t.Fatal("expected denial")
	}
	now = now.Add(1100 * time.Millisecond)
	if l.check("ip") != allowed {
		t.Fatal("bucket did not refill")
	}
}

func TestCheck_Hooks(t *testing.T) {
	var first, every atomic.Int32
	l := newTestLimiter(t,
		WithRate(1, 1),
		WithOnFirstDenied(func(string) { first.Add(1) }),
		WithOnDenied(func(string) { every.Add(1) }),
	)
	for i := 0; i < 5; i++ {
		l.check("ip")
	}
	if first.Load() != 1 || every.Load() != 4 {
		t.Fatalf("first = %d, every = %d", first.Load(), every.Load())
	}
}

func TestCheck_Capacity(t *testing.T) {
	var full atomic.Int32
	l := newTestLimiter(t, WithMaxVisitors(2), WithOnCapacity(func() { full.Add(1) }))

	l.check("a")
	l.check("b")
	if l.check("c") != atCapacity {
		t.Fatal("table overflowed")
	}
	if l.check("a") != allowed {
		t.Fatal("known address refused at capacity")
	}
	if full.Load() != 1 || l.Len() != 2 {
		t.Fatalf("capacity hits = %d, len = %d", full.Load(), l.Len())
	}
}

func TestEvict(t *testing.T) {
	l := newTestLimiter(t, WithTTL(time.Minute))
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	l.check("old")
	now = now.Add(30 * time.Second)
	l.check("new")

	if n := l.evict(now.Add(45 * time.Second)); n != 1 {
		t.Fatalf("evicted %d, want 1", n)
	}
	if l.Len() != 1 {
		t.Fatalf("len = %d", l.Len())
	}
}

func TestMiddleware(t *testing.T) {
	l := newTestLimiter(t, WithRate(1, 1), WithExempt(func(r *http.Request) bool {
		return r.URL.Path == "/-/healthy"
	}))
	h := httpmw.ClientIP(httpmw.ClientIPOptions{})(l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	do := func(p string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, p, nil)
		req.RemoteAddr = "198.51.100.1:1000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := do("/"); rec.Code != http.StatusNoContent {
		t.Fatalf("first status = %d", rec.Code)
	}
	rec := do("/")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "30" || rec.Body.String() != `{"error":"too many requests"}` {
		t.Fatalf("429 response = %v %q", rec.Header(), rec.Body.String())
	}
	if rec := do("/-/healthy"); rec.Code != http.StatusNoContent {
		t.Fatalf("exempt status = %d", rec.Code)
	}
}

func TestCheck_Concurrent(t *testing.T) {
	l := newTestLimiter(t, WithRate(0, 50))
	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.check("same") == allowed {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	if ok.Load() != 50 {
		t.Fatalf("allowed %d, want exactly the burst", ok.Load())
	}
}
