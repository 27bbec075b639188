package perf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/atlas-travel/atlas-ledger/internal/app"
	"github.com/atlas-travel/atlas-ledger/internal/observability"
	_ "github.com/atlas-travel/atlas-ledger/internal/testing/guard"
)

func newRouter() http.Handler {
	return app.NewRouter(app.RouterParams{
		Config:  &app.Config{RateLimitPerMin: 1_000_000},
		Metrics: observability.NewMetrics(),
		Readiness: map[string]app.Pinger{
			"postgres": app.PingFunc(func(context.Context) error { return nil }),
		},
	})
}

func TestRouterLatencyTargets(t *testing.T) {
	router := newRouter()
	for _, path := range []string{"/healthz", "/readyz"} {
		samples := make([]time.Duration, 0, 200)
		for i := 0; i < 200; i++ {
			start := time.Now()
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			samples = append(samples, time.Since(start))
			if rec.Code != http.StatusOK {
				t.Fatalf("%s returned %d", path, rec.Code)
			}
		}
		if p95 := percentile95(samples); p95 > 50*time.Millisecond {
			t.Fatalf("%s latency regression: p95=%s", path, p95)
		}
	}
}

func BenchmarkRouterHealthz(b *testing.B) {
	router := newRouter()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		router.ServeHTTP(httptest.NewRecorder(), req)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
