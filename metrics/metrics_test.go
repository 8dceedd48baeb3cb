package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCacheRecorder_CountsPerCache(t *testing.T) {
	m := New(nil)
	responses := m.Cache("responses")
	history := m.Cache("search_history")

	responses.Hit()
	responses.Hit()
	responses.Miss()
	history.Eviction()
	history.Expire()

	if got := testutil.ToFloat64(m.cacheHits.WithLabelValues("responses")); got != 2 {
		t.Fatalf("responses hits: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.cacheMisses.WithLabelValues("responses")); got != 1 {
		t.Fatalf("responses misses: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.cacheEvictions.WithLabelValues("search_history")); got != 1 {
		t.Fatalf("history evictions: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.cacheExpirations.WithLabelValues("search_history")); got != 1 {
		t.Fatalf("history expirations: got %v, want 1", got)
	}
}

func TestFetchOutcomes(t *testing.T) {
	m := New(nil)
	m.Fetch(OutcomeSuccess)
	m.Fetch(OutcomeDiscarded)
	m.Fetch(OutcomeDiscarded)

	if got := testutil.ToFloat64(m.fetches.WithLabelValues(OutcomeDiscarded)); got != 2 {
		t.Fatalf("discarded: got %v, want 2", got)
	}
}

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Fetch(OutcomeError)
	m.ObserveRequest("notifications", "OK", 20*time.Millisecond)

	expected := `
# HELP rawrfetch_resource_fetches_total Resource fetches by outcome.
# TYPE rawrfetch_resource_fetches_total counter
rawrfetch_resource_fetches_total{outcome="error"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "rawrfetch_resource_fetches_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}

	if n := testutil.CollectAndCount(m.requestDuration); n != 1 {
		t.Fatalf("request duration series: got %d, want 1", n)
	}
}
