package rawrfetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Keksclan/rawrFetch/apiclient"
	"github.com/Keksclan/rawrFetch/cache"
	"github.com/Keksclan/rawrFetch/contextx"
	"github.com/Keksclan/rawrFetch/policy"
	"github.com/Keksclan/rawrFetch/query"
	"github.com/Keksclan/rawrFetch/transport"
	"github.com/Keksclan/rawrFetch/workspace"
)

func mustNew(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	c, err := New(baseURL, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func companiesServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`[{"id":"c1","name":"Acme","status":"active"},{"id":"c2","name":"Globex","status":"active"}]`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_Defaults(t *testing.T) {
	c := mustNew(t, "https://api.example.com", DefaultOptions()...)
	if c.API() == nil || c.Cache() == nil || c.Metrics() == nil {
		t.Fatal("expected API, Cache and Metrics to be set")
	}
	if got := c.Cache().Capacity(); got != defaultCacheCapacity {
		t.Fatalf("Capacity() = %d", got)
	}
	if c.MetricsHandler() == nil {
		t.Fatal("MetricsHandler() returned nil")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New("not a url"); !errors.Is(err, apiclient.ErrInvalidBaseURL) {
		t.Fatalf("expected ErrInvalidBaseURL, got %v", err)
	}
	if _, err := New("https://api.example.com", WithCache(0, time.Minute)); !errors.Is(err, cache.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
	_, err := New("https://api.example.com",
		WithCacheRedis("localhost:6379", "", 0),
		WithCacheSQLite(filepath.Join(t.TempDir(), "cache.db")),
	)
	if !errors.Is(err, cache.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration for two persistent tiers, got %v", err)
	}
}

func TestResources_ShareCache(t *testing.T) {
	var calls atomic.Int32
	srv := companiesServer(t, &calls)
	c := mustNew(t, srv.URL, WithCache(32, time.Minute))

	filter := workspace.CompanyFilter{Status: "active"}
	producer := func(ctx context.Context) ([]workspace.Company, error) {
		return workspace.Companies(ctx, c.API(), filter)
	}

	first := NewResource[[]workspace.Company](c)
	defer first.Close()
	first.Load(t.Context(), filter.Key(), producer)
	st, err := first.Wait(t.Context())
	if err != nil || st.Err != nil || len(st.Data) != 2 {
		t.Fatalf("first load: %+v, %v", st, err)
	}

	second := NewResource[[]workspace.Company](c)
	defer second.Close()
	st = second.Load(t.Context(), filter.Key(), producer)
	if st.Loading || len(st.Data) != 2 {
		t.Fatalf("second resource should be served from the shared cache, got %+v", st)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected 1 API call, got %d", n)
	}
}

func TestSQLiteTier_SurvivesRestart(t *testing.T) {
	var calls atomic.Int32
	srv := companiesServer(t, &calls)
	path := filepath.Join(t.TempDir(), "cache.db")

	load := func() int {
		c, err := New(srv.URL, WithCacheSQLite(path), WithCacheL1(1<<20))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer c.Close()

		r := NewResource[[]workspace.Company](c)
		defer r.Close()
		r.Load(t.Context(), "companies:", func(ctx context.Context) ([]workspace.Company, error) {
			return workspace.Companies(ctx, c.API(), workspace.CompanyFilter{})
		})
		st, err := r.Wait(t.Context())
		if err != nil || st.Err != nil {
			t.Fatalf("load: %+v, %v", st, err)
		}
		return len(st.Data)
	}

	if n := load(); n != 2 {
		t.Fatalf("first client loaded %d companies", n)
	}
	if n := load(); n != 2 {
		t.Fatalf("second client loaded %d companies", n)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("second client should hydrate from SQLite, got %d API calls", n)
	}
}

func TestBuiltinMiddlewareRunsBeforeUserMiddleware(t *testing.T) {
	var seen http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	spy := func(next http.RoundTripper) http.RoundTripper {
		return transport.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			seen = req.Header.Clone()
			return next.RoundTrip(req)
		})
	}

	// The user middleware is passed first; priority still puts it last.
	c := mustNew(t, srv.URL,
		WithMiddleware(spy),
		WithTokenSource(func(context.Context) (string, error) { return "secret", nil }),
		WithRecovery(),
	)

	ctx := contextx.WithWorkspace(t.Context(), contextx.Workspace{CompanyID: "acme"})
	if err := c.API().Do(ctx, http.MethodGet, "/dashboard/layout", nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if seen.Get(transport.HeaderRequestID) == "" {
		t.Fatal("request id must be set before user middleware runs")
	}
	if seen.Get(transport.HeaderCompanyID) != "acme" {
		t.Fatalf("company header = %q", seen.Get(transport.HeaderCompanyID))
	}
	if seen.Get("Authorization") != "Bearer secret" {
		t.Fatalf("Authorization = %q", seen.Get("Authorization"))
	}
}

func TestRecoveryCatchesMiddlewarePanic(t *testing.T) {
	panicking := func(http.RoundTripper) http.RoundTripper {
		return transport.RoundTripperFunc(func(*http.Request) (*http.Response, error) { panic("boom") })
	}
	c := mustNew(t, "http://api.test", WithRecovery(), WithMiddleware(panicking))

	err := c.API().Do(t.Context(), http.MethodGet, "/admin/companies", nil, nil)
	if !errors.Is(err, transport.ErrPanic) {
		t.Fatalf("expected ErrPanic, got %v", err)
	}
}

func TestMetricsHandlerServesRegistry(t *testing.T) {
	var calls atomic.Int32
	srv := companiesServer(t, &calls)
	reg := prometheus.NewRegistry()
	c := mustNew(t, srv.URL, WithMetrics(reg))

	view := cache.JSON[string](c.Cache())
	view.Set("k", "v")
	if _, ok := view.Get("k"); !ok {
		t.Fatal("expected a hit")
	}
	view.Get("absent")
	if err := c.API().Do(t.Context(), http.MethodGet, "/admin/companies", nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := httptest.NewRecorder()
	c.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`rawrfetch_cache_hits_total{cache="shared"} 1`,
		`rawrfetch_cache_misses_total{cache="shared"} 1`,
		`rawrfetch_api_request_duration_seconds_count{code="OK",path_group="default"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}

func TestNewQuery_UsesSharedCache(t *testing.T) {
	var calls atomic.Int32
	srv := companiesServer(t, &calls)
	c := mustNew(t, srv.URL)

	fetch := func(ctx context.Context, req query.Request) ([]workspace.Company, error) {
		return workspace.Companies(ctx, c.API(), workspace.CompanyFilter{Search: req.Search})
	}
	q := NewQuery(t.Context(), c, query.Config[workspace.Company]{Resource: workspace.ResourceCompanies, Fetch: fetch, Debounce: -1})
	defer q.Close()
	if _, err := q.Wait(t.Context()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if p := q.Page(); p.TotalItems != 2 {
		t.Fatalf("unexpected page: %+v", p)
	}
	if _, ok := cache.JSON[[]workspace.Company](c.Cache()).Get(q.Key()); !ok {
		t.Fatal("query result should be in the shared cache")
	}
}

func TestGroupRateLimit_BaseURLWithPath(t *testing.T) {
	var seen atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.URL.Path)
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	policies := policy.NewResolver(
		policy.Group("grouped").
			Exact("/notifications/grouped").
			Policy(policy.Policy{RateLimit: &policy.RateLimitRule{Rate: 1, Window: time.Hour}}),
	)
	c := mustNew(t, srv.URL+"/v1", WithPolicies(policies))

	if err := c.API().Do(t.Context(), http.MethodGet, "/notifications/grouped", nil, nil); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if got := seen.Load(); got != "/v1/notifications/grouped" {
		t.Fatalf("API saw path %v", got)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	if err := c.API().Do(ctx, http.MethodGet, "/notifications/grouped", nil, nil); err == nil {
		t.Fatal("expected the group budget to hold the second request")
	}

	if err := c.API().Do(t.Context(), http.MethodGet, "/admin/companies", nil, nil); err != nil {
		t.Fatalf("ungrouped request: %v", err)
	}
}
