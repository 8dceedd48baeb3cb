package policy

import (
	"net/http"
	"testing"
	"time"
)

func TestResolve_ExactMatch(t *testing.T) {
	r := NewResolver(
		Group("layout").
			Exact("/dashboard/layout").
			Policy(Policy{Timeout: 2 * time.Second}),
	)

	name, pol, ok := r.Resolve(http.MethodGet, "/dashboard/layout")
	if !ok {
		t.Fatal("expected a match")
	}
	if name != "layout" {
		t.Fatalf("got group %q, want %q", name, "layout")
	}
	if pol.Timeout != 2*time.Second {
		t.Fatalf("got timeout %v, want 2s", pol.Timeout)
	}
}

func TestResolve_PrefixMatch(t *testing.T) {
	r := NewResolver(
		Group("admin").
			Prefix("/admin/").
			Policy(Policy{Timeout: 5 * time.Second}),
	)

	name, pol, ok := r.Resolve(http.MethodGet, "/admin/companies")
	if !ok {
		t.Fatal("expected a match")
	}
	if name != "admin" {
		t.Fatalf("got group %q, want %q", name, "admin")
	}
	if pol.Timeout != 5*time.Second {
		t.Fatalf("got timeout %v, want %v", pol.Timeout, 5*time.Second)
	}
}

func TestResolve_RegexMatch(t *testing.T) {
	r := NewResolver(
		Group("company-detail").
			Regex(`^/admin/companies/[0-9a-f-]+$`).
			Policy(Policy{}),
	)

	if _, _, ok := r.Resolve(http.MethodGet, "/admin/companies/4f1c-88aa"); !ok {
		t.Fatal("expected a regex match")
	}
	if _, _, ok := r.Resolve(http.MethodGet, "/admin/companies"); ok {
		t.Fatal("expected no match for the collection path")
	}
}

func TestResolve_NoMatch(t *testing.T) {
	r := NewResolver(
		Group("layout").Exact("/dashboard/layout").Policy(Policy{}),
	)

	if _, _, ok := r.Resolve(http.MethodGet, "/notifications/grouped"); ok {
		t.Fatal("expected no match")
	}
}

func TestResolve_NilResolver(t *testing.T) {
	var r *Resolver
	if _, _, ok := r.Resolve(http.MethodGet, "/anything"); ok {
		t.Fatal("nil resolver must not match")
	}
}

func TestResolve_ExactBeatsPrefix(t *testing.T) {
	r := NewResolver(
		Group("notifications").
			Prefix("/notifications/").
			Policy(Policy{Timeout: 1 * time.Second}),
		Group("grouped").
			Exact("/notifications/grouped").
			Policy(Policy{Timeout: 2 * time.Second}),
	)

	name, pol, ok := r.Resolve(http.MethodGet, "/notifications/grouped")
	if !ok {
		t.Fatal("expected a match")
	}
	if name != "grouped" {
		t.Fatalf("got group %q, want %q", name, "grouped")
	}
	if pol.Timeout != 2*time.Second {
		t.Fatalf("got timeout %v, want 2s", pol.Timeout)
	}
}

func TestResolve_PrefixBeatsRegex(t *testing.T) {
	r := NewResolver(
		Group("regex").Regex(`/admin/.*`).Policy(Policy{}),
		Group("prefix").Prefix("/admin/").Policy(Policy{}),
	)

	if name, _, _ := r.Resolve(http.MethodGet, "/admin/companies"); name != "prefix" {
		t.Fatalf("got group %q, want %q", name, "prefix")
	}
}

func TestResolve_LongerPrefixWins(t *testing.T) {
	r := NewResolver(
		Group("admin").Prefix("/admin/").Policy(Policy{}),
		Group("billing").Prefix("/admin/billing/").Policy(Policy{}),
	)

	if name, _, _ := r.Resolve(http.MethodGet, "/admin/billing/earnings"); name != "billing" {
		t.Fatalf("got group %q, want %q", name, "billing")
	}
}

func TestResolve_FirstRegisteredWinsTie(t *testing.T) {
	r := NewResolver(
		Group("first").Prefix("/tasks/").Policy(Policy{}),
		Group("second").Prefix("/tasks/").Policy(Policy{}),
	)

	if name, _, _ := r.Resolve(http.MethodGet, "/tasks/42"); name != "first" {
		t.Fatalf("got group %q, want %q", name, "first")
	}
}

func TestResolve_MethodRestriction(t *testing.T) {
	r := NewResolver(
		Group("writes").
			Method(http.MethodPost).Prefix("/tasks").
			Policy(Policy{NoRetry: true}),
		Group("reads").
			Prefix("/tasks").
			Policy(Policy{}),
	)

	name, pol, _ := r.Resolve("post", "/tasks")
	if name != "writes" || !pol.NoRetry {
		t.Fatalf("POST: got group %q (NoRetry=%v)", name, pol.NoRetry)
	}
	if name, _, _ := r.Resolve(http.MethodGet, "/tasks"); name != "reads" {
		t.Fatalf("GET: got group %q, want %q", name, "reads")
	}
}

func TestGroupRateLimit(t *testing.T) {
	r := NewResolver(
		Group("search").
			Prefix("/search").
			Policy(Policy{RateLimit: &RateLimitRule{Rate: 5, Window: time.Second}}),
	)

	_, pol, ok := r.Resolve(http.MethodGet, "/search/companies")
	if !ok || pol.RateLimit == nil || pol.RateLimit.Rate != 5 {
		t.Fatalf("unexpected policy %+v", pol)
	}
}

func TestResolve_LongestRegexWins(t *testing.T) {
	r := NewResolver(
		Group("short").Regex(`/widgets`).Policy(Policy{}),
		Group("long").Regex(`/widgets/[a-z0-9]+`).Policy(Policy{}),
	)

	if name, _, _ := r.Resolve(http.MethodGet, "/dashboard/widgets/w1"); name != "long" {
		t.Fatalf("got group %q, want %q", name, "long")
	}
	if name, _, _ := r.Resolve(http.MethodGet, "/dashboard/widgets"); name != "short" {
		t.Fatalf("got group %q, want %q", name, "short")
	}
}

func TestResolve_ExactMethodTie(t *testing.T) {
	anyFirst := NewResolver(
		Group("any").Exact("/notifications/grouped").Policy(Policy{}),
		Group("get").Method(http.MethodGet).Exact("/notifications/grouped").Policy(Policy{}),
	)
	if name, _, _ := anyFirst.Resolve(http.MethodGet, "/notifications/grouped"); name != "any" {
		t.Fatalf("got group %q, want %q", name, "any")
	}

	getFirst := NewResolver(
		Group("get").Method(http.MethodGet).Exact("/notifications/grouped").Policy(Policy{}),
		Group("any").Exact("/notifications/grouped").Policy(Policy{}),
	)
	if name, _, _ := getFirst.Resolve(http.MethodGet, "/notifications/grouped"); name != "get" {
		t.Fatalf("got group %q, want %q", name, "get")
	}
	if name, _, _ := getFirst.Resolve(http.MethodPost, "/notifications/grouped"); name != "any" {
		t.Fatalf("POST: got group %q, want %q", name, "any")
	}
}
