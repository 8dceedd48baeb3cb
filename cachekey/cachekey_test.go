package cachekey

import (
	"testing"
	"time"
)

func TestBuild_PropertyOrderIndependent(t *testing.T) {
	a := Build("companies", map[string]any{"status": "active", "search": "x"})
	b := Build("companies", map[string]any{"search": "x", "status": "active"})
	if a != b {
		t.Fatalf("keys differ: %q vs %q", a, b)
	}
}

func TestBuild_DropsNilValues(t *testing.T) {
	var nilPtr *string
	cases := []map[string]any{
		{"status": nil},
		{"status": nilPtr},
		{},
		nil,
	}
	want := Build("companies", map[string]any{})
	for _, params := range cases {
		if got := Build("companies", params); got != want {
			t.Fatalf("Build(%v): got %q, want %q", params, got, want)
		}
	}
	if want != "companies:" {
		t.Fatalf("empty params: got %q", want)
	}
}

func TestBuild_HumanReadable(t *testing.T) {
	got := Build("companies", map[string]any{"search": "acme", "status": "all"})
	if want := "companies:search=acme&status=all"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuild_Primitives(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got := Build("tasks", map[string]any{
		"page":     2,
		"archived": false,
		"ratio":    0.5,
		"since":    at,
	})
	want := "tasks:archived=false&page=2&ratio=0.5&since=2026-03-01T12%3A00%3A00Z"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuild_EscapesSeparators(t *testing.T) {
	a := Build("companies", map[string]any{"search": "a&b=c"})
	b := Build("companies", map[string]any{"search": "a", "b": "c"})
	if a == b {
		t.Fatalf("escaping failed, both keys are %q", a)
	}
}

func TestBuild_NestedValuesDeterministic(t *testing.T) {
	first := Build("notifications", map[string]any{
		"filter": map[string]any{"type": "task", "read": false, "tags": []string{"a", "b"}},
	})
	for range 20 {
		again := Build("notifications", map[string]any{
			"filter": map[string]any{"tags": []string{"a", "b"}, "read": false, "type": "task"},
		})
		if again != first {
			t.Fatalf("nested key not deterministic: %q vs %q", again, first)
		}
	}
}

type status string

func TestBuild_NamedStringTypes(t *testing.T) {
	got := Build("companies", map[string]any{"status": status("active")})
	if want := "companies:status=active"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestParams_SetNonZero(t *testing.T) {
	p := Params{}
	p.SetNonZero("search", "").
		SetNonZero("page", 0).
		SetNonZero("status", "active").
		Set("archived", false)

	if got, want := p.Key("companies"), "companies:archived=false&status=active"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
