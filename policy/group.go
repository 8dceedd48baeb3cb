// Package policy maps REST API paths to per-endpoint request policies
// (timeouts, rate limits, retry eligibility) using exact, prefix and regex
// rules.
package policy

import (
	"regexp"
	"strings"
	"time"
)

// RateLimitRule describes a rate-limiting policy for a group of paths.
type RateLimitRule struct {
	// Rate is the maximum number of requests allowed within Window.
	Rate int
	// Window is the time window for the rate limit.
	Window time.Duration
}

// Policy holds the request settings that apply to a matched path group.
type Policy struct {
	// RateLimit throttles outgoing requests for the group. Nil means only the
	// global limiter applies.
	RateLimit *RateLimitRule
	// Timeout bounds a single attempt. Zero keeps the client default.
	Timeout time.Duration
	// NoRetry disables retries, e.g. for non-idempotent endpoints.
	NoRetry bool
}

// matchKind distinguishes the three matching strategies.
type matchKind int

const (
	kindExact  matchKind = iota // highest priority
	kindPrefix                  // medium priority
	kindRegex                   // lowest priority
)

// rule is a single matching rule inside a group. An empty method matches
// every HTTP method.
type rule struct {
	kind    matchKind
	method  string
	pattern string         // used for exact and prefix matches
	re      *regexp.Regexp // used for regex matches
}

// GroupBuilder constructs a path group with one or more matching rules and
// a policy.
type GroupBuilder struct {
	name   string
	method string
	rules  []rule
	policy *Policy
}

// Group starts building a new path group with the given name.
func Group(name string) *GroupBuilder {
	return &GroupBuilder{name: name}
}

// Method restricts the rules added after this call to one HTTP method.
// Pass "" to match any method again.
func (g *GroupBuilder) Method(m string) *GroupBuilder {
	g.method = strings.ToUpper(m)
	return g
}

// Exact adds an exact-match rule for path.
func (g *GroupBuilder) Exact(path string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindExact, method: g.method, pattern: path})
	return g
}

// Prefix adds a prefix-match rule for path.
func (g *GroupBuilder) Prefix(path string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindPrefix, method: g.method, pattern: path})
	return g
}

// Regex adds a regex-match rule for pattern.
// The pattern is compiled immediately; an invalid regex will panic.
func (g *GroupBuilder) Regex(pattern string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindRegex, method: g.method, pattern: pattern, re: regexp.MustCompile(pattern)})
	return g
}

// Policy attaches a Policy to the group and returns the finished builder.
func (g *GroupBuilder) Policy(p Policy) *GroupBuilder {
	g.policy = &p
	return g
}

// Name returns the group name.
func (g *GroupBuilder) Name() string { return g.name }
