package policy

import (
	"cmp"
	"slices"
	"strings"
)

// target is what a rule resolves to. seq is the registration order of the
// rule across all groups and breaks ties.
type target struct {
	group  string
	policy *Policy
	seq    int
}

type indexedRule struct {
	rule
	target
}

type exactKey struct{ method, path string }

// Resolver maps a request to the best-matching group and its policy. Rules
// are indexed once at construction: exact paths in a map, prefixes sorted
// longest first, regexes in registration order.
type Resolver struct {
	exact    map[exactKey]target
	prefixes []indexedRule
	regexes  []indexedRule
}

// NewResolver indexes the rules of the supplied groups.
func NewResolver(groups ...*GroupBuilder) *Resolver {
	res := &Resolver{exact: make(map[exactKey]target)}
	seq := 0
	for _, g := range groups {
		for _, r := range g.rules {
			t := target{group: g.name, policy: g.policy, seq: seq}
			seq++
			switch r.kind {
			case kindExact:
				k := exactKey{r.method, r.pattern}
				if _, dup := res.exact[k]; !dup {
					res.exact[k] = t
				}
			case kindPrefix:
				res.prefixes = append(res.prefixes, indexedRule{r, t})
			case kindRegex:
				res.regexes = append(res.regexes, indexedRule{r, t})
			}
		}
	}
	slices.SortStableFunc(res.prefixes, func(a, b indexedRule) int {
		return cmp.Compare(len(b.pattern), len(a.pattern))
	})
	return res
}

// Resolve finds the best-matching group for an HTTP method and URL path.
//
// Priority rules:
//   - Exact matches beat prefix matches, which beat regex matches.
//   - Among matches of the same kind the longer match wins.
//   - When two matches have equal kind and length the rule that was
//     registered first wins.
//
// If no group matches, ok is false. A nil Resolver never matches.
func (res *Resolver) Resolve(method, path string) (groupName string, pol *Policy, ok bool) {
	if res == nil {
		return "", nil, false
	}
	method = strings.ToUpper(method)

	if t, found := res.lookupExact(method, path); found {
		return t.group, t.policy, true
	}
	for _, r := range res.prefixes {
		if matched, _ := r.match(method, path); matched {
			return r.group, r.policy, true
		}
	}

	best, bestLen := target{}, -1
	for _, r := range res.regexes {
		matched, n := r.match(method, path)
		if matched && n > bestLen {
			best, bestLen = r.target, n
		}
	}
	if bestLen < 0 {
		return "", nil, false
	}
	return best.group, best.policy, true
}

// lookupExact prefers whichever of the method-specific and any-method rules
// was registered first.
func (res *Resolver) lookupExact(method, path string) (target, bool) {
	specific, okSpecific := res.exact[exactKey{method, path}]
	anyMethod, okAny := res.exact[exactKey{"", path}]
	switch {
	case okSpecific && okAny:
		if anyMethod.seq < specific.seq {
			return anyMethod, true
		}
		return specific, true
	case okSpecific:
		return specific, true
	case okAny:
		return anyMethod, true
	}
	return target{}, false
}
