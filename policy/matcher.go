package policy

import "strings"

// match reports whether r applies to the request and how many characters of
// path it covered. Only regex rules need the length at resolve time.
func (r *rule) match(method, path string) (bool, int) {
	if r.method != "" && r.method != method {
		return false, 0
	}
	switch r.kind {
	case kindExact:
		return path == r.pattern, len(r.pattern)
	case kindPrefix:
		return strings.HasPrefix(path, r.pattern), len(r.pattern)
	case kindRegex:
		if loc := r.re.FindStringIndex(path); loc != nil {
			return true, loc[1] - loc[0]
		}
	}
	return false, 0
}
