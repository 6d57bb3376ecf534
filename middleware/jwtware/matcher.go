package jwtware

import (
	"path"
	"strings"
)

// PathMatcher matches request paths against ant style patterns: a
// trailing /** matches the prefix and anything below it, * matches a
// single segment.
type PathMatcher struct {
	patterns []string
}

func NewPathMatcher(patterns ...string) PathMatcher {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return PathMatcher{patterns: out}
}

func (m PathMatcher) Match(p string) bool {
	if p == "" {
		p = "/"
	}
	for _, pattern := range m.patterns {
		if MatchPath(pattern, p) {
			return true
		}
	}
	return false
}

// MatchPath matches a single pattern
func MatchPath(pattern, p string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		if prefix == "" || p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
		return false
	}

	if strings.Contains(pattern, "*") {
		ok, err := path.Match(pattern, p)
		return err == nil && ok
	}

	return strings.TrimRight(pattern, "/") == strings.TrimRight(p, "/")
}
