// Package rules evaluates allow/deny glob patterns over relative asset
// paths. It runs after containment validation and narrows, never widens,
// what may be served.
package rules

import (
	"fmt"
	"path/filepath"

	"github.com/assetgatehq/assetgate/internal/pathutil"
	"github.com/bmatcuk/doublestar/v4"
)

// defaultDeny is always applied: the asset root may be a git checkout,
// and repository internals must never be servable.
var defaultDeny = []string{
	".git",
	".git/**",
	"**/.git/**",
}

type Rules struct {
	allow []string
	deny  []string
}

// New validates the patterns up front so a bad config fails at startup
// instead of silently matching nothing.
func New(allow, deny []string) (*Rules, error) {
	r := &Rules{deny: append([]string{}, defaultDeny...)}
	for _, pattern := range allow {
		if pattern == "" {
			continue
		}
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid glob pattern: %q", pattern)
		}
		r.allow = append(r.allow, pattern)
	}
	for _, pattern := range deny {
		if pattern == "" {
			continue
		}
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid glob pattern: %q", pattern)
		}
		r.deny = append(r.deny, pattern)
	}
	return r, nil
}

// Allowed reports whether the relative path passes the configured
// patterns. Deny wins over allow; an empty allow list permits everything
// not denied. The path is normalized first so patterns are matched
// against the path that will actually be opened: `icons/../secret.txt`
// is evaluated as `secret.txt`, not as something under `icons/`.
func (r *Rules) Allowed(rel string) bool {
	rel = pathutil.Normalize(rel)

	for _, pattern := range r.deny {
		if matchGlob(pattern, rel) {
			return false
		}
	}

	if len(r.allow) == 0 {
		return true
	}
	for _, pattern := range r.allow {
		if matchGlob(pattern, rel) {
			return true
		}
	}
	return false
}

func matchGlob(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, path)
	if err == nil && ok {
		return true
	}
	ok, _ = filepath.Match(pattern, path)
	return ok
}
