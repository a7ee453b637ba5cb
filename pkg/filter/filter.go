// Package filter implements the exclusion patterns used to prune entries
// from catalog traversal.
package filter

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/hmaster20/winsync/pkg/errors"
)

// Set is a compiled collection of exclusion patterns. Patterns are globs
// matched case-insensitively against the slash-separated relative path of a
// catalog entry, and against each individual path segment. Matching a segment
// means a pattern like `*.tmp` excludes `sub/dir/scratch.tmp` without the
// user having to spell out `**/*.tmp`.
type Set struct {
	patterns []pattern
}

type pattern struct {
	raw     string
	matcher glob.Glob
}

// Compile parses the given glob patterns into a Set. A nil Set (e.g. from
// compiling no patterns) excludes nothing.
func Compile(rawPatterns []string) (*Set, error) {
	if len(rawPatterns) == 0 {
		return nil, nil
	}

	set := &Set{}
	for _, raw := range rawPatterns {
		matcher, err := glob.Compile(strings.ToLower(raw), '/')
		if err != nil {
			return nil, errors.WithContext(err, fmt.Sprintf("compile pattern %q", raw))
		}
		set.patterns = append(set.patterns, pattern{raw: raw, matcher: matcher})
	}
	return set, nil
}

// Excluded returns whether the given relative path matches any pattern in the
// set. The caller is responsible for pruning the subtree when the matched
// entry is a directory.
func (set *Set) Excluded(relPath string) bool {
	if set == nil {
		return false
	}

	relPath = strings.ToLower(relPath)
	candidates := append([]string{relPath}, strings.Split(relPath, "/")...)
	for _, p := range set.patterns {
		for _, candidate := range candidates {
			if p.matcher.Match(candidate) {
				return true
			}
		}
	}
	return false
}

// Patterns returns the raw patterns the set was compiled from.
func (set *Set) Patterns() (raw []string) {
	if set == nil {
		return nil
	}
	for _, p := range set.patterns {
		raw = append(raw, p.raw)
	}
	return raw
}
