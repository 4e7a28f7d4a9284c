package watcher

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreMatcher reports whether a normalized path should be dropped.
type IgnoreMatcher interface {
	Match(p string) bool
}

// Patterns is an IgnoreMatcher over doublestar globs.
//
// Dot files match like any other file. A pattern without a slash is matched
// against the base name only. A leading "!" is an ordinary character, so
// patterns never negate.
type Patterns struct {
	patterns []string
}

// NewPatterns validates the globs and returns a matcher.
func NewPatterns(patterns []string) (*Patterns, error) {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pat)
		}
	}
	return &Patterns{patterns: patterns}, nil
}

// Match reports whether p matches any pattern.
func (m *Patterns) Match(p string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	p = strings.TrimPrefix(p, "./")
	base := path.Base(p)

	for _, pat := range m.patterns {
		subject := p
		if !strings.Contains(pat, "/") {
			subject = base
		}
		if matched, err := doublestar.Match(pat, subject); err == nil && matched {
			return true
		}
	}
	return false
}
