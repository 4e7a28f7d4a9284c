package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Expander turns configured directory patterns into the list of directories
// to watch under a root.
type Expander struct {
	fsys fs.FS
}

// NewExpander returns an Expander rooted at root.
func NewExpander(root string) *Expander {
	return &Expander{fsys: os.DirFS(root)}
}

// Expand resolves patterns against the root. See Expand.
func (e *Expander) Expand(patterns []string) ([]string, error) {
	return Expand(e.fsys, patterns)
}

// Expand returns the directories of fsys selected by patterns, as slash
// separated paths relative to the root ("." is the root itself).
//
// Patterns apply in order. A plain pattern adds the directories it matches;
// a pattern starting with "!" removes the directories it matches together
// with everything below them. Directories are ordered by the first pattern
// that added them, then lexically. A list made only of exclusions starts from
// every directory, root included.
func Expand(fsys fs.FS, patterns []string) ([]string, error) {
	rules := make([]rule, 0, len(patterns)+1)
	hasPositive := false
	for _, raw := range patterns {
		r := parseRule(raw)
		if r.glob == "" {
			continue
		}
		if !doublestar.ValidatePattern(r.glob) {
			return nil, fmt.Errorf("invalid dir pattern %q", raw)
		}
		hasPositive = hasPositive || !r.exclude
		rules = append(rules, r)
	}
	if !hasPositive {
		rules = append([]rule{{glob: "**"}}, rules...)
	}

	// prunable[i] means no rule after the exclusion at i can add anything back.
	prunable := make([]bool, len(rules))
	positiveAfter := false
	for i := len(rules) - 1; i >= 0; i-- {
		prunable[i] = rules[i].exclude && !positiveAfter
		positiveAfter = positiveAfter || !rules[i].exclude
	}

	buckets := make([][]string, len(rules))
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped rather than failing the expansion.
			if d != nil && d.IsDir() && p != "." {
				return fs.SkipDir
			}
			if p == "." {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		first := -1
		included := false
		for i, r := range rules {
			if !r.matches(p) {
				continue
			}
			if r.exclude {
				if prunable[i] {
					return skip(p)
				}
				included = false
				continue
			}
			if first < 0 {
				first = i
			}
			included = true
		}
		if included {
			buckets[first] = append(buckets[first], p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("expand dirs: %w", err)
	}

	var dirs []string
	for _, b := range buckets {
		dirs = append(dirs, b...)
	}
	return dirs, nil
}

type rule struct {
	glob    string
	exclude bool
}

func parseRule(raw string) rule {
	r := rule{glob: raw}
	if strings.HasPrefix(raw, "!") {
		r.exclude = true
		r.glob = raw[1:]
	}
	r.glob = strings.TrimPrefix(r.glob, "./")
	if r.glob != "/" {
		r.glob = strings.TrimSuffix(r.glob, "/")
	}
	return r
}

// matches reports whether the rule selects dir. Exclusions also select
// every descendant of a matched directory.
func (r rule) matches(dir string) bool {
	if dir == "." {
		return r.glob == "." || r.glob == "**"
	}
	if ok, _ := doublestar.Match(r.glob, dir); ok {
		return true
	}
	if prefix, ok := strings.CutSuffix(r.glob, "/**"); ok {
		if ok, _ := doublestar.Match(prefix, dir); ok {
			return true
		}
	}
	if r.exclude {
		for i := strings.LastIndexByte(dir, '/'); i > 0; i = strings.LastIndexByte(dir[:i], '/') {
			if ok, _ := doublestar.Match(r.glob, dir[:i]); ok {
				return true
			}
		}
	}
	return false
}

func skip(p string) error {
	if p == "." {
		return fs.SkipAll
	}
	return fs.SkipDir
}
