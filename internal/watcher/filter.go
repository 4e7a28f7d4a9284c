package watcher

import (
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Decision is the outcome of filtering one ChangeEvent.
type Decision int

const (
	// Ignored paths match an ignore pattern.
	Ignored Decision = iota
	// Missing paths no longer exist.
	Missing
	// Directory paths are directories. They are reported and otherwise dropped.
	Directory
	// File paths are changed files that go on to the run gate.
	File
)

// String returns the string representation of the decision.
func (d Decision) String() string {
	switch d {
	case Ignored:
		return "ignored"
	case Missing:
		return "missing"
	case Directory:
		return "directory"
	case File:
		return "file"
	default:
		return "unknown"
	}
}

// Filter normalizes raw change events into paths relative to the watch root
// and drops what should not reach the coordinator.
type Filter struct {
	root   string
	ignore IgnoreMatcher
	logger *slog.Logger
}

// NewFilter creates a filter for paths under root.
func NewFilter(root string, ignore IgnoreMatcher, logger *slog.Logger) *Filter {
	return &Filter{root: root, ignore: ignore, logger: logger}
}

// Normalize joins the event's directory and name into a forward-slash path.
func Normalize(ev ChangeEvent) string {
	p := path.Join(filepath.ToSlash(ev.Dir), filepath.ToSlash(ev.Name))
	return strings.ReplaceAll(p, `\`, "/")
}

// Apply classifies ev and returns its normalized path.
func (f *Filter) Apply(ev ChangeEvent) (string, Decision) {
	p := Normalize(ev)

	if f.Ignored(p) {
		return p, Ignored
	}

	full := filepath.Join(f.root, filepath.FromSlash(p))
	if _, err := os.Lstat(full); err != nil {
		return p, Missing
	}
	// Lstat succeeds on a dangling symlink; Stat does not.
	info, err := os.Stat(full)
	if err != nil {
		return p, Missing
	}

	f.logger.Debug("changed: " + p)

	if info.IsDir() {
		f.logger.Debug("Dir changed: " + p)
		return p, Directory
	}
	return p, File
}

// Ignored reports whether p matches the ignore patterns.
func (f *Filter) Ignored(p string) bool {
	return f.ignore != nil && f.ignore.Match(p)
}
