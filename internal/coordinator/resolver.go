package coordinator

import (
	"path"
	"strings"
)

// Wildcard is the mapping key used for files whose extension has no entry.
const Wildcard = "*"

// TaskFunc returns the tasks to run for a changed file.
type TaskFunc func(path string) []string

// Tasks returns a TaskFunc that always yields names.
func Tasks(names ...string) TaskFunc {
	return func(string) []string {
		return append([]string(nil), names...)
	}
}

// Resolver maps a changed file to task names by its extension.
type Resolver struct {
	Mapping map[string]TaskFunc
}

// NewResolver builds a resolver from static extension to task-list entries.
func NewResolver(tasks map[string][]string) *Resolver {
	r := &Resolver{Mapping: make(map[string]TaskFunc, len(tasks))}
	for ext, names := range tasks {
		r.Mapping[ext] = Tasks(names...)
	}
	return r
}

// Resolve returns the tasks for p: the entry for its extension, else the
// wildcard entry, else nothing.
func (r *Resolver) Resolve(p string) []string {
	fn, ok := r.Mapping[Ext(p)]
	if !ok {
		fn, ok = r.Mapping[Wildcard]
	}
	if !ok || fn == nil {
		return nil
	}
	return fn(p)
}

// Ext returns the extension of p without the dot. A leading dot does not
// start an extension, so ".bashrc" has none.
func Ext(p string) string {
	base := path.Base(p)
	i := strings.LastIndexByte(base, '.')
	if i <= 0 {
		return ""
	}
	return base[i+1:]
}
