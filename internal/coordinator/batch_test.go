package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExt(t *testing.T) {
	tests := map[string]string{
		"src/app.js":      "js",
		"src/app.min.css": "css",
		"Makefile":        "",
		".bashrc":         "",
		"src/.env.local":  "local",
		"dir.d/file":      "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Ext(in), in)
	}
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(map[string][]string{
		"js":     {"lint", "build"},
		"less":   {"styles"},
		Wildcard: {"copy"},
	})

	assert.Equal(t, []string{"lint", "build"}, r.Resolve("src/app.js"))
	assert.Equal(t, []string{"styles"}, r.Resolve("a.less"))
	assert.Equal(t, []string{"copy"}, r.Resolve("README.md"))
	assert.Equal(t, []string{"copy"}, r.Resolve("Makefile"))
}

func TestResolver_NoMatch(t *testing.T) {
	r := NewResolver(map[string][]string{"js": {"build"}})

	assert.Empty(t, r.Resolve("README.md"))
}

func TestResolver_FuncSeesPath(t *testing.T) {
	r := &Resolver{Mapping: map[string]TaskFunc{
		"js": func(p string) []string { return []string{"test:" + p} },
		"md": nil,
	}}

	assert.Equal(t, []string{"test:a.js"}, r.Resolve("a.js"))
	assert.Empty(t, r.Resolve("a.md"))
}

func TestResolver_ReturnsCopies(t *testing.T) {
	r := NewResolver(map[string][]string{"js": {"build"}})

	first := r.Resolve("a.js")
	first[0] = "mutated"
	assert.Equal(t, []string{"build"}, r.Resolve("a.js"))
}

func TestBuild_GroupsAreDistinctSequences(t *testing.T) {
	r := NewResolver(map[string][]string{
		"js":   {"lint", "build"},
		"ts":   {"lint", "build"},
		"less": {"styles", "build"},
		"css":  {"build", "lint"},
	})

	b := Build([]string{"a.js", "README.md", "b.ts", "c.less", "d.css", "e.js"}, r)

	assert.Equal(t, []TaskGroup{
		{Tasks: []string{"lint", "build"}},
		{Tasks: []string{"styles", "build"}},
		{Tasks: []string{"build", "lint"}},
	}, b.Groups)
	assert.Equal(t, []string{"lint", "build", "styles"}, b.Tasks)
	assert.Equal(t, []string{"a.js", "b.ts", "c.less", "d.css", "e.js"}, b.Files)
	assert.True(t, b.Dispatched.Has("e.js"))
	assert.False(t, b.Dispatched.Has("README.md"))
}

func TestBuild_IsDeterministic(t *testing.T) {
	r := NewResolver(map[string][]string{"js": {"a", "b"}, "css": {"c"}})
	files := []string{"x.css", "y.js", "z.css"}

	first := Build(files, r)
	for range 10 {
		again := Build(files, r)
		assert.Equal(t, first.Groups, again.Groups)
		assert.Equal(t, first.Tasks, again.Tasks)
	}
	assert.Equal(t, []string{"c", "a", "b"}, first.Tasks)
}

func TestBuild_DuplicateFilesAppearOnce(t *testing.T) {
	r := NewResolver(map[string][]string{"js": {"build"}})

	b := Build([]string{"a.js", "a.js"}, r)

	assert.Equal(t, []string{"a.js"}, b.Files)
	assert.Len(t, b.Groups, 1)
}

func TestBuild_NoTasks(t *testing.T) {
	b := Build([]string{"a.txt"}, NewResolver(nil))

	assert.Empty(t, b.Groups)
	assert.Empty(t, b.Tasks)
	assert.Empty(t, b.Files)
	assert.Zero(t, b.Dispatched.Len())
}
