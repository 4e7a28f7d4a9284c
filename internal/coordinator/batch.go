package coordinator

import "slices"

// TaskResolver resolves the tasks for one changed file.
type TaskResolver interface {
	Resolve(path string) []string
}

// TaskGroup is one distinct task sequence.
type TaskGroup struct {
	Tasks []string
}

// Batch is the work produced from one cycle's changed files.
type Batch struct {
	// Groups holds the distinct task sequences in first-seen order.
	Groups []TaskGroup
	// Tasks is the concatenation of the groups without repeated names.
	Tasks []string
	// Files are the changed files that resolved to at least one task.
	Files []string
	// Dispatched is Files as a set.
	Dispatched *FileSet
}

// Build resolves files in order and groups their task lists. Identical
// sequences collapse into one group; sequences that merely share names stay
// separate groups.
func Build(files []string, resolver TaskResolver) Batch {
	b := Batch{Dispatched: NewFileSet()}
	seenTask := make(map[string]struct{})

	for _, f := range files {
		tasks := resolver.Resolve(f)
		if len(tasks) == 0 {
			continue
		}
		if !b.Dispatched.Add(f) {
			continue
		}
		b.Files = append(b.Files, f)

		if slices.ContainsFunc(b.Groups, func(g TaskGroup) bool { return slices.Equal(g.Tasks, tasks) }) {
			continue
		}
		b.Groups = append(b.Groups, TaskGroup{Tasks: tasks})
		for _, t := range tasks {
			if _, ok := seenTask[t]; ok {
				continue
			}
			seenTask[t] = struct{}{}
			b.Tasks = append(b.Tasks, t)
		}
	}

	return b
}
