package coordinator

// FileSet is an insertion-ordered set of paths.
type FileSet struct {
	order []string
	seen  map[string]struct{}
}

// NewFileSet returns a set holding paths in first-seen order.
func NewFileSet(paths ...string) *FileSet {
	s := &FileSet{seen: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		s.Add(p)
	}
	return s
}

// Add inserts p and reports whether it was new.
func (s *FileSet) Add(p string) bool {
	if _, ok := s.seen[p]; ok {
		return false
	}
	s.seen[p] = struct{}{}
	s.order = append(s.order, p)
	return true
}

// Has reports whether p is in the set. A nil set is empty.
func (s *FileSet) Has(p string) bool {
	if s == nil {
		return false
	}
	_, ok := s.seen[p]
	return ok
}

// Len returns the number of paths.
func (s *FileSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Paths returns a copy of the paths in insertion order.
func (s *FileSet) Paths() []string {
	if s == nil || len(s.order) == 0 {
		return nil
	}
	return append([]string(nil), s.order...)
}

// Drain returns the paths and empties the set.
func (s *FileSet) Drain() []string {
	paths := s.order
	s.Clear()
	return paths
}

// Clear empties the set.
func (s *FileSet) Clear() {
	s.order = nil
	clear(s.seen)
}
