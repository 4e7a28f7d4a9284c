package coordinator

// State is the run gate state.
type State int

const (
	// Idle means no dispatch cycle is in flight.
	Idle State = iota
	// Running means a cycle is between Begin and End.
	Running
)

// String returns the string representation of the state.
func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// RunGate serializes dispatch cycles. Changes seen while a cycle runs are
// deferred and handed back when it ends.
//
// RunGate is not safe for concurrent use; the orchestrator loop owns it.
type RunGate struct {
	state    State
	pending  *FileSet
	deferred *FileSet
}

// NewRunGate returns an idle gate.
func NewRunGate() *RunGate {
	return &RunGate{
		pending:  NewFileSet(),
		deferred: NewFileSet(),
	}
}

// State returns the current state.
func (g *RunGate) State() State {
	return g.state
}

// Running reports whether a cycle is in flight.
func (g *RunGate) Running() bool {
	return g.state == Running
}

// Pending returns the number of paths waiting for the next cycle.
func (g *RunGate) Pending() int {
	return g.pending.Len()
}

// Deferred returns the paths deferred during the current cycle.
func (g *RunGate) Deferred() []string {
	return g.deferred.Paths()
}

// Ingest records a changed path. It returns true when the gate is idle and
// the path joined the pending set, which means the caller should (re)arm the
// debouncer. While running the path is deferred and Ingest returns false.
func (g *RunGate) Ingest(p string) bool {
	if g.state == Running {
		g.deferred.Add(p)
		return false
	}
	g.pending.Add(p)
	return true
}

// Begin starts a cycle and returns the pending paths, which are cleared.
func (g *RunGate) Begin() []string {
	g.state = Running
	return g.pending.Drain()
}

// End finishes the cycle. Deferred paths not in dispatched move to pending
// in arrival order and are returned as replayed; the others are returned as
// dropped.
func (g *RunGate) End(dispatched *FileSet) (replayed, dropped []string) {
	for _, p := range g.deferred.Drain() {
		if dispatched.Has(p) {
			dropped = append(dropped, p)
			continue
		}
		g.pending.Add(p)
		replayed = append(replayed, p)
	}
	g.state = Idle
	return replayed, dropped
}

// Reset clears all pending and deferred paths and returns to idle.
func (g *RunGate) Reset() {
	g.pending.Clear()
	g.deferred.Clear()
	g.state = Idle
}
