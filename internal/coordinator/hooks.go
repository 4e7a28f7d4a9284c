package coordinator

import (
	"sync"

	domainerrors "github.com/listenupapp/livewatch/internal/errors"
)

// HookFunc handles a warning or fatal error raised by a task.
type HookFunc func(err error)

// Hooks is where the task runner reports warnings and fatal errors and
// where the orchestrator listens for them. It is safe for concurrent use.
type Hooks struct {
	mu      sync.RWMutex
	warning []HookFunc
	fatal   []HookFunc
}

// NewHooks returns hooks with no handlers.
func NewHooks() *Hooks {
	return &Hooks{}
}

// OnWarning registers fn for warnings.
func (h *Hooks) OnWarning(fn HookFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.warning = append(h.warning, fn)
}

// OnFatal registers fn for fatal errors.
func (h *Hooks) OnFatal(fn HookFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fatal = append(h.fatal, fn)
}

// Warn calls every warning handler with err.
func (h *Hooks) Warn(err error) {
	h.mu.RLock()
	fns := h.warning
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(err)
	}
}

// Fatal calls every fatal handler with err.
func (h *Hooks) Fatal(err error) {
	h.mu.RLock()
	fns := h.fatal
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(err)
	}
}

// Raise routes err to Warn or Fatal by its severity.
func (h *Hooks) Raise(err error) {
	if domainerrors.SeverityOf(err) == domainerrors.SeverityWarning {
		h.Warn(err)
		return
	}
	h.Fatal(err)
}
