// Package watcher owns the directory watch handles and turns raw filesystem
// notifications into normalized change paths.
package watcher

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	eventBuffer = 256
	errorBuffer = 16
)

// Reconciliation describes what one Reconcile call changed.
type Reconciliation struct {
	Added   []string
	Removed []string
	Took    time.Duration
}

// handle is one open watch on one directory.
type handle struct {
	dir  string
	fsw  *fsnotify.Watcher
	done chan struct{}
}

// Manager keeps exactly one fsnotify watcher per desired directory and fans
// their events into a single channel.
//
// Watches are not recursive: a directory created after a Reconcile call is
// not seen until the next one.
type Manager struct {
	root   string
	logger *slog.Logger

	mu      sync.Mutex
	handles map[string]*handle
	closed  bool
	wg      sync.WaitGroup

	events chan ChangeEvent
	errors chan error
}

// NewManager creates a manager for directories relative to root.
func NewManager(root string, logger *slog.Logger) *Manager {
	return &Manager{
		root:    root,
		logger:  logger,
		handles: make(map[string]*handle),
		events:  make(chan ChangeEvent, eventBuffer),
		errors:  make(chan error, errorBuffer),
	}
}

// Reconcile opens a watch for every desired directory that has none, closes
// the watches of directories no longer desired and leaves the rest alone.
// A directory that cannot be watched is logged and skipped; it is tried again
// on the next call.
func (m *Manager) Reconcile(desired []string) Reconciliation {
	start := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var res Reconciliation
	if m.closed {
		return res
	}

	want := make(map[string]struct{}, len(desired))
	for _, dir := range desired {
		want[dir] = struct{}{}
		if _, ok := m.handles[dir]; ok {
			continue
		}
		h, err := m.open(dir)
		if err != nil {
			m.logger.Warn("failed to watch dir", "dir", dir, "error", err)
			continue
		}
		m.handles[dir] = h
		res.Added = append(res.Added, dir)
	}

	for dir, h := range m.handles {
		if _, ok := want[dir]; ok {
			continue
		}
		m.release(h)
		delete(m.handles, dir)
		res.Removed = append(res.Removed, dir)
	}
	slices.Sort(res.Removed)

	res.Took = time.Since(start)
	m.report(res)
	return res
}

// Watched returns the watched directories in lexical order.
func (m *Manager) Watched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	dirs := make([]string, 0, len(m.handles))
	for dir := range m.handles {
		dirs = append(dirs, dir)
	}
	slices.Sort(dirs)
	return dirs
}

// Events returns the channel of raw change events from every watched directory.
func (m *Manager) Events() <-chan ChangeEvent {
	return m.events
}

// Errors returns the channel of watch errors. Errors are dropped when nobody
// reads them.
func (m *Manager) Errors() <-chan error {
	return m.errors
}

// Close releases every handle. The event channels stay open so a reader never
// sees a spurious zero event.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for dir, h := range m.handles {
		m.release(h)
		delete(m.handles, dir)
	}
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}

func (m *Manager) open(dir string) (*handle, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	abs := filepath.Join(m.root, filepath.FromSlash(dir))
	if err := fsw.Add(abs); err != nil {
		fsw.Close() //nolint:errcheck // best-effort cleanup
		return nil, err
	}

	h := &handle{dir: dir, fsw: fsw, done: make(chan struct{})}
	m.wg.Add(1)
	go m.forward(h, abs)
	return h, nil
}

// release stops a handle's forwarding goroutine and closes its watcher.
// Callers hold m.mu.
func (m *Manager) release(h *handle) {
	close(h.done)
	if err := h.fsw.Close(); err != nil {
		m.logger.Debug("failed to close watcher", "dir", h.dir, "error", err)
	}
}

func (m *Manager) forward(h *handle, abs string) {
	defer m.wg.Done()

	for {
		select {
		case <-h.done:
			return
		case ev, ok := <-h.fsw.Events:
			if !ok {
				return
			}
			name, err := filepath.Rel(abs, ev.Name)
			if err != nil || name == "." {
				name = ""
			}
			select {
			case m.events <- ChangeEvent{Kind: kindOf(ev.Op), Name: filepath.ToSlash(name), Dir: h.dir}:
			case <-h.done:
				return
			}
		case err, ok := <-h.fsw.Errors:
			if !ok {
				return
			}
			select {
			case m.errors <- fmt.Errorf("watch %s: %w", h.dir, err):
			default:
			}
		}
	}
}

func (m *Manager) report(res Reconciliation) {
	if n := len(res.Removed); n > 0 {
		m.logger.Debug("Dirs removed from watch list: " + strings.Join(res.Removed, ", "))
		m.logger.Info(fmt.Sprintf("%d %s no longer watched", n, dirString(n)))
	}
	if n := len(res.Added); n > 0 {
		m.logger.Debug("Dirs added to watch list: " + strings.Join(res.Added, ", "))
		m.logger.Info(fmt.Sprintf("%d more %s now being watched, within %d ms.", n, dirString(n), res.Took.Milliseconds()))
	}
}

func dirString(n int) string {
	if n == 1 {
		return "dir is"
	}
	return "dirs are"
}
