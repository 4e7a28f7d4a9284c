package coordinator

import (
	"context"
	"log/slog"
	"strings"
)

// Reloader pushes changed files to live-reload clients.
type Reloader interface {
	Start(ctx context.Context, port int, key, cert []byte) error
	Notify(ctx context.Context, files []string) error
}

// Notifier collects changed files during a cycle and sends the ones with a
// live-reload extension when the cycle dispatches.
type Notifier struct {
	enabled    bool
	extensions map[string]struct{}
	reloader   Reloader
	files      *FileSet
	logger     *slog.Logger
}

// NewNotifier creates a notifier. When enabled is false nothing is tracked
// and nothing is sent.
func NewNotifier(enabled bool, extensions []string, reloader Reloader, logger *slog.Logger) *Notifier {
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		exts[strings.TrimPrefix(e, ".")] = struct{}{}
	}
	return &Notifier{
		enabled:    enabled,
		extensions: exts,
		reloader:   reloader,
		files:      NewFileSet(),
		logger:     logger,
	}
}

// Track records a changed file.
func (n *Notifier) Track(p string) {
	if n.enabled {
		n.files.Add(p)
	}
}

// Flush returns the tracked files with a live-reload extension, sends them
// to the reloader when there are any, and forgets everything tracked.
func (n *Notifier) Flush(ctx context.Context) []string {
	var files []string
	for _, p := range n.files.Drain() {
		if _, ok := n.extensions[Ext(p)]; ok {
			files = append(files, p)
		}
	}

	if !n.enabled || len(files) == 0 || n.reloader == nil {
		return files
	}

	n.logger.Debug("Notifying live reload about: " + strings.Join(files, ", "))
	if err := n.reloader.Notify(ctx, files); err != nil {
		n.logger.Warn("live reload notification failed", "error", err)
	}
	return files
}

// Reset forgets tracked files.
func (n *Notifier) Reset() {
	n.files.Clear()
}
