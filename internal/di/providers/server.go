package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/livewatch/internal/config"
	"github.com/listenupapp/livewatch/internal/coordinator"
	"github.com/listenupapp/livewatch/internal/livereload"
	"github.com/listenupapp/livewatch/internal/logger"
)

// Version is reported by the live reload server.
var Version = "dev"

// ProvideHooks provides the warning and fatal error hooks shared by the
// runner, the live reload server and the orchestrator.
func ProvideHooks(_ do.Injector) (*coordinator.Hooks, error) {
	return coordinator.NewHooks(), nil
}

// LiveReloadHandle wraps the live reload server with shutdown capability.
type LiveReloadHandle struct {
	*livereload.Server
}

// Shutdown implements do.Shutdownable.
func (h *LiveReloadHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideLiveReload provides the live reload server. It does not listen
// until the orchestrator starts it.
func ProvideLiveReload(i do.Injector) (*LiveReloadHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	hooks := do.MustInvoke[*coordinator.Hooks](i)
	log := do.MustInvoke[*logger.Logger](i)

	srv := livereload.NewServer(livereload.Options{
		Version:        Version,
		AllowedOrigins: cfg.Watch.LiveReload.AllowedOrigins,
	}, hooks, log.Logger)
	return &LiveReloadHandle{Server: srv}, nil
}
