package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/livewatch/internal/config"
	"github.com/listenupapp/livewatch/internal/coordinator"
	"github.com/listenupapp/livewatch/internal/logger"
	"github.com/listenupapp/livewatch/internal/runner"
	"github.com/listenupapp/livewatch/internal/watcher"
)

// ProvideOrchestrator provides the watch orchestrator with every
// collaborator wired in.
func ProvideOrchestrator(i do.Injector) (*coordinator.Orchestrator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	manager := do.MustInvoke[*WatchManagerHandle](i)
	expander := do.MustInvoke[*watcher.Expander](i)
	filter := do.MustInvoke[*watcher.Filter](i)
	unlock := do.MustInvoke[*coordinator.UnlockWaiter](i)
	resolver := do.MustInvoke[*coordinator.Resolver](i)
	taskRunner := do.MustInvoke[*runner.Runner](i)
	hooks := do.MustInvoke[*coordinator.Hooks](i)
	liveReload := do.MustInvoke[*LiveReloadHandle](i)

	lr := cfg.Watch.LiveReload
	key, cert, err := lr.TLS(cfg.App.Root)
	if err != nil {
		return nil, err
	}

	opts := coordinator.Options{
		Dirs:     cfg.Watch.Dirs,
		Debounce: cfg.Watch.Debounce,
		LiveReload: coordinator.LiveReloadOptions{
			Enabled:    lr.Enabled,
			Port:       lr.Port,
			Extensions: lr.Extensions,
			Key:        key,
			Cert:       cert,
		},
		Beep:       cfg.Watch.Beep,
		ErrorStack: cfg.Watch.ErrorStack,
		Force:      cfg.App.Force,
	}

	return coordinator.New(opts, coordinator.Deps{
		Watcher:  manager.Manager,
		Expander: expander,
		Filter:   filter,
		Unlock:   unlock,
		Resolver: resolver,
		Runner:   taskRunner,
		Reloader: liveReload.Server,
		Hooks:    hooks,
		Logger:   log,
	}), nil
}
