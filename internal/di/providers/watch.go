package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/livewatch/internal/config"
	"github.com/listenupapp/livewatch/internal/coordinator"
	"github.com/listenupapp/livewatch/internal/logger"
	"github.com/listenupapp/livewatch/internal/watcher"
)

// WatchManagerHandle wraps the directory watch manager with shutdown
// capability.
type WatchManagerHandle struct {
	*watcher.Manager
}

// Shutdown implements do.Shutdownable.
func (h *WatchManagerHandle) Shutdown() error {
	return h.Manager.Close()
}

// ProvideWatchManager provides the directory watch manager.
func ProvideWatchManager(i do.Injector) (*WatchManagerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return &WatchManagerHandle{Manager: watcher.NewManager(cfg.App.Root, log.Logger)}, nil
}

// ProvideExpander provides the directory pattern expander.
func ProvideExpander(i do.Injector) (*watcher.Expander, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return watcher.NewExpander(cfg.App.Root), nil
}

// ProvideFilter provides the change event filter.
func ProvideFilter(i do.Injector) (*watcher.Filter, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	ignore, err := watcher.NewPatterns(cfg.Watch.IgnoredFiles)
	if err != nil {
		return nil, err
	}

	return watcher.NewFilter(cfg.App.Root, ignore, log.Logger), nil
}

// ProvideUnlockWaiter provides the file unlock waiter.
func ProvideUnlockWaiter(i do.Injector) (*coordinator.UnlockWaiter, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	unlock := cfg.Watch.Unlock
	return coordinator.NewUnlockWaiter(cfg.App.Root, unlock.Interval, unlock.TryLimit, log.Logger), nil
}

// ProvideResolver provides the extension to task resolver.
func ProvideResolver(i do.Injector) (*coordinator.Resolver, error) {
	cfg := do.MustInvoke[*config.Config](i)

	mapping := make(map[string][]string, len(cfg.Watch.Tasks))
	for ext, tasks := range cfg.Watch.Tasks {
		mapping[ext] = tasks
	}

	return coordinator.NewResolver(mapping), nil
}
