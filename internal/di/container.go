// Package di provides dependency injection configuration for livewatch.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/livewatch/internal/config"
	"github.com/listenupapp/livewatch/internal/coordinator"
	"github.com/listenupapp/livewatch/internal/di/providers"
	"github.com/listenupapp/livewatch/internal/logger"
	"github.com/listenupapp/livewatch/internal/runner"
	"github.com/listenupapp/livewatch/internal/watcher"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer(flags config.Flags) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, flags)
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideHooks)

	// Watch layer
	do.Provide(injector, providers.ProvideWatchManager)
	do.Provide(injector, providers.ProvideExpander)
	do.Provide(injector, providers.ProvideFilter)
	do.Provide(injector, providers.ProvideUnlockWaiter)
	do.Provide(injector, providers.ProvideResolver)

	// Task execution and live reload
	do.Provide(injector, providers.ProvideRunner)
	do.Provide(injector, providers.ProvideLiveReload)

	// Coordinator
	do.Provide(injector, providers.ProvideOrchestrator)

	return injector
}

// Bootstrap initializes every service and returns the orchestrator, ready
// to run.
func Bootstrap(injector *do.RootScope) (*coordinator.Orchestrator, error) {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return nil, err
	}
	if _, err := do.Invoke[*logger.Logger](injector); err != nil {
		return nil, err
	}
	if _, err := do.Invoke[*coordinator.Hooks](injector); err != nil {
		return nil, err
	}

	// Watch layer
	if _, err := do.Invoke[*watcher.Filter](injector); err != nil {
		return nil, err
	}
	if _, err := do.Invoke[*providers.WatchManagerHandle](injector); err != nil {
		return nil, err
	}
	if _, err := do.Invoke[*watcher.Expander](injector); err != nil {
		return nil, err
	}
	if _, err := do.Invoke[*coordinator.UnlockWaiter](injector); err != nil {
		return nil, err
	}
	if _, err := do.Invoke[*coordinator.Resolver](injector); err != nil {
		return nil, err
	}

	// Task execution and live reload
	if _, err := do.Invoke[*runner.Runner](injector); err != nil {
		return nil, err
	}
	if _, err := do.Invoke[*providers.LiveReloadHandle](injector); err != nil {
		return nil, err
	}

	return do.Invoke[*coordinator.Orchestrator](injector)
}
