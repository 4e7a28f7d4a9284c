package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/livewatch/internal/config"
	"github.com/listenupapp/livewatch/internal/coordinator"
	"github.com/listenupapp/livewatch/internal/logger"
	"github.com/listenupapp/livewatch/internal/runner"
)

// ProvideRunner provides the shell task runner.
func ProvideRunner(i do.Injector) (*runner.Runner, error) {
	cfg := do.MustInvoke[*config.Config](i)
	hooks := do.MustInvoke[*coordinator.Hooks](i)
	log := do.MustInvoke[*logger.Logger](i)

	commands := make(map[string]runner.Command, len(cfg.Watch.Commands))
	for name, c := range cfg.Watch.Commands {
		commands[name] = runner.Command{Run: c.Run, Dir: c.Dir, Env: c.Env}
	}

	return runner.New(runner.Config{
		Root:     cfg.App.Root,
		Commands: commands,
		Force:    cfg.App.Force,
	}, hooks, log.Logger), nil
}
