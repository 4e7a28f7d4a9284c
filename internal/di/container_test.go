package di

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/livewatch/internal/config"
	"github.com/listenupapp/livewatch/internal/di/providers"
	domainerrors "github.com/listenupapp/livewatch/internal/errors"
	"github.com/listenupapp/livewatch/internal/runner"
)

func writeWatchFile(t *testing.T, root, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, config.DefaultConfigFile), []byte(content), 0o644))
}

func TestBootstrap_WiresEveryService(t *testing.T) {
	root := t.TempDir()
	writeWatchFile(t, root, `
dirs: [src]
ignoredFiles: ["*.tmp"]
livereload: false
tasks:
  js: build
commands:
  build: "true"
`)

	injector := NewContainer(config.Flags{Root: root, EnvFile: filepath.Join(root, ".env")})
	orch, err := Bootstrap(injector)
	require.NoError(t, err)
	require.NotNil(t, orch)

	cfg := do.MustInvoke[*config.Config](injector)
	assert.Equal(t, []string{"src"}, cfg.Watch.Dirs)
	assert.False(t, cfg.Watch.LiveReload.Enabled)

	manager := do.MustInvoke[*providers.WatchManagerHandle](injector)
	manager.Reconcile([]string{"."})
	assert.Equal(t, []string{"."}, manager.Watched())

	injector.Shutdown()
	assert.Empty(t, manager.Watched())
}

func TestBootstrap_InvalidConfig(t *testing.T) {
	root := t.TempDir()
	writeWatchFile(t, root, "tasks:\n  js: lint\n")

	_, err := Bootstrap(NewContainer(config.Flags{Root: root, EnvFile: filepath.Join(root, ".env")}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "tasks without a command: lint (tasks.js)")
}

func TestBootstrap_BadIgnorePattern(t *testing.T) {
	root := t.TempDir()
	writeWatchFile(t, root, "ignoredFiles: [\"[\"]\n")

	_, err := Bootstrap(NewContainer(config.Flags{Root: root, EnvFile: filepath.Join(root, ".env")}))

	require.Error(t, err)
	assert.NotErrorIs(t, err, domainerrors.ErrPortInUse)
}

func TestBootstrap_ProviderErrorIsReturned(t *testing.T) {
	root := t.TempDir()
	writeWatchFile(t, root, "livereload: false\n")

	injector := NewContainer(config.Flags{Root: root, EnvFile: filepath.Join(root, ".env")})
	do.Override(injector, func(do.Injector) (*runner.Runner, error) {
		return nil, errors.New("no shell available")
	})
	t.Cleanup(func() { injector.Shutdown() })

	var err error
	require.NotPanics(t, func() {
		_, err = Bootstrap(injector)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no shell available")
}
