package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/listenupapp/livewatch/internal/config"
	"github.com/listenupapp/livewatch/internal/di"
	"github.com/listenupapp/livewatch/internal/watcher"
)

func newCheckCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the watch file and print what would be watched",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			injector := di.NewContainer(*flags)
			defer injector.Shutdown()

			cfg, err := do.Invoke[*config.Config](injector)
			if err != nil {
				return err
			}
			expander, err := do.Invoke[*watcher.Expander](injector)
			if err != nil {
				return err
			}
			dirs, err := expander.Expand(cfg.Watch.Dirs)
			if err != nil {
				return err
			}

			printCheck(cmd.OutOrStdout(), cfg, dirs)
			return nil
		},
	}
}

func printCheck(w io.Writer, cfg *config.Config, dirs []string) {
	file := cfg.App.ConfigFile
	if file == "" {
		file = "none, using defaults"
	}
	fmt.Fprintf(w, "Watch file: %s\n", file)

	fmt.Fprintf(w, "Directories (%d):\n", len(dirs))
	for _, d := range dirs {
		fmt.Fprintf(w, "  %s\n", d)
	}

	fmt.Fprintln(w, "Tasks:")
	if len(cfg.Watch.Tasks) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, ext := range slices.Sorted(maps.Keys(cfg.Watch.Tasks)) {
		fmt.Fprintf(w, "  %s: %s\n", ext, strings.Join(cfg.Watch.Tasks[ext], ", "))
	}

	lr := cfg.Watch.LiveReload
	if lr.Enabled {
		fmt.Fprintf(w, "Live reload: port %d (%s)\n", lr.Port, strings.Join(lr.Extensions, ", "))
	} else {
		fmt.Fprintln(w, "Live reload: disabled")
	}
}
