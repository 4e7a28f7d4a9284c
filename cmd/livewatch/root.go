package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/listenupapp/livewatch/internal/config"
	"github.com/listenupapp/livewatch/internal/di"
	"github.com/listenupapp/livewatch/internal/di/providers"
	"github.com/listenupapp/livewatch/internal/logger"
)

func newRootCmd() *cobra.Command {
	var flags config.Flags

	root := &cobra.Command{
		Use:   "livewatch",
		Short: "Run tasks when files change and reload the browser",
		Long: `livewatch watches the directories named in livewatch.yaml, runs the tasks
mapped to the extension of every changed file, and tells connected browsers
to reload through the LiveReload protocol.

Settings come from flags, then environment variables, then the .env file,
then the watch file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, resolveFlags(cmd, flags))
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.Root, "root", "", "directory patterns and commands are relative to (default: current directory)")
	pf.StringVarP(&flags.ConfigFile, "config", "c", "", "watch file (default: livewatch.yaml in root)")
	pf.StringVar(&flags.EnvFile, "env-file", "", "environment file (default: .env)")
	pf.StringVar(&flags.Env, "env", "", "environment: development or production")
	pf.StringVar(&flags.LogLevel, "log-level", "", "log level: debug, verbose, info, warn or error")

	root.Flags().BoolP("force", "f", false, "keep watching and running tasks after warnings and fatal errors")
	root.Flags().IntP("port", "p", 0, "live reload port")

	root.AddCommand(newCheckCmd(&flags))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the livewatch version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), providers.Version)
		},
	})

	return root
}

// resolveFlags copies the typed flags that were given into their string form.
func resolveFlags(cmd *cobra.Command, flags config.Flags) config.Flags {
	if cmd.Flags().Changed("force") {
		force, _ := cmd.Flags().GetBool("force")
		flags.Force = strconv.FormatBool(force)
	}
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		flags.Port = strconv.Itoa(port)
	}
	return flags
}

func runWatch(cmd *cobra.Command, flags config.Flags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	injector := di.NewContainer(flags)
	orchestrator, err := di.Bootstrap(injector)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	log := do.MustInvoke[*logger.Logger](injector)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := orchestrator.Run(gctx); err != nil {
			return &reportedError{err: err}
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			log.Info("Shutting down...")
		}
		return nil
	})

	err = g.Wait()

	// The container stops services in reverse dependency order.
	if shutdownErr := injector.Shutdown(); shutdownErr != nil {
		log.Error("Shutdown error", "error", shutdownErr)
	}

	return err
}
