// Command udl runs the data layer server: it loads the project config,
// wires the runtime, loads the registered source plugins, and serves
// the sync, webhook, and WebSocket endpoints until interrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/udl-dev/udl/internal/configfile"
	"github.com/udl-dev/udl/internal/runtime"
	"github.com/udl-dev/udl/internal/telemetry"
	"github.com/udl-dev/udl/internal/version"
)

var (
	projectDir string
	hostFlag   string
	portFlag   int
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "udl",
	Short:         "Run the universal data layer server",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("udl version %s\n", version.String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "D", ".", "Project directory holding the config file")
	rootCmd.Flags().StringVar(&hostFlag, "host", "", "Listen host (overrides config)")
	rootCmd.Flags().IntVar(&portFlag, "port", 0, "Listen port (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(versionCmd)
}

func run() error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// Signal-aware context for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := configfile.Load(projectDir)
	if err != nil {
		return err
	}
	if hostFlag != "" {
		cfg.Host = hostFlag
	}
	if portFlag != 0 {
		cfg.Port = portFlag
	}

	pluginNames := make([]string, 0, len(cfg.Plugins))
	for _, p := range cfg.Plugins {
		pluginNames = append(pluginNames, p.Name)
	}
	if err := telemetry.Init(ctx, telemetry.Options{
		ServiceName: "udl",
		Version:     version.Version,
		Plugins:     pluginNames,
	}); err != nil {
		slog.Warn("telemetry init failed", "error", err)
	}
	defer func() {
		shutdownCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
		defer c()
		telemetry.Shutdown(shutdownCtx)
	}()

	rt, err := runtime.New(cfg, runtime.Options{})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = rt.Close(closeCtx)
	}()

	if err := rt.LoadPlugins(projectDir); err != nil {
		return fmt.Errorf("loading plugins: %w", err)
	}
	slog.Info("data layer ready",
		"addr", cfg.Addr(),
		"nodes", rt.Store.Size(),
		"types", len(rt.Store.GetTypes()))

	return rt.Server.Start(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
