package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gogpu/overlay"
	"github.com/gogpu/overlay/internal/config"
	"github.com/spf13/cobra"
)

// exitCode is the code requested through /exit.
var exitCode int

type flags struct {
	configFile string
	display    uint64
	window     uint64
}

func newRootCmd(version, commit string) *cobra.Command {
	var f flags

	rootCmd := &cobra.Command{
		Use:           "overlay",
		Short:         "GPU-composited overlay shell with a WebSocket command bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, f, version, false)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&f.configFile, "config", "", "config file (default $XDG_CONFIG_HOME/overlay/config.yaml)")
	pf.String("address", "", "bridge listen address")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the render loop and the command bridge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, f, version, false)
		},
	}
	serveCmd.Flags().Uint64Var(&f.display, "display", 0, "native display handle")
	serveCmd.Flags().Uint64Var(&f.window, "window", 0, "native window handle; 0 renders offscreen")
	serveCmd.Flags().Bool("software", false, "allow the CPU adapter")
	serveCmd.Flags().Bool("readback", true, "copy frames back to host memory")
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())

	bridgeCmd := &cobra.Command{
		Use:   "bridge",
		Short: "Run only the command bridge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, f, version, true)
		},
	}

	routesCmd := &cobra.Command{
		Use:   "routes",
		Short: "List the command bridge routes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt := overlay.New(nil, overlay.WithoutRender())
			for _, route := range rt.Router().Routes() {
				fmt.Fprintln(cmd.OutOrStdout(), route)
			}
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "overlay %s\ncommit: %s\n", version, commit)
		},
	}

	rootCmd.AddCommand(serveCmd, bridgeCmd, routesCmd, versionCmd)
	return rootCmd
}

// loadConfig reads the configuration and applies command-line overrides.
func loadConfig(cmd *cobra.Command, f flags) (*config.Manager, *config.Config, error) {
	mgr, err := config.NewManager(f.configFile)
	if err != nil {
		return nil, nil, err
	}

	v := mgr.Viper()
	bind := map[string]string{
		"bridge.address":        "address",
		"logging.level":         "log-level",
		"logging.format":        "log-format",
		"render.allow_software": "software",
		"render.readback":       "readback",
	}
	for key, name := range bind {
		// Only flags set explicitly override the file.
		if fl := cmd.Flags().Lookup(name); fl != nil && fl.Changed {
			if err := v.BindPFlag(key, fl); err != nil {
				return nil, nil, fmt.Errorf("failed to bind --%s: %w", name, err)
			}
		}
	}

	if err := mgr.Load(); err != nil {
		return nil, nil, err
	}
	return mgr, mgr.Get(), nil
}

func newLogger(w io.Writer, cfg config.LoggingConfig, level *slog.LevelVar) *slog.Logger {
	level.Set(cfg.SlogLevel())
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func serve(cmd *cobra.Command, f flags, version string, bridgeOnly bool) error {
	mgr, cfg, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}
	if cfg.App.Version == config.DefaultConfig().App.Version {
		cfg.App.Version = version
	}

	var level slog.LevelVar
	logger := newLogger(cmd.ErrOrStderr(), cfg.Logging, &level)
	slog.SetDefault(logger)
	overlay.SetLogger(logger)
	if used := mgr.ConfigFileUsed(); used != "" {
		logger.Info("overlay: config loaded", "file", used)
	}

	opts := []overlay.Option{
		overlay.WithLevelVar(&level),
		overlay.WithWindowHandle(overlay.WindowHandle{
			Display: uintptr(f.display),
			Window:  uintptr(f.window),
		}),
	}
	if mgr.ConfigFileUsed() != "" {
		opts = append(opts, overlay.WithConfigManager(mgr))
	}
	if bridgeOnly {
		opts = append(opts, overlay.WithoutRender())
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := overlay.New(cfg, opts...)
	if err := rt.Run(ctx); err != nil {
		return err
	}
	exitCode = rt.ExitCode()
	return nil
}
