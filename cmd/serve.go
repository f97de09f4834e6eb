package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"research-relay/internal/config"
	"research-relay/internal/metrics"
	"research-relay/internal/provider"
	providerfactory "research-relay/internal/provider/factory"
	"research-relay/internal/relay"
	"research-relay/internal/server"
)

type serveOptions struct {
	port     int
	logLevel string
	watch    bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP relay",
		Long: `Start the HTTP relay.

Examples:
  # Start with ./config.env
  research-relay serve

  # Custom config and port
  research-relay serve --config /etc/relay/config.env --port 8080

  # Pick up API key rotations written to the config file
  research-relay serve --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root.configPath, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "override server port")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "reload the API key when the config file changes")
	return cmd
}

func runServe(ctx context.Context, cfgPath string, opts *serveOptions) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if opts.port != 0 {
		if err := validPort(opts.port); err != nil {
			return err
		}
		cfg.Port = opts.port
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	setupLogger(cfg.LogLevel)
	if cfg.IsDemo() {
		slog.Warn("running in demo mode, answers are canned and no upstream calls are made")
	}

	collector := metrics.NewCollector()
	p, err := providerfactory.New(cfg, collector)
	if err != nil {
		return err
	}

	if cfg.TokenRefreshSchedule != "" {
		stop, err := provider.ScheduleTokenRefresh(ctx, p, cfg.TokenRefreshSchedule)
		if err != nil {
			return err
		}
		defer stop()
	}

	rl, err := relay.New(p)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, rl, collector)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if opts.watch {
		rotator, ok := p.(provider.KeyRotator)
		if !ok {
			slog.Warn("provider does not support key rotation, --watch ignored", "provider", p.Name())
		} else {
			g.Go(func() error {
				return config.Watch(gctx, cfgPath, rotateKey(rotator, cfg))
			})
		}
	}
	return g.Wait()
}

// rotateKey applies API key changes from reloaded configs. Other settings are
// fixed for the lifetime of the process.
func rotateKey(rotator provider.KeyRotator, current config.Config) func(config.Config) {
	return func(next config.Config) {
		if next.IsDemo() {
			slog.Warn("ignoring switch to demo mode, restart to apply")
			return
		}
		if next.APIKey != current.APIKey {
			rotator.SetAPIKey(next.APIKey)
			current.APIKey = next.APIKey
		}
		if next.Port != current.Port || next.DeploymentID != current.DeploymentID ||
			next.MLURL != current.MLURL || next.IAMURL != current.IAMURL {
			slog.Warn("config change needs a restart to take effect; only the API key was applied")
		}
	}
}
