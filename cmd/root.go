package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "config.env"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "research-relay",
		Short: "Relay research queries to an IBM watsonx.ai deployment",
		Long: `research-relay forwards research queries to a hosted watsonx.ai deployment.

It exchanges the configured API key for an IAM session token, injects it as a
bearer token, refreshes it once when the deployment answers 401 and returns the
upstream JSON untouched.

Settings come from a KEY=VALUE env file (or YAML when the path ends in .yaml),
overridden by process environment variables of the same name.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "config file path")

	root.AddCommand(
		newServeCmd(opts),
		newTokenCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// setupLogger installs a JSON slog handler at level as the process default.
func setupLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func validPort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port override %d must be a valid TCP port", port)
	}
	return nil
}
