package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"research-relay/internal/config"
	"research-relay/internal/provider"
	providerfactory "research-relay/internal/provider/factory"
)

func newTokenCmd(root *rootOptions) *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Exchange the API key for a session token",
		Long: `Exchange the configured API key for an IAM session token and print it.

Only a preview is printed unless --show is given. Useful for checking
credentials before starting the relay.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := fetchToken(cmd.Context(), root.configPath)
			if err != nil {
				return err
			}
			if !show {
				token = provider.Preview(token)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().BoolVar(&show, "show", false, "print the full token")
	return cmd
}

func fetchToken(ctx context.Context, cfgPath string) (string, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return "", err
	}
	setupLogger(cfg.LogLevel)

	p, err := providerfactory.New(cfg, nil)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	token, err := p.FetchToken(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	return token, nil
}
