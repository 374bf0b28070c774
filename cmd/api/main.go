package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pagekit/api/internal/config"
	"pagekit/api/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	ctx := logging.WithContext(context.Background(), logger)

	rootCmd := &cobra.Command{
		Use:   "pagekit",
		Short: "Page-builder layout abilities over HTTP",
		Long: `pagekit serves abilities that read and rewrite page-builder layouts
stored for posts: whole-layout updates, guarded find/replace, single element
replacement, page settings, template listing and CSS cache invalidation.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}

	rootCmd.AddCommand(
		newServeCmd(cfg),
		newMigrateCmd(cfg),
		newAbilitiesCmd(cfg),
		newRunCmd(cfg),
		newTokenCmd(cfg),
		newSeedCmd(cfg),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
