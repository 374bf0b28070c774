package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"pagekit/api/internal/app"
	"pagekit/api/internal/auth"
	"pagekit/api/internal/config"
	"pagekit/api/internal/logging"
	"pagekit/api/internal/rbac"
	"pagekit/api/internal/store"
)

func newMigrateCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := store.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			defer db.Close()
			if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
				return fmt.Errorf("migrations failed: %w", err)
			}
			logging.FromContext(ctx).Info().Str("dir", cfg.MigrationsDir).Msg("migrations applied")
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every applied migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				db, err := store.Open(ctx, cfg.DatabaseURL)
				if err != nil {
					return fmt.Errorf("database connection failed: %w", err)
				}
				defer db.Close()
				if err := store.RollbackMigrations(ctx, db, cfg.MigrationsDir); err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				logging.FromContext(ctx).Info().Msg("migrations rolled back")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations that have not been applied",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				db, err := store.Open(ctx, cfg.DatabaseURL)
				if err != nil {
					return fmt.Errorf("database connection failed: %w", err)
				}
				defer db.Close()
				pending, err := store.PendingMigrations(ctx, db, cfg.MigrationsDir)
				if err != nil {
					return fmt.Errorf("migration status: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"pending": pending, "total": len(pending)})
			},
		},
	)
	return cmd
}

// newAbilitiesCmd prints the registry. It needs no backends.
func newAbilitiesCmd(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "abilities",
		Short: "Print the registered abilities and their input schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			abilities := app.ListAbilities(cfg)
			return printJSON(cmd.OutOrStdout(), map[string]any{"abilities": abilities, "total": len(abilities)})
		},
	}
}

func newRunCmd(cfg config.Config) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:     "run <ability>",
		Short:   "Execute one ability as the local administrator",
		Example: `  pagekit run elementor/get-data --input '{"id":42,"format":"array"}'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if input != "" && !json.Valid([]byte(input)) {
				return fmt.Errorf("--input must be a JSON object")
			}
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			caller := app.Caller{UserID: "cli", Name: "local", Role: rbac.RoleAdmin}
			result := rt.service.Execute(ctx, args[0], caller, json.RawMessage(input))
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if result["success"] != true {
				return fmt.Errorf("ability %s failed: %v", args[0], result["message"])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "ability input as a JSON object")
	return cmd
}

func newTokenCmd(cfg config.Config) *cobra.Command {
	var (
		sub  string
		name string
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			claims := auth.NewClaims(sub, name, string(rbac.Normalize(role)), ttl)
			token, err := auth.IssueToken([]byte(cfg.TokenSecret), claims)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&sub, "sub", "1", "user id")
	cmd.Flags().StringVar(&name, "name", "admin", "display name")
	cmd.Flags().StringVar(&role, "role", string(rbac.RoleAdmin), "viewer, contributor, editor or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func printJSON(w io.Writer, payload any) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
