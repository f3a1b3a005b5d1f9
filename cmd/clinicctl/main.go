package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/migrations"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "clinicctl",
		Short:        "Operator tooling for the clinic scheduling service",
		SilenceUsage: true,
	}

	root.AddCommand(migrateCmd())
	root.AddCommand(tokenCmd())
	return root
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			migrator, closeDB, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			migrator, closeDB, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func openMigrator(ctx context.Context) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := db.ConnectPostgres(connectCtx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrations.FS), pool.Close, nil
}

// tokenCmd mints bearer tokens for operators and integration setups. It only
// needs the signing key, not a database.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API bearer tokens",
	}

	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetInt64("user-id")
			role, _ := cmd.Flags().GetString("role")
			providerID, _ := cmd.Flags().GetInt64("provider-id")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			key, _ := cmd.Flags().GetString("signing-key")

			if key == "" {
				_ = godotenv.Load()
				key = os.Getenv("JWT_SIGNING_KEY")
			}
			if key == "" {
				return errors.New("signing key is required (--signing-key or JWT_SIGNING_KEY)")
			}

			actor := auth.Actor{UserID: userID, Role: auth.Role(role)}
			if providerID > 0 {
				actor.ProviderID = &providerID
			}

			token, err := auth.NewTokenService(key, auth.TokenIssuer, ttl).Issue(actor, time.Now())
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issueCmd.Flags().Int64("user-id", 0, "Numeric id of the user the token represents")
	issueCmd.Flags().String("role", string(auth.RoleStaff), "Role claim: admin or staff")
	issueCmd.Flags().Int64("provider-id", 0, "Provider agenda owned by the user, if any")
	issueCmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	issueCmd.Flags().String("signing-key", "", "HS256 signing key (defaults to JWT_SIGNING_KEY)")
	_ = issueCmd.MarkFlagRequired("user-id")
	cmd.AddCommand(issueCmd)

	return cmd
}
