// Package cli holds the operator commands behind meridianctl.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/meridian-hms/meridian/internal/app"
	"github.com/meridian-hms/meridian/internal/auth"
	"github.com/meridian-hms/meridian/internal/pharmacy/intake"
	"github.com/meridian-hms/meridian/internal/pharmacy/stock"
	"github.com/meridian-hms/meridian/internal/platform/db"
	"github.com/meridian-hms/meridian/internal/shared"
	"github.com/meridian-hms/meridian/jobs"
	"github.com/meridian-hms/meridian/migrations"
)

// NewRootCommand builds the meridianctl command tree. Configuration is loaded
// lazily so help and token commands work without a database.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "meridianctl",
		Short:         "Operator tooling for the Meridian pharmacy and finance services",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(migrateCmd(), jobsCmd(), stockCmd(), tokenCmd())
	return root
}

func loadConfig() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, app.NewLogger(cfg), nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	withDB := func(fn func(ctx context.Context, db *sql.DB) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			sqlDB, err := migrations.Open(cfg.PGDSN)
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			return fn(cmd.Context(), sqlDB)
		}
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: withDB(func(ctx context.Context, sqlDB *sql.DB) error {
			applied, err := migrations.Up(ctx, sqlDB)
			if err != nil {
				return err
			}
			fmt.Printf("applied %d migration(s) %v\n", len(applied), applied)
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: withDB(func(ctx context.Context, sqlDB *sql.DB) error {
			states, err := migrations.List(ctx, sqlDB)
			if err != nil {
				return err
			}
			for _, s := range states {
				state := "pending"
				if s.Applied {
					state = "applied"
				}
				fmt.Printf("%05d  %-8s %s\n", s.Version, state, s.Path)
			}
			return nil
		}),
	})
	return cmd
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:       "trigger <name>",
		Short:     "Enqueue a job now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobs.TaskNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := jobs.NewClient(cfg.AsynqRedis())
			if err != nil {
				return err
			}
			defer client.Close()
			info, err := NewJobsCLI(client, nil, cfg.IdempotencyRetention).Trigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "inspect",
		Short: "Summarise the default queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			inspector := asynq.NewInspector(cfg.AsynqRedis())
			defer inspector.Close()
			return NewJobsCLI(nil, asynqInspector{inspector: inspector}, 0).PrintQueue(cmd.OutOrStdout())
		},
	})
	return cmd
}

func stockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Pharmacy stock operations",
	}
	var opts ImportOptions
	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Post a vendor invoice (csv, txt or xlsx) as STOCK_IN entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			policy, err := cfg.UnderflowPolicy()
			if err != nil {
				return err
			}
			pool, err := db.New(cmd.Context(), cfg.PGDSN)
			if err != nil {
				return err
			}
			defer pool.Close()
			service := stock.NewService(stock.NewRepository(pool), stock.NewLedger(policy, logger), shared.NewAuditLogger(pool), nil, logger)
			opts.Path = args[0]
			opts.Stdout = cmd.OutOrStdout()
			opts.Stderr = cmd.ErrOrStderr()
			if code := ImportCommand(cmd.Context(), intake.NewImporter(service, logger), opts); code != 0 {
				return fmt.Errorf("stock import exited with code %d", code)
			}
			return nil
		},
	}
	importCmd.Flags().Int64Var(&opts.ActorID, "actor", 0, "User id recorded as creator of the entries")
	importCmd.Flags().StringVar(&opts.Reference, "reference", "", "Vendor invoice reference (defaults to the file name)")
	importCmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Print the report as JSON")
	cmd.AddCommand(importCmd)
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Bearer token helpers for local environments",
	}
	var (
		userID int64
		role   string
		ttl    time.Duration
		secret string
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign a bearer token for a user and role",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				cfg, _, err := loadConfig()
				if err != nil {
					return err
				}
				secret = cfg.JWTSecret
			}
			token, err := auth.NewVerifier(secret).Issue(shared.Actor{ID: userID, Role: role}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().Int64Var(&userID, "user", 0, "User id")
	issue.Flags().StringVar(&role, "role", "", "Role: doctor, pharmacist, finance or admin")
	issue.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	issue.Flags().StringVar(&secret, "secret", "", "Signing secret (defaults to AUTH_JWT_SECRET)")
	cmd.AddCommand(issue)
	return cmd
}
