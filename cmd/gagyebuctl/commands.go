package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gagyebu/internal/backend"
	"gagyebu/internal/cli"
	"gagyebu/internal/core"
	applog "gagyebu/internal/log"
	"gagyebu/internal/metrics"
	"gagyebu/internal/repository"
	"gagyebu/internal/services"
	"gagyebu/internal/storage"
	"gagyebu/internal/worker"
)

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQLite migrations and print the schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.DataBackend != string(backend.SQLiteBackend) {
				return fmt.Errorf("migrate needs the sqlite backend, got %q", a.cfg.DataBackend)
			}
			if err := storage.RunMigrations(a.cfg.SQLiteDBPath); err != nil {
				return err
			}
			version, dirty, err := storage.MigrationVersion(a.cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
}

func (a *app) summaryCmd() *cobra.Command {
	var user, month string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print a household's monthly summary as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := monthFlag(month)
			if err != nil {
				return err
			}
			return a.withStack(cmd.Context(), func(ctx context.Context, s *cli.Stack) error {
				u, err := lookupUser(ctx, s.Backend.Repo, user)
				if err != nil {
					return err
				}
				summary, err := s.Household.Summary(ctx, u, m)
				if err != nil {
					return err
				}
				return printJSON(cmd, summary)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id or account email")
	cmd.Flags().StringVar(&month, "month", "", "month as YYYY-MM (default current)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (a *app) snapshotCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save today's investment snapshot for one user, or for every broker connection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStack(cmd.Context(), func(ctx context.Context, s *cli.Stack) error {
				if user == "" {
					saved, err := s.Brokers.SnapshotAll(ctx)
					fmt.Fprintf(cmd.OutOrStdout(), "saved %d snapshots\n", saved)
					return err
				}
				u, err := lookupUser(ctx, s.Backend.Repo, user)
				if err != nil {
					return err
				}
				if _, err := s.Brokers.Refresh(ctx, u.ID); err != nil && !errors.Is(err, services.ErrNotConnected) {
					a.logger.WarnContext(ctx, "Broker refresh failed, snapshot uses local values", applog.FieldError, err.Error())
				}
				snap, err := s.Brokers.SaveSnapshot(ctx, u, services.TriggerManual)
				if err != nil {
					return err
				}
				return printJSON(cmd, snap)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id or account email (default every connection)")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Rewrite every household's summary row for a month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := monthFlag(month)
			if err != nil {
				return err
			}
			return a.withStack(cmd.Context(), func(ctx context.Context, s *cli.Stack) error {
				bcfg, err := backend.FromAppConfig(a.cfg)
				if err != nil {
					return err
				}
				writer, err := backend.NewFactory(a.logger, s.Metrics).CreateSummaryWriter(ctx, bcfg)
				if err != nil {
					return err
				}
				exporter := worker.NewExporter(s.Backend.Repo.Users(), s.Household, writer, s.Metrics, a.logger, worker.ExporterConfig{})
				n, err := exporter.ExportMonth(ctx, m)
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d rows for %s\n", n, m)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month as YYYY-MM (default current)")
	return cmd
}

func (a *app) withStack(ctx context.Context, fn func(context.Context, *cli.Stack) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := cli.BuildStack(ctx, a.cfg, a.logger, metrics.New())
	if err != nil {
		return err
	}
	defer s.Close(ctx)
	return fn(ctx, s)
}

func monthFlag(v string) (core.Month, error) {
	if strings.TrimSpace(v) == "" {
		return core.MonthOf(time.Now()), nil
	}
	return core.ParseMonth(v)
}

// lookupUser accepts a user id or the email of the user's account.
func lookupUser(ctx context.Context, repo repository.Repository, ref string) (core.User, error) {
	if !strings.Contains(ref, "@") {
		return repo.Users().Get(ctx, ref)
	}
	acc, err := repo.Accounts().GetByEmail(ctx, core.NormalizeEmail(ref))
	if err != nil {
		return core.User{}, fmt.Errorf("account %s: %w", ref, err)
	}
	return repo.Users().GetByAuthID(ctx, acc.ID)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

