package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/DanielPopoola/marketplace-escrow/internal/adapters/postgres"
	"github.com/DanielPopoola/marketplace-escrow/internal/config"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/ports"
	"github.com/spf13/cobra"
)

var Version = "dev"

// store is the repository surface the subcommands use.
type store interface {
	ports.Repository
	ListAuditEntries(ctx context.Context, escrowID string) ([]*domain.EscrowAuditEntry, error)
}

// directory covers bookings, feature flags and administrator grants.
type directory interface {
	ports.BookingReader
	ports.FeatureFlagStore
	GrantAdmin(ctx context.Context, userID string) error
}

// app holds the connections shared by every subcommand.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *postgres.DB
	repo      store
	directory directory
}

func (a *app) open(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	a.cfg = cfg
	a.logger = cfg.Logger.NewLogger()

	db, err := postgres.Connect(ctx, &cfg.Database, a.logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	a.db = db
	a.repo = postgres.NewRepository(db)
	a.directory = postgres.NewDirectory(db)
	return nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "paymentctl",
		Short:         "Operate the marketplace escrow service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	rootCmd.AddCommand(flagsCmd(a))
	rootCmd.AddCommand(adminsCmd(a))
	rootCmd.AddCommand(reconcileCmd(a))
	rootCmd.AddCommand(escrowCmd(a))

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		a.close()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
