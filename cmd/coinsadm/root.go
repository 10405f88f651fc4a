package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/nkiryanov/coinledger/internal/db"
	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/repository/postgres"
	"github.com/nkiryanov/coinledger/internal/service/audit"
	"github.com/nkiryanov/coinledger/internal/service/checkout"
	"github.com/nkiryanov/coinledger/internal/service/ledger"
)

var validFormats = []string{"text", "json"}

// Global flags of every command
type rootOptions struct {
	Database  string
	SecretKey string
	LogLevel  string
	Format    string
}

func NewRootCommand(getenv func(string) string) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "coinsadm",
		Short:         "Coin ledger operator tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Database, "database", "d", getenv("DATABASE_URI"), "Database connection string")
	cmd.PersistentFlags().StringVarP(&opts.SecretKey, "secret-key", "s", getenv("SECRET_KEY"), "Secret key access tokens are signed with")
	cmd.PersistentFlags().StringVarP(&opts.LogLevel, "log-level", "l", logger.LevelWarn, "Logging level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "Output format (text|json)")

	cmd.AddCommand(
		newAdjustCommand(opts),
		newBalanceCommand(opts),
		newHistoryCommand(opts),
		newReconcileCommand(opts),
		newSweepCommand(opts),
		newTokenCommand(opts),
		newSecretCommand(opts),
	)

	return cmd
}

type services struct {
	pool     *pgxpool.Pool
	ledger   *ledger.LedgerService
	checkout *checkout.CheckoutService
	logger   logger.Logger
}

func (s *services) Close() {
	s.pool.Close()
}

// Connect to database and build services; schema is migrated by the server
func (o *rootOptions) connect(ctx context.Context) (*services, error) {
	if o.Database == "" {
		return nil, fmt.Errorf("database connection string is required, set --database or DATABASE_URI")
	}

	l, err := logger.NewTextLogger(o.LogLevel)
	if err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, o.Database)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	storage := postgres.NewStorage(pool)
	auditor := audit.NewService(audit.LogSink(l))
	ledgerService := ledger.NewService(storage, auditor, l)

	return &services{
		pool:     pool,
		ledger:   ledgerService,
		checkout: checkout.NewService(storage, ledgerService, auditor, l),
		logger:   l,
	}, nil
}

// Write v as json or with text func depending on --format
func (o *rootOptions) print(w io.Writer, v any, text func(w io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func parseAccountID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--account must be account uuid, got %q", s)
	}
	return id, nil
}
