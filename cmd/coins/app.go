package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkiryanov/coinledger/internal/db"
	"github.com/nkiryanov/coinledger/internal/handlers"
	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/repository/postgres"
	"github.com/nkiryanov/coinledger/internal/service/audit"
	"github.com/nkiryanov/coinledger/internal/service/checkout"
	"github.com/nkiryanov/coinledger/internal/service/identity"
	"github.com/nkiryanov/coinledger/internal/service/ledger"
	"github.com/nkiryanov/coinledger/internal/service/referral"
	"github.com/nkiryanov/coinledger/internal/service/reward"
	"github.com/nkiryanov/coinledger/internal/service/sweeper"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	sweeper *sweeper.Sweeper
	pool    *pgxpool.Pool
	logger  logger.Logger
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	verifier, err := identity.New(identity.Config{SecretKey: c.SecretKey})
	if err != nil {
		return nil, fmt.Errorf("error while creating token verifier. Err: %w", err)
	}

	policies := reward.DefaultPolicies()
	if c.RewardPolicyFile != "" {
		if policies, err = reward.LoadPolicies(c.RewardPolicyFile); err != nil {
			return nil, err
		}
	}
	location, err := time.LoadLocation(c.RewardTimezone)
	if err != nil {
		return nil, fmt.Errorf("error while loading reward timezone. Err: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	storage := postgres.NewStorage(pool)

	auditor := audit.NewService(audit.LogSink(l))
	ledgerService := ledger.NewService(storage, auditor, l)
	rewardService := reward.NewService(reward.Config{Policies: policies, Location: location}, storage, ledgerService, auditor, l)
	referralService := referral.NewService(referral.Config{}, storage, ledgerService, auditor, l)
	checkoutService := checkout.NewService(storage, ledgerService, auditor, l)

	mux := handlers.NewRouter(handlers.Services{
		Auth:     identity.NewAuthenticator(verifier, storage.Account()),
		Ledger:   ledgerService,
		Rewards:  rewardService,
		Referral: referralService,
		Checkout: checkoutService,
		DB:       pool,
	}, l)

	sw := sweeper.New(sweeper.Config{
		Interval:   c.SweepInterval,
		StaleAfter: c.SweepStaleAfter,
	}, checkoutService, l)

	l.Info("Reward policies loaded", "types", policies.Types(), "timezone", location.String())

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		sweeper:    sw,
		pool:       pool,
		logger:     l,
	}, nil
}

// Run starts http server and order sweeper, closes both gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.pool.Close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	sweeperStopped := s.sweeper.Process(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-sweeperStopped

	return err
}
