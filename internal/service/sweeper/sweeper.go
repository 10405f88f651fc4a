// Package sweeper drives checkout orders stuck in a non terminal stage to a terminal one.
package sweeper

import (
	"context"
	"time"

	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/models"
)

const (
	DefaultInterval   = 30 * time.Second
	DefaultStaleAfter = 5 * time.Minute

	defaultCountWorkers = 4
	defaultBatchSize    = 100
)

type orderService interface {
	ListStale(ctx context.Context, staleAfter time.Duration, limit int) ([]models.Order, error)
	Recover(ctx context.Context, order models.Order) (action string, err error)
}

type Config struct {
	Interval   time.Duration
	StaleAfter time.Duration
	Workers    int
	BatchSize  int
}

type Sweeper struct {
	consumer *Consumer
	producer *Producer
	logger   logger.Logger
}

func New(cfg Config, orderService orderService, l logger.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultCountWorkers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	l = l.WithGroup("sweeper")

	return &Sweeper{
		consumer: &Consumer{
			countWorkers: cfg.Workers,
			orderService: orderService,
			logger:       l,
		},
		producer: &Producer{
			interval:     cfg.Interval,
			staleAfter:   cfg.StaleAfter,
			batchSize:    cfg.BatchSize,
			orderService: orderService,
			logger:       l,
		},
		logger: l,
	}
}

// Sweep in background until ctx is done
// Returned channel is closed when every worker stopped
func (s *Sweeper) Process(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	orderChan := make(chan models.Order)

	producerStopped := s.producer.Produce(ctx, orderChan)
	consumerStopped := s.consumer.Consume(ctx, orderChan)

	go func() {
		defer close(idleStopped)
		defer close(orderChan)
		<-producerStopped
		<-consumerStopped
		s.logger.Debug("Sweeper stopped")
	}()

	return idleStopped
}

// Result of a single sweep: count of orders per action taken
type Result map[string]int

// SweepOnce recovers one batch of stale orders in the caller goroutine
// Orders failed to recover are counted under "error"
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	orders, err := s.producer.stale(ctx)
	if err != nil {
		return nil, err
	}

	res := Result{}
	for _, order := range orders {
		action, err := s.consumer.recover(ctx, order)
		if err != nil {
			res["error"]++
			continue
		}
		res[action]++
	}
	return res, nil
}
