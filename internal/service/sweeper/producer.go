package sweeper

import (
	"context"
	"time"

	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/models"
)

type Producer struct {
	interval     time.Duration
	staleAfter   time.Duration
	batchSize    int
	logger       logger.Logger
	orderService orderService
}

func (p *Producer) Produce(ctx context.Context, out chan<- models.Order) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting producer", "interval", p.interval, "stale_after", p.staleAfter, "batch_size", p.batchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Producer stopped by context")
				return

			case <-ticker.C:
				orders, err := p.stale(ctx)
				if err != nil {
					p.logger.Error("Failed to list stale orders", "error", err)
					continue
				}

				for _, order := range orders {
					select {
					case <-ctx.Done():
						p.logger.Debug("Producer stopped by context while sending orders")
						return
					case out <- order:
					}
				}
			}
		}
	}()

	return idleStopped
}

func (p *Producer) stale(ctx context.Context) ([]models.Order, error) {
	orders, err := p.orderService.ListStale(ctx, p.staleAfter, p.batchSize)
	if err != nil {
		return nil, err
	}
	if len(orders) > 0 {
		p.logger.Info("Stale orders found", "count", len(orders))
	}
	return orders, nil
}
