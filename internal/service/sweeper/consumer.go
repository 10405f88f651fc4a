package sweeper

import (
	"context"
	"sync"

	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/models"
)

type Consumer struct {
	countWorkers int
	orderService orderService
	logger       logger.Logger
}

func (c *Consumer) Consume(ctx context.Context, in <-chan models.Order) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for range c.countWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx, in)
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("Consumer stopped")
	}()

	return idleStopped
}

func (c *Consumer) worker(ctx context.Context, in <-chan models.Order) {
	for {
		select {
		case <-ctx.Done():
			return

		case order, ok := <-in:
			if !ok {
				c.logger.Debug("Consumer worker stopped, input channel closed")
				return
			}
			_, _ = c.recover(ctx, order)
		}
	}
}

func (c *Consumer) recover(ctx context.Context, order models.Order) (string, error) {
	log := c.logger.With("order_id", order.ID, "stage", order.Stage)

	action, err := c.orderService.Recover(ctx, order)
	if err != nil {
		log.Error("Failed to recover order", "error", err)
		return action, err
	}

	log.Info("Order recovered", "action", action)
	return action, nil
}
