package app

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically expires overdue offers and unpaid orders.
type Sweeper struct {
	negotiation Negotiation
	fulfillment Fulfillment
	interval    time.Duration
	logger      *slog.Logger
}

func NewSweeper(negotiation Negotiation, fulfillment Fulfillment, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		negotiation: negotiation,
		fulfillment: fulfillment,
		interval:    interval,
		logger:      logger,
	}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce runs both expiry passes and returns how many offers and orders
// were expired. Failures are logged by the services.
func (s *Sweeper) SweepOnce(ctx context.Context) (offers, orders int) {
	if res := s.negotiation.ExpireOffers(ctx); res.Success {
		offers = res.Value()
	}
	if res := s.fulfillment.ExpireUnpaidOrders(ctx); res.Success {
		orders = res.Value()
	}
	if offers > 0 || orders > 0 {
		s.logger.InfoContext(ctx, "expired overdue items",
			"offers", offers,
			"orders", orders,
		)
	}
	return offers, orders
}
