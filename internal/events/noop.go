package events

import (
	"context"
	"log/slog"

	"github.com/veloswap/market/internal/marketplace/ports"
)

// NoopBus logs events without sending them anywhere. Useful for local dev
// and tests where no NATS server runs.
type NoopBus struct {
	logger *slog.Logger
}

// NewNoopBus returns a new no-op event publisher.
func NewNoopBus(logger *slog.Logger) *NoopBus {
	return &NoopBus{logger: logger}
}

func (n *NoopBus) Publish(ctx context.Context, event ports.Event) error {
	n.logger.DebugContext(ctx, "event::"+event.Type,
		"listing_id", event.ListingID,
		"offer_id", event.OfferID,
		"order_id", event.OrderID,
	)
	return nil
}
