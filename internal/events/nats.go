package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/veloswap/market/internal/marketplace/ports"
	"github.com/veloswap/market/internal/telemetry"
)

const (
	// DefaultSubjectPrefix namespaces marketplace subjects, e.g. marketplace.offer.accepted.
	DefaultSubjectPrefix = "marketplace"

	headerEventType = "Event-Type"
	headerTraceID   = "Trace-Id"
)

type msgPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

// NATSBus publishes marketplace events as JSON to NATS core subjects for the
// notification subsystem.
type NATSBus struct {
	conn   msgPublisher
	close  func()
	prefix string
}

// NewNATSBus connects to url and returns a bus publishing under prefix.
func NewNATSBus(url, prefix string) (*NATSBus, error) {
	conn, err := nats.Connect(url,
		nats.Name("veloswap-market"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSBus{conn: conn, close: conn.Close, prefix: prefix}, nil
}

// Subject returns the subject an event of eventType is published on.
func (b *NATSBus) Subject(eventType string) string {
	if b.prefix == "" {
		return eventType
	}
	return b.prefix + "." + eventType
}

func (b *NATSBus) Publish(ctx context.Context, event ports.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	msg := nats.NewMsg(b.Subject(event.Type))
	msg.Data = data
	msg.Header.Set(headerEventType, event.Type)
	if traceID := telemetry.TraceID(ctx); traceID != "" {
		msg.Header.Set(headerTraceID, traceID)
	}

	if err := b.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

func (b *NATSBus) Close() {
	if b.close != nil {
		b.close()
	}
}
