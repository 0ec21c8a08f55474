package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/veloswap/market/internal/marketplace/ports"
	"github.com/veloswap/market/internal/result"
)

// failure aborts a unit of work with a domain outcome rather than an
// unexpected error. Rule checks return it before any write is made.
type failure struct {
	kind     result.Kind
	messages []string
}

func (f *failure) Error() string {
	return fmt.Sprintf("%s: %s", f.kind, strings.Join(f.messages, "; "))
}

func fail(kind result.Kind, messages ...string) error {
	return &failure{kind: kind, messages: messages}
}

func notFound(what string) error {
	return fail(result.KindNotFound, what+" not found")
}

func forbidden(message string) error {
	return fail(result.KindForbidden, message)
}

func unprocessable(messages ...string) error {
	return fail(result.KindUnprocessable, messages...)
}

func isDuplicate(err error) bool {
	return errors.Is(err, ports.ErrDuplicatePendingOffer)
}

// lookup converts ports.ErrNotFound into a not-found failure.
func lookup(err error, what string) error {
	if errors.Is(err, ports.ErrNotFound) {
		return notFound(what)
	}
	return err
}

type clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// execute runs op and turns its outcome into a Result. Failures pass through
// with their kind; anything else is logged with a stack and reported as internal.
func execute[T any](ctx context.Context, logger *slog.Logger, op string, fn func() (T, error), attrs ...any) (res result.Result[T]) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorContext(ctx, op+" panicked",
				append(attrs, "panic", rec, "stack", string(debug.Stack()))...,
			)
			res = result.Internal[T]()
		}
	}()

	value, err := fn()
	if err == nil {
		return result.OK(value)
	}

	var f *failure
	if errors.As(err, &f) {
		return result.Fail[T](f.kind, f.messages...)
	}

	logger.ErrorContext(ctx, op+" failed",
		append(attrs, "error", err, "stack", string(debug.Stack()))...,
	)
	return result.Internal[T]()
}

func publish(ctx context.Context, bus ports.EventBus, logger *slog.Logger, events ...ports.Event) {
	for _, event := range events {
		if err := bus.Publish(ctx, event); err != nil {
			logger.WarnContext(ctx, "failed to publish event",
				"event_type", event.Type,
				"listing_id", event.ListingID,
				"error", err,
			)
		}
	}
}
