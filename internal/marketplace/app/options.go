package app

import "time"

const (
	defaultOfferTTL  = 7 * 24 * time.Hour
	defaultSweepSize = 100
)

type options struct {
	now       clock
	offerTTL  time.Duration
	sweepSize int
}

// Option customises a service.
type Option func(*options)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithOfferTTL sets how long an offer stays pending before it can expire.
func WithOfferTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.offerTTL = ttl
		}
	}
}

// WithSweepSize bounds how many overdue rows one expiry pass handles.
func WithSweepSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.sweepSize = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:       systemClock,
		offerTTL:  defaultOfferTTL,
		sweepSize: defaultSweepSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
