package engine

import (
	"time"

	"go.uber.org/zap"
)

const (
	DefaultSettleDelay     = time.Second
	DefaultMutationSettle  = 500 * time.Millisecond
	DefaultRecheckInterval = 500 * time.Millisecond
	DefaultRecheckAttempts = 20
)

// Option configures a Runner
type Option func(*Runner)

// WithDelegate sets the progress receiver
func WithDelegate(d Delegate) Option {
	return func(r *Runner) {
		if d != nil {
			r.delegate = d
		}
	}
}

// WithLogger sets the structured logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithSettleDelay sets the pause before every leaf step after the first
func WithSettleDelay(d time.Duration) Option {
	return func(r *Runner) { r.settle = d }
}

// WithMutationSettle sets the pause between an element appearing and the retry
func WithMutationSettle(d time.Duration) Option {
	return func(r *Runner) { r.mutationSettle = d }
}

// WithRecheck bounds the wait for an image element's source to be populated
func WithRecheck(interval time.Duration, attempts int) Option {
	return func(r *Runner) {
		r.recheckInterval = interval
		r.recheckAttempts = attempts
	}
}

// WithImageFetcher replaces the fetcher used to classify extracted URLs
func WithImageFetcher(f ImageFetcher) Option {
	return func(r *Runner) {
		if f != nil {
			r.fetcher = f
		}
	}
}
