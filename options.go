package gimbal

import (
	"context"
	"time"

	"github.com/zoobzio/pipz"
)

// Request carries an update through the dispatch pipeline. The terminal
// stage performs the remote ApplySettings call and records its outcome;
// middleware stages may observe or enrich the patch before it is sent.
type Request struct {
	// Patch is the partial document being written.
	Patch Patch

	// Outcome is populated by the terminal dispatch stage. It is the zero
	// value until the remote call completes.
	Outcome Outcome
}

// dispatchID names the terminal pipeline stage.
const dispatchID = "dispatch"

// Option configures the dispatch pipeline of a Store. Pipeline options wrap
// the remote write with middleware for retry, timeout, circuit breaking,
// and other reliability patterns.
//
// Instance configuration (clock, metrics, hooks) is handled via chainable
// methods on the Store.
type Option func(pipz.Chainable[*Request]) pipz.Chainable[*Request]

// buildPipeline wraps a terminal with pipeline options.
func buildPipeline(terminal pipz.Chainable[*Request], opts []Option) pipz.Chainable[*Request] {
	pipeline := terminal
	for _, opt := range opts {
		pipeline = opt(pipeline)
	}
	return pipeline
}

// -----------------------------------------------------------------------------
// Pipeline Options - Wrapping (With*)
// -----------------------------------------------------------------------------
// These options wrap the entire dispatch, providing protection at the
// boundary between the store and its transport.

// WithRetry wraps the dispatch with retry logic.
// Failed writes are retried immediately up to maxAttempts times.
// For exponential backoff between retries, use WithBackoff instead.
func WithRetry(maxAttempts int) Option {
	return func(p pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewRetry("retry", p, maxAttempts)
	}
}

// WithBackoff wraps the dispatch with exponential backoff retry logic.
// Failed writes are retried with increasing delays: baseDelay, 2*baseDelay,
// 4*baseDelay, etc.
func WithBackoff(maxAttempts int, baseDelay time.Duration) Option {
	return func(p pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewBackoff("backoff", p, maxAttempts, baseDelay)
	}
}

// WithTimeout wraps the dispatch with a deadline. If the remote write takes
// longer than the specified duration, the operation fails as an ordinary
// transport failure and the store rolls back via refresh.
func WithTimeout(d time.Duration) Option {
	return func(p pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewTimeout("timeout", p, d)
	}
}

// WithFallback wraps the dispatch with fallback processors.
// If the primary dispatch fails, each fallback is tried in order until one
// succeeds.
func WithFallback(fallbacks ...pipz.Chainable[*Request]) Option {
	return func(p pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		all := append([]pipz.Chainable[*Request]{p}, fallbacks...)
		return pipz.NewFallback("fallback", all...)
	}
}

// WithCircuitBreaker wraps the dispatch with circuit breaker protection.
// After 'failures' consecutive failures, the circuit opens and rejects
// further writes until 'recovery' time has passed. A rejected write rolls
// back like any other transport failure.
func WithCircuitBreaker(failures int, recovery time.Duration) Option {
	return func(p pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewCircuitBreaker("circuit-breaker", p, failures, recovery)
	}
}

// WithMiddleware wraps the dispatch with a sequence of processors.
// Processors execute in order, with the remote write last.
func WithMiddleware(processors ...pipz.Chainable[*Request]) Option {
	return func(p pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		all := make([]pipz.Chainable[*Request], 0, len(processors)+1)
		all = append(all, processors...)
		all = append(all, p)
		return pipz.NewSequence("middleware", all...)
	}
}

// -----------------------------------------------------------------------------
// Middleware Processors - Adapters (Use*)
// -----------------------------------------------------------------------------
// These create processors for use inside WithMiddleware.

// UseEffect creates a processor that performs a side effect, such as
// logging outgoing patches. The request passes through unchanged.
func UseEffect(name string, fn func(context.Context, *Request) error) pipz.Chainable[*Request] {
	return pipz.Effect(pipz.Name(name), fn)
}

// UseApply creates a processor that can transform the request and fail.
// Use for operations like patch enrichment that may produce errors.
func UseApply(name string, fn func(context.Context, *Request) (*Request, error)) pipz.Chainable[*Request] {
	return pipz.Apply(pipz.Name(name), fn)
}

// UseRateLimit creates a rate limiting processor. Uses a token bucket with
// the specified rate (writes per second) and burst size; exhausted buckets
// make writes wait for availability.
func UseRateLimit(rate float64, burst int) pipz.Chainable[*Request] {
	return pipz.NewRateLimiter[*Request]("rate-limiter", rate, burst)
}
