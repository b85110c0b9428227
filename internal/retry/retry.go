// Package retry provides the driver that re-invokes failing operations
// with exponential backoff and jitter until success or exhaustion.
package retry

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/nhle/notify-agent/internal/errs"
)

// Default backoff parameters, matching the configuration defaults.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultFactor      = 2.0

	maxJitter = time.Second
)

// ShouldRetryFunc lets a caller narrow the driver's default
// retryability decision for a single operation.
type ShouldRetryFunc func(err *errs.Error) bool

// Driver repeatedly invokes operations, classifying each failure and
// backing off between attempts. Attempt counters are kept per
// operation id so concurrent operations budget independently.
type Driver struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64

	// Jitter is the upper bound of the random term added to every
	// computed delay. Zero disables jitter.
	Jitter time.Duration

	mu       sync.Mutex
	attempts map[string]int

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDriver creates a retry driver with the default backoff parameters.
func NewDriver() *Driver {
	return &Driver{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Factor:      DefaultFactor,
		Jitter:      maxJitter,
		attempts:    make(map[string]int),
		sleep:       sleepCtx,
	}
}

// Do invokes op until it succeeds, fails with a non-retryable error,
// or exhausts the attempt budget for opID. The returned error is
// always normalized. The attempt counter for opID resets on success.
func (d *Driver) Do(ctx context.Context, opID string, op func(ctx context.Context) error) error {
	return d.DoWith(ctx, opID, op, nil)
}

// DoWith is Do with a caller-supplied retryability override. When
// shouldRetry is nil the classifier's own Retryable flag decides.
func (d *Driver) DoWith(
	ctx context.Context,
	opID string,
	op func(ctx context.Context) error,
	shouldRetry ShouldRetryFunc,
) error {
	for {
		err := op(ctx)
		if err == nil {
			d.Reset(opID)
			return nil
		}

		norm := errs.Classify(err)

		retryable := norm.Retryable
		if shouldRetry != nil {
			retryable = shouldRetry(norm)
		}

		attempt := d.bumpAttempt(opID)
		if !retryable || attempt >= d.maxAttempts() {
			d.Reset(opID)
			return norm
		}

		delay := d.backoffDelay(attempt)
		if norm.RetryAfter > 0 {
			delay = norm.RetryAfter
		}

		if sleepErr := d.sleep(ctx, delay); sleepErr != nil {
			d.Reset(opID)
			return errs.Classify(sleepErr)
		}
	}
}

// Reset clears the attempt counter for opID. Called automatically on
// success; callers abandoning an operation may call it directly.
func (d *Driver) Reset(opID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.attempts, opID)
}

// Attempts returns the current attempt count for opID.
func (d *Driver) Attempts(opID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts[opID]
}

func (d *Driver) bumpAttempt(opID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.attempts == nil {
		d.attempts = make(map[string]int)
	}
	d.attempts[opID]++
	return d.attempts[opID]
}

func (d *Driver) maxAttempts() int {
	if d.MaxAttempts > 0 {
		return d.MaxAttempts
	}
	return DefaultMaxAttempts
}

// backoffDelay computes min(maxDelay, base*factor^attempt) plus up to
// one second of jitter to avoid synchronized retries across clients.
func (d *Driver) backoffDelay(attempt int) time.Duration {
	base := d.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	maxDelay := d.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	factor := d.Factor
	if factor <= 0 {
		factor = DefaultFactor
	}

	delay := time.Duration(float64(base) * math.Pow(factor, float64(attempt-1)))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}

	if d.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(d.Jitter)))
	}
	return delay
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
