// Package retrypolicy provides retry policies to be used when retrying an operation
package retrypolicy

import (
	"math"
	"math/rand"
	"time"
)

// Done is returned by CalculateNextDelay when no further retries should be made
const Done time.Duration = -1

const (
	defaultInitialInterval    = 50 * time.Millisecond
	defaultBackoffCoefficient = 2.0
	defaultMaximumInterval    = 10 * time.Second
	defaultExpirationInterval = time.Minute
	defaultMaximumAttempts    = 10
)

var (
	// DefaultRetry a retry policy with default values
	DefaultRetry Retry = &policy{
		initialInterval:    defaultInitialInterval,
		backoffCoefficient: defaultBackoffCoefficient,
		maximumInterval:    defaultMaximumInterval,
		expirationInterval: defaultExpirationInterval,
		maximumAttempt:     defaultMaximumAttempts,
		startTime:          time.Now(),
	}

	// NoRetry a retry policy which never retries
	NoRetry Retry = &policy{}
)

type (
	// Retry calculates the next delay before an operation should be retried
	Retry interface {
		CalculateNextDelay() time.Duration
	}

	// Option func to build a retry policy
	Option func(policy *policy) error

	policy struct {
		currentAttempt     int
		initialInterval    time.Duration
		backoffCoefficient float64
		maximumInterval    time.Duration
		expirationInterval time.Duration
		maximumAttempt     int
		startTime          time.Time
	}
)

// New returns a new retry policy with the given options applied over defaults
func New(options ...Option) (Retry, error) {
	p := policy{
		initialInterval:    defaultInitialInterval,
		backoffCoefficient: defaultBackoffCoefficient,
		maximumInterval:    defaultMaximumInterval,
		expirationInterval: defaultExpirationInterval,
		maximumAttempt:     defaultMaximumAttempts,
		startTime:          time.Now(),
	}

	for _, option := range options {
		if err := option(&p); err != nil {
			return nil, err
		}
	}

	return &p, nil
}

// WithInitialInterval sets the delay before the first retry
func WithInitialInterval(initialInterval time.Duration) Option {
	return func(p *policy) error {
		p.initialInterval = initialInterval
		return nil
	}
}

// WithBackoffCoefficient sets the multiplier applied to the interval after each attempt
func WithBackoffCoefficient(backoffCoefficient float64) Option {
	return func(p *policy) error {
		p.backoffCoefficient = backoffCoefficient
		return nil
	}
}

// WithMaximumInterval caps the delay between retries
func WithMaximumInterval(maximumInterval time.Duration) Option {
	return func(p *policy) error {
		p.maximumInterval = maximumInterval
		return nil
	}
}

// WithExpirationInterval sets the total elapsed time after which no more retries are made
func WithExpirationInterval(expirationInterval time.Duration) Option {
	return func(p *policy) error {
		p.expirationInterval = expirationInterval
		return nil
	}
}

// WithMaximumAttempts sets the maximum number of retry attempts
func WithMaximumAttempts(maximumAttempts int) Option {
	return func(p *policy) error {
		p.maximumAttempt = maximumAttempts
		return nil
	}
}

// CalculateNextDelay returns the delay before the next attempt or Done when
// the maximum attempts or the expiration interval have been exhausted
func (p *policy) CalculateNextDelay() time.Duration {
	if p.currentAttempt >= p.maximumAttempt {
		return Done
	}

	elapsedTime := time.Since(p.startTime)
	if p.expirationInterval > 0 && elapsedTime > p.expirationInterval {
		return Done
	}

	nextInterval := float64(p.initialInterval) * math.Pow(p.backoffCoefficient, float64(p.currentAttempt))
	if nextInterval <= 0 {
		return Done
	}

	if p.maximumInterval > 0 {
		nextInterval = math.Min(nextInterval, float64(p.maximumInterval))
	}

	if p.expirationInterval > 0 {
		remainingTime := math.Max(0, float64(p.expirationInterval-elapsedTime))
		nextInterval = math.Min(remainingTime, nextInterval)
	}

	p.currentAttempt++

	// apply jitter keeping the delay within [0.8, 1.0) of the calculated interval
	return time.Duration(nextInterval * (0.8 + 0.2*rand.Float64()))
}
