package backoff

import (
	"math/rand"
	"time"
)

// Strategy defines the interface for backoff calculation algorithms.
// Attempt numbers are 1-indexed: attempt 1 is the delay after the first
// failed try.
type Strategy interface {
	Calculate(attempt int, baseDelay, maxDelay time.Duration) time.Duration
}

// ExponentialJitterStrategy implements exponential backoff with additive
// uniform jitter: min(base * 2^(attempt-1) + uniform(0, base), max). The
// jitter is added, never multiplied, and is always non-negative, so the
// result for attempt k lies in [base*2^(k-1), base*2^(k-1)+base] capped at
// max.
type ExponentialJitterStrategy struct{}

// Calculate implements the Strategy interface.
func (s ExponentialJitterStrategy) Calculate(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	if baseDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	// Prevent overflow by limiting the exponent.
	if attempt > 30 {
		attempt = 30
	}

	delay := time.Duration(float64(baseDelay) * pow(2, attempt-1))
	if delay < 0 || delay > maxDelay {
		return maxDelay
	}

	jitter := time.Duration(rand.Float64() * float64(baseDelay))
	delay += jitter
	if delay < 0 || delay > maxDelay {
		return maxDelay
	}
	return delay
}

// DecorrelatedJitterStrategy implements decorrelated jitter as per the AWS
// architecture blog: random_between(base, min(cap, base * 3^attempt)). It
// spreads retries of competing clients further apart at the cost of less
// predictable delays.
type DecorrelatedJitterStrategy struct{}

// Calculate implements the Strategy interface.
func (s DecorrelatedJitterStrategy) Calculate(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	if baseDelay <= 0 {
		return 0
	}
	if attempt <= 1 {
		return baseDelay
	}

	// Prevent overflow by limiting the exponent.
	if attempt > 10 {
		attempt = 10
	}

	base := float64(baseDelay)
	upper := base * pow(3, attempt-1)
	if upper > float64(maxDelay) || upper < 0 {
		upper = float64(maxDelay)
	}
	if upper < base {
		upper = base
	}

	delay := time.Duration(base + rand.Float64()*(upper-base))
	if delay < 0 || delay > maxDelay {
		return maxDelay
	}
	return delay
}

// pow calculates base^exponent using integer exponentiation.
func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
