package backoff

import "time"

// Calculator provides backoff calculation using a configurable strategy.
type Calculator struct {
	strategy Strategy
}

// NewCalculator creates a backoff calculator with the specified strategy.
func NewCalculator(strategy Strategy) *Calculator {
	return &Calculator{strategy: strategy}
}

// Calculate computes the backoff duration for the given attempt, delegating
// to the configured strategy.
func (c *Calculator) Calculate(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	return c.strategy.Calculate(attempt, baseDelay, maxDelay)
}

// GetExponentialJitterCalculator returns a calculator configured with the
// exponential-plus-jitter strategy, the pipeline default.
func GetExponentialJitterCalculator() *Calculator {
	return NewCalculator(ExponentialJitterStrategy{})
}

// GetDecorrelatedJitterCalculator returns a calculator configured with
// AWS-style decorrelated jitter.
func GetDecorrelatedJitterCalculator() *Calculator {
	return NewCalculator(DecorrelatedJitterStrategy{})
}
