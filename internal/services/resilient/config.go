package resilient

import (
    "fmt"
    "math"
    "time"
)

// RetryConfig controls attempt timeouts and exponential backoff.
type RetryConfig struct {
    MaxRetries        int           // retries after the first attempt
    InitialDelay      time.Duration // delay before the first retry
    MaxDelay          time.Duration // cap applied to every delay
    Timeout           time.Duration // hard limit per attempt
    BackoffMultiplier float64
}

// DefaultRetryConfig returns 3 retries, 500ms initial delay, 5s cap, 10s
// per-attempt timeout and a multiplier of 2.
func DefaultRetryConfig() RetryConfig {
    return RetryConfig{
        MaxRetries:        3,
        InitialDelay:      500 * time.Millisecond,
        MaxDelay:          5 * time.Second,
        Timeout:           10 * time.Second,
        BackoffMultiplier: 2,
    }
}

func (c RetryConfig) Validate() error {
    if c.MaxRetries < 0 {
        return fmt.Errorf("max retries cannot be negative")
    }
    if c.InitialDelay < 0 || c.MaxDelay < 0 {
        return fmt.Errorf("delays cannot be negative")
    }
    if c.Timeout <= 0 {
        return fmt.Errorf("timeout must be positive")
    }
    if c.BackoffMultiplier < 1 {
        return fmt.Errorf("backoff multiplier must be at least 1")
    }
    return nil
}

// Delay returns the wait before retry n (0-indexed):
// min(InitialDelay * BackoffMultiplier^n, MaxDelay). There is no jitter.
func (c RetryConfig) Delay(n int) time.Duration {
    d := float64(c.InitialDelay) * math.Pow(c.BackoffMultiplier, float64(n))
    if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
        return c.MaxDelay
    }
    return time.Duration(d)
}
