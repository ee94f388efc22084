package pipeline

import (
	"math"
	"time"

	"github.com/ternarybob/inkwell/internal/common"
)

// RetryPolicy decides whether a failed attempt is retried and how long to wait.
// It is a value type; the queue only supplies delayed visibility.
type RetryPolicy struct {
	MaxAttempts int           // Attempt ceiling, including the first attempt
	BaseDelay   time.Duration // Delay before the second attempt
	MaxDelay    time.Duration // Upper bound for any delay
	Multiplier  float64       // Growth factor per attempt
}

// NewRetryPolicy builds a policy from a stage configuration
func NewRetryPolicy(config common.StageConfig) RetryPolicy {
	policy := RetryPolicy{
		MaxAttempts: config.MaxAttempts,
		BaseDelay:   common.ParseDurationOr(config.BaseDelay, 2*time.Second),
		MaxDelay:    common.ParseDurationOr(config.MaxDelay, 5*time.Minute),
		Multiplier:  config.Multiplier,
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 1
	}
	return policy
}

// Delay returns the wait after the given attempt (1-based):
// BaseDelay * Multiplier^(attempt-1), capped at MaxDelay
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := float64(p.BaseDelay) * math.Pow(multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && (delay > float64(p.MaxDelay) || math.IsInf(delay, 1)) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether another attempt is allowed after attempts have run
func (p RetryPolicy) ShouldRetry(attempts int) bool {
	return attempts < p.MaxAttempts
}
