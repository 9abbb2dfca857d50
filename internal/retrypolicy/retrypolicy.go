// Package retrypolicy computes retry decisions and backoff delays for
// failed worker invocations.
package retrypolicy

import (
	"math"
	"time"
)

// Config is the exponential-backoff policy (no jitter; see GetDelay) recorded by
// ChangeRetryPolicy oplog entries and consulted by internal/durability
// when deciding whether a trapped invocation should be retried.
type Config struct {
	MaxAttempts uint32
	MinDelay    time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// Default matches the teacher's executor defaults in shape (bounded
// exponential backoff) adapted to the oplog's uint32 attempt counter.
func Default() Config {
	return Config{
		MaxAttempts: 5,
		MinDelay:    100 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

// GetDelay returns the delay before the (previousTries+1)-th attempt, or
// (0, false) if previousTries has already exhausted MaxAttempts. This is
// pure exponential backoff with no jitter: replay must recompute the
// identical delay deterministically.
func GetDelay(cfg Config, previousTries uint32) (time.Duration, bool) {
	if previousTries >= cfg.MaxAttempts {
		return 0, false
	}
	if cfg.MinDelay <= 0 {
		return 0, true
	}
	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	delay := float64(cfg.MinDelay) * math.Pow(multiplier, float64(previousTries))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay), true
}

// Decision is the outcome of evaluating a trap against the current retry
// policy and history, matching RetryDecision in
// golem-worker-executor/src/durable_host/mod.rs.
type Decision int

const (
	DecisionNone Decision = iota
	DecisionImmediate
	DecisionDelayed
	DecisionReacquirePermits
)

type Result struct {
	Decision Decision
	Delay    time.Duration
}
