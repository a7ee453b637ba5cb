// Package retry implements bounded retries with exponential backoff for
// transient I/O failures. Operations wrapped by a Policy must be safe to
// repeat -- the copy path achieves this by staging writes in a temporary
// file that's removed before each retry.
package retry

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Mocked out for unit testing.
var clock clockwork.Clock = clockwork.NewRealClock()

// Policy is the stateless retry configuration shared by every operation in a
// sync run.
type Policy struct {
	// MaxAttempts is the total number of invocations, including the first.
	// A zero value behaves like 1.
	MaxAttempts uint

	// InitialDelay is the wait after the first failed attempt.
	InitialDelay time.Duration

	// BackoffFactor multiplies the delay after each failed attempt.
	BackoffFactor float64
}

// Default mirrors the retry behavior of classic mirroring tools: three
// attempts, one second apart initially, doubling.
func Default() Policy {
	return Policy{MaxAttempts: 3, InitialDelay: time.Second, BackoffFactor: 2}
}

// Execute invokes op until it succeeds or attempts are exhausted, sleeping
// InitialDelay * BackoffFactor^(attempt-1) between attempts. The last error
// is surfaced on exhaustion.
func (p Policy) Execute(op func() error) error {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	delay := p.InitialDelay
	var err error
	for attempt := uint(1); ; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == attempts {
			return err
		}

		clock.Sleep(delay)
		delay = time.Duration(float64(delay) * p.BackoffFactor)
	}
}
