package chain

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// BackoffPolicy bounds retries of ledger calls that failed with NetworkUnavailable.
type BackoffPolicy struct {
	Base        time.Duration
	Max         time.Duration
	MaxJitter   time.Duration
	MaxAttempts int
}

// DefaultBackoff is used for reads and re-broadcasts of an already signed transaction.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Base:        200 * time.Millisecond,
		Max:         5 * time.Second,
		MaxJitter:   100 * time.Millisecond,
		MaxAttempts: 4,
	}
}

// Delay returns the wait before the given attempt (0-based): exponential in
// attempt, capped at Max, plus jitter derived from op and attempt so that two
// runs of the same call sequence wait the same amount.
func (p BackoffPolicy) Delay(op string, attempt int) time.Duration {
	factor := int64(1)
	if attempt > 0 {
		if attempt > 30 {
			factor = 1 << 30
		} else {
			factor = 1 << attempt
		}
	}
	d := time.Duration(int64(p.Base) * factor)
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d + p.jitter(op, attempt)
}

func (p BackoffPolicy) jitter(op string, attempt int) time.Duration {
	if p.MaxJitter <= 0 {
		return 0
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", op, attempt)))
	basis := binary.BigEndian.Uint64(sum[:8])
	return time.Duration(basis % uint64(p.MaxJitter)) //nolint:gosec // MaxJitter is positive
}

// Retry runs fn until it succeeds, fails with a non-retryable kind, the
// attempts are exhausted or ctx is done. The last error is returned.
func Retry(ctx context.Context, p BackoffPolicy, op string, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = fn(ctx)
		if err == nil || !Classify(err).Retryable() {
			return err
		}
		if i == attempts-1 {
			break
		}
		t := time.NewTimer(p.Delay(op, i))
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
	return err
}
