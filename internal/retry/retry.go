package retry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"videothingy/assembly-engine/internal/errs"
)

// Policy bounds retries of an external call. MaxRetries excludes the first
// attempt: 2 means up to 3 attempts.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Timeout wraps each attempt when > 0.
	Timeout time.Duration
}

// Default mirrors the settings used for synthesis and alignment calls.
func Default() Policy {
	return Policy{
		MaxRetries:   2,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		Timeout:      2 * time.Minute,
	}
}

// Delay returns the backoff before retry number n (0-based).
func (p Policy) Delay(n int) time.Duration {
	d := p.InitialDelay
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	for i := 0; i < n; i++ {
		d = time.Duration(float64(d) * mult)
		if p.MaxDelay > 0 && d > p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do runs fn until it succeeds, returns a non-transient error, or retries are
// exhausted. Only errors classified by errs.IsTransient are retried. The last
// error is returned unchanged when retries run out.
func Do(ctx context.Context, p Policy, log *logrus.Entry, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = runAttempt(ctx, p, fn)
		if lastErr == nil {
			return nil
		}
		if !errs.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == p.MaxRetries {
			break
		}

		delay := p.Delay(attempt)
		if log != nil {
			log.WithFields(logrus.Fields{
				"op":      op,
				"attempt": attempt + 1,
				"max":     p.MaxRetries + 1,
				"delay":   delay.String(),
			}).WithError(lastErr).Warn("external call failed, retrying")
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	if log != nil {
		log.WithFields(logrus.Fields{"op": op, "attempts": p.MaxRetries + 1}).WithError(lastErr).Error("retries exhausted")
	}
	return lastErr
}

func runAttempt(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	err := fn(attemptCtx)
	// A per-attempt timeout is a transient condition, the parent may still be live.
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil && !errs.IsTransient(err) {
		return errs.Transient("timeout", err)
	}
	return err
}
