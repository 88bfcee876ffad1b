package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"teledrive/pkg/models"
)

// RetryPolicy bounds attempts per leg and shapes the waits between them
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
}

// DefaultRetryPolicy is 3 attempts, 2s then 4s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Base: 2 * time.Second, Max: time.Minute}
}

// rateAwareBackOff waits exactly RetryAfter after a rate-limited failure and
// falls back to exponential waits otherwise.
type rateAwareBackOff struct {
	exp  *backoff.ExponentialBackOff
	last error
}

func newRateAwareBackOff(p RetryPolicy) *rateAwareBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.Base
	exp.MaxInterval = p.Max
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	return &rateAwareBackOff{exp: exp}
}

func (b *rateAwareBackOff) NextBackOff() time.Duration {
	var rl *models.RateLimitedError
	if errors.As(b.last, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}
	return b.exp.NextBackOff()
}

func (b *rateAwareBackOff) Reset() {
	b.exp.Reset()
	b.last = nil
}

// attemptFunc is one try of a leg; attempt starts at 1
type attemptFunc func(ctx context.Context, attempt int) error

// retry runs op until it succeeds, fails permanently, or exhausts the policy.
// An auth-expired failure triggers reauth once; a second one is final. A
// successful reauth buys one try on top of MaxAttempts so that a token
// expiring on the last attempt is still followed by a fresh try.
func (p *Pipeline) retry(ctx context.Context, leg string, op attemptFunc) (int, error) {
	b := newRateAwareBackOff(p.opts.Retry)
	attempts := 0
	limit := p.opts.Retry.MaxAttempts
	reauthed := false

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := op(ctx, attempts)
		b.last = err
		if err == nil {
			return struct{}{}, nil
		}

		kind := models.Classify(err)
		switch kind {
		case models.KindAuth:
			if reauthed || p.reauth == nil {
				return struct{}{}, backoff.Permanent(err)
			}
			reauthed = true
			if rerr := p.reauth.Reauthenticate(ctx); rerr != nil {
				return struct{}{}, backoff.Permanent(fmt.Errorf("%w (reauthentication failed: %v)", err, rerr))
			}
			limit++
		case models.KindTransient, models.KindRateLimited:
		default:
			return struct{}{}, backoff.Permanent(err)
		}

		if attempts >= limit {
			return struct{}{}, backoff.Permanent(err)
		}
		p.metrics.IncRetry(leg, kind)
		p.log.Warn("Transfer leg failed, retrying",
			slog.String("leg", leg),
			slog.Int("attempt", attempts),
			slog.String("kind", kind.String()),
			slog.Any("error", err))
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.opts.Retry.MaxAttempts+1)),
		backoff.WithMaxElapsedTime(0),
	)
	return attempts, err
}
