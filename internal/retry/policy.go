package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/bnema/reelsub/internal/domain"
)

// Policy is a bounded exponential backoff. The delay after failed attempt n
// (1-based) is BaseDelay * Factor^(n-1), capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
	// Jitter scales each delay by a random factor in [0.5, 1].
	Jitter bool
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Factor:      2,
	}
}

// Once is a policy that never retries.
func Once() Policy {
	return Policy{MaxAttempts: 1}
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(p.BaseDelay) * math.Pow(factor, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		d *= 0.5 + rand.Float64()*0.5
	}
	return time.Duration(d)
}

// Failure describes one failed attempt of a retried operation.
type Failure struct {
	Attempt     int
	MaxAttempts int
	// Delay is the wait before the next attempt, zero on the last one.
	Delay time.Duration
	Err   error
	Final bool
}

type Hooks struct {
	// OnFailure runs once per transient failure, before the backoff sleep.
	OnFailure func(Failure)
}

type Func func(ctx context.Context, attempt int) error

// Do runs fn until it succeeds, returns an error not marked with
// domain.Transient, or the attempt budget is spent. Exhaustion is reported
// as domain.ErrRetriesExhausted wrapping the last error. Cancellation returns
// the context cause.
func (p Policy) Do(ctx context.Context, fn Func, hooks Hooks) (int, error) {
	max := p.attempts()
	attempt := 0
	var next time.Duration

	backoff := goretry.BackoffFunc(func() (time.Duration, bool) {
		if attempt >= max {
			return 0, true
		}
		return next, false
	})

	err := goretry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if !domain.IsTransient(err) || ctx.Err() != nil {
			return err
		}
		f := Failure{Attempt: attempt, MaxAttempts: max, Err: err, Final: attempt >= max}
		if !f.Final {
			next = p.Delay(attempt)
			f.Delay = next
		}
		if hooks.OnFailure != nil {
			hooks.OnFailure(f)
		}
		return goretry.RetryableError(err)
	})

	switch {
	case err == nil:
		return attempt, nil
	case ctx.Err() != nil:
		cause := context.Cause(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, cause) {
			return attempt, cause
		}
		return attempt, fmt.Errorf("%w: %w", cause, err)
	case domain.IsTransient(err) && attempt >= max:
		return attempt, fmt.Errorf("%w after %d attempts: %w", domain.ErrRetriesExhausted, attempt, err)
	default:
		return attempt, err
	}
}
