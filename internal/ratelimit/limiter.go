package ratelimit

import (
	"context"
	"math/rand"
	"time"
)

// Limiter enforces a minimum spacing between outbound calls to one external
// service, with randomized jitter to avoid synchronized bursts. It tracks the
// start time of the previous call, not its completion, so limiter overhead
// does not count against the enforced spacing. Not safe for concurrent use;
// the pipeline processes strictly sequentially.
type Limiter struct {
	minInterval time.Duration
	jitterMin   time.Duration
	jitterMax   time.Duration

	lastCall time.Time
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// New builds a limiter with the given base spacing and jitter range.
func New(minInterval, jitterMin, jitterMax time.Duration) *Limiter {
	return &Limiter{
		minInterval: minInterval,
		jitterMin:   jitterMin,
		jitterMax:   jitterMax,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// AwaitSlot blocks until the spacing since the previous tracked call has
// elapsed. The first call never waits. The only failure mode is context
// cancellation during the wait.
func (l *Limiter) AwaitSlot(ctx context.Context) error {
	start := l.now()
	if !l.lastCall.IsZero() {
		wait := l.minInterval + l.jitter() - start.Sub(l.lastCall)
		if wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	l.lastCall = l.now()
	return nil
}

func (l *Limiter) jitter() time.Duration {
	span := l.jitterMax - l.jitterMin
	if span <= 0 {
		return l.jitterMin
	}
	return l.jitterMin + time.Duration(rand.Int63n(int64(span)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
