package voice

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/ent0n29/iradio/internal/audio"
	"github.com/ent0n29/iradio/internal/reliability"
)

// Retrying repeats a chunk request when the provider reports a transient
// failure. Other errors are returned on the first attempt.
type Retrying struct {
	inner    Synthesizer
	attempts int
	base     time.Duration
	cap      time.Duration
	sleep    func(context.Context, time.Duration) error
}

func NewRetrying(inner Synthesizer, attempts int, base, cap time.Duration) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if cap < base {
		cap = base
	}
	return &Retrying{inner: inner, attempts: attempts, base: base, cap: cap, sleep: sleepCtx}
}

func (r *Retrying) Name() string         { return r.inner.Name() }
func (r *Retrying) Format() audio.Format { return r.inner.Format() }
func (r *Retrying) MaxChunkBytes() int   { return r.inner.MaxChunkBytes() }

func (r *Retrying) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			wait := reliability.ExponentialBackoff(attempt-1, r.base, r.cap)
			log.Printf("%s synthesis retry %d/%d in %s: %v", r.inner.Name(), attempt, r.attempts-1, wait, lastErr)
			if err := r.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
		data, err := r.inner.Synthesize(ctx, req)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

// IsRetryable reports whether err is a ProviderError marked transient.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
