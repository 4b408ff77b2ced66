package boot

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Poller runs bounded polling loops. The zero value uses the real clock; Now
// and Sleep are injectable so tests run deterministically.
type Poller struct {
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func (p *Poller) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run repeats probe until one attempt succeeds or the policy's total budget
// lapses. Each attempt runs under its own RequestTimeout; the wait between
// attempts starts at InitialInterval and grows by BackoffFactor, capped at
// MaxInterval. The final wait is additionally capped to the remaining budget,
// so Run returns within TotalBudget plus one RequestTimeout of wall time.
// Every probe failure is treated the same: during a cold start, timeouts and
// refusals are equally expected noise.
func (p *Poller) Run(ctx context.Context, policy PollPolicy, probe func(ctx context.Context) error) error {
	factor := policy.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	bo := &backoff.ExponentialBackOff{
		InitialInterval:     policy.InitialInterval,
		RandomizationFactor: 0,
		Multiplier:          factor,
		MaxInterval:         policy.MaxInterval,
	}
	bo.Reset()

	deadline := p.now().Add(policy.TotalBudget)
	var lastErr error
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, policy.RequestTimeout)
		err := probe(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := deadline.Sub(p.now())
		if remaining <= 0 {
			return &BudgetError{Attempts: attempt, Budget: policy.TotalBudget, Last: lastErr}
		}
		interval := bo.NextBackOff()
		if interval > remaining {
			interval = remaining
		}
		if err := p.sleep(ctx, interval); err != nil {
			return err
		}
	}
}
