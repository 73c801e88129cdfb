package job

import (
	"context"
	"log/slog"
	"time"
)

// Recurring runs fn on a fixed interval, falling back to a shorter retry
// interval after a failed iteration. Unlike a self-re-arming callback, it
// stops deterministically: Stop cancels the loop and waits for an in-flight
// iteration to finish.
type Recurring struct {
	name          string
	interval      time.Duration
	retryInterval time.Duration
	fn            func(context.Context) error

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRecurring(name string, interval, retryInterval time.Duration, fn func(context.Context) error) *Recurring {
	return &Recurring{
		name:          name,
		interval:      interval,
		retryInterval: retryInterval,
		fn:            fn,
	}
}

func (r *Recurring) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		delay := r.interval
		timer := time.NewTimer(delay)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}

			// A failed iteration never stops the loop, it only shortens
			// the wait before the next one.
			if err := r.fn(ctx); err != nil {
				slog.Error("recurring job iteration failed", "job", r.name, "error", err)
				delay = r.retryInterval
			} else {
				delay = r.interval
			}
			timer.Reset(delay)
		}
	}()
}

func (r *Recurring) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}
