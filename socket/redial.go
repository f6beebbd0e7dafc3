//go:build linux

// File: socket/redial.go
// Author: momentics <momentics@gmail.com>
//
// Resilient dialer: retries a failed connect with capped exponential
// backoff and jitter until it succeeds, the attempt budget runs out, or
// the context is canceled.

package socket

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"github.com/momentics/hioload-srt/api"
	"github.com/momentics/hioload-srt/control"
	"github.com/momentics/hioload-srt/reactor"
)

// Redialer dials with retry. The zero value of the tuning fields selects
// 500ms initial delay, 30s cap, factor 2 and unlimited attempts.
type Redialer struct {
	Reactor *reactor.Reactor
	Addr    string
	Options Options

	// ConnectTimeout bounds each individual attempt; 0 means no bound.
	ConnectTimeout time.Duration
	// MaxAttempts caps the number of attempts; <=0 retries forever.
	MaxAttempts int
	// MinDelay and MaxDelay bound the backoff window.
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Dial attempts to connect until success or the budget is exhausted.
func (d *Redialer) Dial(ctx context.Context) (*Socket, error) {
	min := d.MinDelay
	if min <= 0 {
		min = 500 * time.Millisecond
	}
	max := d.MaxDelay
	if max <= 0 {
		max = 30 * time.Second
	}
	b := &backoff.Backoff{
		Factor: 2,
		Jitter: true,
		Min:    min,
		Max:    max,
	}

	for attempt := 1; ; attempt++ {
		s, err := DialFor(ctx, d.Reactor, d.Addr, d.Options, d.ConnectTimeout)
		if err == nil {
			if attempt > 1 {
				control.Logf(control.LogNotice, logArea, "connected to %s after %d attempts", d.Addr, attempt)
			}
			return s, nil
		}
		if d.MaxAttempts > 0 && attempt >= d.MaxAttempts {
			return nil, fmt.Errorf("giving up on %s after %d attempts: %w", d.Addr, attempt, err)
		}

		delay := b.Duration()
		control.Logf(control.LogWarning, logArea, "connect to %s failed (attempt %d): %v; retrying in %s",
			d.Addr, attempt, err, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, api.ErrCanceled
		case <-timer.C:
		}
	}
}
