package admin

import (
	"context"
	"time"
)

// Poller drives the console's interval refresh. It is an explicit resource:
// the owning view must call Stop when it goes inactive.
type Poller struct {
	stop chan struct{}
	done chan struct{}
}

// StartPolling refreshes immediately and then on every interval tick until
// Stop is called or ctx is cancelled. Fetch errors are logged and the next
// tick tries again; nothing else is retried.
func (c *Console) StartPolling(ctx context.Context, interval time.Duration) *Poller {
	p := &Poller{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(p.done)
		if err := c.Refresh(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("refresh failed")
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.Refresh(ctx); err != nil {
					c.logger.Warn().Err(err).Msg("refresh failed")
				}
			}
		}
	}()
	return p
}

// Stop releases the timer and waits for the loop to exit.
func (p *Poller) Stop() {
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
	<-p.done
}
