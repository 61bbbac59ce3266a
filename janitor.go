package authcore

import (
	"context"
	"time"
)

// StartJanitor launches the optional background sweep that prunes index
// entries whose records already expired. Redis native TTL is the primary
// expiry mechanism; the janitor only keeps the per-user index sets tidy
// and never sits on a request path. The returned stop function blocks
// until the sweep goroutine exits and is safe to call once.
func (s *Service) StartJanitor(interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = s.config.Janitor.Interval
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := s.sessions.SweepExpired(ctx); err == nil && n > 0 {
					s.metrics.Add(MetricJanitorPruned, uint64(n))
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
