package orchestrator

import (
	"context"
	"sync"
	"time"
)

// janitor runs sweep every interval until stopped.
type janitor struct {
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func startJanitor(interval time.Duration, sweep func(context.Context)) *janitor {
	ctx, cancel := context.WithCancel(context.Background())
	j := &janitor{interval: interval, cancel: cancel}

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	return j
}

// stop cancels the loop and waits for it to exit. Safe on a nil janitor.
func (j *janitor) stop() {
	if j == nil {
		return
	}
	j.cancel()
	j.wg.Wait()
}
