package cache

import (
	"context"
	"time"

	"github.com/TransformCore/defra-identity/internal/log"
)

// Janitor periodically sweeps expired entries out of a backend.
type Janitor struct {
	sweeper  Sweeper
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewJanitor creates a janitor for the given backend.
func NewJanitor(sweeper Sweeper, interval time.Duration) *Janitor {
	return &Janitor{
		sweeper:  sweeper,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the sweep loop in a goroutine.
func (j *Janitor) Start(ctx context.Context) {
	log.LogInfoWithFields("cache", "Starting cache janitor", map[string]any{
		"interval": j.interval.String(),
	})

	go j.run(ctx)
}

// Stop gracefully stops the sweep loop.
func (j *Janitor) Stop() {
	close(j.stopChan)
	<-j.doneChan
}

func (j *Janitor) run(ctx context.Context) {
	defer close(j.doneChan)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Sweep immediately on start
	j.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			j.sweep(ctx)
		case <-j.stopChan:
			// Final sweep on shutdown
			j.sweep(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	count, err := j.sweeper.Sweep(ctx)
	if err != nil {
		log.LogErrorWithFields("cache", "Failed to sweep expired entries", map[string]any{
			"error": err.Error(),
		})
		return
	}

	if count > 0 {
		log.LogDebugWithFields("cache", "Swept expired cache entries", map[string]any{
			"count": count,
		})
	}
}
