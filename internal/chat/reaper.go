package chat

import (
	"context"
	"log"
	"time"
)

// Reaper drives the empty-room lifecycle: Active (members > 0) -> Idle
// (members == 0, clock running) -> Reaped (deleted). It only decides WHEN
// to sweep; the engine owns the actual transition so it happens under the
// same lock as every other mutation.
type Reaper struct {
	engine   *Engine
	ttl      time.Duration
	interval time.Duration

	// OnReap, when set, is told which rooms each sweep removed. The app
	// uses it for metrics.
	OnReap func(roomIDs []string)
}

// NewReaper configures a reaper with the given idle TTL and sweep
// interval. The sweep interval is global and independent of any single
// room's idle clock.
func NewReaper(engine *Engine, ttl, interval time.Duration) *Reaper {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reaper{engine: engine, ttl: ttl, interval: interval}
}

// Run sweeps on a fixed ticker until the context is cancelled. Each sweep
// is short and bounded so it never starves event handling.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns how many rooms were reaped.
func (r *Reaper) Sweep(ctx context.Context) int {
	reaped := r.engine.ReapIdle(ctx, r.ttl)
	if len(reaped) > 0 {
		log.Printf("chat: reaped %d idle room(s): %v", len(reaped), reaped)
		if r.OnReap != nil {
			r.OnReap(reaped)
		}
	}
	return len(reaped)
}
