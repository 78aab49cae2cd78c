package orders

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper runs ExpireSweep on a fixed cadence until stopped.
type Sweeper struct {
	engine   *Engine
	rebaser  Rebaser
	interval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSweeper constructs a Sweeper. rebaser may be nil if no reconciler hook
// is wired (e.g. in tests exercising the engine alone).
func NewSweeper(engine *Engine, rebaser Rebaser, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Sweeper{
		engine:   engine,
		rebaser:  rebaser,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.engine.ExpireSweep(ctx, s.rebaser); err != nil {
				log.Error().Err(err).Msg("orders.expire_sweep_failed")
			}
		}
	}
}
