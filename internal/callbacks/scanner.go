package callbacks

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/qiupay/gateway/internal/storage"
)

// Scanner periodically loads PAID orders whose notify has not yet
// succeeded and are due for their next scheduled attempt, and fires it.
type Scanner struct {
	store    storage.Store
	engine   *Engine
	interval time.Duration
	schedule []time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScanner builds a Scanner. interval is the scan cadence (spec bounds it
// at <=30s); schedule is the cumulative wait list evaluated against each
// order's callback_attempts.
func NewScanner(store storage.Store, engine *Engine, interval time.Duration, schedule []time.Duration) *Scanner {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Scanner{store: store, engine: engine, interval: interval, schedule: schedule, stopCh: make(chan struct{})}
}

// Start runs the scan loop until ctx is cancelled or Stop is called.
func (s *Scanner) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop signals the scan loop to exit and waits for it to finish.
func (s *Scanner) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scanner) loop(ctx context.Context) {
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
			s.scanOnce(ctx)
		}
	}
}

func (s *Scanner) scanOnce(ctx context.Context) {
	orders, err := s.store.ListOrdersForCallbackRetry(ctx, s.engine.maxAttempts)
	if err != nil {
		log.Error().Err(err).Msg("callbacks.scan_list_error")
		return
	}

	for _, o := range orders {
		attemptNum, due := s.dueAttempt(o)
		if !due {
			continue
		}
		if err := s.engine.attempt(ctx, o.TradeNo, attemptNum); err != nil {
			log.Warn().Err(err).Str("trade_no", o.TradeNo).Int("attempt", attemptNum).Msg("callbacks.scan_attempt_error")
		}
	}
}

// dueAttempt reports the next attempt number for o and whether enough time
// has elapsed since baseTime = coalesce(paid_at, created_at) to fire it:
// attempt callback_attempts+1 is due once now-baseTime >= the sum of the
// first callback_attempts entries of the retry schedule.
func (s *Scanner) dueAttempt(o storage.Order) (int, bool) {
	attemptsDone := o.CallbackAttempts
	var threshold time.Duration
	for i := 0; i < attemptsDone && i < len(s.schedule); i++ {
		threshold += s.schedule[i]
	}

	base := o.CreatedAt
	if o.PaidAt != nil {
		base = *o.PaidAt
	}
	if time.Since(base) < threshold {
		return 0, false
	}
	return attemptsDone + 1, true
}
