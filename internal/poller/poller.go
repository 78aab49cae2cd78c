// Package poller drives per-order reconciliation on a fixed cadence: after
// an order is created, a dedicated task asks the reconciler to re-evaluate
// its credential group once a second until it is paid, disappears, leaves
// PENDING, or the poll lifetime elapses — at which point the task expires
// the order itself rather than waiting on the next sweep cycle.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/qiupay/gateway/internal/metrics"
	"github.com/qiupay/gateway/internal/storage"
)

// PaymentChecker is the narrow view of *reconciler.Reconciler the poller
// depends on.
type PaymentChecker interface {
	CheckPayment(ctx context.Context, tradeNo string) (bool, error)
}

// Rebaser is the narrow view of *reconciler.Reconciler's rebase hook, used
// when a poller's own timeout fires and its order must be expired.
type Rebaser interface {
	RebaseAfterExpiry(ctx context.Context, credentialIDs []string)
}

// ExpireSweeper is the narrow view of *orders.Engine the poller uses to
// self-expire on timeout. Calling the full sweep (rather than a
// single-order update) is deliberate: by construction the timed-out order
// is already stale enough to qualify, and reusing the sweep means any
// other order that went stale in the same window is cleaned up and
// rebased in the same pass instead of waiting for the next scheduled tick.
type ExpireSweeper interface {
	ExpireSweep(ctx context.Context, rebaser Rebaser) error
}

// Poller manages one background task per trade_no.
type Poller struct {
	store    storage.Store
	checker  PaymentChecker
	expirer  ExpireSweeper
	rebaser  Rebaser
	interval time.Duration
	lifetime time.Duration

	reg     *registry
	wg      sync.WaitGroup
	metrics *metrics.Metrics
}

// SetMetrics wires a metrics collector that task start/finish transitions
// report to. A nil collector (the default) disables emission entirely.
func (p *Poller) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// New constructs a Poller. interval/lifetime default to 1s/600s when <=0.
func New(store storage.Store, checker PaymentChecker, expirer ExpireSweeper, rebaser Rebaser, interval, lifetime time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	if lifetime <= 0 {
		lifetime = 600 * time.Second
	}
	return &Poller{
		store:    store,
		checker:  checker,
		expirer:  expirer,
		rebaser:  rebaser,
		interval: interval,
		lifetime: lifetime,
		reg:      newRegistry(),
	}
}

// Start launches a polling task for tradeNo. A no-op if one is already
// running. The task stops on its own once the order leaves PENDING or the
// lifetime elapses — callers do not need to track the returned state.
func (p *Poller) Start(ctx context.Context, tradeNo string) {
	taskCtx, cancel := context.WithCancel(ctx)
	if !p.reg.start(tradeNo, cancel) {
		cancel()
		log.Debug().Str("trade_no", tradeNo).Msg("poller.already_running")
		return
	}

	p.wg.Add(1)
	if p.metrics != nil {
		p.metrics.SetPollerActiveTasks(p.reg.activeCount())
	}
	go p.run(taskCtx, tradeNo, cancel)
}

// Cancel stops tradeNo's task, if running, within one cadence tick.
func (p *Poller) Cancel(tradeNo string) {
	p.reg.cancel(tradeNo)
}

// ActiveCount returns the number of currently running poll tasks.
func (p *Poller) ActiveCount() int {
	return p.reg.activeCount()
}

// StopAll cancels every running task and waits for them to exit. Intended
// for graceful shutdown.
func (p *Poller) StopAll() {
	p.reg.mu.Lock()
	cancels := make([]func(), 0, len(p.reg.tasks))
	for _, c := range p.reg.tasks {
		cancels = append(cancels, c)
	}
	p.reg.mu.Unlock()
	for _, c := range cancels {
		c()
	}
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, tradeNo string, cancel context.CancelFunc) {
	defer p.wg.Done()
	defer cancel()

	outcome := "cancelled"
	defer func() {
		p.reg.finish(tradeNo)
		if p.metrics == nil {
			return
		}
		p.metrics.SetPollerActiveTasks(p.reg.activeCount())
		p.metrics.ObservePollerTaskFinished(outcome)
	}()

	log.Info().Str("trade_no", tradeNo).Msg("poller.started")

	start := time.Now()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	pollCount := 0

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("trade_no", tradeNo).Msg("poller.cancelled")
			return
		case <-ticker.C:
		}

		if time.Since(start) >= p.lifetime {
			log.Info().Str("trade_no", tradeNo).Int("poll_count", pollCount).Msg("poller.timed_out")
			outcome = "timed_out"
			p.expireOnTimeout(ctx, tradeNo)
			return
		}

		order, err := p.store.GetOrderByTradeNo(ctx, tradeNo)
		if err == storage.ErrNotFound {
			log.Warn().Str("trade_no", tradeNo).Msg("poller.order_vanished")
			outcome = "vanished"
			return
		}
		if err != nil {
			log.Error().Err(err).Str("trade_no", tradeNo).Msg("poller.load_error")
			continue
		}
		if order.Status != storage.OrderPending {
			log.Info().Str("trade_no", tradeNo).Int("status", int(order.Status)).Msg("poller.no_longer_pending")
			outcome = "no_longer_pending"
			return
		}

		pollCount++
		paid, err := p.checker.CheckPayment(ctx, tradeNo)
		if err != nil {
			log.Warn().Err(err).Str("trade_no", tradeNo).Msg("poller.check_error")
			continue
		}
		if paid {
			log.Info().
				Str("trade_no", tradeNo).
				Dur("elapsed", time.Since(start)).
				Int("poll_count", pollCount).
				Msg("poller.paid")
			outcome = "paid"
			return
		}
	}
}

func (p *Poller) expireOnTimeout(ctx context.Context, tradeNo string) {
	if p.expirer == nil {
		return
	}
	if err := p.expirer.ExpireSweep(ctx, p.rebaser); err != nil {
		log.Error().Err(err).Str("trade_no", tradeNo).Msg("poller.expire_sweep_failed")
	}
}
