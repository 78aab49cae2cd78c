package observability

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Registry manages a collection of observability hooks and safely dispatches
// events to all registered hooks, recovering from and logging any panic a
// hook implementation raises.
type Registry struct {
	orderHooks         []OrderHook
	reconciliationHooks []ReconciliationHook
	webhookHooks       []WebhookHook
	walletHooks        []WalletHook
	storageHooks       []StorageHook
	logger             zerolog.Logger
	mu                 sync.RWMutex
}

// NewRegistry creates a new, empty hook registry. An empty registry is safe
// to emit against — every Emit* call is then a no-op.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{logger: logger}
}

// RegisterOrderHook adds an order lifecycle hook.
func (r *Registry) RegisterOrderHook(hook OrderHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orderHooks = append(r.orderHooks, hook)
	r.logger.Info().Str("hook", hook.Name()).Msg("registered order hook")
}

// RegisterReconciliationHook adds a reconciliation hook.
func (r *Registry) RegisterReconciliationHook(hook ReconciliationHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconciliationHooks = append(r.reconciliationHooks, hook)
	r.logger.Info().Str("hook", hook.Name()).Msg("registered reconciliation hook")
}

// RegisterWebhookHook adds a webhook delivery hook.
func (r *Registry) RegisterWebhookHook(hook WebhookHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webhookHooks = append(r.webhookHooks, hook)
	r.logger.Info().Str("hook", hook.Name()).Msg("registered webhook hook")
}

// RegisterWalletHook adds a wallet balance-query hook.
func (r *Registry) RegisterWalletHook(hook WalletHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.walletHooks = append(r.walletHooks, hook)
	r.logger.Info().Str("hook", hook.Name()).Msg("registered wallet hook")
}

// RegisterStorageHook adds a storage backend hook.
func (r *Registry) RegisterStorageHook(hook StorageHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storageHooks = append(r.storageHooks, hook)
	r.logger.Info().Str("hook", hook.Name()).Msg("registered storage hook")
}

// EmitOrderCreated dispatches the event to all order hooks.
func (r *Registry) EmitOrderCreated(ctx context.Context, event OrderCreatedEvent) {
	r.mu.RLock()
	hooks := r.orderHooks
	r.mu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer r.recoverPanic("OnOrderCreated", hook.Name())
			hook.OnOrderCreated(ctx, event)
		}()
	}
}

// EmitOrderExpired dispatches the event to all order hooks.
func (r *Registry) EmitOrderExpired(ctx context.Context, event OrderExpiredEvent) {
	r.mu.RLock()
	hooks := r.orderHooks
	r.mu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer r.recoverPanic("OnOrderExpired", hook.Name())
			hook.OnOrderExpired(ctx, event)
		}()
	}
}

// EmitReconciliationCheck dispatches the event to all reconciliation hooks.
func (r *Registry) EmitReconciliationCheck(ctx context.Context, event ReconciliationCheckEvent) {
	r.mu.RLock()
	hooks := r.reconciliationHooks
	r.mu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer r.recoverPanic("OnReconciliationCheck", hook.Name())
			hook.OnReconciliationCheck(ctx, event)
		}()
	}
}

// EmitWebhookQueued dispatches the event to all webhook hooks.
func (r *Registry) EmitWebhookQueued(ctx context.Context, event WebhookQueuedEvent) {
	r.mu.RLock()
	hooks := r.webhookHooks
	r.mu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer r.recoverPanic("OnWebhookQueued", hook.Name())
			hook.OnWebhookQueued(ctx, event)
		}()
	}
}

// EmitWebhookDelivered dispatches the event to all webhook hooks.
func (r *Registry) EmitWebhookDelivered(ctx context.Context, event WebhookDeliveredEvent) {
	r.mu.RLock()
	hooks := r.webhookHooks
	r.mu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer r.recoverPanic("OnWebhookDelivered", hook.Name())
			hook.OnWebhookDelivered(ctx, event)
		}()
	}
}

// EmitWebhookFailed dispatches the event to all webhook hooks.
func (r *Registry) EmitWebhookFailed(ctx context.Context, event WebhookFailedEvent) {
	r.mu.RLock()
	hooks := r.webhookHooks
	r.mu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer r.recoverPanic("OnWebhookFailed", hook.Name())
			hook.OnWebhookFailed(ctx, event)
		}()
	}
}

// EmitWebhookRetried dispatches the event to all webhook hooks.
func (r *Registry) EmitWebhookRetried(ctx context.Context, event WebhookRetriedEvent) {
	r.mu.RLock()
	hooks := r.webhookHooks
	r.mu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer r.recoverPanic("OnWebhookRetried", hook.Name())
			hook.OnWebhookRetried(ctx, event)
		}()
	}
}

// EmitWalletQuery dispatches the event to all wallet hooks.
func (r *Registry) EmitWalletQuery(ctx context.Context, event WalletQueryEvent) {
	r.mu.RLock()
	hooks := r.walletHooks
	r.mu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer r.recoverPanic("OnWalletQuery", hook.Name())
			hook.OnWalletQuery(ctx, event)
		}()
	}
}

// EmitStorageQuery dispatches the event to all storage hooks.
func (r *Registry) EmitStorageQuery(ctx context.Context, event StorageQueryEvent) {
	r.mu.RLock()
	hooks := r.storageHooks
	r.mu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer r.recoverPanic("OnStorageQuery", hook.Name())
			hook.OnStorageQuery(ctx, event)
		}()
	}
}

// recoverPanic recovers from panics in hook implementations so one bad hook
// doesn't crash the gateway.
func (r *Registry) recoverPanic(method, hookName string) {
	if err := recover(); err != nil {
		r.logger.Error().
			Str("hook", hookName).
			Str("method", method).
			Interface("panic", err).
			Msg("observability hook panicked (recovered)")
	}
}
