package observability

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type mockOrderHook struct {
	mu            sync.Mutex
	createdEvents []OrderCreatedEvent
	expiredEvents []OrderExpiredEvent
	shouldPanic   bool
}

func (h *mockOrderHook) Name() string { return "mock_order" }

func (h *mockOrderHook) OnOrderCreated(ctx context.Context, event OrderCreatedEvent) {
	if h.shouldPanic {
		panic("intentional panic for testing")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.createdEvents = append(h.createdEvents, event)
}

func (h *mockOrderHook) OnOrderExpired(ctx context.Context, event OrderExpiredEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.expiredEvents = append(h.expiredEvents, event)
}

func (h *mockOrderHook) getCreatedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.createdEvents)
}

func (h *mockOrderHook) getExpiredCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.expiredEvents)
}

type mockWebhookHook struct {
	mu              sync.Mutex
	queuedEvents    []WebhookQueuedEvent
	deliveredEvents []WebhookDeliveredEvent
	failedEvents    []WebhookFailedEvent
	retriedEvents   []WebhookRetriedEvent
}

func (h *mockWebhookHook) Name() string { return "mock_webhook" }

func (h *mockWebhookHook) OnWebhookQueued(ctx context.Context, event WebhookQueuedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queuedEvents = append(h.queuedEvents, event)
}

func (h *mockWebhookHook) OnWebhookDelivered(ctx context.Context, event WebhookDeliveredEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliveredEvents = append(h.deliveredEvents, event)
}

func (h *mockWebhookHook) OnWebhookFailed(ctx context.Context, event WebhookFailedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failedEvents = append(h.failedEvents, event)
}

func (h *mockWebhookHook) OnWebhookRetried(ctx context.Context, event WebhookRetriedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retriedEvents = append(h.retriedEvents, event)
}

func (h *mockWebhookHook) getDeliveredCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.deliveredEvents)
}

func TestRegistry_RegisterAndEmitOrder(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())

	hook := &mockOrderHook{}
	registry.RegisterOrderHook(hook)

	ctx := context.Background()

	registry.EmitOrderCreated(ctx, OrderCreatedEvent{
		Timestamp:  time.Now(),
		TradeNo:    "T123",
		MerchantID: "m1",
		Amount:     "20.00",
	})
	if hook.getCreatedCount() != 1 {
		t.Errorf("expected 1 created event, got %d", hook.getCreatedCount())
	}

	registry.EmitOrderExpired(ctx, OrderExpiredEvent{
		Timestamp: time.Now(),
		TradeNo:   "T123",
		Age:       10 * time.Minute,
	})
	if hook.getExpiredCount() != 1 {
		t.Errorf("expected 1 expired event, got %d", hook.getExpiredCount())
	}
}

func TestRegistry_MultipleHooks(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())

	hook1 := &mockOrderHook{}
	hook2 := &mockOrderHook{}

	registry.RegisterOrderHook(hook1)
	registry.RegisterOrderHook(hook2)

	ctx := context.Background()
	event := OrderCreatedEvent{Timestamp: time.Now(), TradeNo: "T456"}

	registry.EmitOrderCreated(ctx, event)

	if hook1.getCreatedCount() != 1 {
		t.Errorf("hook1: expected 1 created event, got %d", hook1.getCreatedCount())
	}
	if hook2.getCreatedCount() != 1 {
		t.Errorf("hook2: expected 1 created event, got %d", hook2.getCreatedCount())
	}
}

func TestRegistry_PanicRecovery(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())

	panicHook := &mockOrderHook{shouldPanic: true}
	normalHook := &mockOrderHook{}

	registry.RegisterOrderHook(panicHook)
	registry.RegisterOrderHook(normalHook)

	ctx := context.Background()
	event := OrderCreatedEvent{Timestamp: time.Now(), TradeNo: "T789"}

	// Should not panic - the panic is recovered inside Emit.
	registry.EmitOrderCreated(ctx, event)

	if normalHook.getCreatedCount() != 1 {
		t.Errorf("normal hook should still receive event after panic, got %d events", normalHook.getCreatedCount())
	}
}

func TestRegistry_WebhookHooks(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())

	hook := &mockWebhookHook{}
	registry.RegisterWebhookHook(hook)

	ctx := context.Background()

	registry.EmitWebhookDelivered(ctx, WebhookDeliveredEvent{
		Timestamp: time.Now(),
		TradeNo:   "T123",
		URL:       "https://example.com/webhook",
		Attempt:   2,
		Duration:  50 * time.Millisecond,
	})

	if hook.getDeliveredCount() != 1 {
		t.Errorf("expected 1 delivered event, got %d", hook.getDeliveredCount())
	}
}

func TestRegistry_ConcurrentEmissions(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())

	hook := &mockOrderHook{}
	registry.RegisterOrderHook(hook)

	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			registry.EmitOrderCreated(ctx, OrderCreatedEvent{
				Timestamp: time.Now(),
				TradeNo:   "T" + string(rune('0'+id%10)),
			})
		}(i)
	}
	wg.Wait()

	if hook.getCreatedCount() != 100 {
		t.Errorf("expected 100 created events, got %d", hook.getCreatedCount())
	}
}
