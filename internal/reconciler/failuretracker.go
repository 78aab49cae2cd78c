package reconciler

import "sync"

// FailureTracker counts consecutive wallet query failures per credential.
// It is owned by the Reconciler and injected rather than kept as package
// state, so tests can observe it directly instead of reaching into globals.
type FailureTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewFailureTracker constructs an empty tracker.
func NewFailureTracker() *FailureTracker {
	return &FailureTracker{counts: make(map[string]int)}
}

// RecordFailure increments the consecutive-failure count for credentialID
// and returns the new count.
func (t *FailureTracker) RecordFailure(credentialID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[credentialID]++
	return t.counts[credentialID]
}

// RecordSuccess resets the consecutive-failure count for credentialID.
func (t *FailureTracker) RecordSuccess(credentialID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, credentialID)
}
