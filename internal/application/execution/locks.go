package execution

import "sync"

// keyLocks is the in-flight execution set keyed by (pair, direction).
// TryAcquire either claims the key or reports it busy — callers reject
// busy keys immediately instead of queueing, which bounds duplicate
// signals to exactly one trade per key per execution window. A per-key
// table rather than one global lock, so unrelated pairs are never
// serialized against each other.
type keyLocks struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func newKeyLocks() *keyLocks {
	return &keyLocks{inFlight: make(map[string]struct{})}
}

// TryAcquire claims key, returning false when an execution already holds it.
func (k *keyLocks) TryAcquire(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, busy := k.inFlight[key]; busy {
		return false
	}
	k.inFlight[key] = struct{}{}
	return true
}

// Release frees key for the next execution.
func (k *keyLocks) Release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.inFlight, key)
}
