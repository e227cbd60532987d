package core

// PublicKeyRegistry is a chain-persisted hash -> public key map, fed by
// PublicKey metadata events as they are accepted (spec.md §3, §9: "a sink
// must build a running hash -> public key map from observed PublicKey
// registration events"). TrustPlugin.Validate resolves signers against
// this registry rather than an event's own tags or the verifying party's
// session, so a third party with no private key of their own can still
// verify a historical signature.

import (
	"context"
	"sync"
)

// PublicKeyRegistry implements Sink.
type PublicKeyRegistry struct {
	routine HashRoutine

	mu   sync.RWMutex
	keys map[Hash][]byte
}

// NewPublicKeyRegistry returns an empty registry, hashing incoming keys
// under routine.
func NewPublicKeyRegistry(routine HashRoutine) *PublicKeyRegistry {
	return &PublicKeyRegistry{routine: routine, keys: make(map[Hash][]byte)}
}

// Feed absorbs every PublicKey entry on an accepted event (spec.md §9).
func (r *PublicKeyRegistry) Feed(ctx context.Context, header RawHeader, event Event) error {
	for _, pub := range event.Meta.PublicKeys() {
		r.Register(pub)
	}
	return nil
}

// Register records pub directly, bypassing the chain (used for genesis/root
// keys established out of band, before any PublicKey event exists to carry
// them).
func (r *PublicKeyRegistry) Register(pub []byte) Hash {
	h := ComputeHash(r.routine, pub)
	r.mu.Lock()
	r.keys[h] = append([]byte(nil), pub...)
	r.mu.Unlock()
	return h
}

// Lookup returns the public key registered under h, if any.
func (r *PublicKeyRegistry) Lookup(h Hash) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pub, ok := r.keys[h]
	return pub, ok
}
