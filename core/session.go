package core

// Session is a key bag a caller presents to a chain or a DIO: sign
// keypairs and KEM keypairs keyed by the hash of their public half, and
// symmetric keys keyed by the hash the caller registers them under
// (spec.md §3, §6). The pipeline only ever reads from a
// Session; it is never mutated as a side effect of processing an event.

import "sync"

// SignKeyPair is a Falcon keypair usable to sign events (spec.md §6).
type SignKeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
	Scheme     SignScheme
}

// SymmetricKey is a shared secret used to encrypt/decrypt confidential
// event payloads (spec.md §6).
type SymmetricKey struct {
	Key []byte
}

// KemKeyPair is a key-encapsulation keypair used to wrap symmetric keys for
// delivery to a specific reader (spec.md §6, DOMAIN STACK).
type KemKeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// Session holds every key a caller may need while reading or writing a
// chain: keypairs by the Hash of their public half, symmetric keys by the
// Hash they were added under.
type Session struct {
	mu sync.RWMutex

	signKeys   map[Hash]SignKeyPair
	symmetric  map[Hash]SymmetricKey
	kemKeys    map[Hash]KemKeyPair
}

// NewSession returns an empty key bag.
func NewSession() *Session {
	return &Session{
		signKeys:  make(map[Hash]SignKeyPair),
		symmetric: make(map[Hash]SymmetricKey),
		kemKeys:   make(map[Hash]KemKeyPair),
	}
}

// AddSignKey registers a sign keypair under the hash of its public key.
func (s *Session) AddSignKey(routine HashRoutine, kp SignKeyPair) Hash {
	h := ComputeHash(routine, kp.PublicKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signKeys[h] = kp
	return h
}

// SignKey looks up a sign keypair by its public key hash.
func (s *Session) SignKey(h Hash) (SignKeyPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kp, ok := s.signKeys[h]
	return kp, ok
}

// SignKeys returns every sign keypair this session holds, used when the
// trust plugin must find which of the caller's keys satisfy a write
// option (spec.md §4.5).
func (s *Session) SignKeys() []SignKeyPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SignKeyPair, 0, len(s.signKeys))
	for _, kp := range s.signKeys {
		out = append(out, kp)
	}
	return out
}

// AddSymmetricKey registers a symmetric key under the given hash (typically
// the hash of the read option it corresponds to).
func (s *Session) AddSymmetricKey(h Hash, key SymmetricKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symmetric[h] = key
}

// SymmetricKey looks up a symmetric key by its hash.
func (s *Session) SymmetricKey(h Hash) (SymmetricKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.symmetric[h]
	return k, ok
}

// AddKemKey registers a KEM keypair under the hash of its public key.
func (s *Session) AddKemKey(routine HashRoutine, kp KemKeyPair) Hash {
	h := ComputeHash(routine, kp.PublicKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kemKeys[h] = kp
	return h
}

// KemKey looks up a KEM keypair by its public key hash.
func (s *Session) KemKey(h Hash) (KemKeyPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kp, ok := s.kemKeys[h]
	return kp, ok
}
