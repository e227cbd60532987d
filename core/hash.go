package core

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"
)

// HashSize is the fixed width of every content digest used for event
// identity, signature binding and key derivation (spec.md §3).
const HashSize = 16

// Hash is a fixed-width 128-bit content digest.
type Hash [HashSize]byte

// HashRoutine selects the chain-wide hash routine. Every chain must pick one
// and stick with it: redo-log files carry no routine identifier, so
// switching routines on an existing log silently corrupts lookups.
type HashRoutine uint8

const (
	// HashBlake3 is the default routine (Blake3, truncated to 128 bits).
	HashBlake3 HashRoutine = iota
	// HashKeccak384 truncates a Keccak-384 digest to 128 bits.
	HashKeccak384
)

func (r HashRoutine) String() string {
	switch r {
	case HashBlake3:
		return "blake3"
	case HashKeccak384:
		return "keccak384"
	default:
		return fmt.Sprintf("hash-routine(%d)", uint8(r))
	}
}

// ComputeHash hashes b using the routine, returning a 128-bit digest.
func ComputeHash(routine HashRoutine, b []byte) Hash {
	switch routine {
	case HashKeccak384:
		sum := sha3.Sum384(b)
		var h Hash
		copy(h[:], sum[:HashSize])
		return h
	case HashBlake3:
		fallthrough
	default:
		sum := blake3.Sum256(b)
		var h Hash
		copy(h[:], sum[:HashSize])
		return h
	}
}

// CombineHashes hashes the concatenation of a and b under routine — used to
// derive event_hash = H(meta_hash || data_hash).
func CombineHashes(routine HashRoutine, a, b Hash) Hash {
	buf := make([]byte, 0, HashSize*2)
	buf = append(buf, a[:]...)
	buf = append(buf, b[:]...)
	return ComputeHash(routine, buf)
}

// Hex returns the full hexadecimal representation of the hash.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

// Short returns a shortened hex form (first 4 + last 4 hex chars), matching
// the teacher's Address.Short() convention.
func (h Hash) Short() string {
	full := h.Hex()
	if len(full) <= 8 {
		return full
	}
	return fmt.Sprintf("%s..%s", full[:4], full[len(full)-4:])
}

func (h Hash) String() string { return h.Hex() }

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool { return h == Hash{} }

// HashFromHex parses a hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("hash from hex: %w", err)
	}
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash from hex: want %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}
