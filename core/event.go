package core

import "fmt"

// Event is the atomic unit written to a chain: a metadata header plus an
// optional payload (spec.md §3). Events are never modified in place.
type Event struct {
	Meta    Metadata
	Data    []byte
	HasData bool
}

// RawHeader is the decoded form of one redo-log record, used by indices and
// history scanning without needing the payload bytes (spec.md §4.1, §4.3).
type RawHeader struct {
	EventHash Hash
	Meta      Metadata
	Format    SerializationFormat
	DataLen   uint32
}

// metaHash hashes the serialized metadata bytes under routine. Signature
// entries are excluded before hashing: a signature cannot certify its own
// bytes, and sig_hash must still equal event_hash once the signature is
// appended (spec.md §3, §6).
func metaHash(routine HashRoutine, format SerializationFormat, meta Metadata) (Hash, []byte, error) {
	entries := make([]CoreMetadata, 0, len(meta.Entries))
	for _, e := range meta.Entries {
		if e.Kind != MetaSignature {
			entries = append(entries, e)
		}
	}
	b, err := EncodeValue(format, Metadata{Entries: entries})
	if err != nil {
		return Hash{}, nil, fmt.Errorf("encode metadata: %w", err)
	}
	return ComputeHash(routine, b), b, nil
}

// dataHash hashes the payload bytes under routine.
func dataHash(routine HashRoutine, data []byte) Hash {
	return ComputeHash(routine, data)
}

// EventHash computes event_hash = meta_hash if there is no payload, else
// H(meta_hash || data_hash) (spec.md §3, §4.2, exact).
func EventHash(routine HashRoutine, format SerializationFormat, e Event) (Hash, error) {
	mh, _, err := metaHash(routine, format, e.Meta)
	if err != nil {
		return Hash{}, err
	}
	if !e.HasData {
		return mh, nil
	}
	dh := dataHash(routine, e.Data)
	return CombineHashes(routine, mh, dh), nil
}

// SigHash is the hash that a Signature metadata entry must cover. It always
// equals the event hash (spec.md §4.2).
func SigHash(routine HashRoutine, format SerializationFormat, e Event) (Hash, error) {
	return EventHash(routine, format, e)
}
