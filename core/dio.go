package core

// Dio[D] is the read-only typed working set over a chain (spec.md §5):
// load a row by key, or list a collection's children, decoding payload
// bytes into the caller's Go type D. Grounded on the teacher's wallet.go
// read path (look up by key, decode the stored balance record).

import (
	"context"
	"fmt"
)

// Dio is a read-only, typed view over a chain.
type Dio[D any] struct {
	chain   *Chain
	session *Session
	format  SerializationFormat
}

// NewDio returns a read-only typed view over chain, using session for any
// decryption its trust plugin needs (spec.md §5, §6).
func NewDio[D any](chain *Chain, session *Session) *Dio[D] {
	if session == nil {
		session = chain.Session()
	}
	return &Dio[D]{chain: chain, session: session, format: chain.format}
}

// Load fetches the current row for key, decoding its payload into D. It
// returns ErrNotFound if key has no live event, which includes a key whose
// most recent event is a tombstone (spec.md §5).
func (d *Dio[D]) Load(ctx context.Context, key PrimaryKey) (*Row[D], error) {
	leaf, ok := d.chain.Indices().Leaf(key)
	if !ok {
		return nil, fmt.Errorf("%w: key=%d", ErrNotFound, key)
	}
	event, err := d.chain.Load(ctx, leaf.EventHash)
	if err != nil {
		return nil, fmt.Errorf("load key=%d: %w", key, err)
	}
	return d.decodeRow(key, event)
}

func (d *Dio[D]) decodeRow(key PrimaryKey, event Event) (*Row[D], error) {
	var value D
	if event.HasData {
		if err := DecodeValue(d.format, event.Data, &value); err != nil {
			return nil, fmt.Errorf("decode key=%d: %w", key, err)
		}
	}
	row := &Row[D]{Key: key, Value: value, State: RowClean}
	if par, ok := event.Meta.GetParent(); ok {
		row.Parent = &par
	}
	if auth, ok := event.Meta.GetAuthorization(); ok {
		row.Write = auth.Write
		row.Read = auth.Read
	}
	return row, nil
}

// Children returns every row currently attached to collection, in attach
// order (spec.md §3, §4.3).
func (d *Dio[D]) Children(ctx context.Context, collection uint64) ([]*Row[D], error) {
	keys := d.chain.Indices().Children(collection)
	out := make([]*Row[D], 0, len(keys))
	for _, key := range keys {
		row, err := d.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}
