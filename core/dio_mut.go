package core

// DioMut[D] is the read-write typed working set over a chain (spec.md
// §5): store, store_with_key, delete, attach, detach, try_lock,
// try_lock_then_delete, and commit. Grounded on the teacher's wallet.go
// write path (stage balance changes in memory, flush them as one batch),
// generalised to the spec's richer per-row state machine.

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DioMut is a read-write, typed working set over a chain. It is not safe
// for concurrent use by multiple goroutines; each caller should use its
// own DioMut.
type DioMut[D any] struct {
	*Dio[D]

	owner   string
	dirty   map[PrimaryKey]*Row[D]
	pending []Event
}

// NewDioMut returns a read-write typed working set over chain.
func NewDioMut[D any](chain *Chain, session *Session) *DioMut[D] {
	return &DioMut[D]{
		Dio:   NewDio[D](chain, session),
		owner: uuid.NewString(),
		dirty: make(map[PrimaryKey]*Row[D]),
	}
}

func newPrimaryKey() PrimaryKey {
	id := uuid.New()
	return PrimaryKey(binary.BigEndian.Uint64(id[:8]))
}

// StoreWithKey stages value under an explicit primary key, overwriting
// any row already staged for that key in this working set (spec.md §5).
func (m *DioMut[D]) StoreWithKey(key PrimaryKey, value D, parent *MetaParent, write WriteOption, read ReadOption) *Row[D] {
	row := &Row[D]{Key: key, Value: value, State: RowDirty, Parent: parent, Write: write, Read: read}
	m.dirty[key] = row
	return row
}

// Store stages value under a freshly generated primary key (spec.md §5).
func (m *DioMut[D]) Store(value D, parent *MetaParent, write WriteOption, read ReadOption) *Row[D] {
	return m.StoreWithKey(newPrimaryKey(), value, parent, write, read)
}

// Delete stages a tombstone for key (spec.md §5). If key is already staged
// dirty in this working set, the dirty row is dropped in favor of the
// tombstone.
func (m *DioMut[D]) Delete(key PrimaryKey) {
	delete(m.dirty, key)
	m.dirty[key] = &Row[D]{Key: key, State: RowDeleted}
}

// Attach stages a parent change for key without altering its value: the
// row is loaded if not already staged, reattached to parent, and marked
// dirty (spec.md §5).
func (m *DioMut[D]) Attach(ctx context.Context, key PrimaryKey, parent MetaParent) error {
	row, err := m.stagedOrLoaded(ctx, key)
	if err != nil {
		return err
	}
	row.Parent = &parent
	row.MarkDirty()
	m.dirty[key] = row
	return nil
}

// Detach stages the removal of key's parent/collection membership, again
// without altering its value (spec.md §5).
func (m *DioMut[D]) Detach(ctx context.Context, key PrimaryKey) error {
	row, err := m.stagedOrLoaded(ctx, key)
	if err != nil {
		return err
	}
	row.Parent = nil
	row.MarkDirty()
	m.dirty[key] = row
	return nil
}

func (m *DioMut[D]) stagedOrLoaded(ctx context.Context, key PrimaryKey) (*Row[D], error) {
	if row, ok := m.dirty[key]; ok {
		return row, nil
	}
	return m.Dio.Load(ctx, key)
}

// TryLock acquires a pessimistic, chain-wide lock on key, returning
// ErrLockHeldElsewhere if another DioMut already holds it (spec.md §5).
func (m *DioMut[D]) TryLock(key PrimaryKey) error {
	if !m.chain.Locks().TryLock(key, m.owner) {
		return fmt.Errorf("%w: key=%d", ErrLockHeldElsewhere, key)
	}
	return nil
}

// TryLockThenDelete atomically locks key and, only if the lock succeeds,
// stages its deletion (spec.md §5 Locked -> LockedThenDelete).
func (m *DioMut[D]) TryLockThenDelete(key PrimaryKey) error {
	if err := m.TryLock(key); err != nil {
		return err
	}
	m.Delete(key)
	return nil
}

// Unlock releases a lock acquired by TryLock without staging any change.
func (m *DioMut[D]) Unlock(key PrimaryKey) {
	m.chain.Locks().Unlock(key, m.owner)
}

// Commit encodes every staged row into an event, writes them as one
// transaction at scope, and clears the working set (spec.md §5, §7).
// Deleted rows become Tombstone events; stored/attached/detached rows
// become Data events carrying the row's current parent/authorization.
func (m *DioMut[D]) Commit(ctx context.Context, scope TransactionScope) ([]RawHeader, error) {
	events := make([]Event, 0, len(m.dirty))
	detached := make([]PrimaryKey, 0)

	for key, row := range m.dirty {
		if row.State == RowDeleted {
			var meta Metadata
			meta.Append(CoreMetadata{Kind: MetaTombstone, Key: key})
			events = append(events, Event{Meta: meta})
			continue
		}

		var meta Metadata
		meta.Append(CoreMetadata{Kind: MetaData, Key: key})
		if row.Parent != nil {
			// A Parent tag may only be committed for a row whose parent
			// currently exists (spec.md §3).
			if !m.chain.Indices().Exists(row.Parent.ParentID) {
				return nil, &MissingParentError{Key: row.Parent.ParentID}
			}
			meta.Append(CoreMetadata{Kind: MetaParent, Parent: *row.Parent})
		} else {
			detached = append(detached, key)
		}
		if row.Write.Kind != WriteInherit || row.Read.Kind != ReadInherit {
			meta.Append(CoreMetadata{Kind: MetaAuthorization, Auth: MetaAuthorization{Read: row.Read, Write: row.Write}})
		}
		if row.Read.Kind != ReadInherit {
			meta.Append(CoreMetadata{Kind: MetaConfidentiality, Confidentiality: row.Read})
		}
		meta.Append(CoreMetadata{Kind: MetaTimestamp, Timestamp: time.Now().UnixMilli()})

		data, err := EncodeValue(m.format, row.Value)
		if err != nil {
			return nil, fmt.Errorf("encode key=%d: %w", key, err)
		}
		events = append(events, Event{Meta: meta, Data: data, HasData: true})
	}

	headers, err := m.chain.Write(ctx, scope, events...)
	if err != nil {
		return nil, err
	}

	for _, key := range detached {
		m.chain.Indices().Detach(key)
	}
	for _, row := range m.dirty {
		row.MarkCommitted()
	}
	m.dirty = make(map[PrimaryKey]*Row[D])
	m.chain.Locks().ReleaseAll(m.owner)
	return headers, nil
}
