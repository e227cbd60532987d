package core

// In-memory indices over chain history (spec.md §3, §4.3). Grounded on the
// teacher's own Ledger in-memory maps (blockIndex, UTXO, State) guarded by
// one sync.RWMutex in ledger.go.

import (
	"sort"
	"sync"
)

// EventLeaf is an index entry pointing at the latest event for a primary
// key (spec.md §3, GLOSSARY).
type EventLeaf struct {
	EventHash Hash
	CreatedMs int64
	UpdatedMs int64
}

// historyEntry is one row of the time-ordered history multimap.
type historyEntry struct {
	TimestampMs int64
	Header      RawHeader
}

// Indices holds the primary/parent/secondary/history structures the chain
// maintains over its redo log (spec.md §3, §4.3). All four are updated
// atomically in tombstone-removals-then-additions order so a single event
// carrying both cannot leave a dangling reference.
type Indices struct {
	mu sync.RWMutex

	primary   map[PrimaryKey]EventLeaf
	parent    map[PrimaryKey]MetaParent
	secondary map[uint64][]PrimaryKey
	history   []historyEntry // kept sorted by TimestampMs
}

// NewIndices returns an empty index set.
func NewIndices() *Indices {
	return &Indices{
		primary:   make(map[PrimaryKey]EventLeaf),
		parent:    make(map[PrimaryKey]MetaParent),
		secondary: make(map[uint64][]PrimaryKey),
	}
}

// Apply folds one accepted event's header into the indices, following the
// "tombstone-removals, then additions" ordering rule (spec.md §4.3).
func (ix *Indices) Apply(header RawHeader) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	key, tombstone, hasKey := header.Meta.PrimaryKey()
	ts, hasTs := header.Meta.GetTimestamp()

	if tombstone && hasKey {
		ix.removeKey(key)
	}

	if hasKey && !tombstone {
		leaf, existed := ix.primary[key]
		created := ts
		if existed {
			created = leaf.CreatedMs
		}
		ix.primary[key] = EventLeaf{EventHash: header.EventHash, CreatedMs: created, UpdatedMs: ts}

		if par, ok := header.Meta.GetParent(); ok {
			ix.rewireParent(key, par)
		}
	}

	if hasTs && !header.Meta.IsDelayedUpload() {
		ix.insertHistory(historyEntry{TimestampMs: ts, Header: header})
	}
}

func (ix *Indices) removeKey(key PrimaryKey) {
	delete(ix.primary, key)
	if par, ok := ix.parent[key]; ok {
		ix.detachFromSecondary(key, par.CollectionID)
		delete(ix.parent, key)
	}
}

func (ix *Indices) rewireParent(key PrimaryKey, par MetaParent) {
	if old, ok := ix.parent[key]; ok && old.CollectionID != par.CollectionID {
		ix.detachFromSecondary(key, old.CollectionID)
	}
	ix.parent[key] = par
	ix.attachToSecondary(key, par.CollectionID)
}

func (ix *Indices) attachToSecondary(key PrimaryKey, collection uint64) {
	members := ix.secondary[collection]
	for _, k := range members {
		if k == key {
			return
		}
	}
	ix.secondary[collection] = append(members, key)
}

func (ix *Indices) detachFromSecondary(key PrimaryKey, collection uint64) {
	members := ix.secondary[collection]
	for i, k := range members {
		if k == key {
			ix.secondary[collection] = append(members[:i], members[i+1:]...)
			return
		}
	}
}

func (ix *Indices) insertHistory(e historyEntry) {
	i := sort.Search(len(ix.history), func(i int) bool { return ix.history[i].TimestampMs >= e.TimestampMs })
	ix.history = append(ix.history, historyEntry{})
	copy(ix.history[i+1:], ix.history[i:])
	ix.history[i] = e
}

// Leaf returns the current leaf for key.
func (ix *Indices) Leaf(key PrimaryKey) (EventLeaf, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	leaf, ok := ix.primary[key]
	return leaf, ok
}

// Parent returns the current parent link for key.
func (ix *Indices) Parent(key PrimaryKey) (MetaParent, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	p, ok := ix.parent[key]
	return p, ok
}

// Children returns the members of a collection in attach order.
func (ix *Indices) Children(collection uint64) []PrimaryKey {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]PrimaryKey, len(ix.secondary[collection]))
	copy(out, ix.secondary[collection])
	return out
}

// Exists reports whether key currently has a live (non-tombstoned) event.
func (ix *Indices) Exists(key PrimaryKey) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.primary[key]
	return ok
}

// History returns every history entry in forward chronological order.
func (ix *Indices) History() []RawHeader {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]RawHeader, len(ix.history))
	for i, e := range ix.history {
		out[i] = e.Header
	}
	return out
}

// ReverseHistory returns every history entry in reverse chronological
// order, the scan direction compaction uses (spec.md §4.6 step 3).
func (ix *Indices) ReverseHistory() []RawHeader {
	fwd := ix.History()
	out := make([]RawHeader, len(fwd))
	for i, h := range fwd {
		out[len(fwd)-1-i] = h
	}
	return out
}

// Detach explicitly removes key's parent/collection membership without
// touching its primary entry, used by DioMut.Commit once an event for a
// row staged with DioMut.Detach has been committed (spec.md §5 "detach"). A plain Apply cannot
// express this because an event carrying no Parent tag otherwise leaves
// an existing parent link untouched.
func (ix *Indices) Detach(key PrimaryKey) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if par, ok := ix.parent[key]; ok {
		ix.detachFromSecondary(key, par.CollectionID)
		delete(ix.parent, key)
	}
}

// Count returns the number of live primary keys.
func (ix *Indices) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.primary)
}
