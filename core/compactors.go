package core

// Default compactors shipped with the chain engine (spec.md §4.6).
// Grounded on original_source's compact/tombstone_compactor.rs (drop a key
// once its tombstone has been seen during the reverse walk) and
// compact/remove_duplicates.rs (drop every revision but the first one
// encountered walking backwards, i.e. the most recent).

// TombstoneCompactor drops a tombstoned key's entire history once its
// tombstone event has been observed, and drops the tombstone itself once
// it has done its job. A key with no tombstone is left for other
// compactors (or the keep-by-default rule) to decide.
type TombstoneCompactor struct {
	tombstoned map[PrimaryKey]struct{}
}

// NewTombstoneCompactor returns a ready-to-use tombstone compactor.
func NewTombstoneCompactor() *TombstoneCompactor {
	return &TombstoneCompactor{tombstoned: make(map[PrimaryKey]struct{})}
}

// Relevant implements Compactor.
func (c *TombstoneCompactor) Relevant(header RawHeader, _ map[PrimaryKey]struct{}) CompactVerdict {
	key, tombstone, ok := header.Meta.PrimaryKey()
	if !ok {
		return CompactAbstain
	}
	if tombstone {
		c.tombstoned[key] = struct{}{}
		return CompactForceDrop
	}
	if _, dead := c.tombstoned[key]; dead {
		return CompactForceDrop
	}
	return CompactAbstain
}

// Clone implements Compactor.
func (c *TombstoneCompactor) Clone() Compactor { return NewTombstoneCompactor() }

// DuplicateCompactor keeps only the newest revision of each primary key,
// dropping every older revision encountered walking the history backwards.
type DuplicateCompactor struct {
	seen map[PrimaryKey]struct{}
}

// NewDuplicateCompactor returns a ready-to-use duplicate compactor.
func NewDuplicateCompactor() *DuplicateCompactor {
	return &DuplicateCompactor{seen: make(map[PrimaryKey]struct{})}
}

// Relevant implements Compactor.
func (c *DuplicateCompactor) Relevant(header RawHeader, _ map[PrimaryKey]struct{}) CompactVerdict {
	key, _, ok := header.Meta.PrimaryKey()
	if !ok {
		return CompactAbstain
	}
	if _, already := c.seen[key]; already {
		return CompactDrop
	}
	c.seen[key] = struct{}{}
	return CompactKeep
}

// Clone implements Compactor.
func (c *DuplicateCompactor) Clone() Compactor { return NewDuplicateCompactor() }
