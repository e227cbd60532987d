package core

// Row is the typed, dirtiness-tracked wrapper DIO hands back for each
// primary key (spec.md §5). Grounded on the teacher's wallet.go in-memory
// balance cache, which tracks a loaded/modified/flushed lifecycle per
// account the same shape Row tracks per primary key.

import "fmt"

// RowState is a row's position in the Clean -> Dirty -> Committed, or
// Clean -> Locked -> LockedThenDelete -> Unlocked, lifecycles (spec.md §5).
type RowState uint8

const (
	RowClean RowState = iota
	RowDirty
	RowCommitted
	RowLocked
	RowLockedThenDelete
	RowUnlocked
	RowDeleted
)

func (s RowState) String() string {
	switch s {
	case RowDirty:
		return "dirty"
	case RowCommitted:
		return "committed"
	case RowLocked:
		return "locked"
	case RowLockedThenDelete:
		return "locked_then_delete"
	case RowUnlocked:
		return "unlocked"
	case RowDeleted:
		return "deleted"
	default:
		return "clean"
	}
}

// Row[D] is one typed value loaded from (or staged for) a chain, identified
// by its PrimaryKey (spec.md §5).
type Row[D any] struct {
	Key    PrimaryKey
	Value  D
	State  RowState
	Parent *MetaParent
	Write  WriteOption
	Read   ReadOption

	origHash Hash
}

// MarkDirty transitions a clean row to dirty, the state a Store call puts
// it in (spec.md §5).
func (r *Row[D]) MarkDirty() {
	if r.State == RowClean {
		r.State = RowDirty
	}
}

// MarkCommitted transitions a dirty row to committed once its event has
// been durably written (spec.md §5).
func (r *Row[D]) MarkCommitted() {
	r.State = RowCommitted
}

// CanTransition reports whether the given state change is legal under the
// row lifecycle (spec.md §5): Clean->Dirty->Committed,
// Clean->Locked->LockedThenDelete->Unlocked or ->Committed,
// Locked->Unlocked, and Clean->Deleted are the only paths.
func (r *Row[D]) CanTransition(to RowState) error {
	switch {
	case r.State == RowClean && (to == RowDirty || to == RowLocked || to == RowDeleted):
		return nil
	case r.State == RowDirty && to == RowCommitted:
		return nil
	case r.State == RowLocked && (to == RowLockedThenDelete || to == RowUnlocked):
		return nil
	case r.State == RowLockedThenDelete && (to == RowCommitted || to == RowUnlocked):
		return nil
	default:
		return fmt.Errorf("row %d: illegal state transition %s -> %s", r.Key, r.State, to)
	}
}
