package core

import "testing"

func TestTombstoneCompactorDropsTombstonedHistory(t *testing.T) {
	c := NewTombstoneCompactor()
	seen := map[PrimaryKey]struct{}{}

	// reverse-chronological: tombstone seen first, then the older writes.
	tomb := headerFor(1, true, nil, 300)
	older := headerFor(1, false, nil, 100)

	if v := c.Relevant(tomb, seen); v != CompactForceDrop {
		t.Fatalf("tombstone itself should force-drop, got %v", v)
	}
	if v := c.Relevant(older, seen); v != CompactForceDrop {
		t.Fatalf("history behind an observed tombstone should force-drop, got %v", v)
	}
}

func TestTombstoneCompactorLeavesLiveKeysAlone(t *testing.T) {
	c := NewTombstoneCompactor()
	seen := map[PrimaryKey]struct{}{}
	live := headerFor(5, false, nil, 100)
	if v := c.Relevant(live, seen); v != CompactAbstain {
		t.Fatalf("a key with no tombstone should be left to other compactors, got %v", v)
	}
}

func TestDuplicateCompactorKeepsNewestOnly(t *testing.T) {
	c := NewDuplicateCompactor()
	seen := map[PrimaryKey]struct{}{}

	newest := headerFor(1, false, nil, 300)
	older := headerFor(1, false, nil, 100)

	if v := c.Relevant(newest, seen); v != CompactKeep {
		t.Fatalf("first revision seen walking backwards should be kept, got %v", v)
	}
	if v := c.Relevant(older, seen); v != CompactDrop {
		t.Fatalf("older revision of the same key should be dropped, got %v", v)
	}
}

func TestCompactorCloneResetsState(t *testing.T) {
	c := NewDuplicateCompactor()
	seen := map[PrimaryKey]struct{}{}
	c.Relevant(headerFor(1, false, nil, 1), seen)

	fresh := c.Clone().(*DuplicateCompactor)
	if v := fresh.Relevant(headerFor(1, false, nil, 1), seen); v != CompactKeep {
		t.Fatalf("a cloned compactor should not carry over prior state, got %v", v)
	}
}
