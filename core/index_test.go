package core

import "testing"

func headerFor(key PrimaryKey, tombstone bool, parent *MetaParent, ts int64) RawHeader {
	var m Metadata
	if tombstone {
		m.Append(CoreMetadata{Kind: MetaTombstone, Key: key})
	} else {
		m.Append(CoreMetadata{Kind: MetaData, Key: key})
		if parent != nil {
			m.Append(CoreMetadata{Kind: MetaParent, Parent: *parent})
		}
	}
	m.Append(CoreMetadata{Kind: MetaTimestamp, Timestamp: ts})
	return RawHeader{EventHash: ComputeHash(HashBlake3, []byte{byte(key)}), Meta: m}
}

func TestIndicesApplyAndTombstoneRemoves(t *testing.T) {
	ix := NewIndices()
	ix.Apply(headerFor(1, false, nil, 100))
	if !ix.Exists(1) {
		t.Fatalf("expected key 1 to exist after a Data event")
	}

	ix.Apply(headerFor(1, true, nil, 200))
	if ix.Exists(1) {
		t.Fatalf("expected key 1 to be gone after its tombstone")
	}
}

func TestIndicesParentAndSecondary(t *testing.T) {
	ix := NewIndices()
	parent := MetaParent{ParentID: 10, CollectionID: 99}
	ix.Apply(headerFor(1, false, &parent, 100))
	ix.Apply(headerFor(2, false, &parent, 101))

	children := ix.Children(99)
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}

	ix.Detach(1)
	children = ix.Children(99)
	if len(children) != 1 || children[0] != 2 {
		t.Fatalf("expected only key 2 to remain attached, got %v", children)
	}
}

func TestIndicesHistoryOrdering(t *testing.T) {
	ix := NewIndices()
	ix.Apply(headerFor(1, false, nil, 300))
	ix.Apply(headerFor(2, false, nil, 100))
	ix.Apply(headerFor(3, false, nil, 200))

	history := ix.History()
	if len(history) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(history))
	}
	prev := int64(-1)
	for _, h := range history {
		ts, _ := h.Meta.GetTimestamp()
		if ts < prev {
			t.Fatalf("history not in ascending order: %v", history)
		}
		prev = ts
	}

	reverse := ix.ReverseHistory()
	first, _ := reverse[0].Meta.GetTimestamp()
	if first != 300 {
		t.Fatalf("expected reverse history to start with the newest entry, got %d", first)
	}
}

func TestIndicesCount(t *testing.T) {
	ix := NewIndices()
	ix.Apply(headerFor(1, false, nil, 1))
	ix.Apply(headerFor(2, false, nil, 2))
	if ix.Count() != 2 {
		t.Fatalf("expected count 2, got %d", ix.Count())
	}
	ix.Apply(headerFor(1, true, nil, 3))
	if ix.Count() != 1 {
		t.Fatalf("expected count 1 after tombstone, got %d", ix.Count())
	}
}
