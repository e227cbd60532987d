package core

import "testing"

func TestMetadataPrimaryKeyDataVsTombstone(t *testing.T) {
	var m Metadata
	m.Append(CoreMetadata{Kind: MetaData, Key: 7})
	key, tombstone, ok := m.PrimaryKey()
	if !ok || tombstone || key != 7 {
		t.Fatalf("got key=%d tombstone=%v ok=%v, want 7/false/true", key, tombstone, ok)
	}

	var t2 Metadata
	t2.Append(CoreMetadata{Kind: MetaTombstone, Key: 9})
	key, tombstone, ok = t2.PrimaryKey()
	if !ok || !tombstone || key != 9 {
		t.Fatalf("got key=%d tombstone=%v ok=%v, want 9/true/true", key, tombstone, ok)
	}
}

func TestMetadataDuplicateResolvesToLast(t *testing.T) {
	var m Metadata
	m.Append(CoreMetadata{Kind: MetaTimestamp, Timestamp: 1})
	m.Append(CoreMetadata{Kind: MetaTimestamp, Timestamp: 2})
	ts, ok := m.GetTimestamp()
	if !ok || ts != 2 {
		t.Fatalf("got ts=%d ok=%v, want 2/true", ts, ok)
	}
}

func TestMetadataNoPrimaryKey(t *testing.T) {
	var m Metadata
	m.Append(CoreMetadata{Kind: MetaTimestamp, Timestamp: 1})
	if _, _, ok := m.PrimaryKey(); ok {
		t.Fatalf("expected no primary key when neither Data nor Tombstone present")
	}
}

func TestOrWriteEveryoneDominates(t *testing.T) {
	everyone := WriteOption{Kind: WriteEveryone}
	specific := WriteOption{Kind: WriteSpecific, Specific: ComputeHash(HashBlake3, []byte("k"))}
	if got := OrWrite(everyone, specific); got.Kind != WriteEveryone {
		t.Fatalf("Everyone should dominate, got %s", got)
	}
	if got := OrWrite(specific, everyone); got.Kind != WriteEveryone {
		t.Fatalf("Everyone should dominate regardless of order, got %s", got)
	}
}

func TestOrWriteNobodyIsIdentity(t *testing.T) {
	nobody := WriteOption{Kind: WriteNobody}
	specific := WriteOption{Kind: WriteSpecific, Specific: ComputeHash(HashBlake3, []byte("k"))}
	got := OrWrite(nobody, specific)
	if got.Kind != WriteSpecific || got.Specific != specific.Specific {
		t.Fatalf("Nobody should be the identity element, got %s", got)
	}
}

func TestOrWriteUnionsIntoAnyOf(t *testing.T) {
	a := WriteOption{Kind: WriteSpecific, Specific: ComputeHash(HashBlake3, []byte("a"))}
	b := WriteOption{Kind: WriteSpecific, Specific: ComputeHash(HashBlake3, []byte("b"))}
	got := OrWrite(a, b)
	if got.Kind != WriteAnyOf || len(got.AnyOf) != 2 {
		t.Fatalf("expected AnyOf(2), got %s", got)
	}
}

func TestOrWriteInheritPassesThrough(t *testing.T) {
	inherit := WriteOption{Kind: WriteInherit}
	specific := WriteOption{Kind: WriteSpecific, Specific: ComputeHash(HashBlake3, []byte("k"))}
	if got := OrWrite(inherit, specific); got.Kind != WriteSpecific {
		t.Fatalf("Inherit should pass through the other operand, got %s", got)
	}
}
