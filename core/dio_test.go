package core

import (
	"context"
	"testing"
)

type testRecord struct {
	Name  string `msgpack:"name" json:"name"`
	Value int    `msgpack:"value" json:"value"`
}

func TestDioMutStoreCommitLoadRoundTrip(t *testing.T) {
	chain := openTestChain(t, &Pipeline{})
	ctx := context.Background()

	mut := NewDioMut[testRecord](chain, nil)
	row := mut.Store(testRecord{Name: "alice", Value: 1}, nil, WriteOption{}, ReadOption{})
	if row.State != RowDirty {
		t.Fatalf("expected new row to be dirty before commit, got %s", row.State)
	}

	if _, err := mut.Commit(ctx, ScopeOne); err != nil {
		t.Fatalf("commit: %v", err)
	}

	dio := NewDio[testRecord](chain, nil)
	loaded, err := dio.Load(ctx, row.Key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Value.Name != "alice" || loaded.Value.Value != 1 {
		t.Fatalf("got %+v, want {alice 1}", loaded.Value)
	}
}

func TestDioMutDeleteThenLoadNotFound(t *testing.T) {
	chain := openTestChain(t, &Pipeline{})
	ctx := context.Background()

	mut := NewDioMut[testRecord](chain, nil)
	row := mut.Store(testRecord{Name: "bob", Value: 2}, nil, WriteOption{}, ReadOption{})
	if _, err := mut.Commit(ctx, ScopeOne); err != nil {
		t.Fatalf("commit store: %v", err)
	}

	mut.Delete(row.Key)
	if _, err := mut.Commit(ctx, ScopeOne); err != nil {
		t.Fatalf("commit delete: %v", err)
	}

	dio := NewDio[testRecord](chain, nil)
	if _, err := dio.Load(ctx, row.Key); err == nil {
		t.Fatalf("expected load of a deleted key to fail")
	}
}

func TestDioMutAttachDetachCollection(t *testing.T) {
	chain := openTestChain(t, &Pipeline{})
	ctx := context.Background()

	mut := NewDioMut[testRecord](chain, nil)
	parentRow := mut.Store(testRecord{Name: "parent", Value: 0}, nil, WriteOption{}, ReadOption{})
	if _, err := mut.Commit(ctx, ScopeOne); err != nil {
		t.Fatalf("commit parent: %v", err)
	}

	parent := MetaParent{ParentID: parentRow.Key, CollectionID: 77}
	row := mut.Store(testRecord{Name: "child", Value: 1}, &parent, WriteOption{}, ReadOption{})
	if _, err := mut.Commit(ctx, ScopeOne); err != nil {
		t.Fatalf("commit: %v", err)
	}

	dio := NewDio[testRecord](chain, nil)
	children, err := dio.Children(ctx, 77)
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(children) != 1 || children[0].Key != row.Key {
		t.Fatalf("expected row attached to collection 77, got %v", children)
	}

	if err := mut.Detach(ctx, row.Key); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if _, err := mut.Commit(ctx, ScopeOne); err != nil {
		t.Fatalf("commit detach: %v", err)
	}

	children, err = dio.Children(ctx, 77)
	if err != nil {
		t.Fatalf("children after detach: %v", err)
	}
	if len(children) != 0 {
		t.Fatalf("expected no children after detach, got %v", children)
	}
}

// TestDioMutCommitWithTrustPluginSignsAndVerifies wires TrustPlugin and
// SigningLinter into a chain's pipeline and commits through DioMut instead
// of the bare &Pipeline{} the other tests use, exercising a root-key-gated
// row end to end (spec.md §8 scenario 2).
func TestDioMutCommitWithTrustPluginSignsAndVerifies(t *testing.T) {
	session := NewSession()
	root, err := GenerateSignKeyPair(SchemeFalcon512)
	if err != nil {
		t.Fatalf("generate root keypair: %v", err)
	}
	rootHash := session.AddSignKey(HashBlake3, root)

	registry := NewPublicKeyRegistry(HashBlake3)
	registry.Register(root.PublicKey)

	trust := NewTrustPlugin(session, HashBlake3, FormatMessagePack, SchemeFalcon512, registry)
	signer := NewSigningLinter(session, HashBlake3, FormatMessagePack)
	pipeline := &Pipeline{
		Linters:    []Linter{trust, signer},
		Validators: []Validator{trust},
		Sinks:      []Sink{registry},
	}

	chain := openTestChain(t, pipeline)
	ctx := context.Background()

	mut := NewDioMut[testRecord](chain, session)
	row := mut.Store(testRecord{Name: "root-owned", Value: 7}, nil, WriteOption{Kind: WriteSpecific, Specific: rootHash}, ReadOption{})
	if _, err := mut.Commit(ctx, ScopeOne); err != nil {
		t.Fatalf("commit: %v", err)
	}

	dio := NewDio[testRecord](chain, session)
	loaded, err := dio.Load(ctx, row.Key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Value.Name != "root-owned" || loaded.Value.Value != 7 {
		t.Fatalf("got %+v, want {root-owned 7}", loaded.Value)
	}
}

func TestDioMutTryLockExclusion(t *testing.T) {
	chain := openTestChain(t, &Pipeline{})
	mutA := NewDioMut[testRecord](chain, nil)
	mutB := NewDioMut[testRecord](chain, nil)

	if err := mutA.TryLock(5); err != nil {
		t.Fatalf("first lock should succeed: %v", err)
	}
	if err := mutB.TryLock(5); err == nil {
		t.Fatalf("second DioMut should not acquire an already-held lock")
	}
	mutA.Unlock(5)
	if err := mutB.TryLock(5); err != nil {
		t.Fatalf("lock should be free after the first DioMut releases it: %v", err)
	}
}
