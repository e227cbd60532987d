package core

import (
	"os"
	"testing"

	"ledgerchain/internal/testutil"
)

func newTestMetaEvent(key PrimaryKey, payload string) Event {
	var m Metadata
	m.Append(CoreMetadata{Kind: MetaData, Key: key})
	if payload == "" {
		return Event{Meta: m}
	}
	return Event{Meta: m, Data: []byte(payload), HasData: true}
}

func TestRedoLogWriteLoadRoundTrip(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	defer sb.Cleanup()

	hdr, err := NewChainHeaderBytes(Hash{})
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	rl, headers, err := OpenRedoLog(sb.Path("chain.redo"), true, hdr, HashBlake3, FormatMessagePack, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rl.Close()
	if len(headers) != 0 {
		t.Fatalf("expected no headers on a fresh log, got %d", len(headers))
	}

	event := newTestMetaEvent(1, "hello world")
	hash, _, err := rl.Write(event)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := rl.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	loaded, err := rl.Load(hash)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(loaded.Data) != "hello world" {
		t.Fatalf("got %q, want %q", loaded.Data, "hello world")
	}
}

func TestRedoLogReplaysOnReopen(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	defer sb.Cleanup()
	path := sb.Path("chain.redo")
	hdr, _ := NewChainHeaderBytes(Hash{})

	rl, _, err := OpenRedoLog(path, true, hdr, HashBlake3, FormatMessagePack, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, _, err := rl.Write(newTestMetaEvent(1, "a")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := rl.Write(newTestMetaEvent(2, "b")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := rl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rl2, headers, err := OpenRedoLog(path, false, nil, HashBlake3, FormatMessagePack, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer rl2.Close()
	if len(headers) != 2 {
		t.Fatalf("expected 2 replayed headers, got %d", len(headers))
	}
}

func TestRedoLogTornTailToleratesShortRecord(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	defer sb.Cleanup()
	path := sb.Path("chain.redo")
	hdr, _ := NewChainHeaderBytes(Hash{})

	rl, _, err := OpenRedoLog(path, true, hdr, HashBlake3, FormatMessagePack, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, _, err := rl.Write(newTestMetaEvent(1, "complete record")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := rl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Simulate a crash mid-write: append a truncated record tail.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("reopen for append: %v", err)
	}
	if _, err := f.Write([]byte{byte(FormatMessagePack), 0x00, 0x00, 0x00}); err != nil {
		t.Fatalf("append torn bytes: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close append handle: %v", err)
	}

	rl2, headers, err := OpenRedoLog(path, false, nil, HashBlake3, FormatMessagePack, nil)
	if err != nil {
		t.Fatalf("reopen after torn tail: %v", err)
	}
	defer rl2.Close()
	if len(headers) != 1 {
		t.Fatalf("expected the one complete record to survive, got %d", len(headers))
	}
}
