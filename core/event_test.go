package core

import "testing"

func TestEventHashWithoutData(t *testing.T) {
	var m Metadata
	m.Append(CoreMetadata{Kind: MetaData, Key: 1})
	event := Event{Meta: m}

	h1, err := EventHash(HashBlake3, FormatMessagePack, event)
	if err != nil {
		t.Fatalf("EventHash: %v", err)
	}
	mh, _, err := metaHash(HashBlake3, FormatMessagePack, m)
	if err != nil {
		t.Fatalf("metaHash: %v", err)
	}
	if h1 != mh {
		t.Fatalf("event hash without payload should equal meta hash")
	}
}

func TestEventHashWithDataCombinesBothHashes(t *testing.T) {
	var m Metadata
	m.Append(CoreMetadata{Kind: MetaData, Key: 1})
	event := Event{Meta: m, Data: []byte("payload"), HasData: true}

	h, err := EventHash(HashBlake3, FormatMessagePack, event)
	if err != nil {
		t.Fatalf("EventHash: %v", err)
	}
	mh, _, _ := metaHash(HashBlake3, FormatMessagePack, m)
	dh := dataHash(HashBlake3, event.Data)
	want := CombineHashes(HashBlake3, mh, dh)
	if h != want {
		t.Fatalf("event hash mismatch: got %s want %s", h.Hex(), want.Hex())
	}
}

func TestSigHashEqualsEventHash(t *testing.T) {
	var m Metadata
	m.Append(CoreMetadata{Kind: MetaData, Key: 2})
	event := Event{Meta: m, Data: []byte("x"), HasData: true}

	eh, _ := EventHash(HashBlake3, FormatJSON, event)
	sh, _ := SigHash(HashBlake3, FormatJSON, event)
	if eh != sh {
		t.Fatalf("sig hash must equal event hash")
	}
}
