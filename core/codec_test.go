package core

import "testing"

func TestEncodeDecodeValueEachFormat(t *testing.T) {
	meta := Metadata{Entries: []CoreMetadata{
		{Kind: MetaData, Key: 42},
		{Kind: MetaTimestamp, Timestamp: 1234},
	}}

	for _, format := range []SerializationFormat{FormatMessagePack, FormatJSON, FormatGob} {
		b, err := EncodeValue(format, meta)
		if err != nil {
			t.Fatalf("%s encode: %v", format, err)
		}
		var out Metadata
		if err := DecodeValue(format, b, &out); err != nil {
			t.Fatalf("%s decode: %v", format, err)
		}
		if len(out.Entries) != len(meta.Entries) {
			t.Fatalf("%s: entry count mismatch: got %d want %d", format, len(out.Entries), len(meta.Entries))
		}
		if out.Entries[0].Key != 42 || out.Entries[1].Timestamp != 1234 {
			t.Fatalf("%s: round trip lost data: %+v", format, out)
		}
	}
}

func TestEncodeValueInvalidFormat(t *testing.T) {
	if _, err := EncodeValue(SerializationFormat(99), Metadata{}); err == nil {
		t.Fatalf("expected error for invalid format code")
	}
}
