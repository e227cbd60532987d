package core

// ZstdTransformer compresses event payloads before they reach the redo log
// and decompresses them on load (spec.md §4.4, DOMAIN STACK). It runs
// before the trust plugin's encryption step outbound, and after decryption
// inbound, so compression always sees plaintext.

import (
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// ZstdTransformer is a Transformer that compresses/decompresses event
// payload bytes, leaving metadata untouched.
type ZstdTransformer struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstdTransformer builds a transformer with reusable encoder/decoder
// state.
func NewZstdTransformer() (*ZstdTransformer, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &ZstdTransformer{encoder: enc, decoder: dec}, nil
}

// Outbound implements Transformer.
func (z *ZstdTransformer) Outbound(_ context.Context, event Event) (Event, error) {
	if !event.HasData || len(event.Data) == 0 {
		return event, nil
	}
	event.Data = z.encoder.EncodeAll(event.Data, nil)
	return event, nil
}

// Inbound implements Transformer.
func (z *ZstdTransformer) Inbound(_ context.Context, event Event) (Event, error) {
	if !event.HasData || len(event.Data) == 0 {
		return event, nil
	}
	out, err := z.decoder.DecodeAll(event.Data, nil)
	if err != nil {
		return event, fmt.Errorf("zstd decode: %w", err)
	}
	event.Data = out
	return event, nil
}

// Close releases the decoder's background goroutines.
func (z *ZstdTransformer) Close() {
	z.decoder.Close()
}
