package core

// Flip implements the redo log's compacting rewrite operation (spec.md
// §4.1 begin_flip/copy_event/finish_flip, §4.6 compaction steps). Grounded
// on the teacher's snapshot()/prune() pair in ledger.go, which truncates and
// rewrites the WAL around a retained block window; a flip generalises that
// to an arbitrary kept-event set decided by the compactor pipeline instead
// of a fixed retention window.

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
)

// Flip represents an in-progress compaction: a twin redo log file being
// populated from the live one while new writes continue to be accepted and
// queued for replay once the twin takes over.
type Flip struct {
	src *RedoLog
	dst *RedoLog

	mu       sync.Mutex
	deferred []deferredWrite
	active   bool
}

type deferredWrite struct {
	hash  Hash
	event Event
}

// BeginFlip opens a twin file (path + ".flip") with a fresh header and
// starts queueing concurrent writes for later replay (spec.md §4.1, §4.6
// step 1).
func (rl *RedoLog) BeginFlip(newHeader []byte) (*Flip, error) {
	twinPath := rl.path + ".flip"
	dst, _, err := OpenRedoLog(twinPath, true, newHeader, rl.hash, rl.format, rl.logger)
	if err != nil {
		return nil, fmt.Errorf("begin flip: %w", err)
	}
	return &Flip{src: rl, dst: dst, active: true}, nil
}

// CopyEvent copies one event's bytes verbatim from the flip's source log
// into the twin, returning its new offset (spec.md §4.1 copy_event). The
// bytes are copied as written rather than re-encoded, so format_code and
// byte layout survive compaction unchanged.
func (f *Flip) CopyEvent(hash Hash) (int64, error) {
	f.src.writeMu.Lock()
	offset, ok := f.src.offsets[hash]
	f.src.writeMu.Unlock()
	if !ok {
		return 0, fmt.Errorf("copy event: %w: %s", ErrNotFoundByHash, hash.Short())
	}

	raw, err := f.src.rawRecordAt(offset)
	if err != nil {
		return 0, fmt.Errorf("copy event: %w", err)
	}

	f.dst.writeMu.Lock()
	defer f.dst.writeMu.Unlock()
	dstOffset, err := f.dst.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("tell flip twin: %w", err)
	}
	dstOffset += int64(f.dst.writer.Buffered())
	if _, err := f.dst.writer.Write(raw); err != nil {
		return 0, fmt.Errorf("write flip twin: %w", err)
	}
	f.dst.offsets[hash] = dstOffset
	return dstOffset, nil
}

// rawRecordAt reads the exact on-disk bytes of the record starting at
// offset, without decoding its metadata/payload.
func (rl *RedoLog) rawRecordAt(offset int64) ([]byte, error) {
	rl.readMu.Lock()
	defer rl.readMu.Unlock()
	if _, err := rl.readFile.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek raw record: %w", err)
	}
	r := bufio.NewReader(rl.readFile)

	var head [5]byte // format_code + meta_len
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, fmt.Errorf("read raw record head: %w", err)
	}
	metaLen := binary.BigEndian.Uint32(head[1:5])
	meta := make([]byte, metaLen)
	if _, err := io.ReadFull(r, meta); err != nil {
		return nil, fmt.Errorf("read raw meta: %w", err)
	}
	hasData, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read raw has_data: %w", err)
	}

	buf := make([]byte, 0, len(head)+len(meta)+1)
	buf = append(buf, head[:]...)
	buf = append(buf, meta...)
	buf = append(buf, hasData)

	if hasData == 1 {
		var dlenBuf [4]byte
		if _, err := io.ReadFull(r, dlenBuf[:]); err != nil {
			return nil, fmt.Errorf("read raw data len: %w", err)
		}
		dlen := binary.BigEndian.Uint32(dlenBuf[:])
		data := make([]byte, dlen)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("read raw data: %w", err)
		}
		buf = append(buf, dlenBuf[:]...)
		buf = append(buf, data...)
	}
	return buf, nil
}

// QueueDeferred records a write accepted while the flip is in progress, so
// FinishFlip can replay it into the twin.
func (f *Flip) QueueDeferred(hash Hash, event Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deferred = append(f.deferred, deferredWrite{hash: hash, event: event})
}

// FinishFlip flushes the twin, drains deferred writes into it (invoking
// callback for each so the caller can re-index it at its new offset), and
// renames the twin file over the live one (spec.md §4.1 finish_flip, §4.6
// step 6). It closes the old log itself and returns the twin, reopened at
// the live path, as the chain's new live log.
func (f *Flip) FinishFlip(callback func(hash Hash, event Event, offset int64) error) (*RedoLog, error) {
	f.mu.Lock()
	deferred := f.deferred
	f.deferred = nil
	f.active = false
	f.mu.Unlock()

	if err := f.dst.Flush(); err != nil {
		return nil, fmt.Errorf("finish flip: flush twin: %w", err)
	}

	for _, dw := range deferred {
		_, offset, err := f.dst.Write(dw.event)
		if err != nil {
			return nil, fmt.Errorf("finish flip: replay deferred %s: %w", dw.hash.Short(), err)
		}
		if callback != nil {
			if err := callback(dw.hash, dw.event, offset); err != nil {
				return nil, fmt.Errorf("finish flip: callback for %s: %w", dw.hash.Short(), err)
			}
		}
	}
	if err := f.dst.Flush(); err != nil {
		return nil, fmt.Errorf("finish flip: final flush: %w", err)
	}

	if err := f.src.Close(); err != nil {
		return nil, fmt.Errorf("finish flip: close old log: %w", err)
	}
	if err := f.dst.Close(); err != nil {
		return nil, fmt.Errorf("finish flip: close twin: %w", err)
	}
	if err := os.Rename(f.dst.path, f.src.path); err != nil {
		return nil, fmt.Errorf("finish flip: rename twin over live: %w", err)
	}

	reopened, _, err := OpenRedoLog(f.src.path, false, nil, f.dst.hash, f.dst.format, f.dst.logger)
	if err != nil {
		return nil, fmt.Errorf("finish flip: reopen live log: %w", err)
	}
	reopened.metrics.Flips = f.src.metrics.Flips + 1

	zap.L().Sugar().Infow("redo log flip complete", "path", f.src.path, "deferred", len(deferred))
	return reopened, nil
}
