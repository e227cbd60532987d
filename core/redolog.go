package core

// Package-internal append-only redo log: the on-disk event journal
// described by spec.md §4.1/§6. Grounded on the teacher's WAL handling in
// ledger.go (NewLedger's scanner-based replay, applyBlock's append+fsync,
// snapshot's truncate-and-rewrite) generalised from newline-delimited JSON
// blocks to length-prefixed, content-addressed event records, and on
// storage.go's diskLRU for the flush/read cache shape.

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	redoMagic          = "RED"
	redoVersionCurrent = byte('1')
	redoVersionLegacy  = byte('O')

	readCacheTTL = 30 * time.Second
)

// ChainHeader is the chain-specific inner header stored right after the
// redo-log's outer magic/version (spec.md §6): a JSON blob carrying an
// anti-replay entropy salt. OpenChain writes ChainConfig.RootEntropy into a
// new log; a flip writes its twin with the zero Hash as entropy.
type ChainHeader struct {
	Entropy Hash `json:"entropy"`
}

// RedoLogMetrics tallies counters useful for tests and the inspection CLI;
// not part of the on-disk format.
type RedoLogMetrics struct {
	BytesWritten uint64
	Writes       uint64
	Flushes      uint64
	Flips        uint64
	CacheHits    uint64
	CacheMisses  uint64
}

type cacheEntry struct {
	event Event
	at    time.Time
}

// RedoLog is the append-only, content-addressed event journal backing one
// chain (spec.md §4.1).
type RedoLog struct {
	path   string
	format SerializationFormat
	hash   HashRoutine
	logger *logrus.Logger

	writeMu sync.Mutex // guards file/writer/offsets/metrics
	file    *os.File
	writer  *bufio.Writer
	offsets map[Hash]int64

	readMu   sync.Mutex // guards the random-access handle
	readFile *os.File

	cacheMu    sync.Mutex
	flushCache map[Hash]Event
	readCache  map[Hash]cacheEntry

	version     byte
	headerBytes []byte
	metrics     RedoLogMetrics
}

// OpenRedoLog opens or creates the redo log at path. truncate discards any
// existing content and starts fresh with headerBytes as the chain-specific
// inner header. It returns the log plus every raw header scanned from the
// file in append order — a torn tail record stops the scan without error
// (spec.md §4.1 failure semantics).
func OpenRedoLog(path string, truncate bool, headerBytes []byte, routine HashRoutine, format SerializationFormat, logger *logrus.Logger) (*RedoLog, []RawHeader, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	flags := os.O_CREATE | os.O_RDWR
	if truncate {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open redo log: %w", err)
	}

	rl := &RedoLog{
		path:        path,
		format:      format,
		hash:        routine,
		logger:      logger,
		file:        f,
		offsets:     make(map[Hash]int64),
		flushCache:  make(map[Hash]Event),
		readCache:   make(map[Hash]cacheEntry),
		version:     redoVersionCurrent,
		headerBytes: headerBytes,
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("stat redo log: %w", err)
	}

	var headers []RawHeader
	if info.Size() == 0 {
		if err := rl.writeOuterHeader(); err != nil {
			_ = f.Close()
			return nil, nil, err
		}
	} else {
		headers, err = rl.loadExisting()
		if err != nil {
			_ = f.Close()
			return nil, nil, err
		}
	}

	readFile, err := os.Open(path)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("open redo log for reads: %w", err)
	}
	rl.readFile = readFile

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		_ = f.Close()
		_ = readFile.Close()
		return nil, nil, fmt.Errorf("seek redo log end: %w", err)
	}
	rl.writer = bufio.NewWriter(f)

	logger.WithFields(logrus.Fields{"path": path, "records": len(headers)}).Info("redo log opened")
	return rl, headers, nil
}

func (rl *RedoLog) writeOuterHeader() error {
	if _, err := rl.file.Write([]byte(redoMagic)); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if _, err := rl.file.Write([]byte{rl.version}); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(rl.headerBytes)))
	if _, err := rl.file.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write inner header length: %w", err)
	}
	if _, err := rl.file.Write(rl.headerBytes); err != nil {
		return fmt.Errorf("write inner header: %w", err)
	}
	return nil
}

// loadExisting scans an existing file: outer header then records, tolerating
// a torn tail (spec.md §4.1, §8 "Opening a truncated-tail file").
func (rl *RedoLog) loadExisting() ([]RawHeader, error) {
	r := bufio.NewReader(rl.file)

	magic := make([]byte, 3)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != redoMagic {
		return nil, fmt.Errorf("bad magic %q", magic)
	}
	ver := make([]byte, 1)
	if _, err := io.ReadFull(r, ver); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	rl.version = ver[0]

	switch rl.version {
	case redoVersionCurrent:
		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(r, lenBuf); err != nil {
			return nil, fmt.Errorf("read inner header length: %w", err)
		}
		n := binary.BigEndian.Uint32(lenBuf)
		hdr := make([]byte, n)
		if _, err := io.ReadFull(r, hdr); err != nil {
			return nil, fmt.Errorf("read inner header: %w", err)
		}
		rl.headerBytes = hdr
	case redoVersionLegacy:
		// Legacy files carry no inner header (spec.md §9). We can still
		// read them; we never write this version ourselves.
		rl.headerBytes = nil
	default:
		return nil, fmt.Errorf("unsupported redo log version %q", rl.version)
	}

	var headers []RawHeader
	offset := int64(3 + 1 + 4 + len(rl.headerBytes))
	if rl.version == redoVersionLegacy {
		offset = 4
	}

	for {
		rec, recLen, ok, err := readRecord(r)
		if err != nil {
			return nil, err
		}
		if !ok {
			break // torn tail: stop scan without error
		}
		h, err := EventHash(rl.hash, rec.Format, Event{Meta: rec.Meta, HasData: rec.HasData, Data: rec.Data})
		if err != nil {
			return nil, fmt.Errorf("hash replayed event: %w", err)
		}
		rl.offsets[h] = offset
		headers = append(headers, RawHeader{EventHash: h, Meta: rec.Meta, Format: rec.Format, DataLen: uint32(len(rec.Data))})
		offset += recLen
	}
	return headers, nil
}

type decodedRecord struct {
	Format  SerializationFormat
	Meta    Metadata
	HasData bool
	Data    []byte
}

// readRecord reads one record from r. ok is false (with a nil error) when
// the record is torn — any field short-reads at EOF.
func readRecord(r *bufio.Reader) (rec decodedRecord, recLen int64, ok bool, err error) {
	formatByte, ferr := r.ReadByte()
	if ferr != nil {
		return rec, 0, false, nil
	}
	recLen++

	metaLenBuf := make([]byte, 4)
	if _, e := io.ReadFull(r, metaLenBuf); e != nil {
		return rec, 0, false, nil
	}
	recLen += 4
	metaLen := binary.BigEndian.Uint32(metaLenBuf)

	metaBytes := make([]byte, metaLen)
	if _, e := io.ReadFull(r, metaBytes); e != nil {
		return rec, 0, false, nil
	}
	recLen += int64(metaLen)

	hasDataByte, herr := r.ReadByte()
	if herr != nil {
		return rec, 0, false, nil
	}
	recLen++

	format := SerializationFormat(formatByte)
	var meta Metadata
	if err := DecodeValue(format, metaBytes, &meta); err != nil {
		return rec, 0, false, fmt.Errorf("decode metadata: %w", err)
	}

	rec = decodedRecord{Format: format, Meta: meta, HasData: hasDataByte == 1}

	if hasDataByte == 1 {
		dataLenBuf := make([]byte, 4)
		if _, e := io.ReadFull(r, dataLenBuf); e != nil {
			return rec, 0, false, nil
		}
		recLen += 4
		dataLen := binary.BigEndian.Uint32(dataLenBuf)
		data := make([]byte, dataLen)
		if _, e := io.ReadFull(r, data); e != nil {
			return rec, 0, false, nil
		}
		recLen += int64(dataLen)
		rec.Data = data
	}

	return rec, recLen, true, nil
}

// Write serializes and appends event, returning its file offset. The event
// is cached in the write-through flush cache immediately (spec.md §4.1).
func (rl *RedoLog) Write(event Event) (Hash, int64, error) {
	metaBytes, err := EncodeValue(rl.format, event.Meta)
	if err != nil {
		return Hash{}, 0, fmt.Errorf("encode metadata: %w", err)
	}
	h, err := EventHash(rl.hash, rl.format, event)
	if err != nil {
		return Hash{}, 0, err
	}

	rl.writeMu.Lock()
	defer rl.writeMu.Unlock()

	offset, err := rl.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return Hash{}, 0, fmt.Errorf("tell redo log: %w", err)
	}
	// account for buffered-but-unflushed bytes sitting ahead of the fd offset
	offset += int64(rl.writer.Buffered())

	if err := writeRecord(rl.writer, rl.format, metaBytes, event); err != nil {
		return Hash{}, 0, err
	}

	rl.offsets[h] = offset
	rl.metrics.Writes++
	rl.metrics.BytesWritten += uint64(len(metaBytes) + len(event.Data))

	rl.cacheMu.Lock()
	rl.flushCache[h] = event
	rl.cacheMu.Unlock()

	return h, offset, nil
}

func writeRecord(w *bufio.Writer, format SerializationFormat, metaBytes []byte, event Event) error {
	if err := w.WriteByte(byte(format)); err != nil {
		return fmt.Errorf("write format code: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(metaBytes)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write meta length: %w", err)
	}
	if _, err := w.Write(metaBytes); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	if event.HasData {
		if err := w.WriteByte(1); err != nil {
			return err
		}
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(event.Data)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return fmt.Errorf("write data length: %w", err)
		}
		if _, err := w.Write(event.Data); err != nil {
			return fmt.Errorf("write data: %w", err)
		}
	} else {
		if err := w.WriteByte(0); err != nil {
			return err
		}
	}
	return nil
}

// Load returns the event addressed by hash: flush cache, then read cache,
// then a random-access file read at the indexed offset (spec.md §4.1).
func (rl *RedoLog) Load(hash Hash) (Event, error) {
	rl.cacheMu.Lock()
	if e, ok := rl.flushCache[hash]; ok {
		rl.metrics.CacheHits++
		rl.cacheMu.Unlock()
		return e, nil
	}
	if ent, ok := rl.readCache[hash]; ok && time.Since(ent.at) < readCacheTTL {
		rl.metrics.CacheHits++
		rl.cacheMu.Unlock()
		return ent.event, nil
	}
	rl.metrics.CacheMisses++
	rl.cacheMu.Unlock()

	rl.writeMu.Lock()
	offset, ok := rl.offsets[hash]
	rl.writeMu.Unlock()
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrNotFoundByHash, hash.Short())
	}

	rl.readMu.Lock()
	defer rl.readMu.Unlock()
	if _, err := rl.readFile.Seek(offset, io.SeekStart); err != nil {
		return Event{}, fmt.Errorf("seek for load: %w", err)
	}
	rec, _, ok, err := readRecord(bufio.NewReader(rl.readFile))
	if err != nil {
		return Event{}, fmt.Errorf("read event at offset %d: %w", offset, err)
	}
	if !ok {
		return Event{}, fmt.Errorf("%w: torn record at offset %d", ErrNotFoundByHash, offset)
	}
	return Event{Meta: rec.Meta, Data: rec.Data, HasData: rec.HasData}, nil
}

// Flush flushes buffered writes, fsyncs, and promotes flush-cache entries
// into the TTL-bounded read cache (spec.md §4.1).
func (rl *RedoLog) Flush() error {
	rl.writeMu.Lock()
	if err := rl.writer.Flush(); err != nil {
		rl.writeMu.Unlock()
		return fmt.Errorf("flush redo log: %w", err)
	}
	if err := rl.file.Sync(); err != nil {
		rl.writeMu.Unlock()
		return fmt.Errorf("fsync redo log: %w", err)
	}
	rl.metrics.Flushes++
	rl.writeMu.Unlock()

	rl.cacheMu.Lock()
	now := time.Now()
	for h, e := range rl.flushCache {
		rl.readCache[h] = cacheEntry{event: e, at: now}
	}
	rl.flushCache = make(map[Hash]Event)
	rl.cacheMu.Unlock()
	return nil
}

// Snapshot returns a copy of the redo log's metrics counters.
func (rl *RedoLog) Snapshot() RedoLogMetrics {
	rl.writeMu.Lock()
	defer rl.writeMu.Unlock()
	return rl.metrics
}

// Close flushes and releases the underlying file handles.
func (rl *RedoLog) Close() error {
	if err := rl.Flush(); err != nil {
		return err
	}
	rl.writeMu.Lock()
	ferr := rl.file.Close()
	rl.writeMu.Unlock()
	rl.readMu.Lock()
	rerr := rl.readFile.Close()
	rl.readMu.Unlock()
	if ferr != nil {
		return ferr
	}
	return rerr
}

// Path returns the on-disk location of the redo log.
func (rl *RedoLog) Path() string { return rl.path }

// NewChainHeaderBytes serializes a fresh ChainHeader with the given entropy.
func NewChainHeaderBytes(entropy Hash) ([]byte, error) {
	b, err := json.Marshal(ChainHeader{Entropy: entropy})
	if err != nil {
		return nil, fmt.Errorf("marshal chain header: %w", err)
	}
	return b, nil
}
