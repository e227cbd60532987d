package core

// Compact drives a full flip of a chain's redo log: clone the registered
// compactors, walk history newest-first applying them, copy every kept
// event into a twin log byte-for-bytes, then atomically swap it in
// (spec.md §4.6). Grounded on the teacher's prune()/snapshot() pair in
// ledger.go, generalised from a fixed retention window to an arbitrary
// compactor-decided keep set.

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// Compact performs one compaction pass over the chain's redo log and
// rebuilds its indices from the result (spec.md §4.6 steps 1-9).
func (c *Chain) Compact(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- c.runCompact(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Chain) runCompact(ctx context.Context) error {
	req := &compactRequest{result: make(chan error, 1)}
	select {
	case c.compactCh() <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.result
}

// compactRequest is funneled through the writer so a flip never races a
// concurrent Write (spec.md §4.6 step 1 "hold the write lock").
type compactRequest struct {
	result chan error
}

// compactCh lazily creates the chain's compact-request channel and starts
// a goroutine folding it into the same single-writer serialization point
// as ordinary transactions, the first time it's needed.
func (c *Chain) compactCh() chan *compactRequest {
	c.compactOnce.Do(func() {
		c.compactRequests = make(chan *compactRequest)
		go c.compactLoop()
	})
	return c.compactRequests
}

func (c *Chain) compactLoop() {
	for req := range c.compactRequests {
		req.result <- c.doCompact()
	}
}

// doCompact performs the actual flip (spec.md §4.6). Only two steps run on
// the chain's single-writer goroutine, each submitted as a control
// transaction so they're serialized against ordinary writes exactly like
// any other Write: opening the twin and snapshotting the kept-event order
// (begin), and draining whatever was deferred during the copy, swapping in
// the twin, and rebuilding indices/sinks (finish). The bulk byte-copy in
// between runs here, off the writer goroutine, so ordinary writes are not
// blocked for the duration of the whole flip — only at its two endpoints.
func (c *Chain) doCompact() error {
	ctx := context.Background()
	compactors := c.pipeline.CloneCompactors()

	var reverse []RawHeader
	var flip *Flip
	begin := &Transaction{ctrl: func(chain *Chain) error {
		reverse = chain.indices.ReverseHistory()
		headerBytes, err := NewChainHeaderBytes(Hash{})
		if err != nil {
			return fmt.Errorf("compact header: %w", err)
		}
		f, err := chain.log.BeginFlip(headerBytes)
		if err != nil {
			return fmt.Errorf("begin flip: %w", err)
		}
		chain.flip = f
		flip = f
		return nil
	}}
	if _, err := c.writer.Submit(ctx, begin); err != nil {
		return fmt.Errorf("compact begin: %w", err)
	}

	seenKeys := make(map[PrimaryKey]struct{})
	order := make([]Hash, 0, len(reverse))
	for _, header := range reverse {
		verdicts := make([]CompactVerdict, len(compactors))
		for i, comp := range compactors {
			verdicts[i] = comp.Relevant(header, seenKeys)
		}
		if key, _, ok := header.Meta.PrimaryKey(); ok {
			seenKeys[key] = struct{}{}
		}
		if MergeCompactVerdicts(verdicts) {
			order = append(order, header.EventHash)
		}
	}
	// order was built newest-first; the twin must receive events in
	// original chronological order so replay semantics are preserved.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}

	for _, hash := range order {
		if _, err := flip.CopyEvent(hash); err != nil {
			return fmt.Errorf("copy event %s: %w", hash.Short(), err)
		}
	}

	kept := make([]RawHeader, 0, len(order))
	for _, hash := range order {
		if header, ok := c.headerFor(hash, reverse); ok {
			kept = append(kept, header)
		}
	}

	finish := &Transaction{ctrl: func(chain *Chain) error {
		final := append([]RawHeader(nil), kept...)

		newLog, err := flip.FinishFlip(func(hash Hash, event Event, offset int64) error {
			_ = offset
			header := RawHeader{EventHash: hash, Meta: event.Meta, Format: chain.format}
			if event.HasData {
				header.DataLen = uint32(len(event.Data))
			}
			final = append(final, header)
			return nil
		})
		if err != nil {
			return fmt.Errorf("finish flip: %w", err)
		}
		chain.log = newLog
		chain.flip = nil

		newIndices := NewIndices()
		for _, header := range final {
			newIndices.Apply(header)
		}
		chain.indices = newIndices

		// Rebuild every sink's derived state from the kept, chronological
		// history (spec.md §4.6 step 8): a sink's view built incrementally
		// before compaction is no longer valid once events it fed on have
		// been dropped.
		for _, header := range final {
			event, err := newLog.Load(header.EventHash)
			if err != nil {
				logrus.WithError(err).WithField("chain", chain.name).Warn("sink rebuild: load kept event")
				continue
			}
			if err := chain.pipeline.RunSinks(context.Background(), header, event); err != nil {
				logrus.WithError(err).WithField("chain", chain.name).Warn("sink rebuild: feed kept event")
			}
		}

		zap.L().Sugar().Infow("chain compacted", "chain", chain.name, "kept", len(final), "seen", len(reverse))
		return nil
	}}
	if _, err := c.writer.Submit(ctx, finish); err != nil {
		return fmt.Errorf("compact finish: %w", err)
	}
	return nil
}

func (c *Chain) headerFor(hash Hash, pool []RawHeader) (RawHeader, bool) {
	for _, h := range pool {
		if h.EventHash == hash {
			return h, true
		}
	}
	return RawHeader{}, false
}
