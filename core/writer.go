package core

// Single-writer serialization (spec.md §4, §7): every accepted write for a
// chain funnels through one goroutine draining a bounded channel, so the
// redo log, pipeline state, and index updates from appended events are only
// ever made from one place regardless of how many goroutines call
// Chain.Write concurrently. The one index update made outside it is
// DioMut.Commit's Indices.Detach after a commit.
// Grounded on the teacher's ledger.go block-append worker, which plays the
// same role serializing block commits behind a single channel consumer.

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// TransactionScope controls how durably a write is confirmed before
// Writer.Submit returns (spec.md §7).
type TransactionScope uint8

const (
	// ScopeNone returns as soon as the transaction is queued, without
	// waiting for it to be validated or to reach disk; it yields no headers
	// and no apply error.
	ScopeNone TransactionScope = iota
	// ScopeLocal waits for the write to be appended to the redo log's
	// in-process buffer, but not necessarily fsynced.
	ScopeLocal
	// ScopeOne waits for the redo log to be flushed and fsynced after each
	// of the transaction's events.
	ScopeOne
	// ScopeFull waits for a fsync and for every registered Sink/Service
	// listener to finish observing the event.
	ScopeFull
)

// Transaction is one unit of work submitted to a chain's writer (spec.md
// §7): a batch of events sharing one commit scope, notified together once
// processed.
type Transaction struct {
	Scope        TransactionScope
	Events       []Event
	Conversation string

	// ctrl, when set, replaces the normal pipeline/redo-log apply path:
	// the writer invokes it directly instead of applyTransaction. Used by
	// compaction to run its begin/finish-flip steps on the same
	// single-writer goroutine as ordinary writes, without holding it for
	// the whole copy phase (core/compact.go).
	ctrl func(*Chain) error

	notify chan transactionResult
}

type transactionResult struct {
	headers []RawHeader
	err     error
}

// Writer is the single goroutine that owns a chain's redo log and applies
// every Transaction in submission order (spec.md §4, §7).
type Writer struct {
	chain   *Chain
	queue   chan *Transaction
	done    chan struct{}
	stopped chan struct{}
}

// NewWriter starts the writer goroutine for chain with the given queue
// depth.
func NewWriter(chain *Chain, queueDepth int) *Writer {
	w := &Writer{
		chain:   chain,
		queue:   make(chan *Transaction, queueDepth),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

// Submit enqueues tx, blocking until the queue accepts it, ctx is done, or
// the writer has been stopped. A ScopeNone transaction returns once queued;
// any other, and every ctrl transaction, then waits for the writer's result
// or for ctx to be done.
func (w *Writer) Submit(ctx context.Context, tx *Transaction) ([]RawHeader, error) {
	tx.notify = make(chan transactionResult, 1)
	select {
	case w.queue <- tx:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.stopped:
		return nil, fmt.Errorf("%w: writer stopped", ErrAborted)
	}
	if tx.Scope == ScopeNone && tx.ctrl == nil {
		return nil, nil
	}

	select {
	case res := <-tx.notify:
		return res.headers, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *Writer) run() {
	defer close(w.stopped)
	for {
		select {
		case tx := <-w.queue:
			var headers []RawHeader
			var err error
			if tx.ctrl != nil {
				err = tx.ctrl(w.chain)
			} else {
				headers, err = w.chain.applyTransaction(tx)
			}
			tx.notify <- transactionResult{headers: headers, err: err}
		case <-w.done:
			// Drain whatever is already queued before exiting so callers
			// blocked on Submit don't hang forever.
			for {
				select {
				case tx := <-w.queue:
					tx.notify <- transactionResult{err: fmt.Errorf("%w: writer stopping", ErrAborted)}
				default:
					return
				}
			}
		}
	}
}

// Stop signals the writer goroutine to finish and drain its queue.
func (w *Writer) Stop() {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	<-w.stopped
	logrus.WithField("chain", w.chain.name).Debug("writer stopped")
}
