package core

// Chain ties together a redo log, its pipeline, its in-memory indices, and
// a default Session into the single object application code talks to
// (spec.md §3, §4). Grounded on the teacher's Ledger type in ledger.go,
// which plays the analogous "one struct owns the WAL, the in-memory state,
// and the validation ruleset" role.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// IntegrityMode controls how strict the trust validator is about events
// with no resolvable authorization (spec.md §4.5, §7).
type IntegrityMode uint8

const (
	// IntegrityDistributed requires every event to resolve to an explicit
	// Allow; an all-Abstain verdict is rejected. This is the default and
	// matches a chain with no single trusted root.
	IntegrityDistributed IntegrityMode = iota
	// IntegrityCentralized additionally accepts all-Abstain events,
	// suited to a chain with one trusted writer and no adversarial peers.
	IntegrityCentralized
)

// Chain is one append-only, chain-of-trust-protected event log together
// with the in-memory state derived from it.
type Chain struct {
	name string

	// Fields below this point are written only from the writer goroutine
	// (appends, compaction's log swap); Load and Metrics read them from
	// the caller's goroutine.
	log      *RedoLog
	pipeline *Pipeline

	// Fields below are safe for concurrent access from any goroutine,
	// each guarding its own state with its own mutex.
	indices   *Indices
	locks     *LockSet
	listeners *ListenerRegistry
	broker    *InvokeBroker

	session   *Session
	routine   HashRoutine
	format    SerializationFormat
	integrity IntegrityMode

	writer *Writer

	// flip is non-nil only while a compaction is between its begin and
	// finish steps, both of which run on the writer goroutine alongside
	// this field (core/compact.go). Ordinary writes accepted during that
	// window are queued onto it so they survive the log/index swap.
	flip *Flip

	compactOnce     sync.Once
	compactRequests chan *compactRequest
}

// chainAware is implemented by pipeline plugins (such as TrustPlugin) that
// need a back-reference to the chain they're wired into, to resolve parent
// metadata or enforce index invariants that the plugin's own constructor
// arguments can't express before the chain exists (spec.md §4.5).
type chainAware interface {
	bindChain(*Chain)
}

func bindPipelineChain(pipeline *Pipeline, c *Chain) {
	for _, l := range pipeline.Linters {
		if b, ok := l.(chainAware); ok {
			b.bindChain(c)
		}
	}
	for _, v := range pipeline.Validators {
		if b, ok := v.(chainAware); ok {
			b.bindChain(c)
		}
	}
	for _, s := range pipeline.Sinks {
		if b, ok := s.(chainAware); ok {
			b.bindChain(c)
		}
	}
}

// ChainConfig configures OpenChain (spec.md §4, AMBIENT STACK).
type ChainConfig struct {
	Name          string
	Path          string
	Truncate      bool
	HashRoutine   HashRoutine
	Format        SerializationFormat
	Integrity     IntegrityMode
	WriterQueue   int
	RootEntropy   Hash
	DefaultSession *Session
}

// OpenChain opens (or creates) a chain's redo log at cfg.Path, replays its
// headers into fresh indices, and starts its writer goroutine (spec.md
// §4.1, §4.3).
func OpenChain(cfg ChainConfig, pipeline *Pipeline) (*Chain, error) {
	if pipeline == nil {
		pipeline = &Pipeline{}
	}
	headerBytes, err := NewChainHeaderBytes(cfg.RootEntropy)
	if err != nil {
		return nil, fmt.Errorf("chain header: %w", err)
	}

	log, headers, err := OpenRedoLog(cfg.Path, cfg.Truncate, headerBytes, cfg.HashRoutine, cfg.Format, logrus.StandardLogger())
	if err != nil {
		return nil, fmt.Errorf("open chain %s: %w", cfg.Name, err)
	}

	indices := NewIndices()
	for _, h := range headers {
		indices.Apply(h)
	}

	session := cfg.DefaultSession
	if session == nil {
		session = NewSession()
	}

	c := &Chain{
		name:      cfg.Name,
		log:       log,
		pipeline:  pipeline,
		indices:   indices,
		locks:     NewLockSet(),
		listeners: NewListenerRegistry(),
		broker:    NewInvokeBroker(),
		session:   session,
		routine:   cfg.HashRoutine,
		format:    cfg.Format,
		integrity: cfg.Integrity,
	}
	queueDepth := cfg.WriterQueue
	if queueDepth <= 0 {
		queueDepth = 64
	}
	c.writer = NewWriter(c, queueDepth)
	bindPipelineChain(pipeline, c)
	return c, nil
}

// Name returns the chain's name.
func (c *Chain) Name() string { return c.name }

// Indices returns the chain's live index set.
func (c *Chain) Indices() *Indices { return c.indices }

// Session returns the chain's default key bag.
func (c *Chain) Session() *Session { return c.session }

// Locks returns the chain's pessimistic lock set (spec.md §5).
func (c *Chain) Locks() *LockSet { return c.locks }

// Listeners returns the chain's service listener registry (spec.md §9).
func (c *Chain) Listeners() *ListenerRegistry { return c.listeners }

// Broker returns the chain's invoke(timeout) correlation broker (spec.md §9).
func (c *Chain) Broker() *InvokeBroker { return c.broker }

// Write submits one or more events as a single transaction; with ScopeNone
// it returns once queued, otherwise once the writer has applied it (spec.md
// §4, §7).
func (c *Chain) Write(ctx context.Context, scope TransactionScope, events ...Event) ([]RawHeader, error) {
	tx := &Transaction{Scope: scope, Events: events}
	return c.writer.Submit(ctx, tx)
}

// applyTransaction runs every event in tx through the pipeline and redo
// log, in order, from the writer goroutine. It is the only place that
// mutates c.log and only place the pipeline's Lint/Validate/Outbound hooks
// run (spec.md §4.4).
func (c *Chain) applyTransaction(tx *Transaction) ([]RawHeader, error) {
	ctx := context.Background()
	headers := make([]RawHeader, 0, len(tx.Events))

	for _, event := range tx.Events {
		linted, err := c.pipeline.RunLinters(ctx, event)
		if err != nil {
			return headers, fmt.Errorf("lint: %w", err)
		}

		allow, err := c.pipeline.RunValidators(ctx, linted)
		if err != nil {
			return headers, fmt.Errorf("validate: %w", err)
		}
		if !allow {
			if c.integrity == IntegrityCentralized {
				allAbstain, verr := c.allAbstained(ctx, linted)
				if verr != nil {
					return headers, verr
				}
				if !allAbstain {
					return headers, ErrDenied
				}
			} else {
				return headers, ErrDenied
			}
		}

		outbound, err := c.pipeline.RunOutbound(ctx, linted)
		if err != nil {
			return headers, fmt.Errorf("transform outbound: %w", err)
		}

		hash, offset, err := c.log.Write(outbound)
		if err != nil {
			return headers, fmt.Errorf("append: %w", err)
		}
		_ = offset

		header := RawHeader{EventHash: hash, Meta: outbound.Meta, Format: c.format}
		if outbound.HasData {
			header.DataLen = uint32(len(outbound.Data))
		}
		c.indices.Apply(header)
		headers = append(headers, header)
		if c.flip != nil {
			c.flip.QueueDeferred(hash, outbound)
		}

		if err := c.pipeline.RunSinks(ctx, header, outbound); err != nil {
			// Sinks are observers: a failing one is logged, not grounds to
			// reject an otherwise-valid, already-indexed event (spec.md
			// §4.4, §7).
			logrus.WithError(err).WithField("chain", c.name).Warn("sink feed failed")
		}
		if err := c.listeners.Dispatch(ctx, header, outbound, func(reply Event) error {
			_, err := c.Write(ctx, ScopeNone, reply)
			return err
		}); err != nil {
			return headers, fmt.Errorf("listener dispatch: %w", err)
		}
		c.broker.NotifyReply(outbound)

		if tx.Scope == ScopeOne || tx.Scope == ScopeFull {
			if err := c.log.Flush(); err != nil {
				return headers, fmt.Errorf("flush: %w", err)
			}
		}
	}
	return headers, nil
}

func (c *Chain) allAbstained(ctx context.Context, event Event) (bool, error) {
	for _, v := range c.pipeline.Validators {
		verdict, err := v.Validate(ctx, event)
		if err != nil {
			return false, err
		}
		if verdict != Abstain {
			return false, nil
		}
	}
	return true, nil
}

// Load reads one event back by hash and runs it through every transformer
// inbound, undoing Outbound (spec.md §4.1, §4.4).
func (c *Chain) Load(ctx context.Context, hash Hash) (Event, error) {
	event, err := c.log.Load(hash)
	if err != nil {
		return Event{}, err
	}
	return c.pipeline.RunInbound(ctx, event)
}

// Invoke blocks until a reply matching matches arrives or timeout elapses
// (spec.md §9).
func (c *Chain) Invoke(ctx context.Context, matches func(Event) bool, timeout time.Duration) (Event, error) {
	return c.broker.Invoke(ctx, matches, timeout)
}

// Close stops the writer and flushes the redo log.
func (c *Chain) Close() error {
	c.writer.Stop()
	if c.compactRequests != nil {
		close(c.compactRequests)
	}
	return c.log.Close()
}

// Metrics returns a snapshot of the underlying redo log's counters.
func (c *Chain) Metrics() RedoLogMetrics {
	return c.log.Snapshot()
}
