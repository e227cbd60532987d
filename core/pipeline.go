package core

// Pipeline plugin roles (spec.md §4.4): Sink, Validator, Linter, Transformer,
// Compactor. Grounded on the teacher's pluggable consensus/validation hook
// shape in core/access_control.go (ruleset evaluated in order, first
// conclusive verdict wins) generalised to the chain's five plugin kinds.

import "context"

// Sink observes every event accepted onto a chain, after validation and
// linting, in redo-log order (spec.md §4.4).
type Sink interface {
	Feed(ctx context.Context, header RawHeader, event Event) error
}

// Verdict is the three-valued outcome a Validator returns for one event
// (spec.md §4.4).
type Verdict uint8

const (
	Abstain Verdict = iota
	Allow
	Deny
)

// Validator decides whether an event may be admitted to the chain. The
// aggregate rule across all registered validators: any Deny rejects the
// event outright; otherwise at least one Allow is required; all-Abstain
// also rejects (spec.md §4.4).
type Validator interface {
	Validate(ctx context.Context, event Event) (Verdict, error)
}

// Linter may rewrite an event's metadata before it is hashed and written —
// for example scheduling the keys it must be signed with (spec.md §4.4,
// §4.5). Returning the event unchanged is a no-op lint pass.
type Linter interface {
	Lint(ctx context.Context, event Event) (Event, error)
}

// Transformer runs in two opposite directions around the redo log boundary:
// Outbound transforms an event before it is written (e.g. encrypt,
// compress); Inbound reverses that when the event is loaded back (spec.md
// §4.4). Transformers compose in registration order outbound and the
// reverse order inbound, so the last transformer applied outbound is the
// first to unwind inbound.
type Transformer interface {
	Outbound(ctx context.Context, event Event) (Event, error)
	Inbound(ctx context.Context, event Event) (Event, error)
}

// CompactVerdict is the five-valued outcome a Compactor assigns to a
// historical event during a flip (spec.md §4.4, §4.6).
type CompactVerdict uint8

const (
	CompactAbstain CompactVerdict = iota
	CompactKeep
	CompactDrop
	CompactForceKeep
	CompactForceDrop
)

// Compactor decides, during a flip, whether a historical event should
// survive into the compacted log. Multiple compactors may vote on the same
// event; ForceKeep beats ForceDrop beats Keep beats Drop beats Abstain, and
// an event on which every compactor abstains is kept by default (spec.md
// §4.4, §4.6).
type Compactor interface {
	// Relevant is called once per event in reverse-chronological order,
	// with the set of primary keys seen so far in the walk, so a
	// compactor can track "first time we've seen this key" style state.
	Relevant(header RawHeader, seenKeys map[PrimaryKey]struct{}) CompactVerdict
	// Clone returns a fresh instance with reset internal state, used at
	// the start of each flip (spec.md §4.6 step 1).
	Clone() Compactor
}

// compactPrecedence ranks verdicts for the across-compactors merge: higher
// wins (spec.md §4.4).
func compactPrecedence(v CompactVerdict) int {
	switch v {
	case CompactForceKeep:
		return 4
	case CompactForceDrop:
		return 3
	case CompactKeep:
		return 2
	case CompactDrop:
		return 1
	default:
		return 0
	}
}

// MergeCompactVerdicts folds the per-compactor verdicts for one event into
// a single decision, applying ForceKeep > ForceDrop > Keep > Drop > Abstain
// precedence and defaulting an all-Abstain event to kept (spec.md §4.4).
func MergeCompactVerdicts(verdicts []CompactVerdict) bool {
	best := CompactAbstain
	for _, v := range verdicts {
		if compactPrecedence(v) > compactPrecedence(best) {
			best = v
		}
	}
	switch best {
	case CompactForceDrop, CompactDrop:
		return false
	default:
		return true
	}
}

// Pipeline is the ordered set of plugins a chain runs every event through
// (spec.md §4.4).
type Pipeline struct {
	Sinks        []Sink
	Validators   []Validator
	Linters      []Linter
	Transformers []Transformer
	Compactors   []Compactor
}

// RunValidators applies the aggregate validator rule (spec.md §4.4): any
// Deny rejects; otherwise at least one Allow is required.
func (p *Pipeline) RunValidators(ctx context.Context, event Event) (bool, error) {
	sawAllow := false
	for _, v := range p.Validators {
		verdict, err := v.Validate(ctx, event)
		if err != nil {
			return false, err
		}
		switch verdict {
		case Deny:
			return false, nil
		case Allow:
			sawAllow = true
		}
	}
	if len(p.Validators) == 0 {
		return true, nil
	}
	return sawAllow, nil
}

// RunLinters applies every linter in registration order, each seeing the
// previous linter's output.
func (p *Pipeline) RunLinters(ctx context.Context, event Event) (Event, error) {
	for _, l := range p.Linters {
		var err error
		event, err = l.Lint(ctx, event)
		if err != nil {
			return event, err
		}
	}
	return event, nil
}

// RunOutbound applies every transformer in registration order before a
// write (spec.md §4.4).
func (p *Pipeline) RunOutbound(ctx context.Context, event Event) (Event, error) {
	for _, t := range p.Transformers {
		var err error
		event, err = t.Outbound(ctx, event)
		if err != nil {
			return event, err
		}
	}
	return event, nil
}

// RunInbound reverses every transformer in reverse registration order after
// a load (spec.md §4.4).
func (p *Pipeline) RunInbound(ctx context.Context, event Event) (Event, error) {
	for i := len(p.Transformers) - 1; i >= 0; i-- {
		var err error
		event, err = p.Transformers[i].Inbound(ctx, event)
		if err != nil {
			return event, err
		}
	}
	return event, nil
}

// RunSinks feeds the accepted event to every sink, in registration order.
func (p *Pipeline) RunSinks(ctx context.Context, header RawHeader, event Event) error {
	for _, s := range p.Sinks {
		if err := s.Feed(ctx, header, event); err != nil {
			return err
		}
	}
	return nil
}

// CloneCompactors returns a fresh working set of every registered
// compactor, used at the start of a flip (spec.md §4.6 step 1).
func (p *Pipeline) CloneCompactors() []Compactor {
	out := make([]Compactor, len(p.Compactors))
	for i, c := range p.Compactors {
		out[i] = c.Clone()
	}
	return out
}
