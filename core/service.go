package core

// Service hooks let application code answer request events written to a
// chain with reply events, without polling (spec.md §9 SERVICE HOOKS).
// Grounded on the teacher's cmd/cli ledger.go request/response dispatch
// loop, adapted from a JSON-over-TCP frame exchange to an in-process
// listener registered against chain collections.

import "context"

// Sniffer observes every event fed to a chain's sinks and is given first
// refusal at producing a reply (spec.md §9). It differs from a Sink in
// that it may return a reply event to be written back onto the chain.
type Sniffer interface {
	// Sniff inspects header/event and optionally returns a reply event to
	// write back. Returning ok=false means this sniffer has nothing to
	// say about this event.
	Sniff(ctx context.Context, header RawHeader, event Event) (reply Event, ok bool, err error)
}

// Service bundles a named set of Sniffers registered against one chain,
// giving request/reply semantics on top of the plain event log.
type Service struct {
	name      string
	sniffers  []Sniffer
}

// NewService returns a named, empty service.
func NewService(name string) *Service {
	return &Service{name: name}
}

// Name returns the service's registration name.
func (s *Service) Name() string { return s.name }

// Register adds a sniffer to the service.
func (s *Service) Register(sn Sniffer) {
	s.sniffers = append(s.sniffers, sn)
}

// Feed is how a listener drives a Service from the chain's event stream.
// Replies produced by a sniffer are passed to emit so the caller can
// enqueue them as new writes back onto the chain.
func (s *Service) Feed(ctx context.Context, header RawHeader, event Event, emit func(Event) error) error {
	for _, sn := range s.sniffers {
		reply, ok, err := sn.Sniff(ctx, header, event)
		if err != nil {
			return err
		}
		if ok && emit != nil {
			if err := emit(reply); err != nil {
				return err
			}
		}
	}
	return nil
}
