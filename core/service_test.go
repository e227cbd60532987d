package core

import (
	"context"
	"errors"
	"testing"
)

type echoSniffer struct {
	wantKey PrimaryKey
}

func (e echoSniffer) Sniff(ctx context.Context, header RawHeader, event Event) (Event, bool, error) {
	key, _, ok := event.Meta.PrimaryKey()
	if !ok || key != e.wantKey {
		return Event{}, false, nil
	}
	var reply Metadata
	reply.Append(CoreMetadata{Kind: MetaData, Key: key + 1})
	return Event{Meta: reply}, true, nil
}

func TestServiceFeedEmitsReplyOnMatch(t *testing.T) {
	svc := NewService("echo")
	svc.Register(echoSniffer{wantKey: 1})

	var emitted []Event
	var dataMeta Metadata
	dataMeta.Append(CoreMetadata{Kind: MetaData, Key: 1})
	err := svc.Feed(context.Background(), RawHeader{}, Event{Meta: dataMeta}, func(e Event) error {
		emitted = append(emitted, e)
		return nil
	})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(emitted) != 1 {
		t.Fatalf("expected exactly one reply, got %d", len(emitted))
	}
	key, _, _ := emitted[0].Meta.PrimaryKey()
	if key != 2 {
		t.Fatalf("expected reply keyed 2, got %d", key)
	}
}

func TestServiceFeedSkipsNonMatchingEvent(t *testing.T) {
	svc := NewService("echo")
	svc.Register(echoSniffer{wantKey: 1})

	var emitted []Event
	var dataMeta Metadata
	dataMeta.Append(CoreMetadata{Kind: MetaData, Key: 99})
	err := svc.Feed(context.Background(), RawHeader{}, Event{Meta: dataMeta}, func(e Event) error {
		emitted = append(emitted, e)
		return nil
	})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(emitted) != 0 {
		t.Fatalf("expected no reply for a non-matching event, got %d", len(emitted))
	}
}

func TestServiceFeedPropagatesSnifferError(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService("broken")
	svc.Register(sniffFunc(func(ctx context.Context, header RawHeader, event Event) (Event, bool, error) {
		return Event{}, false, boom
	}))

	err := svc.Feed(context.Background(), RawHeader{}, Event{}, func(Event) error { return nil })
	if !errors.Is(err, boom) {
		t.Fatalf("expected the sniffer's error to propagate, got %v", err)
	}
}

type sniffFunc func(ctx context.Context, header RawHeader, event Event) (Event, bool, error)

func (f sniffFunc) Sniff(ctx context.Context, header RawHeader, event Event) (Event, bool, error) {
	return f(ctx, header, event)
}

func TestListenerRegistryDispatchesToEveryService(t *testing.T) {
	reg := NewListenerRegistry()
	svcA := NewService("a")
	svcA.Register(echoSniffer{wantKey: 1})
	svcB := NewService("b")
	svcB.Register(echoSniffer{wantKey: 1})
	reg.Add(svcA)
	reg.Add(svcB)

	var emitted []Event
	var dataMeta Metadata
	dataMeta.Append(CoreMetadata{Kind: MetaData, Key: 1})
	err := reg.Dispatch(context.Background(), RawHeader{}, Event{Meta: dataMeta}, func(e Event) error {
		emitted = append(emitted, e)
		return nil
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(emitted) != 2 {
		t.Fatalf("expected both registered services to reply, got %d", len(emitted))
	}
}
