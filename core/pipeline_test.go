package core

import (
	"context"
	"testing"
)

type fixedValidator struct{ verdict Verdict }

func (f fixedValidator) Validate(context.Context, Event) (Verdict, error) { return f.verdict, nil }

func TestRunValidatorsAnyDenyRejects(t *testing.T) {
	p := &Pipeline{Validators: []Validator{fixedValidator{Allow}, fixedValidator{Deny}}}
	allow, err := p.RunValidators(context.Background(), Event{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allow {
		t.Fatalf("a single Deny should reject the event")
	}
}

func TestRunValidatorsRequiresAtLeastOneAllow(t *testing.T) {
	p := &Pipeline{Validators: []Validator{fixedValidator{Abstain}, fixedValidator{Abstain}}}
	allow, err := p.RunValidators(context.Background(), Event{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allow {
		t.Fatalf("all-Abstain should reject the event")
	}
}

func TestRunValidatorsAllowWins(t *testing.T) {
	p := &Pipeline{Validators: []Validator{fixedValidator{Abstain}, fixedValidator{Allow}}}
	allow, err := p.RunValidators(context.Background(), Event{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allow {
		t.Fatalf("one Allow among abstains should accept the event")
	}
}

func TestRunValidatorsNoValidatorsAllowsByDefault(t *testing.T) {
	p := &Pipeline{}
	allow, err := p.RunValidators(context.Background(), Event{})
	if err != nil || !allow {
		t.Fatalf("a chain with no validators should accept every event, got allow=%v err=%v", allow, err)
	}
}

func TestMergeCompactVerdictsPrecedence(t *testing.T) {
	cases := []struct {
		name     string
		verdicts []CompactVerdict
		want     bool
	}{
		{"forcekeep beats forcedrop", []CompactVerdict{CompactForceDrop, CompactForceKeep}, true},
		{"forcedrop beats keep", []CompactVerdict{CompactKeep, CompactForceDrop}, false},
		{"keep beats drop", []CompactVerdict{CompactDrop, CompactKeep}, true},
		{"all abstain keeps by default", []CompactVerdict{CompactAbstain, CompactAbstain}, true},
		{"drop alone drops", []CompactVerdict{CompactDrop}, false},
	}
	for _, c := range cases {
		if got := MergeCompactVerdicts(c.verdicts); got != c.want {
			t.Errorf("%s: got %v want %v", c.name, got, c.want)
		}
	}
}
