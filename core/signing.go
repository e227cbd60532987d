package core

// SigningLinter consumes the SignWith tag TrustPlugin.Lint schedules and
// actually produces the signatures it names, so a real write path ends up
// with a Signature entry TrustPlugin.Validate can check (spec.md §4.5,
// §6). It must run after TrustPlugin in the pipeline's Linters slice.

import (
	"context"
	"fmt"
)

// SigningLinter signs events against the private keys held in session.
type SigningLinter struct {
	session *Session
	routine HashRoutine
	format  SerializationFormat
}

// NewSigningLinter returns a linter that signs with session's keys.
func NewSigningLinter(session *Session, routine HashRoutine, format SerializationFormat) *SigningLinter {
	return &SigningLinter{session: session, routine: routine, format: format}
}

// Lint implements Linter: for every hash named by the event's SignWith tag,
// it signs the event hash with the matching session key and appends a
// Signature entry. An event with no SignWith tag passes through unchanged.
func (s *SigningLinter) Lint(ctx context.Context, event Event) (Event, error) {
	signWith, ok := event.Meta.GetSignWith()
	if !ok || len(signWith.Keys) == 0 {
		return event, nil
	}

	hash, err := SigHash(s.routine, s.format, event)
	if err != nil {
		return event, fmt.Errorf("sig hash: %w", err)
	}

	for _, keyHash := range signWith.Keys {
		kp, ok := s.session.SignKey(keyHash)
		if !ok {
			return event, &MissingWriteKeyError{Hash: keyHash}
		}
		sig, err := SignEventHash(kp, hash)
		if err != nil {
			return event, fmt.Errorf("sign: %w", err)
		}
		event.Meta.Append(CoreMetadata{Kind: MetaSignature, Signature: MetaSignature{
			Hashes:        []Hash{hash},
			Signature:     sig,
			PublicKeyHash: keyHash,
		}})
	}
	return event, nil
}
