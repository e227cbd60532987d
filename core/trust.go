package core

// Trust implements the chain-of-trust plugin bundle: write/read option
// resolution, a validator enforcing signatures, a linter scheduling which
// keys must sign, and a transformer encrypting/decrypting confidential
// payloads (spec.md §4.5, §6). Grounded on the teacher's access_control.go
// rule-list authorization model, generalised from a fixed role set to the
// spec's Everyone/Nobody/Specific/AnyOf option algebra, with Falcon
// signatures (github.com/cloudflare/circl/sign/schemes, as used by sibling
// example repos — see DESIGN.md) substituting for the teacher's ECDSA.

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/schemes"
)

// SignScheme names a supported post-quantum signature scheme (spec.md §6).
type SignScheme string

const (
	SchemeFalcon512  SignScheme = "Falcon-512"
	SchemeFalcon1024 SignScheme = "Falcon-1024"
)

func (s SignScheme) resolve() (sign.Scheme, error) {
	scheme := schemes.ByName(string(s))
	if scheme == nil {
		return nil, fmt.Errorf("%w: unknown sign scheme %q", ErrInvalidFormat, s)
	}
	return scheme, nil
}

// GenerateSignKeyPair creates a fresh Falcon keypair for the given scheme.
func GenerateSignKeyPair(s SignScheme) (SignKeyPair, error) {
	scheme, err := s.resolve()
	if err != nil {
		return SignKeyPair{}, err
	}
	pub, priv, err := scheme.GenerateKey()
	if err != nil {
		return SignKeyPair{}, fmt.Errorf("generate %s keypair: %w", s, err)
	}
	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return SignKeyPair{}, fmt.Errorf("marshal public key: %w", err)
	}
	privBytes, err := priv.MarshalBinary()
	if err != nil {
		return SignKeyPair{}, fmt.Errorf("marshal private key: %w", err)
	}
	return SignKeyPair{PublicKey: pubBytes, PrivateKey: privBytes, Scheme: s}, nil
}

// SignEventHash signs the given event hash with kp, returning a detached
// signature (spec.md §6).
func SignEventHash(kp SignKeyPair, h Hash) ([]byte, error) {
	scheme, err := kp.Scheme.resolve()
	if err != nil {
		return nil, err
	}
	priv, err := scheme.UnmarshalBinaryPrivateKey(kp.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("unmarshal private key: %w", err)
	}
	return scheme.Sign(priv, h[:], nil), nil
}

// VerifyEventHash verifies a detached signature over an event hash against
// a raw public key and scheme (spec.md §6).
func VerifyEventHash(s SignScheme, pubBytes []byte, h Hash, signature []byte) (bool, error) {
	scheme, err := s.resolve()
	if err != nil {
		return false, err
	}
	pub, err := scheme.UnmarshalBinaryPublicKey(pubBytes)
	if err != nil {
		return false, fmt.Errorf("unmarshal public key: %w", err)
	}
	return scheme.Verify(pub, h[:], signature, nil), nil
}

// TrustPlugin bundles the authorization validator, the sign-with linter,
// and the confidentiality transformer around one chain's Session and hash
// routine (spec.md §4.5).
type TrustPlugin struct {
	session  *Session
	routine  HashRoutine
	format   SerializationFormat
	scheme   SignScheme
	registry *PublicKeyRegistry

	chain *Chain
}

// NewTrustPlugin builds a trust plugin bound to session, verifying
// signatures against keys observed in registry (spec.md §4.5, §9).
func NewTrustPlugin(session *Session, routine HashRoutine, format SerializationFormat, scheme SignScheme, registry *PublicKeyRegistry) *TrustPlugin {
	return &TrustPlugin{session: session, routine: routine, format: format, scheme: scheme, registry: registry}
}

// bindChain lets OpenChain give the plugin a back-reference to the chain it
// is wired into, once the chain exists, so write-option resolution can walk
// real parent metadata and Lint can enforce that a referenced parent
// currently exists (spec.md §3, §4.5). Satisfies chainAware.
func (t *TrustPlugin) bindChain(c *Chain) { t.chain = c }

// parentMeta loads the metadata of the event currently holding key, used to
// walk a write option up the parent chain (spec.md §4.5).
func (t *TrustPlugin) parentMeta(key PrimaryKey) (Metadata, bool) {
	if t.chain == nil {
		return Metadata{}, false
	}
	leaf, ok := t.chain.indices.Leaf(key)
	if !ok {
		return Metadata{}, false
	}
	event, err := t.chain.log.Load(leaf.EventHash)
	if err != nil {
		return Metadata{}, false
	}
	return event.Meta, true
}

// resolveWriteOption computes the effective write option for an event
// (spec.md §4.5). An own Authorization write option other than Inherit is
// returned as is; it is not combined with the parent's. Only an Inherit or
// absent option walks up via parentOf and takes the parent's resolved
// option. A nil parentOf or an event with no parent stops the walk and
// falls back to Everyone, matching a chain root's default.
func resolveWriteOption(meta Metadata, parentOf func(PrimaryKey) (Metadata, bool)) WriteOption {
	write := WriteOption{Kind: WriteInherit}
	if auth, ok := meta.GetAuthorization(); ok {
		write = auth.Write
	}
	if write.Kind != WriteInherit {
		return write
	}
	if parentOf == nil {
		return WriteOption{Kind: WriteEveryone}
	}
	par, ok := meta.GetParent()
	if !ok {
		return WriteOption{Kind: WriteEveryone}
	}
	parentMeta, ok := parentOf(par.ParentID)
	if !ok {
		return WriteOption{Kind: WriteEveryone}
	}
	return OrWrite(write, resolveWriteOption(parentMeta, parentOf))
}

// Validate implements Validator: an event is Allowed only if it carries at
// least one Signature whose public key hash is accepted by the resolved
// write option, and that signature verifies over the event hash (spec.md
// §4.5, §6). WriteOption{Kind: WriteEveryone} allows unsigned events;
// WriteOption{Kind: WriteNobody} denies unconditionally.
func (t *TrustPlugin) Validate(ctx context.Context, event Event) (Verdict, error) {
	write := resolveWriteOption(event.Meta, t.parentMeta)
	if write.Kind == WriteNobody {
		return Deny, nil
	}
	if write.Kind == WriteEveryone {
		return Allow, nil
	}

	eventHash, err := SigHash(t.routine, t.format, event)
	if err != nil {
		return Deny, err
	}

	accepted := map[Hash]struct{}{}
	for _, h := range write.Hashes() {
		accepted[h] = struct{}{}
	}
	if len(accepted) == 0 {
		return Abstain, nil
	}

	for _, sig := range event.Meta.Signatures() {
		if _, wanted := accepted[sig.PublicKeyHash]; !wanted {
			continue
		}
		pub, ok := t.registry.Lookup(sig.PublicKeyHash)
		if !ok {
			return Deny, &MissingPublicKeyError{Hash: sig.PublicKeyHash}
		}
		valid, err := VerifyEventHash(t.scheme, pub, eventHash, sig.Signature)
		if err != nil {
			return Deny, &InvalidSignatureError{Hash: sig.PublicKeyHash}
		}
		if valid {
			return Allow, nil
		}
	}
	return Deny, nil
}

// Lint implements Linter: it rejects an event naming a parent that does not
// currently exist (spec.md §3 "Parent(p,c) may only be linted for a row
// whose parent p currently exists"), then stamps a SignWith tag naming
// whichever accepted public-key hashes this session actually holds a
// private key for. If the resolved write option requires a signature and
// the session holds none of the accepted keys, it fails with
// NoAuthorizationError instead of silently admitting an unsignable event
// (spec.md §4.5).
func (t *TrustPlugin) Lint(ctx context.Context, event Event) (Event, error) {
	if par, ok := event.Meta.GetParent(); ok && t.chain != nil {
		if !t.chain.indices.Exists(par.ParentID) {
			return event, &MissingParentError{Key: par.ParentID}
		}
	}

	write := resolveWriteOption(event.Meta, t.parentMeta)
	accepted := write.Hashes()
	if len(accepted) == 0 {
		return event, nil
	}

	held := map[Hash]struct{}{}
	for _, kp := range t.session.SignKeys() {
		held[ComputeHash(t.routine, kp.PublicKey)] = struct{}{}
	}

	usable := make([]Hash, 0, len(accepted))
	for _, h := range accepted {
		if _, ok := held[h]; ok {
			usable = append(usable, h)
		}
	}
	if len(usable) == 0 {
		key, _, _ := event.Meta.PrimaryKey()
		return event, &NoAuthorizationError{Type: "write", Key: key, Write: write}
	}

	event.Meta.Append(CoreMetadata{Kind: MetaSignWith, SignWith: MetaSignWith{Keys: usable}})
	return event, nil
}

// symmetricKeyFor resolves the AES key used to protect an event's payload,
// from the event's own Confidentiality option.
func (t *TrustPlugin) symmetricKeyFor(event Event) (SymmetricKey, Hash, bool) {
	opt, ok := event.Meta.GetConfidentiality()
	if !ok || opt.Kind != ReadSpecific {
		return SymmetricKey{}, Hash{}, false
	}
	key, ok := t.session.SymmetricKey(opt.Specific)
	return key, opt.Specific, ok
}

// Outbound implements Transformer: AES-CTR-encrypts the payload when the
// event carries a Confidentiality option this session holds the key for
// (spec.md §6). Payloads with no resolvable key, or no Confidentiality tag
// at all, pass through unchanged — matching Everyone-readable rows.
func (t *TrustPlugin) Outbound(ctx context.Context, event Event) (Event, error) {
	if !event.HasData {
		return event, nil
	}
	key, _, ok := t.symmetricKeyFor(event)
	if !ok {
		return event, nil
	}
	block, err := aes.NewCipher(key.Key)
	if err != nil {
		return event, fmt.Errorf("confidentiality cipher: %w", err)
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return event, fmt.Errorf("confidentiality iv: %w", err)
	}
	out := make([]byte, len(event.Data))
	cipher.NewCTR(block, iv).XORKeyStream(out, event.Data)
	event.Data = out
	event.Meta.Append(CoreMetadata{Kind: MetaInitializationVector, IV: iv})
	return event, nil
}

// Inbound implements Transformer: reverses Outbound using the IV recorded
// in the event's own metadata.
func (t *TrustPlugin) Inbound(ctx context.Context, event Event) (Event, error) {
	if !event.HasData {
		return event, nil
	}
	key, _, ok := t.symmetricKeyFor(event)
	if !ok {
		return event, nil
	}
	var iv []byte
	for i := len(event.Meta.Entries) - 1; i >= 0; i-- {
		if event.Meta.Entries[i].Kind == MetaInitializationVector {
			iv = event.Meta.Entries[i].IV
			break
		}
	}
	if iv == nil {
		return event, fmt.Errorf("confidentiality: %w: missing iv", ErrInvalidFormat)
	}
	block, err := aes.NewCipher(key.Key)
	if err != nil {
		return event, fmt.Errorf("confidentiality cipher: %w", err)
	}
	out := make([]byte, len(event.Data))
	cipher.NewCTR(block, iv).XORKeyStream(out, event.Data)
	event.Data = out
	return event, nil
}
