package core

import "fmt"

// PrimaryKey is a 64-bit opaque identifier, unique per logical record
// within a chain (spec.md §3).
type PrimaryKey uint64

// MetaKind enumerates the closed set of metadata tags (spec.md §3). Order
// within a Metadata slice is insignificant except that duplicate
// single-valued tags resolve to the last one written.
type MetaKind uint8

const (
	MetaNone MetaKind = iota
	MetaData
	MetaTombstone
	MetaParent
	MetaCollection
	MetaAuthorization
	MetaConfidentiality
	MetaPublicKey
	MetaEncryptedPrivateKey
	MetaSignature
	MetaSignWith
	MetaInitializationVector
	MetaTimestamp
	MetaType
	MetaReply
	MetaAuthor
	MetaDelayedUpload
)

func (k MetaKind) String() string {
	switch k {
	case MetaData:
		return "data"
	case MetaTombstone:
		return "tombstone"
	case MetaParent:
		return "parent"
	case MetaCollection:
		return "collection"
	case MetaAuthorization:
		return "authorization"
	case MetaConfidentiality:
		return "confidentiality"
	case MetaPublicKey:
		return "public_key"
	case MetaEncryptedPrivateKey:
		return "encrypted_private_key"
	case MetaSignature:
		return "signature"
	case MetaSignWith:
		return "sign_with"
	case MetaInitializationVector:
		return "iv"
	case MetaTimestamp:
		return "timestamp"
	case MetaType:
		return "type"
	case MetaReply:
		return "reply"
	case MetaAuthor:
		return "author"
	case MetaDelayedUpload:
		return "delayed_upload"
	default:
		return "none"
	}
}

// MetaParent links a row to its parent primary key within a named
// collection (spec.md §3, §4.3).
type MetaParent struct {
	ParentID     PrimaryKey `msgpack:"parent_id" json:"parent_id"`
	CollectionID uint64     `msgpack:"collection_id" json:"collection_id"`
}

// ReadOptionKind discriminates the ReadOption variants.
type ReadOptionKind uint8

const (
	ReadInherit ReadOptionKind = iota
	ReadEveryone
	ReadSpecific
)

// ReadOption controls who may decrypt a row's payload (spec.md §3).
type ReadOption struct {
	Kind     ReadOptionKind `msgpack:"kind" json:"kind"`
	Specific Hash           `msgpack:"specific,omitempty" json:"specific,omitempty"`
}

func (r ReadOption) String() string {
	switch r.Kind {
	case ReadEveryone:
		return "everyone"
	case ReadSpecific:
		return "specific(" + r.Specific.Short() + ")"
	default:
		return "inherit"
	}
}

// WriteOptionKind discriminates the WriteOption variants.
type WriteOptionKind uint8

const (
	WriteInherit WriteOptionKind = iota
	WriteEveryone
	WriteNobody
	WriteSpecific
	WriteAnyOf
)

// WriteOption controls who may author a new event for a row (spec.md §3).
type WriteOption struct {
	Kind     WriteOptionKind `msgpack:"kind" json:"kind"`
	Specific Hash            `msgpack:"specific,omitempty" json:"specific,omitempty"`
	AnyOf    []Hash          `msgpack:"any_of,omitempty" json:"any_of,omitempty"`
}

func (w WriteOption) String() string {
	switch w.Kind {
	case WriteEveryone:
		return "everyone"
	case WriteNobody:
		return "nobody"
	case WriteSpecific:
		return "specific(" + w.Specific.Short() + ")"
	case WriteAnyOf:
		return fmt.Sprintf("any_of(%d keys)", len(w.AnyOf))
	default:
		return "inherit"
	}
}

// Hashes returns the set of public-key hashes this write option accepts,
// or nil for Everyone/Nobody/Inherit.
func (w WriteOption) Hashes() []Hash {
	switch w.Kind {
	case WriteSpecific:
		return []Hash{w.Specific}
	case WriteAnyOf:
		return w.AnyOf
	default:
		return nil
	}
}

// OrWrite combines two write options the way trust resolution ORs parent
// and own authorization (spec.md §4.5): Everyone dominates everything,
// Nobody is the identity element, AnyOf sets union, Specific folds into
// AnyOf when combined with anything other than itself.
func OrWrite(a, b WriteOption) WriteOption {
	if a.Kind == WriteInherit {
		return b
	}
	if b.Kind == WriteInherit {
		return a
	}
	if a.Kind == WriteEveryone || b.Kind == WriteEveryone {
		return WriteOption{Kind: WriteEveryone}
	}
	if a.Kind == WriteNobody {
		return b
	}
	if b.Kind == WriteNobody {
		return a
	}
	set := map[Hash]struct{}{}
	for _, h := range a.Hashes() {
		set[h] = struct{}{}
	}
	for _, h := range b.Hashes() {
		set[h] = struct{}{}
	}
	if len(set) == 1 {
		for h := range set {
			return WriteOption{Kind: WriteSpecific, Specific: h}
		}
	}
	out := make([]Hash, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	return WriteOption{Kind: WriteAnyOf, AnyOf: out}
}

// MetaAuthorization carries the read/write options an event asserts for its
// primary key, independent of whatever the parent tree would otherwise
// resolve to (spec.md §3, §4.5).
type MetaAuthorization struct {
	Read  ReadOption  `msgpack:"read" json:"read"`
	Write WriteOption `msgpack:"write" json:"write"`
}

// MetaSignature binds one or more event hashes to the public key that
// signed them (spec.md §3, §6).
type MetaSignature struct {
	Hashes        []Hash `msgpack:"hashes" json:"hashes"`
	Signature     []byte `msgpack:"signature" json:"signature"`
	PublicKeyHash Hash   `msgpack:"public_key_hash" json:"public_key_hash"`
}

// MetaSignWith lists the public-key hashes the linter has determined the
// writer must sign with before the event is accepted (spec.md §4.5).
type MetaSignWith struct {
	Keys []Hash `msgpack:"keys" json:"keys"`
}

// MetaDelayedUpload is a pass-through tag belonging to the replication
// layer; the core engine excludes it from history but keeps it in the redo
// log verbatim (spec.md §9).
type MetaDelayedUpload struct {
	From     Hash `msgpack:"from" json:"from"`
	To       Hash `msgpack:"to" json:"to"`
	Complete bool `msgpack:"complete" json:"complete"`
}

// CoreMetadata is one tagged entry in an event's metadata header. Only the
// fields relevant to Kind are populated; this flattened-variant layout
// keeps every entry cleanly round-trippable through MessagePack/JSON/Gob
// without needing a polymorphic interface registry (see DESIGN.md).
type CoreMetadata struct {
	Kind MetaKind `msgpack:"kind" json:"kind"`

	Key       PrimaryKey `msgpack:"key,omitempty" json:"key,omitempty"`
	Parent    MetaParent `msgpack:"parent,omitempty" json:"parent,omitempty"`
	Collection uint64    `msgpack:"collection,omitempty" json:"collection,omitempty"`
	Auth      MetaAuthorization `msgpack:"auth,omitempty" json:"auth,omitempty"`
	Confidentiality ReadOption  `msgpack:"confidentiality,omitempty" json:"confidentiality,omitempty"`
	PublicKey []byte     `msgpack:"public_key,omitempty" json:"public_key,omitempty"`
	EncryptedPrivateKey []byte `msgpack:"encrypted_private_key,omitempty" json:"encrypted_private_key,omitempty"`
	Signature MetaSignature `msgpack:"signature,omitempty" json:"signature,omitempty"`
	SignWith  MetaSignWith  `msgpack:"sign_with,omitempty" json:"sign_with,omitempty"`
	IV        []byte     `msgpack:"iv,omitempty" json:"iv,omitempty"`
	Timestamp int64      `msgpack:"timestamp,omitempty" json:"timestamp,omitempty"`
	Type      string     `msgpack:"type,omitempty" json:"type,omitempty"`
	Author    string     `msgpack:"author,omitempty" json:"author,omitempty"`
	DelayedUpload MetaDelayedUpload `msgpack:"delayed_upload,omitempty" json:"delayed_upload,omitempty"`
}

func (m CoreMetadata) String() string {
	switch m.Kind {
	case MetaData:
		return fmt.Sprintf("data-%d", m.Key)
	case MetaTombstone:
		return fmt.Sprintf("tombstone-%d", m.Key)
	default:
		return m.Kind.String()
	}
}

// Metadata is the ordered sequence of tagged entries that forms an event's
// header (spec.md §3).
type Metadata struct {
	Entries []CoreMetadata `msgpack:"entries" json:"entries"`
}

func (m Metadata) String() string {
	s := "meta["
	for i, e := range m.Entries {
		if i > 0 {
			s += ","
		}
		s += e.String()
	}
	return s + "]"
}

// Append adds an entry to the metadata header.
func (m *Metadata) Append(e CoreMetadata) { m.Entries = append(m.Entries, e) }

// last returns the last entry of the given kind, honoring the "duplicates
// resolve to the last" rule (spec.md §3).
func (m Metadata) last(kind MetaKind) (CoreMetadata, bool) {
	for i := len(m.Entries) - 1; i >= 0; i-- {
		if m.Entries[i].Kind == kind {
			return m.Entries[i], true
		}
	}
	return CoreMetadata{}, false
}

// PrimaryKey returns the Data or Tombstone key carried by this metadata, and
// whether it is a tombstone, per the "exactly one of Data/Tombstone"
// invariant (spec.md §3).
func (m Metadata) PrimaryKey() (key PrimaryKey, tombstone bool, ok bool) {
	if e, found := m.last(MetaData); found {
		return e.Key, false, true
	}
	if e, found := m.last(MetaTombstone); found {
		return e.Key, true, true
	}
	return 0, false, false
}

// GetAuthorization returns the event's own Authorization tag, if any.
func (m Metadata) GetAuthorization() (MetaAuthorization, bool) {
	e, ok := m.last(MetaAuthorization)
	return e.Auth, ok
}

// GetParent returns the event's Parent tag, if any.
func (m Metadata) GetParent() (MetaParent, bool) {
	e, ok := m.last(MetaParent)
	return e.Parent, ok
}

// GetConfidentiality returns the event's Confidentiality tag, if any.
func (m Metadata) GetConfidentiality() (ReadOption, bool) {
	e, ok := m.last(MetaConfidentiality)
	return e.Confidentiality, ok
}

// GetSignWith returns the event's SignWith tag, if any.
func (m Metadata) GetSignWith() (MetaSignWith, bool) {
	e, ok := m.last(MetaSignWith)
	return e.SignWith, ok
}

// GetTimestamp returns the event's Timestamp tag in ms since epoch, if any.
func (m Metadata) GetTimestamp() (int64, bool) {
	e, ok := m.last(MetaTimestamp)
	return e.Timestamp, ok
}

// GetType returns the event's Type tag, if any.
func (m Metadata) GetType() (string, bool) {
	e, ok := m.last(MetaType)
	return e.Type, ok
}

// Signatures returns every Signature entry attached to this metadata (an
// event may be co-signed by multiple keys).
func (m Metadata) Signatures() []MetaSignature {
	var out []MetaSignature
	for _, e := range m.Entries {
		if e.Kind == MetaSignature {
			out = append(out, e.Signature)
		}
	}
	return out
}

// PublicKeys returns every PublicKey entry attached to this metadata.
func (m Metadata) PublicKeys() [][]byte {
	var out [][]byte
	for _, e := range m.Entries {
		if e.Kind == MetaPublicKey {
			out = append(out, e.PublicKey)
		}
	}
	return out
}

// IsDelayedUpload reports whether this metadata carries a DelayedUpload
// tag — such events are excluded from chain history but remain in the redo
// log (spec.md §9).
func (m Metadata) IsDelayedUpload() bool {
	_, ok := m.last(MetaDelayedUpload)
	return ok
}
