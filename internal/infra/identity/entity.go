// Package identity implements content-addressed, multi-signed, revision-
// chained identity documents: Entity[T]. An entity's hash is computed over
// its canonical form; an update between revisions is only valid when no more
// than half of the new revision's keys (and, separately, certifiers) were
// added or removed relative to the previous one. Grounded on
// original_source/librad/src/id/entity.rs.
package identity

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multihash"

	"github.com/weftmesh/weft/internal/domain"
)

// EntitySignature attributes one signature over an entity's canonical hash
// to a signing key, and names whether that key is owned by the entity
// itself or by a certifying user. Grounded on entity.rs's EntitySignature.
type EntitySignature struct {
	By  domain.Signatory
	Sig domain.Signature
}

// EntityData is the serializable, not-yet-validated form of an identity
// document: what FromData consumes and what ToBuilder produces for the
// next revision. Grounded on entity.rs's EntityData<T>.
type EntityData[T any] struct {
	Name       string
	Revision   uint64
	Hash       string // base58 multihash; empty in a fresh builder
	ParentHash string // base58 multihash of the previous revision; empty at revision 1
	Signatures map[string]EntitySignature // keyed by base58-encoded PublicKey
	Keys       []domain.PublicKey
	Certifiers []string // URNs of certifying user identities
	Info       T
}

// Entity is a validated identity document: its Hash is guaranteed present
// and to match its canonical content. Grounded on entity.rs's Entity<T>.
type Entity[T any] struct {
	data EntityData[T]
}

func cloneKeys(keys []domain.PublicKey) []domain.PublicKey {
	out := make([]domain.PublicKey, len(keys))
	copy(out, keys)
	return out
}

func cloneCertifiers(c []string) []string {
	out := make([]string, len(c))
	copy(out, c)
	return out
}

func cloneSignatures(sigs map[string]EntitySignature) map[string]EntitySignature {
	out := make(map[string]EntitySignature, len(sigs))
	for k, v := range sigs {
		out[k] = v
	}
	return out
}

// computeHash returns the base58 multihash (SHA2-256) of data's canonical
// encoding. Grounded on entity.rs's EntityData::compute_hash.
func computeHash[T any](data EntityData[T]) (string, []byte, error) {
	canon, err := CanonicalBytes(data)
	if err != nil {
		return "", nil, err
	}
	digest := sha256.Sum256(canon)
	mh, err := multihash.Encode(digest[:], multihash.SHA2_256)
	if err != nil {
		return "", nil, fmt.Errorf("identity: encode multihash: %w", err)
	}
	return base58.Encode(mh), digest[:], nil
}

// FromData validates data and returns the resulting Entity. Grounded on
// entity.rs's Entity::from_data: checks name/revision/keys presence,
// recomputes the canonical hash, and — if data already carries a claimed
// hash or parent_hash — verifies they decode and, for hash, match.
func FromData[T any](data EntityData[T]) (*Entity[T], error) {
	if data.Name == "" {
		return nil, ErrInvalidData
	}
	if data.Revision == 0 {
		return nil, ErrInvalidData
	}
	if len(data.Keys) == 0 {
		return nil, ErrInvalidData
	}

	actualHash, _, err := computeHash(data)
	if err != nil {
		return nil, err
	}
	if data.Hash != "" {
		if _, err := base58.Decode(data.Hash); err != nil {
			return nil, ErrInvalidHash
		}
		if data.Hash != actualHash {
			return nil, ErrInvalidHash
		}
	}
	if data.ParentHash != "" {
		if _, err := base58.Decode(data.ParentHash); err != nil {
			return nil, ErrInvalidHash
		}
	}

	out := data
	out.Keys = cloneKeys(data.Keys)
	out.Certifiers = cloneCertifiers(data.Certifiers)
	out.Signatures = cloneSignatures(data.Signatures)
	out.Hash = actualHash
	return &Entity[T]{data: out}, nil
}

// ToData returns the entity's full serializable form, hash and signatures
// included.
func (e *Entity[T]) ToData() EntityData[T] {
	d := e.data
	d.Keys = cloneKeys(e.data.Keys)
	d.Certifiers = cloneCertifiers(e.data.Certifiers)
	d.Signatures = cloneSignatures(e.data.Signatures)
	return d
}

// ToBuilder returns a copy of the entity's data with its hash and
// signatures cleared, ready to be mutated (e.g. bump Revision, set
// ParentHash to e.Hash()) and re-signed for the next revision. Grounded on
// entity.rs's Entity::to_builder (clear_hash/clear_signatures).
func (e *Entity[T]) ToBuilder() EntityData[T] {
	d := e.ToData()
	d.Hash = ""
	d.Signatures = nil
	return d
}

func (e *Entity[T]) Name() string             { return e.data.Name }
func (e *Entity[T]) Revision() uint64         { return e.data.Revision }
func (e *Entity[T]) Hash() string             { return e.data.Hash }
func (e *Entity[T]) ParentHash() string       { return e.data.ParentHash }
func (e *Entity[T]) Keys() []domain.PublicKey { return cloneKeys(e.data.Keys) }
func (e *Entity[T]) Certifiers() []string     { return cloneCertifiers(e.data.Certifiers) }
func (e *Entity[T]) Info() T                  { return e.data.Info }

func (e *Entity[T]) hasKey(pk domain.PublicKey) bool {
	for _, k := range e.data.Keys {
		if k == pk {
			return true
		}
	}
	return false
}

func (e *Entity[T]) hasCertifier(urn string) bool {
	for _, c := range e.data.Certifiers {
		if c == urn {
			return true
		}
	}
	return false
}

// CheckKey verifies that keyStr is authorized to sign on behalf of by,
// resolving a certifying user's own key set through resolver when
// by.Kind == SignatoryUser. Grounded on entity.rs's Entity::check_key.
func CheckKey[T any](e *Entity[T], keyStr string, by domain.Signatory, resolver Resolver[T]) error {
	pk, err := domain.PublicKeyFromBase58(keyStr)
	if err != nil {
		return ErrSignatureDecodingFailed
	}
	switch by.Kind {
	case domain.SignatoryOwnedKey:
		if !e.hasKey(pk) {
			return ErrKeyNotPresent
		}
		return nil
	case domain.SignatoryUser:
		if !e.hasCertifier(by.User) {
			return ErrUserNotPresent
		}
		user, err := resolver.Resolve(by.User)
		if err != nil {
			return ErrResolutionFailed
		}
		if !user.hasKey(pk) {
			return ErrUserKeyNotPresent
		}
		return nil
	default:
		return ErrInvalidData
	}
}

// Sign attaches a signature by sk over data's canonical hash, attributed to
// by under the key's base58 encoding. Fails if that key has already signed.
// Grounded on entity.rs's Entity::sign; operates on the builder form
// (EntityData) since signing happens before the next FromData validates the
// result.
func Sign[T any](data *EntityData[T], sk domain.PrivateKey, by domain.Signatory) error {
	keyStr := sk.Public().String()
	if data.Signatures == nil {
		data.Signatures = make(map[string]EntitySignature)
	}
	if _, exists := data.Signatures[keyStr]; exists {
		return ErrSignatureAlreadyPresent
	}
	_, digest, err := computeHash(*data)
	if err != nil {
		return err
	}
	data.Signatures[keyStr] = EntitySignature{By: by, Sig: sk.Sign(digest)}
	return nil
}

// CheckSignature verifies the signature stored under keyStr against e's
// canonical hash, after confirming the key is authorized via CheckKey.
// Grounded on entity.rs's Entity::check_signature.
func CheckSignature[T any](e *Entity[T], keyStr string, resolver Resolver[T]) error {
	es, ok := e.data.Signatures[keyStr]
	if !ok {
		return ErrSignatureMissing
	}
	if err := CheckKey(e, keyStr, es.By, resolver); err != nil {
		return err
	}
	pk, err := domain.PublicKeyFromBase58(keyStr)
	if err != nil {
		return ErrSignatureDecodingFailed
	}
	_, digest, err := computeHash(e.data)
	if err != nil {
		return err
	}
	ok, err = es.Sig.Verify(pk, digest)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureVerificationFailed, err)
	}
	if !ok {
		return ErrSignatureVerificationFailed
	}
	return nil
}

// CheckValidity enforces the full-cover rule: every key in e.Keys() and
// every certifier in e.Certifiers() must be accounted for by at least one
// valid signature. Grounded on entity.rs's Entity::check_validity
// (residual keys/users sets that must both end empty). resolver is wrapped
// in a fresh cycle guard scoped to this single call: repeated signatures
// attributed to the same certifier resolve once and are served from cache
// thereafter, while a certifier chain that loops back on itself mid-
// resolution fails instead of recursing forever.
func CheckValidity[T any](e *Entity[T], resolver Resolver[T]) error {
	resolver = GuardCycles(resolver)
	residualKeys := make(map[domain.PublicKey]struct{}, len(e.data.Keys))
	for _, k := range e.data.Keys {
		residualKeys[k] = struct{}{}
	}
	residualCertifiers := make(map[string]struct{}, len(e.data.Certifiers))
	for _, c := range e.data.Certifiers {
		residualCertifiers[c] = struct{}{}
	}

	for keyStr, es := range e.data.Signatures {
		if err := CheckSignature(e, keyStr, resolver); err != nil {
			return err
		}
		switch es.By.Kind {
		case domain.SignatoryOwnedKey:
			pk, err := domain.PublicKeyFromBase58(keyStr)
			if err != nil {
				return ErrSignatureDecodingFailed
			}
			delete(residualKeys, pk)
		case domain.SignatoryUser:
			delete(residualCertifiers, es.By.User)
		}
	}

	if len(residualKeys) != 0 || len(residualCertifiers) != 0 {
		return ErrSignatureMissing
	}
	return nil
}

// CheckUpdate validates that current is a legitimate successor of previous:
// strictly increasing revision, correct parent hash, and quorum continuity
// of both the key set and the certifier set. Grounded on entity.rs's
// Entity::check_update.
func CheckUpdate[T any](current, previous *Entity[T]) error {
	if current.data.Revision <= previous.data.Revision {
		return &UpdateVerificationError{Kind: NonMonotonicRevision}
	}
	if current.data.ParentHash != previous.data.Hash {
		return &UpdateVerificationError{Kind: WrongParentHash}
	}

	if err := checkSetQuorum(current.data.Keys, previous.data.Keys); err != nil {
		return err
	}
	if err := checkSetQuorumStrings(current.data.Certifiers, previous.data.Certifiers); err != nil {
		return err
	}
	return nil
}

func checkSetQuorum(current, previous []domain.PublicKey) error {
	prevSet := make(map[domain.PublicKey]struct{}, len(previous))
	for _, k := range previous {
		prevSet[k] = struct{}{}
	}
	retained := 0
	for _, k := range current {
		if _, ok := prevSet[k]; ok {
			retained++
		}
	}
	totalCurrent := len(current)
	added := totalCurrent - retained
	removed := len(previous) - retained
	q := totalCurrent / 2
	if added > q {
		return &UpdateVerificationError{Kind: NoCurrentQuorum}
	}
	if removed > q {
		return &UpdateVerificationError{Kind: NoPreviousQuorum}
	}
	return nil
}

func checkSetQuorumStrings(current, previous []string) error {
	prevSet := make(map[string]struct{}, len(previous))
	for _, c := range previous {
		prevSet[c] = struct{}{}
	}
	retained := 0
	for _, c := range current {
		if _, ok := prevSet[c]; ok {
			retained++
		}
	}
	totalCurrent := len(current)
	added := totalCurrent - retained
	removed := len(previous) - retained
	q := totalCurrent / 2
	if added > q {
		return &UpdateVerificationError{Kind: NoCurrentQuorum}
	}
	if removed > q {
		return &UpdateVerificationError{Kind: NoPreviousQuorum}
	}
	return nil
}
