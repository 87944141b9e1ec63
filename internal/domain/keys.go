package domain

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/mr-tron/base58"
)

// PublicKey wraps a secp256k1 public key. It is stored and compared in its
// compressed SEC1 form so that it can be used as a map key and so that its
// base58 encoding round-trips losslessly.
type PublicKey struct {
	compressed [33]byte
}

// NewPublicKey wraps a parsed btcec public key.
func NewPublicKey(pub *btcec.PublicKey) PublicKey {
	var pk PublicKey
	copy(pk.compressed[:], pub.SerializeCompressed())
	return pk
}

// ParsePublicKey decodes a compressed SEC1 public key.
func ParsePublicKey(b []byte) (PublicKey, error) {
	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return PublicKey{}, fmt.Errorf("domain: invalid public key bytes: %w", err)
	}
	return NewPublicKey(pub), nil
}

// PublicKeyFromBase58 decodes a Bitcoin-alphabet base58 public key, the wire
// and display form used throughout entity documents and URNs.
func PublicKeyFromBase58(s string) (PublicKey, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("domain: invalid base58 public key: %w", err)
	}
	return ParsePublicKey(b)
}

// Bytes returns the compressed SEC1 encoding.
func (pk PublicKey) Bytes() []byte {
	out := make([]byte, len(pk.compressed))
	copy(out, pk.compressed[:])
	return out
}

// String returns the base58 encoding, used as PublicKey's canonical textual
// form in entity documents and log output.
func (pk PublicKey) String() string {
	return base58.Encode(pk.compressed[:])
}

// Fingerprint derives a PeerId from the key: the base58 encoding of its
// SHA-256 digest. Short enough to log, long enough to not collide in
// practice.
func (pk PublicKey) Fingerprint() PeerId {
	sum := sha256.Sum256(pk.compressed[:])
	return PeerId(base58.Encode(sum[:]))
}

// ToBtcec reparses the stored bytes into a *btcec.PublicKey for signature
// verification. Parsing is cheap relative to verification itself and keeps
// PublicKey itself free of pointers, so it stays comparable and hashable.
func (pk PublicKey) ToBtcec() (*btcec.PublicKey, error) {
	return btcec.ParsePubKey(pk.compressed[:])
}

// IsZero reports whether pk was never assigned.
func (pk PublicKey) IsZero() bool {
	return pk.compressed == [33]byte{}
}

// MarshalJSON encodes pk as its base58 string form.
func (pk PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(pk.String())
}

// UnmarshalJSON decodes pk from its base58 string form.
func (pk *PublicKey) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	decoded, err := PublicKeyFromBase58(s)
	if err != nil {
		return err
	}
	*pk = decoded
	return nil
}

// PrivateKey wraps a secp256k1 signing key.
type PrivateKey struct {
	key *btcec.PrivateKey
}

// GeneratePrivateKey produces a fresh signing key.
func GeneratePrivateKey() (PrivateKey, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return PrivateKey{}, fmt.Errorf("domain: generate key: %w", err)
	}
	return PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes decodes a raw 32-byte scalar.
func PrivateKeyFromBytes(b []byte) PrivateKey {
	key, _ := btcec.PrivKeyFromBytes(b)
	return PrivateKey{key: key}
}

// Public returns the corresponding public key.
func (sk PrivateKey) Public() PublicKey {
	return NewPublicKey(sk.key.PubKey())
}

// Sign produces a DER-encoded ECDSA signature over digest, which callers are
// expected to have already hashed (entity documents sign their canonical
// hash, never raw bytes).
func (sk PrivateKey) Sign(digest []byte) Signature {
	sig := btcecdsa.Sign(sk.key, digest)
	return Signature{der: sig.Serialize()}
}

// Signature wraps a DER-encoded ECDSA signature.
type Signature struct {
	der []byte
}

// SignatureFromBase58 decodes a base58-encoded DER signature.
func SignatureFromBase58(s string) (Signature, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Signature{}, fmt.Errorf("domain: invalid base58 signature: %w", err)
	}
	return Signature{der: b}, nil
}

// Bytes returns the DER encoding.
func (s Signature) Bytes() []byte {
	out := make([]byte, len(s.der))
	copy(out, s.der)
	return out
}

// String returns the base58 encoding, used as Signature's wire and display
// form in entity documents.
func (s Signature) String() string {
	return base58.Encode(s.der)
}

// IsZero reports whether s was never assigned.
func (s Signature) IsZero() bool {
	return len(s.der) == 0
}

// MarshalJSON encodes s as its base58 string form.
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes s from its base58 string form.
func (s *Signature) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	decoded, err := SignatureFromBase58(str)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

// Verify checks s against digest under pk.
func (s Signature) Verify(pk PublicKey, digest []byte) (bool, error) {
	sig, err := btcecdsa.ParseDERSignature(s.der)
	if err != nil {
		return false, fmt.Errorf("domain: malformed signature: %w", err)
	}
	pub, err := pk.ToBtcec()
	if err != nil {
		return false, err
	}
	return sig.Verify(digest, pub), nil
}

// SignatoryKind discriminates the two ways an entity signature can be
// attributed: directly by a key the signer owns, or indirectly through a
// user identity that must itself be resolved and checked for key membership.
type SignatoryKind int

const (
	// SignatoryOwnedKey means the signature is attributed directly to a
	// PublicKey present in the signing entity's own key set.
	SignatoryOwnedKey SignatoryKind = iota
	// SignatoryUser means the signature is attributed to a user identity
	// (identified by URN) whose own key set must contain the signing key.
	SignatoryUser
)

// Signatory names who a signature is attributed to: either a key the signer
// owns outright, or a user identity whose key set must be checked by
// resolution. Mirrors entity.rs's Signatory enum.
type Signatory struct {
	Kind SignatoryKind
	User string // URN string, set only when Kind == SignatoryUser
}

// OwnedKeySignatory builds a Signatory for a key the signing entity owns.
func OwnedKeySignatory() Signatory {
	return Signatory{Kind: SignatoryOwnedKey}
}

// UserSignatory builds a Signatory attributed to the user identified by urn.
func UserSignatory(urn string) Signatory {
	return Signatory{Kind: SignatoryUser, User: urn}
}
