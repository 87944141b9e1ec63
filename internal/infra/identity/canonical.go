package identity

import (
	"encoding/json"
	"sort"
)

// canonicalEntity is the wire shape hashed and signed: EntityData with hash
// and signatures always excluded, and keys/certifiers sorted so that two
// semantically identical documents always serialize identically. Grounded
// on entity.rs's EntityData::canonical_data, which builds the same document
// minus those two fields before hashing.
type canonicalEntity struct {
	Name       string   `json:"name"`
	Revision   uint64   `json:"revision"`
	ParentHash string   `json:"parent_hash,omitempty"`
	Keys       []string `json:"keys"`
	Certifiers []string `json:"certifiers"`
	Info       json.RawMessage `json:"info"`
}

// CanonicalBytes produces the deterministic byte encoding of data used both
// as the hash preimage and as the signature preimage. T's own JSON encoding
// is trusted to be deterministic (struct field order plus encoding/json's
// sorted map keys); this function only normalizes the parts Entity itself
// owns.
func CanonicalBytes[T any](data EntityData[T]) ([]byte, error) {
	info, err := json.Marshal(data.Info)
	if err != nil {
		return nil, ErrSerializationFailed
	}

	keys := make([]string, 0, len(data.Keys))
	for _, k := range data.Keys {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)

	certifiers := make([]string, len(data.Certifiers))
	copy(certifiers, data.Certifiers)
	sort.Strings(certifiers)

	ce := canonicalEntity{
		Name:       data.Name,
		Revision:   data.Revision,
		ParentHash: data.ParentHash,
		Keys:       keys,
		Certifiers: certifiers,
		Info:       info,
	}
	out, err := json.Marshal(ce)
	if err != nil {
		return nil, ErrSerializationFailed
	}
	return out, nil
}
