package wgmodel

import (
	"crypto/sha256"
	"encoding/hex"

	"gopkg.in/yaml.v3"
)

// Digest computes the SHA-256 digest of a canonical YAML encoding of the
// Network sub-aggregate, hex-encoded. Clients poll this value to detect
// change without fetching the whole Network.
func (n *Network) Digest() (string, error) {
	b, err := yaml.Marshal(n)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Clone deep-copies the Model via a YAML round trip. This keeps the
// Model Store's read-modify-write cheap to write correctly: every
// mutator operates on an independent copy and only the digest/in-memory
// swap at the end is shared state.
func (m *Model) Clone() (*Model, error) {
	b, err := yaml.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out Model
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
