package wgmodel

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ConnectionID is the canonical "<uuid_a>*<uuid_b>" key for a Connection,
// with the two UUIDs always ordered the same way regardless of the order
// callers supply them in. Being a plain string makes it usable directly
// as a YAML/JSON map key without a custom marshaler.
type ConnectionID string

// Side identifies which half of a canonical ConnectionID a peer occupies.
type Side int

const (
	SideA Side = iota
	SideB
)

// NewConnectionID canonicalizes an unordered pair of peer UUIDs.
func NewConnectionID(p1, p2 uuid.UUID) ConnectionID {
	a, b := p1, p2
	if strings.Compare(a.String(), b.String()) > 0 {
		a, b = b, a
	}
	return ConnectionID(fmt.Sprintf("%s*%s", a, b))
}

// Peers splits a ConnectionID back into its canonical (a, b) UUID pair.
func (c ConnectionID) Peers() (a, b uuid.UUID, err error) {
	parts := strings.SplitN(string(c), "*", 2)
	if len(parts) != 2 {
		return uuid.UUID{}, uuid.UUID{}, fmt.Errorf("malformed connection id %q", c)
	}
	a, err = uuid.Parse(parts[0])
	if err != nil {
		return uuid.UUID{}, uuid.UUID{}, fmt.Errorf("malformed connection id %q: %w", c, err)
	}
	b, err = uuid.Parse(parts[1])
	if err != nil {
		return uuid.UUID{}, uuid.UUID{}, fmt.Errorf("malformed connection id %q: %w", c, err)
	}
	return a, b, nil
}

// References reports whether the ConnectionID names peerID on either side.
func (c ConnectionID) References(peerID uuid.UUID) bool {
	a, b, err := c.Peers()
	if err != nil {
		return false
	}
	return a == peerID || b == peerID
}

// SideOf reports which canonical side peerID occupies in c.
func (c ConnectionID) SideOf(peerID uuid.UUID) (Side, bool) {
	a, b, err := c.Peers()
	if err != nil {
		return 0, false
	}
	switch peerID {
	case a:
		return SideA, true
	case b:
		return SideB, true
	default:
		return 0, false
	}
}

// Other returns the UUID on the opposite side from peerID.
func (c ConnectionID) Other(peerID uuid.UUID) (uuid.UUID, bool) {
	a, b, err := c.Peers()
	if err != nil {
		return uuid.UUID{}, false
	}
	switch peerID {
	case a:
		return b, true
	case b:
		return a, true
	default:
		return uuid.UUID{}, false
	}
}
