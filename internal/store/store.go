// Package store implements the Model Store: an in-memory Model guarded
// by a single writer lock, synchronously persisted to an on-disk YAML
// file on every committed mutation. The sync.Mutex-plus-in-memory-cache
// shape generalizes a typical in-process-cache-over-durable-store
// pattern from a set of rows to a whole-Model YAML document, and also
// hosts the Reservation Manager, since minting a reservation is itself
// a Model Store commit.
package store

import (
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"wgquickrs/internal/apperr"
	"wgquickrs/internal/wgmodel"
)

// Clock is the single monotonic-wall-clock source used for reservation
// expiry and commit timestamps; overridable in tests.
type Clock func() time.Time

// Store is the Model Store. Zero value is not usable; construct with New.
type Store struct {
	mu     sync.Mutex
	path   string
	clock  Clock
	model  wgmodel.Model
	digest string
}

// New constructs a Store around an already-loaded Model. Use Load to
// build a Store from an on-disk file.
func New(path string, m wgmodel.Model, clock Clock) (*Store, error) {
	if clock == nil {
		clock = time.Now
	}
	s := &Store{path: path, clock: clock, model: m}
	if err := s.recomputeDigestLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads path, deserializes it, validates the whole Model, strips
// expired reservations, computes the digest, and returns a ready Store.
func Load(path string, clock Clock) (*Store, error) {
	if clock == nil {
		clock = time.Now
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCommitFailed, err, "reading %s", path)
	}
	var m wgmodel.Model
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, apperr.Wrap(apperr.KindCommitFailed, err, "parsing %s", path)
	}
	if !sameMajor(m.Version, wgmodel.ModelVersion) {
		return nil, apperr.New(apperr.KindVersionUnsupported, "file version %s, build expects major version of %s", m.Version, wgmodel.ModelVersion)
	}
	now := clock()
	stripExpiredReservations(&m.Network, now)
	if err := m.CheckInvariants(now); err != nil {
		return nil, err
	}
	s := &Store{path: path, clock: clock, model: m}
	if err := s.recomputeDigestLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func sameMajor(fileVersion, buildVersion string) bool {
	fv := majorOf(fileVersion)
	bv := majorOf(buildVersion)
	return fv != "" && fv == bv
}

func majorOf(v string) string {
	for i := 0; i < len(v); i++ {
		if v[i] == '.' {
			return v[:i]
		}
	}
	return v
}

// Snapshot returns a point-in-time immutable-by-convention copy of the Model.
func (s *Store) Snapshot() wgmodel.Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone, err := s.model.Clone()
	if err != nil {
		// Clone only fails on a yaml encode/decode bug; the live model
		// is always a value that round-tripped through Load or a prior
		// commit, so surface the zero value rather than panic.
		return wgmodel.Model{}
	}
	return *clone
}

// Digest returns the last committed digest.
func (s *Store) Digest() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.digest
}

// Mutator is run against a clone of the live Model under the writer lock.
// Returning an error aborts the commit without persisting anything.
type Mutator func(m *wgmodel.Model, now time.Time) error

// Commit runs mutator against a clone under the writer lock. On success
// the clone replaces the live Model, updated_at is refreshed, the digest
// is recomputed, and the whole file is rewritten (written to a ".tmp"
// sibling, then renamed over the original). On any
// failure the in-memory Model is left untouched.
func (s *Store) Commit(mutator Mutator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone, err := s.model.Clone()
	if err != nil {
		return apperr.Wrap(apperr.KindCommitFailed, err, "cloning model")
	}
	now := s.clock()
	if err := mutator(clone, now); err != nil {
		return err
	}
	clone.Network.UpdatedAt = now
	if err := clone.CheckInvariants(now); err != nil {
		return err
	}

	b, err := yaml.Marshal(clone)
	if err != nil {
		return apperr.Wrap(apperr.KindCommitFailed, err, "encoding model")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return apperr.Wrap(apperr.KindCommitFailed, err, "writing %s", tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return apperr.Wrap(apperr.KindCommitFailed, err, "renaming %s to %s", tmp, s.path)
	}

	s.model = *clone
	return s.recomputeDigestLocked()
}

func (s *Store) recomputeDigestLocked() error {
	d, err := s.model.Network.Digest()
	if err != nil {
		return apperr.Wrap(apperr.KindCommitFailed, err, "computing digest")
	}
	s.digest = d
	return nil
}

// stripExpiredReservations removes reservations whose TTL has elapsed.
// Called on load and on every mint. Address validation
// (validate.PeerAddress) ignores an expired entry but does not remove
// it; it stays in the Model until the next load or mint.
func stripExpiredReservations(nw *wgmodel.Network, now time.Time) {
	for addr, r := range nw.Reservations {
		if !now.Before(r.ValidUntil) {
			delete(nw.Reservations, addr)
		}
	}
}

// Reservation is returned by MintReservation.
type Reservation struct {
	Address    string
	PeerID     uuid.UUID
	ValidUntil time.Time
}

// MintReservation allocates the next free address in the Network's
// subnet and records it with an expiry, consuming neither an existing
// peer address nor an unexpired reservation. peerID, if uuid.Nil, is
// generated fresh.
func (s *Store) MintReservation(peerID uuid.UUID, ttl time.Duration) (Reservation, error) {
	var result Reservation
	err := s.Commit(func(m *wgmodel.Model, now time.Time) error {
		stripExpiredReservations(&m.Network, now)
		addr, err := nextFreeAddress(&m.Network, now)
		if err != nil {
			return err
		}
		id := peerID
		if id == uuid.Nil {
			id = uuid.New()
		}
		validUntil := now.Add(ttl)
		if m.Network.Reservations == nil {
			m.Network.Reservations = map[string]wgmodel.Reservation{}
		}
		m.Network.Reservations[addr] = wgmodel.Reservation{PeerID: id, ValidUntil: validUntil}
		result = Reservation{Address: addr, PeerID: id, ValidUntil: validUntil}
		return nil
	})
	return result, err
}

// nextFreeAddress iterates hosts in nw.Subnet in canonical (numeric)
// order and returns the first address that is neither assigned to a
// peer nor held by an unexpired reservation.
func nextFreeAddress(nw *wgmodel.Network, now time.Time) (string, error) {
	_, subnet, err := netParseCIDR(nw.Subnet)
	if err != nil {
		return "", apperr.Validation("network.subnet", "not a valid IPv4 CIDR")
	}
	used := map[string]bool{}
	for _, p := range nw.Peers {
		used[p.Address] = true
	}
	reserved := map[string]bool{}
	for addr, r := range nw.Reservations {
		if r.ValidUntil.After(now) {
			reserved[addr] = true
		}
	}

	for _, addr := range hostAddresses(subnet) {
		if used[addr] || reserved[addr] {
			continue
		}
		return addr, nil
	}
	return "", apperr.New(apperr.KindSubnetExhausted, "no free address in %s", nw.Subnet)
}
