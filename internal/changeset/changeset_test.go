package changeset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"wgquickrs/internal/apperr"
	"wgquickrs/internal/store"
	"wgquickrs/internal/wgmodel"
)

func enableVPN(t *testing.T, s *store.Store) {
	t.Helper()
	if err := s.Commit(func(m *wgmodel.Model, now time.Time) error {
		m.Agent.VPN.Enabled = true
		return nil
	}); err != nil {
		t.Fatalf("enabling VPN: Commit() error = %v", err)
	}
}

func newTestStore(t *testing.T, thisPeer uuid.UUID) *store.Store {
	t.Helper()
	m := wgmodel.Model{
		Version: wgmodel.ModelVersion,
		Network: wgmodel.Network{
			Name:     "home",
			Subnet:   "10.10.0.0/24",
			ThisPeer: thisPeer,
			Peers: map[uuid.UUID]wgmodel.Peer{
				thisPeer: {Name: "laptop", Address: "10.10.0.1"},
			},
			Connections:  map[wgmodel.ConnectionID]wgmodel.Connection{},
			Reservations: map[string]wgmodel.Reservation{},
		},
	}
	b, err := yaml.Marshal(m)
	if err != nil {
		t.Fatalf("yaml.Marshal() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "conf.yml")
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("os.WriteFile() error = %v", err)
	}
	s, err := store.Load(path, nil)
	if err != nil {
		t.Fatalf("store.Load() error = %v", err)
	}
	return s
}

type noopSyncer struct {
	up      bool
	syncErr error
	synced  string
}

func (n *noopSyncer) IsUp() bool { return n.up }
func (n *noopSyncer) Sync(text string) error {
	n.synced = text
	return n.syncErr
}

func TestApplyRejectsEmptyChangeSum(t *testing.T) {
	thisPeer := uuid.New()
	s := newTestStore(t, thisPeer)

	_, err := Apply(s, nil, ChangeSum{})
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindBadRequest {
		t.Fatalf("Apply(empty) error = %v, want KindBadRequest", err)
	}
}

func TestApplyAddedPeer(t *testing.T) {
	thisPeer := uuid.New()
	s := newTestStore(t, thisPeer)
	newID := uuid.New()

	cs := ChangeSum{AddedPeers: map[uuid.UUID]wgmodel.Peer{
		newID: {Name: "phone", Address: "10.10.0.2"},
	}}
	if _, err := Apply(s, nil, cs); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	snap := s.Snapshot()
	p, ok := snap.Network.Peers[newID]
	if !ok {
		t.Fatalf("added peer missing from snapshot")
	}
	if p.CreatedAt.IsZero() {
		t.Fatalf("added peer CreatedAt not stamped")
	}
}

func TestApplyAddedPeerAddressCollision(t *testing.T) {
	thisPeer := uuid.New()
	s := newTestStore(t, thisPeer)

	cs := ChangeSum{AddedPeers: map[uuid.UUID]wgmodel.Peer{
		uuid.New(): {Name: "dup", Address: "10.10.0.1"},
	}}
	_, err := Apply(s, nil, cs)
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindAddressTaken {
		t.Fatalf("Apply(colliding address) error = %v, want KindAddressTaken", err)
	}
}

func TestApplyRemovedPeerCascadesConnections(t *testing.T) {
	thisPeer := uuid.New()
	s := newTestStore(t, thisPeer)
	other := uuid.New()

	_, err := Apply(s, nil, ChangeSum{
		AddedPeers:       map[uuid.UUID]wgmodel.Peer{other: {Name: "phone", Address: "10.10.0.2"}},
		AddedConnections: map[wgmodel.ConnectionID]wgmodel.Connection{wgmodel.NewConnectionID(thisPeer, other): {Enabled: true}},
	})
	if err != nil {
		t.Fatalf("setup Apply() error = %v", err)
	}

	if _, err := Apply(s, nil, ChangeSum{RemovedPeers: []uuid.UUID{other}}); err != nil {
		t.Fatalf("Apply(remove peer) error = %v", err)
	}

	snap := s.Snapshot()
	if _, ok := snap.Network.Peers[other]; ok {
		t.Fatalf("removed peer still present")
	}
	if len(snap.Network.Connections) != 0 {
		t.Fatalf("connections referencing removed peer survived: %v", snap.Network.Connections)
	}
}

func TestApplyRemovedPeerCannotRemoveThisPeer(t *testing.T) {
	thisPeer := uuid.New()
	s := newTestStore(t, thisPeer)

	_, err := Apply(s, nil, ChangeSum{RemovedPeers: []uuid.UUID{thisPeer}})
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindValidation {
		t.Fatalf("Apply(remove this_peer) error = %v, want KindValidation", err)
	}
}

func TestApplyChangedFieldsForbidsHostEndpointChange(t *testing.T) {
	thisPeer := uuid.New()
	s := newTestStore(t, thisPeer)

	enabled := true
	cs := ChangeSum{ChangedFields: &ChangedFields{
		Peers: map[uuid.UUID]PartialPeer{
			thisPeer: {Endpoint: &wgmodel.EndpointConfig{Enabled: enabled}},
		},
	}}
	_, err := Apply(s, nil, cs)
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindForbiddenHostEndpointChange {
		t.Fatalf("Apply(host endpoint change) error = %v, want KindForbiddenHostEndpointChange", err)
	}
}

func TestApplyChangedFieldsUnknownPeer(t *testing.T) {
	thisPeer := uuid.New()
	s := newTestStore(t, thisPeer)

	name := "renamed"
	cs := ChangeSum{ChangedFields: &ChangedFields{
		Peers: map[uuid.UUID]PartialPeer{uuid.New(): {Name: &name}},
	}}
	_, err := Apply(s, nil, cs)
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindPeerNotFound {
		t.Fatalf("Apply(unknown peer) error = %v, want KindPeerNotFound", err)
	}
}

func TestApplyChangedNetworkName(t *testing.T) {
	thisPeer := uuid.New()
	s := newTestStore(t, thisPeer)

	name := "office"
	cs := ChangeSum{ChangedFields: &ChangedFields{Network: &PartialNetwork{Name: &name}}}
	if _, err := Apply(s, nil, cs); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := s.Snapshot().Network.Name; got != "office" {
		t.Fatalf("Network.Name = %q, want %q", got, "office")
	}
}

func TestApplyAddedConnectionUnknownPeer(t *testing.T) {
	thisPeer := uuid.New()
	s := newTestStore(t, thisPeer)

	cid := wgmodel.NewConnectionID(thisPeer, uuid.New())
	_, err := Apply(s, nil, ChangeSum{AddedConnections: map[wgmodel.ConnectionID]wgmodel.Connection{cid: {Enabled: true}}})
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindPeerNotFound {
		t.Fatalf("Apply(connection to unknown peer) error = %v, want KindPeerNotFound", err)
	}
}

func TestApplyCommitFailureLeavesModelUntouched(t *testing.T) {
	thisPeer := uuid.New()
	s := newTestStore(t, thisPeer)
	before := s.Digest()

	cs := ChangeSum{RemovedPeers: []uuid.UUID{uuid.New()}}
	if _, err := Apply(s, nil, cs); err == nil {
		t.Fatalf("Apply(remove unknown peer) error = nil, want error")
	}
	if s.Digest() != before {
		t.Fatalf("Digest() changed despite a failed Apply()")
	}
}

func TestApplySyncsWhenTunnelIsUp(t *testing.T) {
	thisPeer := uuid.New()
	s := newTestStore(t, thisPeer)
	enableVPN(t, s)

	sync := &noopSyncer{up: true}
	name := "office"
	cs := ChangeSum{ChangedFields: &ChangedFields{Network: &PartialNetwork{Name: &name}}}
	res, err := Apply(s, sync, cs)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !res.SyncAttempted {
		t.Fatalf("Result.SyncAttempted = false, want true when VPN enabled and tunnel up")
	}
	if sync.synced == "" {
		t.Fatalf("Sync() never received rendered config text")
	}
}

func TestApplySyncFailureIsReported(t *testing.T) {
	thisPeer := uuid.New()
	s := newTestStore(t, thisPeer)
	enableVPN(t, s)

	sync := &noopSyncer{up: true, syncErr: errors.New("wg syncconf failed")}
	name := "office"
	cs := ChangeSum{ChangedFields: &ChangedFields{Network: &PartialNetwork{Name: &name}}}
	res, err := Apply(s, sync, cs)
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindInterfaceSyncFailed {
		t.Fatalf("Apply() error = %v, want KindInterfaceSyncFailed", err)
	}
	if !res.SyncAttempted || res.SyncErr == nil {
		t.Fatalf("Result = %+v, want SyncAttempted with a non-nil SyncErr", res)
	}
	// the commit itself must have succeeded despite the sync failure.
	if s.Snapshot().Network.Name != "office" {
		t.Fatalf("Network.Name not committed despite a sync-only failure")
	}
}
