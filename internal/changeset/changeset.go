// Package changeset implements the Change-Set Applier: the sole
// mutation boundary for the Network sub-aggregate. A ChangeSum is folded
// over a working copy of the Model, in the fixed section order the
// model requires, then committed to the Model Store as one atomic
// write. The ordering and error semantics follow a patch-then-commit
// style, reworked into the Go "sum type of Changes folded over the
// working Model" shape.
package changeset

import (
	"time"

	"github.com/google/uuid"

	"wgquickrs/internal/apperr"
	"wgquickrs/internal/render"
	"wgquickrs/internal/store"
	"wgquickrs/internal/validate"
	"wgquickrs/internal/wgmodel"
)

// ChangeSum is the client-submitted batch of partial updates, additions,
// and removals applied atomically. Every section is optional; at least
// one must carry work.
type ChangeSum struct {
	ChangedFields      *ChangedFields                          `json:"changed_fields,omitempty"`
	AddedPeers         map[uuid.UUID]wgmodel.Peer               `json:"added_peers,omitempty"`
	RemovedPeers       []uuid.UUID                              `json:"removed_peers,omitempty"`
	AddedConnections   map[wgmodel.ConnectionID]wgmodel.Connection `json:"added_connections,omitempty"`
	RemovedConnections []wgmodel.ConnectionID                   `json:"removed_connections,omitempty"`
}

// ChangedFields is section (1): partial field replacement on existing
// entries and the two top-level sub-aggregates.
type ChangedFields struct {
	Peers       map[uuid.UUID]PartialPeer               `json:"peers,omitempty"`
	Connections map[wgmodel.ConnectionID]PartialConnection `json:"connections,omitempty"`
	Network     *PartialNetwork                         `json:"network,omitempty"`
	Defaults    *PartialDefaults                        `json:"defaults,omitempty"`
}

// PartialPeer carries only the fields a caller wants to replace.
type PartialPeer struct {
	Name       *string                 `json:"name,omitempty"`
	Address    *string                 `json:"address,omitempty"`
	Endpoint   *wgmodel.EndpointConfig `json:"endpoint,omitempty"`
	Kind       *string                 `json:"kind,omitempty"`
	Icon       *wgmodel.IconConfig     `json:"icon,omitempty"`
	DNS        *wgmodel.DNSConfig      `json:"dns,omitempty"`
	MTU        *wgmodel.MTUConfig      `json:"mtu,omitempty"`
	Scripts    *wgmodel.Scripts        `json:"scripts,omitempty"`
	PrivateKey *string                 `json:"private_key,omitempty"`
}

// PartialConnection carries only the fields a caller wants to replace.
type PartialConnection struct {
	Enabled             *bool                    `json:"enabled,omitempty"`
	PreSharedKey        *string                  `json:"pre_shared_key,omitempty"`
	PersistentKeepalive *wgmodel.KeepaliveConfig `json:"persistent_keepalive,omitempty"`
	AllowedIPsAToB      *[]string                `json:"allowed_ips_a_to_b,omitempty"`
	AllowedIPsBToA      *[]string                `json:"allowed_ips_b_to_a,omitempty"`
}

// PartialNetwork covers the two scalar Network fields that may be
// changed post-creation; this_peer, peers, connections, and
// reservations are mutated only via the dedicated sections.
type PartialNetwork struct {
	Name   *string `json:"name,omitempty"`
	Subnet *string `json:"subnet,omitempty"`
}

// PartialDefaults replaces one or both default templates wholesale.
type PartialDefaults struct {
	Peer       *wgmodel.PeerDefaults       `json:"peer,omitempty"`
	Connection *wgmodel.ConnectionDefaults `json:"connection,omitempty"`
}

// IsEmpty reports whether cs carries no work, the case the API surface
// rejects with BadRequest before ever touching the Model Store.
func (cs ChangeSum) IsEmpty() bool {
	cf := cs.ChangedFields
	return (cf == nil || (len(cf.Peers) == 0 && len(cf.Connections) == 0 && cf.Network == nil && cf.Defaults == nil)) &&
		len(cs.AddedPeers) == 0 &&
		len(cs.RemovedPeers) == 0 &&
		len(cs.AddedConnections) == 0 &&
		len(cs.RemovedConnections) == 0
}

// Syncer is the subset of the Tunnel Manager the Applier needs for its
// post-commit side effect: pushing a stripped configuration to a live
// interface.
type Syncer interface {
	IsUp() bool
	Sync(configText string) error
}

// Result reports whether the commit's post-commit sync (if attempted)
// succeeded, so the HTTP layer can distinguish a failed commit from a
// committed-but-not-yet-synced interface.
type Result struct {
	SyncAttempted bool
	SyncErr       error
}

// Apply validates and applies cs to s under the Model Store's writer
// lock, then — if the VPN sub-model is enabled and tun reports a live
// interface — renders a stripped configuration for this_peer and hands
// it to tun.Sync. A sync failure does not roll back the already
// persisted Model; it is reported in the returned Result and as a
// KindInterfaceSyncFailed error.
func Apply(s *store.Store, tun Syncer, cs ChangeSum) (Result, error) {
	if cs.IsEmpty() {
		return Result{}, apperr.New(apperr.KindBadRequest, "nothing to update")
	}

	err := s.Commit(func(m *wgmodel.Model, now time.Time) error {
		return applyOrdered(m, now, cs)
	})
	if err != nil {
		return Result{}, err
	}

	snap := s.Snapshot()
	if !snap.Agent.VPN.Enabled || tun == nil || !tun.IsUp() {
		return Result{}, nil
	}
	text, rerr := render.Peer(&snap.Network, snap.Network.ThisPeer, render.Strip)
	if rerr != nil {
		return Result{SyncAttempted: true, SyncErr: rerr}, apperr.Wrap(apperr.KindInterfaceSyncFailed, rerr, "rendering post-commit config")
	}
	if serr := tun.Sync(text); serr != nil {
		return Result{SyncAttempted: true, SyncErr: serr}, apperr.Wrap(apperr.KindInterfaceSyncFailed, serr, "syncing interface after commit")
	}
	return Result{SyncAttempted: true}, nil
}

func applyOrdered(m *wgmodel.Model, now time.Time, cs ChangeSum) error {
	nw := &m.Network

	if cs.ChangedFields != nil {
		if err := applyChangedFields(m, now, cs.ChangedFields); err != nil {
			return err
		}
	}
	if err := applyAddedPeers(nw, now, cs.AddedPeers); err != nil {
		return err
	}
	if err := applyRemovedPeers(nw, cs.RemovedPeers); err != nil {
		return err
	}
	if err := applyAddedConnections(nw, cs.AddedConnections); err != nil {
		return err
	}
	applyRemovedConnections(nw, cs.RemovedConnections)
	return nil
}

func applyChangedFields(m *wgmodel.Model, now time.Time, cf *ChangedFields) error {
	nw := &m.Network

	for id, partial := range cf.Peers {
		peer, ok := nw.Peers[id]
		if !ok {
			return apperr.New(apperr.KindPeerNotFound, "%s", id)
		}
		if id == nw.ThisPeer && partial.Endpoint != nil {
			return apperr.New(apperr.KindForbiddenHostEndpointChange, "can't change the host's endpoint")
		}
		if err := mergePeer(&peer, partial, nw, id, now); err != nil {
			return err
		}
		peer.UpdatedAt = now
		nw.Peers[id] = peer
	}

	for id, partial := range cf.Connections {
		conn, ok := nw.Connections[id]
		if !ok {
			return apperr.New(apperr.KindConnectionNotFound, "%s", id)
		}
		mergeConnection(&conn, partial)
		nw.Connections[id] = conn
	}

	if cf.Network != nil {
		if cf.Network.Name != nil {
			name, err := validate.Name("network.name", *cf.Network.Name)
			if err != nil {
				return err
			}
			nw.Name = name
		}
		if cf.Network.Subnet != nil {
			if _, err := validate.Subnet(*cf.Network.Subnet); err != nil {
				return err
			}
			nw.Subnet = *cf.Network.Subnet
		}
	}

	if cf.Defaults != nil {
		if cf.Defaults.Peer != nil {
			nw.Defaults.Peer = *cf.Defaults.Peer
		}
		if cf.Defaults.Connection != nil {
			nw.Defaults.Connection = *cf.Defaults.Connection
		}
	}

	return nil
}

func mergePeer(peer *wgmodel.Peer, partial PartialPeer, nw *wgmodel.Network, id uuid.UUID, now time.Time) error {
	if partial.Name != nil {
		name, err := validate.Name("peer.name", *partial.Name)
		if err != nil {
			return err
		}
		peer.Name = name
	}
	if partial.Address != nil {
		if err := validate.PeerAddress("peer.address", *partial.Address, nw, id, now); err != nil {
			return err
		}
		peer.Address = *partial.Address
	}
	if partial.Endpoint != nil {
		peer.Endpoint = *partial.Endpoint
	}
	if partial.Kind != nil {
		peer.Kind = *partial.Kind
	}
	if partial.Icon != nil {
		peer.Icon = *partial.Icon
	}
	if partial.DNS != nil {
		peer.DNS = *partial.DNS
	}
	if partial.MTU != nil {
		if partial.MTU.Enabled {
			if _, err := validate.MTU("peer.mtu.value", partial.MTU.Value); err != nil {
				return err
			}
		}
		peer.MTU = *partial.MTU
	}
	if partial.Scripts != nil {
		peer.Scripts = *partial.Scripts
	}
	if partial.PrivateKey != nil {
		if _, err := validate.WireGuardKey("peer.private_key", *partial.PrivateKey); err != nil {
			return err
		}
		peer.PrivateKey = *partial.PrivateKey
	}
	return nil
}

func mergeConnection(conn *wgmodel.Connection, partial PartialConnection) {
	if partial.Enabled != nil {
		conn.Enabled = *partial.Enabled
	}
	if partial.PreSharedKey != nil {
		conn.PreSharedKey = *partial.PreSharedKey
	}
	if partial.PersistentKeepalive != nil {
		conn.PersistentKeepalive = *partial.PersistentKeepalive
	}
	if partial.AllowedIPsAToB != nil {
		conn.AllowedIPsAToB = *partial.AllowedIPsAToB
	}
	if partial.AllowedIPsBToA != nil {
		conn.AllowedIPsBToA = *partial.AllowedIPsBToA
	}
}

func applyAddedPeers(nw *wgmodel.Network, now time.Time, added map[uuid.UUID]wgmodel.Peer) error {
	for id, peer := range added {
		if err := validate.PeerAddress("peer.address", peer.Address, nw, id, now); err != nil {
			return err
		}
		peer.CreatedAt = now
		peer.UpdatedAt = now
		if nw.Peers == nil {
			nw.Peers = map[uuid.UUID]wgmodel.Peer{}
		}
		nw.Peers[id] = peer
		if r, ok := nw.Reservations[peer.Address]; ok && r.PeerID == id {
			delete(nw.Reservations, peer.Address)
		}
	}
	return nil
}

func applyRemovedPeers(nw *wgmodel.Network, removed []uuid.UUID) error {
	for _, id := range removed {
		if id == nw.ThisPeer {
			return apperr.Validation("removed_peers", "cannot remove this_peer")
		}
		if _, ok := nw.Peers[id]; !ok {
			return apperr.New(apperr.KindPeerNotFound, "%s", id)
		}
		delete(nw.Peers, id)
		for cid := range nw.Connections {
			if cid.References(id) {
				delete(nw.Connections, cid)
			}
		}
	}
	return nil
}

func applyAddedConnections(nw *wgmodel.Network, added map[wgmodel.ConnectionID]wgmodel.Connection) error {
	for cid, conn := range added {
		a, b, err := cid.Peers()
		if err != nil {
			return apperr.Validation("added_connections", "malformed connection id")
		}
		if a == b {
			return apperr.Validation("added_connections", "connection references the same peer twice")
		}
		if _, ok := nw.Peers[a]; !ok {
			return apperr.New(apperr.KindPeerNotFound, "%s", a)
		}
		if _, ok := nw.Peers[b]; !ok {
			return apperr.New(apperr.KindPeerNotFound, "%s", b)
		}
		if nw.Connections == nil {
			nw.Connections = map[wgmodel.ConnectionID]wgmodel.Connection{}
		}
		nw.Connections[cid] = conn
	}
	return nil
}

func applyRemovedConnections(nw *wgmodel.Network, removed []wgmodel.ConnectionID) {
	for _, cid := range removed {
		delete(nw.Connections, cid)
	}
}
