package wgmodel

import (
	"net"
	"time"

	"wgquickrs/internal/apperr"
)

// CheckInvariants enforces the invariants held at every commit point:
// peer addresses, reservations, connection endpoints, this_peer, and the
// enabled-field rules of peers and connections. updated_at is not checked
// here; Store.Commit stamps it. It does not mutate m; callers run it against a working copy before
// swapping it in as the live Model.
func (m *Model) CheckInvariants(now time.Time) error {
	nw := &m.Network

	_, subnet, err := parseCIDR(nw.Subnet)
	if err != nil {
		return apperr.Validation("network.subnet", "not a valid IPv4 CIDR")
	}

	seen := map[string]string{} // address -> owning peer name, for invariant 1
	for id, p := range nw.Peers {
		ip := netParseIP(p.Address)
		if ip == nil || !subnet.Contains(ip) {
			return apperr.New(apperr.KindAddressNotInSubnet, "peer %s address %s not in subnet %s", id, p.Address, nw.Subnet)
		}
		if ip.Equal(subnet.IP) {
			return apperr.New(apperr.KindAddressIsSubnetNetwork, "peer %s address %s is the network address", id, p.Address)
		}
		if ip.Equal(broadcastOf(subnet)) {
			return apperr.New(apperr.KindAddressIsSubnetBroadcast, "peer %s address %s is the broadcast address", id, p.Address)
		}
		if otherName, ok := seen[p.Address]; ok {
			return apperr.New(apperr.KindAddressTaken, "address %s already assigned to %s", p.Address, otherName)
		}
		seen[p.Address] = p.Name

		if err := checkPeerSubInvariants(p); err != nil {
			return err
		}
	}

	// invariant 2: unexpired reservations don't collide with a peer other than their own.
	for addr, r := range nw.Reservations {
		if !r.ValidUntil.After(now) {
			continue
		}
		for id, p := range nw.Peers {
			if p.Address == addr && id != r.PeerID {
				return apperr.New(apperr.KindAddressReserved, "address %s reserved for a different peer", addr)
			}
		}
	}

	// invariant 3: every ConnectionID references two existing, distinct peers.
	for cid, conn := range nw.Connections {
		if conn.PersistentKeepalive.Enabled && conn.PersistentKeepalive.Period <= 0 {
			return apperr.Validation("connection.persistent_keepalive.period", "must be greater than 0 when enabled")
		}
		a, b, err := cid.Peers()
		if err != nil {
			return apperr.Validation("connections", "malformed connection id")
		}
		if a == b {
			return apperr.Validation("connections", "connection references the same peer twice")
		}
		if _, ok := nw.Peers[a]; !ok {
			return apperr.New(apperr.KindPeerNotFound, "%s", a)
		}
		if _, ok := nw.Peers[b]; !ok {
			return apperr.New(apperr.KindPeerNotFound, "%s", b)
		}
	}

	// invariant 4: this_peer is a key in peers.
	if _, ok := nw.Peers[nw.ThisPeer]; !ok {
		return apperr.New(apperr.KindPeerNotFound, "this_peer %s", nw.ThisPeer)
	}

	return nil
}

func checkPeerSubInvariants(p Peer) error {
	if p.Name == "" {
		return apperr.Validation("peer.name", "must not be empty")
	}
	if p.Endpoint.Enabled && p.Endpoint.Address == nil {
		return apperr.Validation("peer.endpoint.address", "required when endpoint is enabled")
	}
	if p.Icon.Enabled && p.Icon.Src == "" {
		return apperr.Validation("peer.icon.src", "required when icon is enabled")
	}
	if p.DNS.Enabled && len(p.DNS.Addresses) == 0 {
		return apperr.Validation("peer.dns.addresses", "required when dns is enabled")
	}
	if p.MTU.Enabled && (p.MTU.Value < 1 || p.MTU.Value > 10000) {
		return apperr.Validation("peer.mtu.value", "must be between 1 and 10000")
	}
	for _, list := range [][]Script{p.Scripts.PreUp, p.Scripts.PostUp, p.Scripts.PreDown, p.Scripts.PostDown} {
		for _, s := range list {
			if s.Enabled && !endsInSemicolon(s.Script) {
				return apperr.Validation("peer.scripts", "enabled script must end in ';'")
			}
		}
	}
	return nil
}

func endsInSemicolon(script string) bool {
	i := len(script) - 1
	for i >= 0 && isSpace(script[i]) {
		i--
	}
	return i >= 0 && script[i] == ';'
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }

func parseCIDR(s string) (net.IP, *net.IPNet, error) {
	return net.ParseCIDR(s)
}

func netParseIP(s string) net.IP {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil
	}
	return ip.To4()
}

func broadcastOf(n *net.IPNet) net.IP {
	ip := n.IP.To4()
	if ip == nil {
		return nil
	}
	mask := n.Mask
	bcast := make(net.IP, len(ip))
	for i := range ip {
		bcast[i] = ip[i] | ^mask[i]
	}
	return bcast
}
