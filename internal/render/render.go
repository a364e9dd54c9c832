// Package render implements the Config Renderer: it produces a
// WireGuard-format text configuration for a given peer from a Model
// snapshot, in full form (for the interface's setconf load) or in
// stripped form (for the live syncconf path). The text-builder approach
// follows a familiar generateClientConfig/syncConfig style, generalized
// to the full/strip duality and multi-peer [Peer] block list the model
// requires.
package render

import (
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"wgquickrs/internal/apperr"
	"wgquickrs/internal/wgmodel"
)

// Mode selects which directives are emitted.
type Mode int

const (
	// Full renders every directive, suitable for setconf / a client's
	// own configuration file.
	Full Mode = iota
	// Strip omits Address, DNS, MTU, and script directives, suitable
	// for the live interface's syncconf-equivalent operation.
	Strip
)

// Peer renders the configuration text for targetPeer as seen from the
// Model. Fails with PeerNotFound if targetPeer or any peer referenced
// by an enabled Connection touching it is absent.
func Peer(nw *wgmodel.Network, targetPeer uuid.UUID, mode Mode) (string, error) {
	self, ok := nw.Peers[targetPeer]
	if !ok {
		return "", apperr.New(apperr.KindPeerNotFound, "%s", targetPeer)
	}

	_, subnet, err := net.ParseCIDR(nw.Subnet)
	if err != nil {
		return "", apperr.Validation("network.subnet", "not a valid IPv4 CIDR")
	}
	ones, _ := subnet.Mask.Size()

	var b strings.Builder
	b.WriteString("[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", self.PrivateKey)
	if mode == Full {
		fmt.Fprintf(&b, "Address = %s/%d\n", self.Address, ones)
	}
	if targetPeer == nw.ThisPeer && self.Endpoint.Enabled && self.Endpoint.Address != nil {
		if port := listenPort(self.Endpoint.Address); port != 0 {
			fmt.Fprintf(&b, "ListenPort = %d\n", port)
		}
	}
	if mode == Full && self.DNS.Enabled && len(self.DNS.Addresses) > 0 {
		fmt.Fprintf(&b, "DNS = %s\n", strings.Join(self.DNS.Addresses, ","))
	}
	if mode == Full && self.MTU.Enabled {
		fmt.Fprintf(&b, "MTU = %d\n", self.MTU.Value)
	}
	if mode == Full {
		writeScriptDirectives(&b, "PreUp", self.Scripts.PreUp)
		writeScriptDirectives(&b, "PostUp", self.Scripts.PostUp)
		writeScriptDirectives(&b, "PreDown", self.Scripts.PreDown)
		writeScriptDirectives(&b, "PostDown", self.Scripts.PostDown)
	}

	ids := connectionIDsTouching(nw, targetPeer)
	for _, cid := range ids {
		conn := nw.Connections[cid]
		if !conn.Enabled {
			continue
		}
		otherID, _ := cid.Other(targetPeer)
		other, ok := nw.Peers[otherID]
		if !ok {
			return "", apperr.New(apperr.KindPeerNotFound, "%s", otherID)
		}
		otherPub, err := publicKeyFor(other.PrivateKey)
		if err != nil {
			return "", apperr.Validation("peer.private_key", "could not derive public key")
		}

		side, _ := cid.SideOf(targetPeer)
		var allowed []string
		if side == wgmodel.SideA {
			allowed = conn.AllowedIPsAToB
		} else {
			allowed = conn.AllowedIPsBToA
		}

		b.WriteString("\n[Peer]\n")
		fmt.Fprintf(&b, "PublicKey = %s\n", otherPub)
		if conn.PreSharedKey != "" {
			fmt.Fprintf(&b, "PresharedKey = %s\n", conn.PreSharedKey)
		}
		fmt.Fprintf(&b, "AllowedIPs = %s\n", strings.Join(allowed, ","))
		if conn.PersistentKeepalive.Enabled {
			fmt.Fprintf(&b, "PersistentKeepalive = %d\n", conn.PersistentKeepalive.Period)
		}
		if other.Endpoint.Enabled && other.Endpoint.Address != nil {
			fmt.Fprintf(&b, "Endpoint = %s\n", other.Endpoint.Address.String())
		}
	}

	return b.String(), nil
}

func writeScriptDirectives(b *strings.Builder, directive string, scripts []wgmodel.Script) {
	for _, s := range scripts {
		if s.Enabled {
			fmt.Fprintf(b, "%s = %s\n", directive, s.Script)
		}
	}
}

// connectionIDsTouching returns, in a stable order, every ConnectionID
// that references peerID.
func connectionIDsTouching(nw *wgmodel.Network, peerID uuid.UUID) []wgmodel.ConnectionID {
	var ids []wgmodel.ConnectionID
	for cid := range nw.Connections {
		if cid.References(peerID) {
			ids = append(ids, cid)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func publicKeyFor(privateKeyBase64 string) (string, error) {
	key, err := wgtypes.ParseKey(privateKeyBase64)
	if err != nil {
		return "", err
	}
	return key.PublicKey().String(), nil
}

func listenPort(addr *wgmodel.EndpointAddress) uint16 {
	if addr.IPv4AndPort != nil {
		return addr.IPv4AndPort.Port
	}
	if addr.HostnameAndPort != nil {
		return addr.HostnameAndPort.Port
	}
	return 0
}
