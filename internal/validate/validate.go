// Package validate implements the pure, stateless field validators of
// the configuration model. Every exported function either returns a
// parsed value or a tagged *apperr.Error from the closed error-kind set;
// none of them mutate their inputs. Validators that need to check
// against other model state (address uniqueness, reservation overlap)
// take a read-only *wgmodel.Network snapshot.
package validate

import (
	"encoding/base64"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"wgquickrs/internal/apperr"
	"wgquickrs/internal/wgmodel"
)

// Subnet parses s as a strict IPv4 CIDR.
func Subnet(s string) (*net.IPNet, error) {
	ip, n, err := net.ParseCIDR(s)
	if err != nil || ip.To4() == nil {
		return nil, apperr.Validation("subnet", "must be a valid IPv4 CIDR")
	}
	return n, nil
}

// Name rejects the empty string; used for network.name and peer.name.
func Name(field, s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", apperr.Validation(field, "must not be empty")
	}
	return s, nil
}

// WireGuardKey base64-decodes s and requires exactly 32 bytes.
func WireGuardKey(field, s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, apperr.Validation(field, "not valid base64")
	}
	if len(b) != 32 {
		return nil, apperr.Validation(field, "must decode to exactly 32 bytes")
	}
	return b, nil
}

// Endpoint parses "host:port", splitting on the last colon. The right
// side must be a valid u16; the left side either a literal IPv4 address
// or a syntactically valid hostname.
func Endpoint(field, s string) (*wgmodel.EndpointAddress, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return nil, apperr.Validation(field, "must be \"host:port\"")
	}
	host, portStr := s[:idx], s[idx+1:]
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, apperr.Validation(field, "port must be a valid u16")
	}
	if ip := net.ParseIP(host); ip != nil && ip.To4() != nil {
		return &wgmodel.EndpointAddress{IPv4AndPort: &wgmodel.IPv4AndPort{IPv4: host, Port: uint16(port)}}, nil
	}
	if !isValidHostname(host) {
		return nil, apperr.Validation(field, "host is neither a valid IPv4 address nor a valid hostname")
	}
	return &wgmodel.EndpointAddress{HostnameAndPort: &wgmodel.HostnameAndPort{Hostname: host, Port: uint16(port)}}, nil
}

func isValidHostname(h string) bool {
	if h == "" || len(h) > 253 {
		return false
	}
	labels := strings.Split(h, ".")
	for _, l := range labels {
		if l == "" || len(l) > 63 {
			return false
		}
		for i, r := range l {
			alnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			if alnum {
				continue
			}
			if r == '-' && i != 0 && i != len(l)-1 {
				continue
			}
			return false
		}
	}
	return true
}

// DNSAddresses parses a comma-separated list of IPv4 addresses; an empty
// list is rejected.
func DNSAddresses(field, csv string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if ip := net.ParseIP(part); ip == nil || ip.To4() == nil {
			return nil, apperr.Validation(field, "each DNS address must be IPv4")
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return nil, apperr.Validation(field, "must not be empty when enabled")
	}
	return out, nil
}

// AllowedIPs parses a comma-separated list of IPv4 CIDRs; an empty list
// is rejected.
func AllowedIPs(field, csv string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if ip, _, err := net.ParseCIDR(part); err != nil || ip.To4() == nil {
			return nil, apperr.Validation(field, "each entry must be an IPv4 CIDR")
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return nil, apperr.Validation(field, "must not be empty")
	}
	return out, nil
}

// MTU requires 1 <= value <= 10000.
func MTU(field string, v int) (int, error) {
	if v < 1 || v > 10000 {
		return 0, apperr.Validation(field, "must be between 1 and 10000")
	}
	return v, nil
}

// Script requires enabled script bodies to end in ';' (trailing
// whitespace tolerated).
func Script(field, s string) (string, error) {
	trimmed := strings.TrimRight(s, " \t\r\n")
	if !strings.HasSuffix(trimmed, ";") {
		return "", apperr.Validation(field, "enabled script must end in ';'")
	}
	return s, nil
}

// PeerAddress validates that addr lies inside subnet, is neither the
// network nor broadcast address, is not already assigned to a different
// peer, and is not held by an unexpired reservation for a different
// peer. excludePeer is the UUID of the peer being added or updated, so a
// peer can keep its own address across an update and can take an
// address reserved for its own UUID; pass the zero UUID to exclude none.
func PeerAddress(field, addr string, nw *wgmodel.Network, excludePeer uuid.UUID, now time.Time) error {
	_, subnet, err := net.ParseCIDR(nw.Subnet)
	if err != nil {
		return apperr.Validation("network.subnet", "not a valid IPv4 CIDR")
	}
	ip := net.ParseIP(addr)
	if ip == nil || ip.To4() == nil || !subnet.Contains(ip) {
		return apperr.New(apperr.KindAddressNotInSubnet, "%s not in subnet %s", addr, nw.Subnet)
	}
	if ip.Equal(subnet.IP) {
		return apperr.New(apperr.KindAddressIsSubnetNetwork, "%s is the network address", addr)
	}
	if ip.Equal(broadcastAddr(subnet)) {
		return apperr.New(apperr.KindAddressIsSubnetBroadcast, "%s is the broadcast address", addr)
	}
	for id, p := range nw.Peers {
		if id == excludePeer {
			continue
		}
		if p.Address == addr {
			return apperr.New(apperr.KindAddressTaken, "%s is already assigned to %s (%s)", addr, id, p.Name)
		}
	}
	if r, ok := nw.Reservations[addr]; ok && r.ValidUntil.After(now) && r.PeerID != excludePeer {
		return apperr.New(apperr.KindAddressReserved, "%s is held by an unexpired reservation", addr)
	}
	return nil
}

func broadcastAddr(n *net.IPNet) net.IP {
	ip := n.IP.To4()
	if ip == nil {
		return nil
	}
	out := make(net.IP, len(ip))
	for i := range ip {
		out[i] = ip[i] | ^n.Mask[i]
	}
	return out
}
