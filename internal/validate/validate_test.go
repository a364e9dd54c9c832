package validate

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"wgquickrs/internal/apperr"
	"wgquickrs/internal/wgmodel"
)

func TestSubnet(t *testing.T) {
	if _, err := Subnet("10.0.0.0/24"); err != nil {
		t.Fatalf("Subnet(valid) error = %v", err)
	}
	cases := []string{"not-a-cidr", "::1/64", "10.0.0.1"}
	for _, c := range cases {
		if _, err := Subnet(c); err == nil {
			t.Errorf("Subnet(%q) error = nil, want error", c)
		}
	}
}

func TestName(t *testing.T) {
	if _, err := Name("peer.name", "  "); err == nil {
		t.Fatalf("Name(blank) error = nil, want error")
	}
	got, err := Name("peer.name", "laptop")
	if err != nil || got != "laptop" {
		t.Fatalf("Name(laptop) = (%q, %v), want (\"laptop\", nil)", got, err)
	}
}

func TestWireGuardKey(t *testing.T) {
	// 32 zero bytes, base64-encoded.
	valid := "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="
	if _, err := WireGuardKey("key", valid); err != nil {
		t.Fatalf("WireGuardKey(valid) error = %v", err)
	}
	if _, err := WireGuardKey("key", "not-base64!!"); err == nil {
		t.Fatalf("WireGuardKey(bad base64) error = nil, want error")
	}
	if _, err := WireGuardKey("key", "AAAA"); err == nil {
		t.Fatalf("WireGuardKey(wrong length) error = nil, want error")
	}
}

func TestEndpointIPv4(t *testing.T) {
	ep, err := Endpoint("peer.endpoint", "203.0.113.5:51820")
	if err != nil {
		t.Fatalf("Endpoint() error = %v", err)
	}
	if ep.IPv4AndPort == nil || ep.IPv4AndPort.IPv4 != "203.0.113.5" || ep.IPv4AndPort.Port != 51820 {
		t.Fatalf("Endpoint() = %+v, want ipv4_and_port 203.0.113.5:51820", ep)
	}
}

func TestEndpointHostname(t *testing.T) {
	ep, err := Endpoint("peer.endpoint", "vpn.example.com:51820")
	if err != nil {
		t.Fatalf("Endpoint() error = %v", err)
	}
	if ep.HostnameAndPort == nil || ep.HostnameAndPort.Hostname != "vpn.example.com" || ep.HostnameAndPort.Port != 51820 {
		t.Fatalf("Endpoint() = %+v, want hostname_and_port vpn.example.com:51820", ep)
	}
}

func TestEndpointRejections(t *testing.T) {
	cases := []string{
		"no-port-here",
		"host:not-a-port",
		"host:99999",
		"-bad-host.com:51820",
	}
	for _, c := range cases {
		if _, err := Endpoint("peer.endpoint", c); err == nil {
			t.Errorf("Endpoint(%q) error = nil, want error", c)
		}
	}
}

func TestDNSAddresses(t *testing.T) {
	got, err := DNSAddresses("peer.dns", "1.1.1.1, 8.8.8.8")
	if err != nil {
		t.Fatalf("DNSAddresses() error = %v", err)
	}
	if len(got) != 2 || got[0] != "1.1.1.1" || got[1] != "8.8.8.8" {
		t.Fatalf("DNSAddresses() = %v, want [1.1.1.1 8.8.8.8]", got)
	}
	if _, err := DNSAddresses("peer.dns", "not-an-ip"); err == nil {
		t.Fatalf("DNSAddresses(bad) error = nil, want error")
	}
	if _, err := DNSAddresses("peer.dns", ""); err == nil {
		t.Fatalf("DNSAddresses(empty) error = nil, want error")
	}
}

func TestAllowedIPs(t *testing.T) {
	got, err := AllowedIPs("conn.allowed_ips", "10.0.0.0/24, 192.168.1.0/24")
	if err != nil {
		t.Fatalf("AllowedIPs() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("AllowedIPs() = %v, want 2 entries", got)
	}
	if _, err := AllowedIPs("conn.allowed_ips", "not-a-cidr"); err == nil {
		t.Fatalf("AllowedIPs(bad) error = nil, want error")
	}
	if _, err := AllowedIPs("conn.allowed_ips", ""); err == nil {
		t.Fatalf("AllowedIPs(empty) error = nil, want error")
	}
}

func TestMTU(t *testing.T) {
	if _, err := MTU("mtu", 1420); err != nil {
		t.Fatalf("MTU(1420) error = %v", err)
	}
	if _, err := MTU("mtu", 0); err == nil {
		t.Fatalf("MTU(0) error = nil, want error")
	}
	if _, err := MTU("mtu", 10001); err == nil {
		t.Fatalf("MTU(10001) error = nil, want error")
	}
}

func TestScript(t *testing.T) {
	if _, err := Script("script", "iptables -A FORWARD -j ACCEPT;"); err != nil {
		t.Fatalf("Script(trailing semicolon) error = %v", err)
	}
	if _, err := Script("script", "iptables -A FORWARD -j ACCEPT;  \n"); err != nil {
		t.Fatalf("Script(trailing whitespace) error = %v", err)
	}
	if _, err := Script("script", "iptables -A FORWARD -j ACCEPT"); err == nil {
		t.Fatalf("Script(no semicolon) error = nil, want error")
	}
}

func TestPeerAddress(t *testing.T) {
	existing := uuid.New()
	nw := &wgmodel.Network{
		Subnet: "10.10.0.0/24",
		Peers: map[uuid.UUID]wgmodel.Peer{
			existing: {Name: "laptop", Address: "10.10.0.5"},
		},
		Reservations: map[string]wgmodel.Reservation{
			"10.10.0.9": {PeerID: uuid.New(), ValidUntil: time.Now().Add(time.Hour)},
		},
	}
	now := time.Now()

	if err := validPeerAddress(nw, "10.10.0.7", now); err != nil {
		t.Fatalf("PeerAddress(free address) error = %v", err)
	}

	ae, ok := apperr.As(PeerAddress("peer.address", "192.168.1.1", nw, uuid.Nil, now))
	if !ok || ae.Kind != apperr.KindAddressNotInSubnet {
		t.Fatalf("PeerAddress(outside subnet) error = %v, want KindAddressNotInSubnet", ae)
	}

	ae, ok = apperr.As(PeerAddress("peer.address", "10.10.0.0", nw, uuid.Nil, now))
	if !ok || ae.Kind != apperr.KindAddressIsSubnetNetwork {
		t.Fatalf("PeerAddress(network address) error = %v, want KindAddressIsSubnetNetwork", ae)
	}

	ae, ok = apperr.As(PeerAddress("peer.address", "10.10.0.255", nw, uuid.Nil, now))
	if !ok || ae.Kind != apperr.KindAddressIsSubnetBroadcast {
		t.Fatalf("PeerAddress(broadcast address) error = %v, want KindAddressIsSubnetBroadcast", ae)
	}

	ae, ok = apperr.As(PeerAddress("peer.address", "10.10.0.5", nw, uuid.Nil, now))
	if !ok || ae.Kind != apperr.KindAddressTaken {
		t.Fatalf("PeerAddress(taken) error = %v, want KindAddressTaken", ae)
	}
	if err := PeerAddress("peer.address", "10.10.0.5", nw, existing, now); err != nil {
		t.Fatalf("PeerAddress(own current address) error = %v, want nil", err)
	}

	ae, ok = apperr.As(PeerAddress("peer.address", "10.10.0.9", nw, uuid.Nil, now))
	if !ok || ae.Kind != apperr.KindAddressReserved {
		t.Fatalf("PeerAddress(reserved) error = %v, want KindAddressReserved", ae)
	}
}

func validPeerAddress(nw *wgmodel.Network, addr string, now time.Time) error {
	return PeerAddress("peer.address", addr, nw, uuid.Nil, now)
}
