// Package wgmodel defines the configuration model described in the
// network's data model: the Agent and Network sub-aggregates, peers,
// connections, reservations, and the canonical ConnectionID pairing.
package wgmodel

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ModelVersion is the major.minor.patch version written to and checked
// against conf.yml. Only the major component gates load compatibility.
const ModelVersion = "1.0.0"

// Model is the aggregate root: one host-local Agent sub-model plus one
// replicated Network sub-model.
type Model struct {
	Version string  `yaml:"version" json:"version"`
	Agent   Agent   `yaml:"agent" json:"agent"`
	Network Network `yaml:"network" json:"network"`
}

// Agent is host-local and never replicated between agents.
type Agent struct {
	Web      WebConfig      `yaml:"web" json:"web"`
	VPN      VPNConfig      `yaml:"vpn" json:"vpn"`
	Firewall FirewallConfig `yaml:"firewall" json:"firewall"`
}

// WebConfig describes the administrative HTTP/HTTPS API surface.
type WebConfig struct {
	Address  string         `yaml:"address" json:"address"`
	HTTP     HTTPConfig     `yaml:"http" json:"http"`
	HTTPS    HTTPSConfig    `yaml:"https" json:"https"`
	Password PasswordConfig `yaml:"password" json:"password"`
}

type HTTPConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Port    int  `yaml:"port" json:"port"`
}

type HTTPSConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	TLSCert string `yaml:"tls_cert" json:"tls_cert"`
	TLSKey  string `yaml:"tls_key" json:"tls_key"`
}

// PasswordConfig stores the Argon2 hash of the administrative password.
// Hashing itself is an external collaborator; this struct only holds
// the already-computed hash and whether auth is required at all.
type PasswordConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Hash    string `yaml:"hash" json:"-"`
}

// VPNConfig describes the tunnel's own listening parameters and the
// external tool paths used to drive it.
type VPNConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Port            int    `yaml:"port" json:"port"`
	WgToolPath      string `yaml:"wg_tool_path" json:"wg_tool_path"`
	UserspaceBinary string `yaml:"userspace_binary,omitempty" json:"userspace_binary,omitempty"`
}

// FirewallConfig bundles ordered hook-script lists by protocol.
type FirewallConfig struct {
	HTTP  ScriptBundle `yaml:"http" json:"http"`
	HTTPS ScriptBundle `yaml:"https" json:"https"`
	VPN   ScriptBundle `yaml:"vpn" json:"vpn"`
}

// ScriptBundle holds the four phase script lists applicable to a protocol.
// Web protocols (http/https) only use pre_up/post_down; vpn uses all four.
type ScriptBundle struct {
	PreUp    []Script `yaml:"pre_up" json:"pre_up"`
	PostUp   []Script `yaml:"post_up" json:"post_up"`
	PreDown  []Script `yaml:"pre_down" json:"pre_down"`
	PostDown []Script `yaml:"post_down" json:"post_down"`
}

// Network is the replicated overlay state.
type Network struct {
	Name         string                      `yaml:"name" json:"name"`
	Subnet       string                      `yaml:"subnet" json:"subnet"`
	ThisPeer     uuid.UUID                   `yaml:"this_peer" json:"this_peer"`
	Peers        map[uuid.UUID]Peer          `yaml:"peers" json:"peers"`
	Connections  map[ConnectionID]Connection `yaml:"connections" json:"connections"`
	Defaults     Defaults                    `yaml:"defaults" json:"defaults"`
	Reservations map[string]Reservation      `yaml:"reservations" json:"reservations"`
	UpdatedAt    time.Time                   `yaml:"updated_at" json:"updated_at"`
}

// Defaults holds the templates new Peer/Connection entries are seeded
// from by clients; the agent itself never applies them, it only stores
// and returns them.
type Defaults struct {
	Peer       PeerDefaults       `yaml:"peer" json:"peer"`
	Connection ConnectionDefaults `yaml:"connection" json:"connection"`
}

type PeerDefaults struct {
	Endpoint EndpointConfig `yaml:"endpoint" json:"endpoint"`
	DNS      DNSConfig      `yaml:"dns" json:"dns"`
	MTU      MTUConfig      `yaml:"mtu" json:"mtu"`
	Scripts  Scripts        `yaml:"scripts" json:"scripts"`
}

type ConnectionDefaults struct {
	PersistentKeepalive KeepaliveConfig `yaml:"persistent_keepalive" json:"persistent_keepalive"`
}

// Peer is one overlay-network member.
type Peer struct {
	Name       string         `yaml:"name" json:"name"`
	Address    string         `yaml:"address" json:"address"`
	Endpoint   EndpointConfig `yaml:"endpoint" json:"endpoint"`
	Kind       string         `yaml:"kind" json:"kind"`
	Icon       IconConfig     `yaml:"icon" json:"icon"`
	DNS        DNSConfig      `yaml:"dns" json:"dns"`
	MTU        MTUConfig      `yaml:"mtu" json:"mtu"`
	Scripts    Scripts        `yaml:"scripts" json:"scripts"`
	PrivateKey string         `yaml:"private_key" json:"-"`
	CreatedAt  time.Time      `yaml:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `yaml:"updated_at" json:"updated_at"`
}

// EndpointConfig describes how a peer is reachable from the outside.
type EndpointConfig struct {
	Enabled bool             `yaml:"enabled" json:"enabled"`
	Address *EndpointAddress `yaml:"address" json:"address"`
}

// EndpointAddress is either an IPv4:port pair or a hostname:port pair.
type EndpointAddress struct {
	IPv4AndPort     *IPv4AndPort     `yaml:"ipv4_and_port,omitempty" json:"ipv4_and_port,omitempty"`
	HostnameAndPort *HostnameAndPort `yaml:"hostname_and_port,omitempty" json:"hostname_and_port,omitempty"`
}

type IPv4AndPort struct {
	IPv4 string `yaml:"ipv4" json:"ipv4"`
	Port uint16 `yaml:"port" json:"port"`
}

type HostnameAndPort struct {
	Hostname string `yaml:"hostname" json:"hostname"`
	Port     uint16 `yaml:"port" json:"port"`
}

// String renders the endpoint as "<host>:<port>" for config rendering.
func (e *EndpointAddress) String() string {
	if e == nil {
		return ""
	}
	if e.IPv4AndPort != nil {
		return fmt.Sprintf("%s:%d", e.IPv4AndPort.IPv4, e.IPv4AndPort.Port)
	}
	if e.HostnameAndPort != nil {
		return fmt.Sprintf("%s:%d", e.HostnameAndPort.Hostname, e.HostnameAndPort.Port)
	}
	return ""
}

type IconConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Src     string `yaml:"src" json:"src"`
}

type DNSConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	Addresses []string `yaml:"addresses" json:"addresses"`
}

type MTUConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Value   int  `yaml:"value" json:"value"`
}

type KeepaliveConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Period  int  `yaml:"period" json:"period"`
}

// Scripts holds the four ordered hook-script lists for a peer.
type Scripts struct {
	PreUp    []Script `yaml:"pre_up" json:"pre_up"`
	PostUp   []Script `yaml:"post_up" json:"post_up"`
	PreDown  []Script `yaml:"pre_down" json:"pre_down"`
	PostDown []Script `yaml:"post_down" json:"post_down"`
}

type Script struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Script  string `yaml:"script" json:"script"`
}

// Connection is an enabled pairwise tunnel between two peers, keyed by
// its canonical ConnectionID.
type Connection struct {
	Enabled             bool            `yaml:"enabled" json:"enabled"`
	PreSharedKey        string          `yaml:"pre_shared_key" json:"-"`
	PersistentKeepalive KeepaliveConfig `yaml:"persistent_keepalive" json:"persistent_keepalive"`
	AllowedIPsAToB      []string        `yaml:"allowed_ips_a_to_b" json:"allowed_ips_a_to_b"`
	AllowedIPsBToA      []string        `yaml:"allowed_ips_b_to_a" json:"allowed_ips_b_to_a"`
}

// Reservation is a short-lived hold on an unused subnet address.
type Reservation struct {
	PeerID     uuid.UUID `yaml:"peer_id" json:"peer_id"`
	ValidUntil time.Time `yaml:"valid_until" json:"valid_until"`
}
