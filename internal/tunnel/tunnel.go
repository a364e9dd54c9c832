// Package tunnel implements the Tunnel Manager: the only component
// allowed to touch the platform's WireGuard interface, routing/DNS
// state, and firewall. The exec-based syncConfig/getWgStatus plumbing
// follows the familiar wg-quick start/stop step ordering. The
// platform-specific half of Start/Stop (interface create/destroy,
// addresses, routes, fwmark table) lives in platform_linux.go and
// platform_other.go.
package tunnel

import (
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"wgquickrs/internal/apperr"
	"wgquickrs/internal/render"
	"wgquickrs/internal/wgmodel"
)

// State is the Tunnel Manager's externally observable lifecycle state.
type State int

const (
	StateDown State = iota
	StateUp
	StateUnknown
)

func (s State) String() string {
	switch s {
	case StateDown:
		return "DOWN"
	case StateUp:
		return "UP"
	default:
		return "UNKNOWN"
	}
}

// Config is the static configuration the Manager needs at construction
// time; it does not change across Start/Stop cycles.
type Config struct {
	InterfaceName   string
	WgToolPath      string
	UserspaceBinary string
	DataDir         string
}

// Manager owns the single real_interface field and the lock serializing
// start/stop/sync operations.
type Manager struct {
	cfg Config

	mu            sync.Mutex
	state         State
	realInterface string

	platform platformOps
}

// New constructs a Manager. No interface is created until Start.
func New(cfg Config) *Manager {
	return &Manager{cfg: cfg, state: StateDown, platform: newPlatformOps(cfg)}
}

// IsUp reports whether the manager believes the interface is live. Safe
// for the Telemetry Sampler and Change-Set Applier to call concurrently.
func (m *Manager) IsUp() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateUp
}

// InterfaceName returns the live interface name, or "" if down.
func (m *Manager) InterfaceName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.realInterface
}

// Start brings the tunnel up for the given Model snapshot, running each
// step of a fixed ordered sequence. A failure at any step tears down
// whatever already succeeded, in reverse, and leaves the state DOWN.
func (m *Manager) Start(model *wgmodel.Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateUp {
		return apperr.New(apperr.KindInterfaceExists, "%s", m.realInterface)
	}
	m.state = StateUnknown

	nw := &model.Network
	self, ok := nw.Peers[nw.ThisPeer]
	if !ok {
		m.state = StateDown
		return apperr.New(apperr.KindPeerNotFound, "this_peer %s", nw.ThisPeer)
	}

	var completed []func()
	teardown := func() {
		for i := len(completed) - 1; i >= 0; i-- {
			completed[i]()
		}
	}

	runHooks(model.Agent.Firewall.VPN.PreUp, hookEnv{
		"WG_SUBNET":    nw.Subnet,
		"WG_PORT":      fmt.Sprintf("%d", model.Agent.VPN.Port),
		"WG_INTERFACE": m.cfg.InterfaceName,
	})

	ifaceName, err := m.platform.createInterface(m.cfg.InterfaceName)
	if err != nil {
		m.state = StateDown
		return apperr.Wrap(apperr.KindCommandFailed, err, "creating interface")
	}
	m.realInterface = ifaceName
	completed = append(completed, func() { _ = m.platform.deleteInterface(ifaceName) })

	fullConfig, err := render.Peer(nw, nw.ThisPeer, render.Full)
	if err != nil {
		teardown()
		m.state = StateDown
		return err
	}
	if err := m.platform.setConf(ifaceName, fullConfig); err != nil {
		teardown()
		m.state = StateDown
		return apperr.Wrap(apperr.KindCommandFailed, err, "setconf")
	}

	if err := m.platform.addAddress(ifaceName, self.Address, nw.Subnet); err != nil {
		teardown()
		m.state = StateDown
		return apperr.Wrap(apperr.KindCommandFailed, err, "adding address")
	}

	mtu := self.MTU.Value
	if !self.MTU.Enabled {
		mtu = m.platform.calculateDefaultMTU() - 80
	}
	if err := m.platform.setMTU(ifaceName, mtu); err != nil {
		teardown()
		m.state = StateDown
		return apperr.Wrap(apperr.KindCommandFailed, err, "setting mtu")
	}

	if err := m.platform.linkUp(ifaceName); err != nil {
		teardown()
		m.state = StateDown
		return apperr.Wrap(apperr.KindCommandFailed, err, "bringing link up")
	}

	routes := allowedIPsFor(nw, nw.ThisPeer)
	if err := m.platform.installRoutes(ifaceName, model.Agent.VPN.Port, routes); err != nil {
		teardown()
		m.state = StateDown
		return apperr.Wrap(apperr.KindCommandFailed, err, "installing routes")
	}
	completed = append(completed, func() { _ = m.platform.removeRoutes(ifaceName, routes) })

	if self.DNS.Enabled {
		if err := m.platform.setDNS(ifaceName, self.DNS.Addresses); err != nil {
			teardown()
			m.state = StateDown
			return apperr.Wrap(apperr.KindCommandFailed, err, "setting dns")
		}
		completed = append(completed, func() { _ = m.platform.clearDNS(ifaceName) })
	}

	runHooks(model.Agent.Firewall.VPN.PostUp, hookEnv{
		"WG_SUBNET":    nw.Subnet,
		"WG_PORT":      fmt.Sprintf("%d", model.Agent.VPN.Port),
		"WG_INTERFACE": ifaceName,
	})

	m.state = StateUp
	return nil
}

// Stop tears the tunnel down. Idempotent: calling it while already DOWN
// returns nil. Each step is best-effort; failures are logged, not
// propagated, so the remaining steps still run.
func (m *Manager) Stop(model *wgmodel.Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateDown {
		return nil
	}
	ifaceName := m.realInterface
	env := hookEnv{
		"WG_SUBNET":    model.Network.Subnet,
		"WG_PORT":      fmt.Sprintf("%d", model.Agent.VPN.Port),
		"WG_INTERFACE": ifaceName,
	}

	runHooks(model.Agent.Firewall.VPN.PreDown, env)

	if err := m.platform.clearDNS(ifaceName); err != nil {
		log.Printf("tunnel: stop: clearing dns: %v", err)
	}
	routes := allowedIPsFor(&model.Network, model.Network.ThisPeer)
	if err := m.platform.removeRoutes(ifaceName, routes); err != nil {
		log.Printf("tunnel: stop: removing routes: %v", err)
	}
	if err := m.platform.deleteInterface(ifaceName); err != nil {
		log.Printf("tunnel: stop: deleting interface: %v", err)
	}

	runHooks(model.Agent.Firewall.VPN.PostDown, env)

	m.realInterface = ""
	m.state = StateDown
	return nil
}

// Sync writes strippedConfig to the live interface via the platform's
// syncconf-equivalent, without ever recreating the interface.
func (m *Manager) Sync(strippedConfig string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateUp {
		return apperr.New(apperr.KindInterfaceMissing, "no live interface to sync")
	}
	if err := m.platform.setConf(m.realInterface, strippedConfig); err != nil {
		return apperr.Wrap(apperr.KindInterfaceSyncFailed, err, "syncconf")
	}
	return nil
}

// allowedIPsFor collects every AllowedIPs CIDR this peer participates
// in across its enabled connections.
func allowedIPsFor(nw *wgmodel.Network, peerID uuid.UUID) []string {
	var out []string
	for cid, conn := range nw.Connections {
		if !conn.Enabled || !cid.References(peerID) {
			continue
		}
		side, _ := cid.SideOf(peerID)
		if side == wgmodel.SideA {
			out = append(out, conn.AllowedIPsAToB...)
		} else {
			out = append(out, conn.AllowedIPsBToA...)
		}
	}
	return out
}

// platformOps is the seam between the lifecycle sequence above and the
// OS-specific mechanics implemented in platform_linux.go / platform_other.go.
type platformOps interface {
	createInterface(name string) (realName string, err error)
	deleteInterface(name string) error
	setConf(name, configText string) error
	addAddress(name, address, subnetCIDR string) error
	setMTU(name string, mtu int) error
	calculateDefaultMTU() int
	linkUp(name string) error
	installRoutes(name string, vpnPort int, allowedIPs []string) error
	removeRoutes(name string, allowedIPs []string) error
	setDNS(name string, servers []string) error
	clearDNS(name string) error
}
