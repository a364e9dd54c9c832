//go:build linux

package tunnel

import (
	"fmt"
	"log"
	"net"
	"os/exec"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// fwmarkTableID and fwmarkValue identify the dedicated routing table and
// packet mark used to keep tunnel default routes out of the main table.
const (
	fwmarkTableID = 51820
	fwmarkValue   = 0xca6c
)

// linuxOps drives the kernel WireGuard module via netlink for interface
// lifecycle and wgctrl for device configuration, instead of shelling
// out to `ip`/`wg` the way wg-quick scripts traditionally do.
type linuxOps struct {
	cfg Config
	wg  *wgctrl.Client
}

func newPlatformOps(cfg Config) platformOps {
	client, err := wgctrl.New()
	if err != nil {
		log.Printf("tunnel: wgctrl.New failed, device configuration will be unavailable: %v", err)
	}
	return &linuxOps{cfg: cfg, wg: client}
}

func (l *linuxOps) createInterface(name string) (string, error) {
	link := &netlink.Wireguard{LinkAttrs: netlink.LinkAttrs{Name: name}}
	if err := netlink.LinkAdd(link); err != nil {
		if l.cfg.UserspaceBinary != "" {
			return l.spawnUserspace(name)
		}
		return "", fmt.Errorf("ip link add %s type wireguard: %w", name, err)
	}
	return name, nil
}

func (l *linuxOps) spawnUserspace(name string) (string, error) {
	cmd := exec.Command(l.cfg.UserspaceBinary, name)
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("spawning userspace binary %s: %w", l.cfg.UserspaceBinary, err)
	}
	return name, nil
}

func (l *linuxOps) deleteInterface(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil // already gone; Stop treats this as success.
	}
	return netlink.LinkDel(link)
}

func (l *linuxOps) setConf(name, configText string) error {
	cfg, err := parseWGConfig(configText)
	if err != nil {
		return err
	}
	if l.wg == nil {
		return fmt.Errorf("no wgctrl client available")
	}
	return l.wg.ConfigureDevice(name, cfg)
}

func (l *linuxOps) addAddress(name, address, subnetCIDR string) error {
	_, subnet, err := net.ParseCIDR(subnetCIDR)
	if err != nil {
		return err
	}
	ones, _ := subnet.Mask.Size()
	link, err := netlink.LinkByName(name)
	if err != nil {
		return err
	}
	addr, err := netlink.ParseAddr(fmt.Sprintf("%s/%d", address, ones))
	if err != nil {
		return err
	}
	return netlink.AddrAdd(link, addr)
}

func (l *linuxOps) setMTU(name string, mtu int) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return err
	}
	return netlink.LinkSetMTU(link, mtu)
}

func (l *linuxOps) calculateDefaultMTU() int {
	routes, err := netlink.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		return 1500
	}
	for _, r := range routes {
		if r.Dst == nil && r.LinkIndex > 0 {
			if link, err := netlink.LinkByIndex(r.LinkIndex); err == nil {
				return link.Attrs().MTU
			}
		}
	}
	return 1500
}

func (l *linuxOps) linkUp(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return err
	}
	return netlink.LinkSetUp(link)
}

// installRoutes installs each AllowedIPs CIDR as a route via the
// interface. "/0" routes go into the dedicated fwmark table instead of
// the main table, with `ip rule` entries steering unmarked traffic
// there and an nftables rule marking packets on the tunnel interface so
// return traffic finds its way back.
func (l *linuxOps) installRoutes(name string, vpnPort int, allowedIPs []string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return err
	}
	hasDefault := false
	for _, cidr := range allowedIPs {
		_, dst, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		table := unix.RT_TABLE_MAIN
		if ones, _ := dst.Mask.Size(); ones == 0 {
			hasDefault = true
			table = fwmarkTableID
		}
		route := &netlink.Route{LinkIndex: link.Attrs().Index, Dst: dst, Table: table}
		if err := netlink.RouteAdd(route); err != nil {
			log.Printf("tunnel: route add %s: %v", cidr, err)
		}
	}
	if hasDefault {
		if err := installFwmarkRules(); err != nil {
			return err
		}
		if err := installNftablesMark(name); err != nil {
			log.Printf("tunnel: nftables fwmark rule (continuing without it): %v", err)
		}
	}
	return nil
}

func (l *linuxOps) removeRoutes(name string, allowedIPs []string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil
	}
	for _, cidr := range allowedIPs {
		_, dst, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		_ = netlink.RouteDel(&netlink.Route{LinkIndex: link.Attrs().Index, Dst: dst})
	}
	removeFwmarkRules()
	removeNftablesMark()
	return nil
}

func installFwmarkRules() error {
	rule := netlink.NewRule()
	rule.Table = fwmarkTableID
	rule.Invert = true
	rule.Mark = fwmarkValue
	if err := netlink.RuleAdd(rule); err != nil {
		log.Printf("tunnel: ip rule add (fwmark table): %v", err)
	}
	return nil
}

func removeFwmarkRules() {
	rule := netlink.NewRule()
	rule.Table = fwmarkTableID
	rule.Invert = true
	rule.Mark = fwmarkValue
	_ = netlink.RuleDel(rule)
}

// installNftablesMark marks packets arriving on iface so return traffic
// routes back out through the fwmark table, replacing a handwritten
// `nft -f -` invocation with the nftables library's Go API.
func installNftablesMark(iface string) error {
	conn := &nftables.Conn{}
	table := conn.AddTable(&nftables.Table{Name: "wgquickrs", Family: nftables.TableFamilyIPv4})
	chain := conn.AddChain(&nftables.Chain{
		Name:     "mark-wg-" + iface,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookPrerouting,
		Priority: nftables.ChainPriorityMangle,
	})
	conn.AddRule(&nftables.Rule{
		Table: table,
		Chain: chain,
		Exprs: []expr.Any{
			&expr.Meta{Key: expr.MetaKeyIIFNAME, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte(iface + "\x00")},
			&expr.Immediate{Register: 1, Data: binaryLE(fwmarkValue)},
			&expr.Meta{Key: expr.MetaKeyMARK, Register: 1, SourceRegister: true},
		},
	})
	return conn.Flush()
}

func removeNftablesMark() {
	conn := &nftables.Conn{}
	conn.DelTable(&nftables.Table{Name: "wgquickrs", Family: nftables.TableFamilyIPv4})
	_ = conn.Flush()
}

func binaryLE(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func (l *linuxOps) setDNS(name string, servers []string) error {
	args := append([]string{"-x", name}, servers...)
	return exec.Command("resolvconf", args...).Run()
}

func (l *linuxOps) clearDNS(name string) error {
	return exec.Command("resolvconf", "-d", name).Run()
}

func parseWGConfig(configText string) (wgtypes.Config, error) {
	return parsePlainConfig(configText)
}
