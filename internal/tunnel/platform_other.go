//go:build !linux

package tunnel

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl"
)

// otherOps implements the kernel-less-platform branch: there is no
// `ip link add ... type wireguard`, so Start spawns the userspace
// binary in a detached session and reads the assigned utunN name back
// from its name-file, mirroring how wg-quick's darwin path bootstraps
// a userspace utun interface.
type otherOps struct {
	cfg Config
	wg  *wgctrl.Client
}

func newPlatformOps(cfg Config) platformOps {
	client, _ := wgctrl.New()
	return &otherOps{cfg: cfg, wg: client}
}

func (o *otherOps) createInterface(name string) (string, error) {
	nameFile := filepath.Join(o.cfg.DataDir, name+".name")
	_ = os.Remove(nameFile)

	cmd := exec.Command(o.cfg.UserspaceBinary, "utun")
	cmd.Env = append(os.Environ(), "WG_TUN_NAME_FILE="+nameFile)
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("spawning userspace binary: %w", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if b, err := os.ReadFile(nameFile); err == nil && len(b) > 0 {
			return firstLine(b), nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return "", fmt.Errorf("timed out waiting for %s", nameFile)
}

func firstLine(b []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(b))
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}

func (o *otherOps) deleteInterface(name string) error {
	return exec.Command("ifconfig", name, "destroy").Run()
}

func (o *otherOps) setConf(name, configText string) error {
	cfg, err := parsePlainConfig(configText)
	if err != nil {
		return err
	}
	if o.wg == nil {
		return fmt.Errorf("no wgctrl client available")
	}
	return o.wg.ConfigureDevice(name, cfg)
}

func (o *otherOps) addAddress(name, address, subnetCIDR string) error {
	return exec.Command("ifconfig", name, "inet", address, address, "netmask", maskOf(subnetCIDR)).Run()
}

// maskOf renders subnetCIDR's netmask in dotted-decimal form for ifconfig.
func maskOf(subnetCIDR string) string {
	_, n, err := net.ParseCIDR(subnetCIDR)
	if err != nil || len(n.Mask) != 4 {
		return "255.255.255.0"
	}
	return fmt.Sprintf("%d.%d.%d.%d", n.Mask[0], n.Mask[1], n.Mask[2], n.Mask[3])
}

func (o *otherOps) setMTU(name string, mtu int) error {
	return exec.Command("ifconfig", name, "mtu", fmt.Sprintf("%d", mtu)).Run()
}

func (o *otherOps) calculateDefaultMTU() int {
	return 1500
}

func (o *otherOps) linkUp(name string) error {
	return exec.Command("ifconfig", name, "up").Run()
}

// installRoutes installs two /1 half-routes instead of replacing the
// default route outright, the wg-quick convention for routing all
// traffic through the tunnel without clobbering the existing default
// route entry. It does not pin peer endpoint IPs to the pre-existing
// gateway; see DESIGN.md for why this fallback path leaves that to the
// operator.
func (o *otherOps) installRoutes(name string, vpnPort int, allowedIPs []string) error {
	for _, cidr := range allowedIPs {
		if cidr == "0.0.0.0/0" {
			_ = exec.Command("route", "add", "-net", "0.0.0.0/1", "-interface", name).Run()
			_ = exec.Command("route", "add", "-net", "128.0.0.0/1", "-interface", name).Run()
			continue
		}
		_ = exec.Command("route", "add", "-net", cidr, "-interface", name).Run()
	}
	return nil
}

func (o *otherOps) removeRoutes(name string, allowedIPs []string) error {
	for _, cidr := range allowedIPs {
		if cidr == "0.0.0.0/0" {
			_ = exec.Command("route", "delete", "-net", "0.0.0.0/1").Run()
			_ = exec.Command("route", "delete", "-net", "128.0.0.0/1").Run()
			continue
		}
		_ = exec.Command("route", "delete", "-net", cidr).Run()
	}
	return nil
}

func (o *otherOps) setDNS(name string, servers []string) error {
	for _, s := range servers {
		if err := exec.Command("networksetup", "-setdnsservers", name, s).Run(); err != nil {
			return err
		}
	}
	return nil
}

func (o *otherOps) clearDNS(name string) error {
	return exec.Command("networksetup", "-setdnsservers", name, "empty").Run()
}
