package tunnel

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// parsePlainConfig turns the INI text this repo's own Config Renderer
// produces back into a wgtypes.Config suitable for
// wgctrl.Client.ConfigureDevice. Since we control the producer, this is
// a straight line-oriented parse rather than a general WireGuard config
// parser.
func parsePlainConfig(text string) (wgtypes.Config, error) {
	var cfg wgtypes.Config
	var peer *wgtypes.PeerConfig
	section := ""

	flushPeer := func() {
		if peer != nil {
			cfg.Peers = append(cfg.Peers, *peer)
			peer = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "[Interface]" {
			section = "interface"
			continue
		}
		if line == "[Peer]" {
			flushPeer()
			section = "peer"
			peer = &wgtypes.PeerConfig{}
			continue
		}
		key, value, ok := splitDirective(line)
		if !ok {
			continue
		}
		switch section {
		case "interface":
			if err := applyInterfaceDirective(&cfg, key, value); err != nil {
				return cfg, err
			}
		case "peer":
			if err := applyPeerDirective(peer, key, value); err != nil {
				return cfg, err
			}
		}
	}
	flushPeer()
	cfg.ReplacePeers = true
	return cfg, nil
}

func splitDirective(line string) (key, value string, ok bool) {
	idx := strings.Index(line, "=")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

func applyInterfaceDirective(cfg *wgtypes.Config, key, value string) error {
	switch key {
	case "PrivateKey":
		key, err := wgtypes.ParseKey(value)
		if err != nil {
			return fmt.Errorf("PrivateKey: %w", err)
		}
		cfg.PrivateKey = &key
	case "ListenPort":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("ListenPort: %w", err)
		}
		cfg.ListenPort = &port
	}
	return nil
}

func applyPeerDirective(peer *wgtypes.PeerConfig, key, value string) error {
	switch key {
	case "PublicKey":
		k, err := wgtypes.ParseKey(value)
		if err != nil {
			return fmt.Errorf("PublicKey: %w", err)
		}
		peer.PublicKey = k
	case "PresharedKey":
		k, err := wgtypes.ParseKey(value)
		if err != nil {
			return fmt.Errorf("PresharedKey: %w", err)
		}
		peer.PresharedKey = &k
	case "AllowedIPs":
		for _, cidr := range strings.Split(value, ",") {
			cidr = strings.TrimSpace(cidr)
			_, n, err := net.ParseCIDR(cidr)
			if err != nil {
				return fmt.Errorf("AllowedIPs: %w", err)
			}
			peer.AllowedIPs = append(peer.AllowedIPs, *n)
		}
	case "PersistentKeepalive":
		secs, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("PersistentKeepalive: %w", err)
		}
		d := time.Duration(secs) * time.Second
		peer.PersistentKeepaliveInterval = &d
	case "Endpoint":
		addr, err := net.ResolveUDPAddr("udp", value)
		if err != nil {
			return fmt.Errorf("Endpoint: %w", err)
		}
		peer.Endpoint = addr
	}
	return nil
}
