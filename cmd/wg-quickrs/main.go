// Command wg-quickrs is the CLI: a thin cobra front end over the same
// core components the HTTP API drives, covering the verb set
// get/set/enable/disable/add/remove/reset/list, built as a multi-verb
// tree with github.com/spf13/cobra instead of stdlib flag.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
	"gopkg.in/yaml.v3"

	"wgquickrs/internal/apperr"
	"wgquickrs/internal/auth"
	"wgquickrs/internal/changeset"
	"wgquickrs/internal/procconfig"
	"wgquickrs/internal/server"
	"wgquickrs/internal/store"
	"wgquickrs/internal/wgmodel"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if ae, ok := apperr.As(err); ok {
			fmt.Fprintf(os.Stderr, "%s: %s\n", ae.Kind, ae.Message)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wg-quickrs",
		Short:         "self-hosted WireGuard overlay-network control-plane agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newAgentCmd(), newConfigCmd())
	return root
}

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "agent", Short: "manage the agent process"}
	cmd.AddCommand(newAgentInitCmd(), newAgentRunCmd())
	return cmd
}

func newAgentInitCmd() *cobra.Command {
	var name, subnet, address string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "create a fresh conf.yml seeded with a single this_peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			procCfg := procconfig.Load()
			if _, err := os.Stat(procCfg.ConfigFile); err == nil {
				return fmt.Errorf("%s already exists", procCfg.ConfigFile)
			}
			if err := os.MkdirAll(filepath.Dir(procCfg.ConfigFile), 0o755); err != nil {
				return err
			}
			m, err := newInitialModel(name, subnet, address)
			if err != nil {
				return err
			}
			if err := writeInitial(procCfg.ConfigFile, &m); err != nil {
				return err
			}
			fmt.Printf("initialized %s (this_peer=%s)\n", procCfg.ConfigFile, m.Network.ThisPeer)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "wg-quickrs", "network name")
	cmd.Flags().StringVar(&subnet, "subnet", "10.8.0.0/24", "overlay subnet, CIDR")
	cmd.Flags().StringVar(&address, "address", "10.8.0.1", "this host's address within --subnet")
	return cmd
}

func newInitialModel(name, subnet, address string) (wgmodel.Model, error) {
	key, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return wgmodel.Model{}, fmt.Errorf("generating private key: %w", err)
	}
	now := time.Now()
	thisPeer := uuid.New()
	m := wgmodel.Model{
		Version: wgmodel.ModelVersion,
		Agent: wgmodel.Agent{
			Web: wgmodel.WebConfig{
				Address: "0.0.0.0",
				HTTP:    wgmodel.HTTPConfig{Enabled: true, Port: 80},
			},
			VPN: wgmodel.VPNConfig{Enabled: true, Port: 51820, WgToolPath: "wg"},
		},
		Network: wgmodel.Network{
			Name:     name,
			Subnet:   subnet,
			ThisPeer: thisPeer,
			Peers: map[uuid.UUID]wgmodel.Peer{
				thisPeer: {
					Name:       "this-agent",
					Address:    address,
					PrivateKey: key.String(),
					CreatedAt:  now,
					UpdatedAt:  now,
				},
			},
			Connections:  map[wgmodel.ConnectionID]wgmodel.Connection{},
			Reservations: map[string]wgmodel.Reservation{},
			UpdatedAt:    now,
		},
	}
	if err := m.CheckInvariants(now); err != nil {
		return wgmodel.Model{}, err
	}
	return m, nil
}

func writeInitial(path string, m *wgmodel.Model) error {
	b, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func newAgentRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "boot the Server Orchestrator and block until a shutdown signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Run(procconfig.Load(), version)
		},
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "inspect and mutate the Model directly, bypassing the HTTP API"}
	cmd.AddCommand(
		newConfigGetCmd(),
		newConfigListCmd(),
		newConfigEnableCmd(),
		newConfigDisableCmd(),
		newConfigSetCmd(),
		newConfigAddCmd(),
		newConfigRemoveCmd(),
		newConfigResetCmd(),
	)
	return cmd
}

func openStore() (*store.Store, string, error) {
	procCfg := procconfig.Load()
	s, err := store.Load(procCfg.ConfigFile, nil)
	if err != nil {
		return nil, "", err
	}
	return s, procCfg.ConfigFile, nil
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get {web-http|web-https|web-password|vpn|network}",
		Short: "print one Agent/Network sub-section as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := openStore()
			if err != nil {
				return err
			}
			snap := s.Snapshot()
			var v any
			switch args[0] {
			case "web-http":
				v = snap.Agent.Web.HTTP
			case "web-https":
				v = snap.Agent.Web.HTTPS
			case "web-password":
				v = snap.Agent.Web.Password
			case "vpn":
				v = snap.Agent.VPN
			case "network":
				v = struct {
					Name   string `yaml:"name"`
					Subnet string `yaml:"subnet"`
				}{snap.Network.Name, snap.Network.Subnet}
			default:
				return fmt.Errorf("unknown section %q", args[0])
			}
			b, err := yaml.Marshal(v)
			if err != nil {
				return err
			}
			fmt.Print(string(b))
			return nil
		},
	}
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list {peers|connections|reservations}",
		Short: "list entries of a Network collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := openStore()
			if err != nil {
				return err
			}
			nw := s.Snapshot().Network
			switch args[0] {
			case "peers":
				for id, p := range nw.Peers {
					fmt.Printf("%s\t%s\t%s\n", id, p.Name, p.Address)
				}
			case "connections":
				for id, c := range nw.Connections {
					fmt.Printf("%s\tenabled=%v\n", id, c.Enabled)
				}
			case "reservations":
				for addr, r := range nw.Reservations {
					fmt.Printf("%s\t%s\t%s\n", addr, r.PeerID, r.ValidUntil.Format(time.RFC3339))
				}
			default:
				return fmt.Errorf("unknown collection %q", args[0])
			}
			return nil
		},
	}
}

func newConfigEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable {web-http|web-https|web-password|vpn}",
		Short: "flip an Agent sub-model's enabled flag on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return toggleAgentFlag(args[0], true)
		},
	}
}

func newConfigDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable {web-http|web-https|web-password|vpn}",
		Short: "flip an Agent sub-model's enabled flag off",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return toggleAgentFlag(args[0], false)
		},
	}
}

// toggleAgentFlag edits the Agent sub-model directly: the Agent is
// host-local and outside the Network ChangeSum's scope (ChangeSum only
// mutates Network), so the CLI commits it with its own Mutator exactly
// as a future Agent-scoped endpoint would.
func toggleAgentFlag(feature string, on bool) error {
	s, path, err := openStore()
	if err != nil {
		return err
	}
	err = s.Commit(func(m *wgmodel.Model, now time.Time) error {
		switch feature {
		case "web-http":
			m.Agent.Web.HTTP.Enabled = on
		case "web-https":
			m.Agent.Web.HTTPS.Enabled = on
		case "web-password":
			if on && m.Agent.Web.Password.Hash == "" {
				return fmt.Errorf("set a password first: config reset password")
			}
			m.Agent.Web.Password.Enabled = on
		case "vpn":
			m.Agent.VPN.Enabled = on
		default:
			return fmt.Errorf("unknown feature %q", feature)
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s = %v\n", path, feature, on)
	return nil
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set {web-http-port|web-https-port|vpn-port|network-name|network-subnet} <value>",
		Short: "replace one scalar Agent/Network field",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, value := args[0], args[1]
			switch field {
			case "web-http-port", "web-https-port", "vpn-port":
				port, err := strconv.Atoi(value)
				if err != nil {
					return fmt.Errorf("%s must be an integer: %w", field, err)
				}
				return setAgentPort(field, port)
			case "network-name":
				return applyNetworkChange(&changeset.PartialNetwork{Name: &value})
			case "network-subnet":
				return applyNetworkChange(&changeset.PartialNetwork{Subnet: &value})
			default:
				return fmt.Errorf("unknown field %q", field)
			}
		},
	}
}

func setAgentPort(field string, port int) error {
	s, path, err := openStore()
	if err != nil {
		return err
	}
	err = s.Commit(func(m *wgmodel.Model, now time.Time) error {
		switch field {
		case "web-http-port":
			m.Agent.Web.HTTP.Port = port
		case "web-https-port":
			m.Agent.Web.HTTPS.Port = port
		case "vpn-port":
			m.Agent.VPN.Port = port
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s = %d\n", path, field, port)
	return nil
}

func applyNetworkChange(pn *changeset.PartialNetwork) error {
	s, path, err := openStore()
	if err != nil {
		return err
	}
	cs := changeset.ChangeSum{ChangedFields: &changeset.ChangedFields{Network: pn}}
	if _, err := changeset.Apply(s, nil, cs); err != nil {
		return err
	}
	fmt.Printf("%s: updated\n", path)
	return nil
}

func newConfigAddCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "add", Short: "add a peer or connection"}
	cmd.AddCommand(newConfigAddPeerCmd(), newConfigAddConnectionCmd())
	return cmd
}

func newConfigAddPeerCmd() *cobra.Command {
	var name, address string
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "generate a keypair and add a new Peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, path, err := openStore()
			if err != nil {
				return err
			}
			key, err := wgtypes.GeneratePrivateKey()
			if err != nil {
				return err
			}
			id := uuid.New()
			cs := changeset.ChangeSum{AddedPeers: map[uuid.UUID]wgmodel.Peer{
				id: {Name: name, Address: address, PrivateKey: key.String()},
			}}
			if _, err := changeset.Apply(s, nil, cs); err != nil {
				return err
			}
			fmt.Printf("%s: added peer %s (%s)\n", path, id, name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "peer name")
	cmd.Flags().StringVar(&address, "address", "", "peer's overlay address")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("address")
	return cmd
}

func newConfigAddConnectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connection <peer-a> <peer-b>",
		Short: "enable a pairwise tunnel between two existing peers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("peer-a: %w", err)
			}
			b, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("peer-b: %w", err)
			}
			s, path, err := openStore()
			if err != nil {
				return err
			}
			cid := wgmodel.NewConnectionID(a, b)
			cs := changeset.ChangeSum{AddedConnections: map[wgmodel.ConnectionID]wgmodel.Connection{
				cid: {Enabled: true},
			}}
			if _, err := changeset.Apply(s, nil, cs); err != nil {
				return err
			}
			fmt.Printf("%s: added connection %s\n", path, cid)
			return nil
		},
	}
	return cmd
}

func newConfigRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "remove", Short: "remove a peer or connection"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "peer <id>",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return err
				}
				s, path, err := openStore()
				if err != nil {
					return err
				}
				if _, err := changeset.Apply(s, nil, changeset.ChangeSum{RemovedPeers: []uuid.UUID{id}}); err != nil {
					return err
				}
				fmt.Printf("%s: removed peer %s\n", path, id)
				return nil
			},
		},
		&cobra.Command{
			Use:  "connection <id>",
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cid := wgmodel.ConnectionID(args[0])
				if _, _, err := cid.Peers(); err != nil {
					return err
				}
				s, path, err := openStore()
				if err != nil {
					return err
				}
				if _, err := changeset.Apply(s, nil, changeset.ChangeSum{RemovedConnections: []wgmodel.ConnectionID{cid}}); err != nil {
					return err
				}
				fmt.Printf("%s: removed connection %s\n", path, cid)
				return nil
			},
		},
	)
	return cmd
}

func newConfigResetCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "reset", Short: "reset the administrative password"}
	cmd.AddCommand(newConfigResetPasswordCmd())
	return cmd
}

func newConfigResetPasswordCmd() *cobra.Command {
	var plaintext string
	cmd := &cobra.Command{
		Use:   "password",
		Short: "hash a new administrative password with Argon2id and store it",
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd := plaintext
			if pwd == "" {
				fmt.Fprint(os.Stderr, "Enter new password: ")
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil {
					return err
				}
				pwd = strings.TrimSpace(line)
			} else {
				fmt.Fprintln(os.Stderr, "warning: --password leaves the plaintext password in your shell history")
			}
			hash, err := auth.HashPassword(pwd)
			if err != nil {
				return err
			}
			s, path, err := openStore()
			if err != nil {
				return err
			}
			err = s.Commit(func(m *wgmodel.Model, now time.Time) error {
				m.Agent.Web.Password.Hash = hash
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s: password hash updated\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&plaintext, "password", "", "plaintext password (insecure: prefer the interactive prompt)")
	return cmd
}
