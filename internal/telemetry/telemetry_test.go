package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"wgquickrs/internal/wgmodel"
)

type fakeInterface struct {
	up   bool
	name string
}

func (f fakeInterface) IsUp() bool         { return f.up }
func (f fakeInterface) InterfaceName() string { return f.name }

func genKey(t *testing.T) wgtypes.Key {
	t.Helper()
	k, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey() error = %v", err)
	}
	return k
}

// writeFakeWgTool writes an executable shell script that mimics
// `wg show <iface> dump`, printing one interface row and one peer row.
func writeFakeWgTool(t *testing.T, peerPublicKey string, rxBytes, txBytes uint64, handshakeUnix int64) string {
	t.Helper()
	script := "#!/bin/sh\n" +
		"printf 'server-private-key\\t51820\\toff\\n'\n" +
		"printf '" + peerPublicKey + "\\t(none)\\t(none)\\t10.10.0.2/32\\t" +
		itoa(handshakeUnix) + "\\t" + uitoa(rxBytes) + "\\t" + uitoa(txBytes) + "\\t25\\n'\n"
	path := filepath.Join(t.TempDir(), "fakewg")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("os.WriteFile() error = %v", err)
	}
	return path
}

func itoa(v int64) string  { return uitoa(uint64(v)) }
func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}

func TestSampleOnceMapsRowsToCanonicalSides(t *testing.T) {
	thisPeer := uuid.New()
	otherPeer := uuid.New()
	thisKey := genKey(t)
	otherKey := genKey(t)

	handshake := time.Now().Add(-5 * time.Second).Unix()
	wgPath := writeFakeWgTool(t, otherKey.PublicKey().String(), 1000, 2000, handshake)

	nw := wgmodel.Network{
		ThisPeer: thisPeer,
		Peers: map[uuid.UUID]wgmodel.Peer{
			thisPeer:  {Name: "laptop", PrivateKey: thisKey.String()},
			otherPeer: {Name: "phone", PrivateKey: otherKey.String()},
		},
	}

	s := New(wgPath, fakeInterface{up: true, name: "wg-quickrs"}, func() wgmodel.Network { return nw }, nil)

	samples, err := s.sampleOnce()
	if err != nil {
		t.Fatalf("sampleOnce() error = %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("sampleOnce() returned %d samples, want 1", len(samples))
	}

	want := wgmodel.NewConnectionID(thisPeer, otherPeer)
	got := samples[0]
	if got.Connection != want {
		t.Fatalf("Connection = %q, want %q", got.Connection, want)
	}
	side, ok := want.SideOf(thisPeer)
	if !ok {
		t.Fatalf("SideOf(thisPeer) ok = false")
	}
	if side == wgmodel.SideA {
		if got.TransferBToA != 1000 || got.TransferAToB != 2000 {
			t.Fatalf("got = %+v, want TransferBToA=1000 TransferAToB=2000 (this_peer is side A)", got)
		}
	} else {
		if got.TransferAToB != 1000 || got.TransferBToA != 2000 {
			t.Fatalf("got = %+v, want TransferAToB=1000 TransferBToA=2000 (this_peer is side B)", got)
		}
	}
	if !got.LatestHandshakeAt.Equal(time.Unix(handshake, 0)) {
		t.Fatalf("LatestHandshakeAt = %v, want %v", got.LatestHandshakeAt, time.Unix(handshake, 0))
	}
}

func TestSampleOnceSkipsUnknownPeers(t *testing.T) {
	thisPeer := uuid.New()
	thisKey := genKey(t)
	strangerKey := genKey(t)

	wgPath := writeFakeWgTool(t, strangerKey.PublicKey().String(), 10, 20, time.Now().Unix())

	nw := wgmodel.Network{
		ThisPeer: thisPeer,
		Peers: map[uuid.UUID]wgmodel.Peer{
			thisPeer: {Name: "laptop", PrivateKey: thisKey.String()},
		},
	}
	s := New(wgPath, fakeInterface{up: true, name: "wg-quickrs"}, func() wgmodel.Network { return nw }, nil)

	samples, err := s.sampleOnce()
	if err != nil {
		t.Fatalf("sampleOnce() error = %v", err)
	}
	if len(samples) != 0 {
		t.Fatalf("sampleOnce() returned %d samples for an unrecognized peer, want 0", len(samples))
	}
}

func TestTickSkipsWhenInterfaceDown(t *testing.T) {
	s := New("/bin/false", fakeInterface{up: false, name: "wg-quickrs"}, func() wgmodel.Network { return wgmodel.Network{} }, nil)
	s.tick()
	tel := s.GetTelemetry()
	if len(tel.Data) != 0 {
		t.Fatalf("GetTelemetry().Data = %v, want empty when the interface is down", tel.Data)
	}
}

func TestGetTelemetryReturnsACopy(t *testing.T) {
	s := New("", fakeInterface{}, func() wgmodel.Network { return wgmodel.Network{} }, nil)
	s.buf = []Sample{{Connection: "a*b"}}

	tel := s.GetTelemetry()
	tel.Data[0].Connection = "mutated"

	if s.buf[0].Connection == "mutated" {
		t.Fatalf("mutating GetTelemetry()'s result mutated the Sampler's internal buffer")
	}
}
