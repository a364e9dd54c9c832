// Package telemetry implements the Telemetry Sampler: a long-lived
// goroutine that ticks once a second, shells out to the `wg show
// <iface> dump` tab-separated output, and maintains a bounded,
// self-quiescing ring buffer of per-connection transfer samples. The
// dump-parsing approach follows the getWgStatus()-style line scanner
// this module's wireguard status parsing is grounded on.
package telemetry

import (
	"bufio"
	"context"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"wgquickrs/internal/wgmodel"
)

// Capacity is the fixed ring buffer size.
const Capacity = 21

// TickInterval is the sampler's polling period.
const TickInterval = 1 * time.Second

// Sample is one connection's reading from one tick, oriented so
// TransferAToB/TransferBToA follow the canonical side this_peer
// occupies.
type Sample struct {
	Connection        wgmodel.ConnectionID `json:"connection"`
	LatestHandshakeAt time.Time            `json:"latest_handshake_at"`
	TransferAToB      uint64               `json:"transfer_a_to_b"`
	TransferBToA      uint64               `json:"transfer_b_to_a"`
}

// Telemetry is the public shape returned by GetTelemetry.
type Telemetry struct {
	MaxLen int      `json:"max_len"`
	Data   []Sample `json:"data"`
}

// Interface reports the live tunnel state the sampler depends on; the
// Tunnel Manager satisfies this.
type Interface interface {
	IsUp() bool
	InterfaceName() string
}

// ModelSource supplies the current Network snapshot the sampler needs
// to map public keys to peer UUIDs and canonical connection sides.
type ModelSource func() wgmodel.Network

// Sampler owns the ring buffer and its self-quiescing clock.
type Sampler struct {
	wgToolPath string
	iface      Interface
	model      ModelSource
	onSample   func(Sample)

	mu       sync.Mutex
	buf      []Sample
	lastRead time.Time
}

// New constructs a Sampler. onSample, if non-nil, is called once per
// accepted sample — the seam the Telemetry Stream (internal/ws) uses to
// fan samples out over WebSocket without this package knowing about
// WebSocket at all.
func New(wgToolPath string, iface Interface, model ModelSource, onSample func(Sample)) *Sampler {
	return &Sampler{wgToolPath: wgToolPath, iface: iface, model: model, onSample: onSample, lastRead: time.Now()}
}

// Run ticks every TickInterval until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Sampler) tick() {
	if !s.iface.IsUp() {
		return
	}

	s.mu.Lock()
	quiet := time.Since(s.lastRead) > Capacity*TickInterval
	if quiet {
		s.buf = nil
	}
	s.mu.Unlock()
	if quiet {
		return
	}

	samples, err := s.sampleOnce()
	if err != nil {
		log.Printf("telemetry: sampling failed: %v", err)
		return
	}

	s.mu.Lock()
	s.buf = append(s.buf, samples...)
	if len(s.buf) > Capacity {
		s.buf = s.buf[len(s.buf)-Capacity:]
	}
	s.mu.Unlock()

	if s.onSample != nil {
		for _, sm := range samples {
			s.onSample(sm)
		}
	}
}

func (s *Sampler) sampleOnce() ([]Sample, error) {
	iface := s.iface.InterfaceName()
	out, err := exec.Command(s.wgToolPath, "show", iface, "dump").Output()
	if err != nil {
		return nil, err
	}
	nw := s.model()
	byPublicKey := map[string]uuid.UUID{}
	for id, p := range nw.Peers {
		if pub, err := parseKeyPublic(p.PrivateKey); err == nil {
			byPublicKey[pub] = id
		}
	}

	var samples []Sample
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo == 1 {
			continue // first line is the interface's own private-key/port/fwmark row
		}
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 8 {
			continue
		}
		publicKey := fields[0]
		latestHandshake := fields[4]
		rxBytes := fields[5]
		txBytes := fields[6]

		peerID, ok := byPublicKey[publicKey]
		if !ok {
			continue
		}
		cid := wgmodel.NewConnectionID(nw.ThisPeer, peerID)
		side, _ := cid.SideOf(nw.ThisPeer)

		rx, _ := strconv.ParseUint(rxBytes, 10, 64)
		tx, _ := strconv.ParseUint(txBytes, 10, 64)
		hsUnix, _ := strconv.ParseInt(latestHandshake, 10, 64)

		sample := Sample{Connection: cid, LatestHandshakeAt: time.Unix(hsUnix, 0)}
		// rx/tx as reported by `wg show dump` are from this host's
		// perspective (bytes received / sent on this interface); map
		// them onto the canonical a_to_b / b_to_a pair.
		if side == wgmodel.SideA {
			sample.TransferBToA, sample.TransferAToB = rx, tx
		} else {
			sample.TransferAToB, sample.TransferBToA = rx, tx
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

// GetTelemetry is the public reader: it refreshes the quiescence clock
// and returns a copy of the current ring buffer.
func (s *Sampler) GetTelemetry() Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRead = time.Now()
	out := make([]Sample, len(s.buf))
	copy(out, s.buf)
	return Telemetry{MaxLen: Capacity, Data: out}
}
