package probe

import (
	"context"
	"encoding/binary"
	"errors"
	"math/rand"
	"net"
	"net/netip"
	"os"
	"syscall"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// probeMagic tags outgoing datagram probes so a responder (or a
// capture) can tell them apart from application traffic.
const probeMagic = "SDWANPROBE"

// probePayloadSize pads probes to a fixed size
const probePayloadSize = 64

// Simulated probe behavior
const (
	simBaseLatencyMs = 20.0
	simJitterMs      = 5.0
	simLossProb      = 0.05
)

// rawSocketAvailable reports whether the process may open a raw ICMP
// socket. Run once at prober construction.
func rawSocketAvailable() bool {
	conn, err := net.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// echoProbe sends one privileged ICMP echo request via pro-bing. A
// response within the timeout is a success, no response is a lost
// probe, and any runner error downgrades the strategy.
func (p *Prober) echoProbe(ctx context.Context, target netip.Addr) (time.Duration, bool, error) {
	pinger := probing.New(target.String())
	pinger.SetPrivileged(true)
	pinger.Count = 1
	pinger.Timeout = p.cfg.Timeout

	if err := pinger.RunWithContext(ctx); err != nil {
		return 0, false, err
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, false, nil
	}
	return stats.AvgRtt, true, nil
}

// datagramProbe sends a tagged UDP payload to the target port and
// waits for any reply. An ICMP port-unreachable (surfaced as
// ECONNREFUSED on a connected socket) still measures reachability and
// counts as success; only a silent timeout is a lost probe.
func (p *Prober) datagramProbe(ctx context.Context, target netip.Addr) (time.Duration, bool, error) {
	dialer := net.Dialer{Timeout: p.cfg.Timeout}
	addr := netip.AddrPortFrom(target, p.cfg.TargetPort)

	conn, err := dialer.DialContext(ctx, "udp", addr.String())
	if err != nil {
		return 0, false, err
	}
	defer conn.Close()

	payload := buildProbePayload()
	start := time.Now()

	if _, err := conn.Write(payload); err != nil {
		if isConnRefused(err) {
			return time.Since(start), true, nil
		}
		return 0, false, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(p.cfg.Timeout)); err != nil {
		return 0, false, err
	}

	buf := make([]byte, 1024)
	if _, err := conn.Read(buf); err != nil {
		switch {
		case isConnRefused(err):
			// Host answered with port unreachable: reachable
			return time.Since(start), true, nil
		case isTimeout(err):
			return 0, false, nil
		default:
			return 0, false, err
		}
	}

	return time.Since(start), true, nil
}

// simulatedProbe synthesizes a latency around a fixed baseline with
// random jitter and a small loss probability. It never errors, so the
// fallback chain always terminates here.
func (p *Prober) simulatedProbe(ctx context.Context, _ netip.Addr) (time.Duration, bool, error) {
	if rand.Float64() < simLossProb {
		return 0, false, nil
	}

	latencyMs := simBaseLatencyMs + (rand.Float64()-0.5)*2*simJitterMs
	if latencyMs < 0 {
		latencyMs = 0
	}
	latency := time.Duration(latencyMs * float64(time.Millisecond))

	select {
	case <-ctx.Done():
		return 0, false, nil
	case <-time.After(latency):
	}
	return latency, true, nil
}

// buildProbePayload writes the magic marker and a big-endian
// microsecond timestamp, zero-padded to probePayloadSize.
func buildProbePayload() []byte {
	payload := make([]byte, probePayloadSize)
	n := copy(payload, probeMagic)
	binary.BigEndian.PutUint64(payload[n:], uint64(time.Now().UnixMicro()))
	return payload
}

func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
