package dataplane

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"sdwan-overlay/internal/model"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNoRoute means the destination has no routing table entry
	ErrNoRoute = errors.New("no route for destination")

	// ErrNoTunnel means the routed path has no tunnel endpoint
	ErrNoTunnel = errors.New("no tunnel for path")

	// ErrPacketTooLarge means the packet exceeds the configured MTU
	ErrPacketTooLarge = errors.New("packet exceeds MTU")
)

// Config controls the data plane socket and forwarding limits
type Config struct {
	ListenAddr string
	MTU        int
}

// DefaultConfig returns the standard data plane configuration
func DefaultConfig() Config {
	return Config{
		ListenAddr: "0.0.0.0:4500",
		MTU:        1400,
	}
}

// PacketHandler consumes decapsulated inbound payloads
type PacketHandler func(payload []byte, from netip.AddrPort)

// Stats are the monotonic data plane counters
type Stats struct {
	PacketsForwarded uint64 `json:"packets_forwarded"`
	BytesForwarded   uint64 `json:"bytes_forwarded"`
	PacketsDropped   uint64 `json:"packets_dropped"`
	PacketsReceived  uint64 `json:"packets_received"`
	BytesReceived    uint64 `json:"bytes_received"`

	PacketsCompressed uint64 `json:"packets_compressed"`
	CompressionSkips  uint64 `json:"compression_skips"`
	BytesBeforeComp   uint64 `json:"bytes_before_compression"`
	BytesAfterComp    uint64 `json:"bytes_after_compression"`
}

// DataPlane encapsulates application packets into tunnel frames and
// moves them over a single UDP socket. The tunnel and route tables
// each have their own lock and are never locked together.
type DataPlane struct {
	cfg    Config
	logger *logrus.Logger
	conn   *net.UDPConn

	tunnelMu sync.RWMutex
	tunnels  map[model.PathID]model.TunnelEndpoint

	routeMu sync.RWMutex
	routes  map[netip.Addr]model.PathID

	txMu    sync.RWMutex
	txBytes map[model.PathID]uint64

	packetsForwarded atomic.Uint64
	bytesForwarded   atomic.Uint64
	packetsDropped   atomic.Uint64
	packetsReceived  atomic.Uint64
	bytesReceived    atomic.Uint64

	packetsCompressed atomic.Uint64
	compressionSkips  atomic.Uint64
	bytesBeforeComp   atomic.Uint64
	bytesAfterComp    atomic.Uint64

	handler PacketHandler
}

// New opens the data plane socket
func New(cfg Config, logger *logrus.Logger) (*DataPlane, error) {
	if cfg.MTU <= 0 {
		cfg.MTU = DefaultConfig().MTU
	}
	addr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve listen address %q: %w", cfg.ListenAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %q: %w", cfg.ListenAddr, err)
	}
	logger.Infof("Data plane listening on %s (MTU %d)", conn.LocalAddr(), cfg.MTU)
	return &DataPlane{
		cfg:     cfg,
		logger:  logger,
		conn:    conn,
		tunnels: make(map[model.PathID]model.TunnelEndpoint),
		routes:  make(map[netip.Addr]model.PathID),
		txBytes: make(map[model.PathID]uint64),
	}, nil
}

// SetPacketHandler registers the consumer for decapsulated traffic.
// Must be called before Run.
func (d *DataPlane) SetPacketHandler(h PacketHandler) {
	d.handler = h
}

// AddTunnel installs or replaces the endpoint for a path
func (d *DataPlane) AddTunnel(ep model.TunnelEndpoint) {
	d.tunnelMu.Lock()
	defer d.tunnelMu.Unlock()
	d.tunnels[ep.PathID] = ep
}

// RemoveTunnel drops a path's endpoint. Routes still pointing at the
// path keep failing at forward time until repointed.
func (d *DataPlane) RemoveTunnel(id model.PathID) {
	d.tunnelMu.Lock()
	defer d.tunnelMu.Unlock()
	delete(d.tunnels, id)
}

// AddRoute points a destination at a path
func (d *DataPlane) AddRoute(dst netip.Addr, id model.PathID) {
	d.routeMu.Lock()
	defer d.routeMu.Unlock()
	d.routes[dst] = id
}

// RemoveRoute drops a destination's route. No-op when absent.
func (d *DataPlane) RemoveRoute(dst netip.Addr) {
	d.routeMu.Lock()
	defer d.routeMu.Unlock()
	delete(d.routes, dst)
}

// Routes returns a copy of the destination routing table
func (d *DataPlane) Routes() map[netip.Addr]model.PathID {
	d.routeMu.RLock()
	defer d.routeMu.RUnlock()
	out := make(map[netip.Addr]model.PathID, len(d.routes))
	for dst, id := range d.routes {
		out[dst] = id
	}
	return out
}

// Tunnels returns a copy of the tunnel endpoint table
func (d *DataPlane) Tunnels() map[model.PathID]model.TunnelEndpoint {
	d.tunnelMu.RLock()
	defer d.tunnelMu.RUnlock()
	out := make(map[model.PathID]model.TunnelEndpoint, len(d.tunnels))
	for id, ep := range d.tunnels {
		out[id] = ep
	}
	return out
}

// ForwardPacket frames a packet and sends it down the tunnel routed
// for the destination. Failures are counted and returned, never
// retried here.
func (d *DataPlane) ForwardPacket(packet []byte, destination netip.Addr) error {
	d.routeMu.RLock()
	pathID, ok := d.routes[destination]
	d.routeMu.RUnlock()
	if !ok {
		d.packetsDropped.Add(1)
		return fmt.Errorf("%w: %s", ErrNoRoute, destination)
	}

	d.tunnelMu.RLock()
	ep, ok := d.tunnels[pathID]
	d.tunnelMu.RUnlock()
	if !ok {
		d.packetsDropped.Add(1)
		return fmt.Errorf("%w: %s", ErrNoTunnel, pathID)
	}

	if len(packet) > d.cfg.MTU {
		d.packetsDropped.Add(1)
		return fmt.Errorf("%w: %d > %d", ErrPacketTooLarge, len(packet), d.cfg.MTU)
	}

	frame := encodeFrame(packet, ep.CompressionEnabled)
	if ep.CompressionEnabled {
		if frame.Compressed {
			d.packetsCompressed.Add(1)
			d.bytesBeforeComp.Add(uint64(len(packet)))
			d.bytesAfterComp.Add(uint64(len(frame.Payload)))
		} else {
			d.compressionSkips.Add(1)
		}
	}
	wire := frame.Marshal()

	remote := net.UDPAddrFromAddrPort(ep.RemoteAddr)
	if _, err := d.conn.WriteToUDP(wire, remote); err != nil {
		d.packetsDropped.Add(1)
		return fmt.Errorf("send to %s: %w", ep.RemoteAddr, err)
	}

	d.packetsForwarded.Add(1)
	d.bytesForwarded.Add(uint64(len(wire)))
	d.txMu.Lock()
	d.txBytes[pathID] += uint64(len(wire))
	d.txMu.Unlock()
	return nil
}

// TxBytes reports cumulative bytes sent on a path, feeding the
// utilization input of health scoring.
func (d *DataPlane) TxBytes(pathID model.PathID) uint64 {
	d.txMu.RLock()
	defer d.txMu.RUnlock()
	return d.txBytes[pathID]
}

// Run receives tunnel frames until ctx is cancelled. The loop checks
// for cancellation between reads, never mid-receive.
func (d *DataPlane) Run(ctx context.Context) {
	defer d.conn.Close()

	buf := make([]byte, 65535)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Data plane stopped")
			return
		default:
		}

		if err := d.conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			d.logger.Errorf("Failed to set read deadline: %v", err)
			return
		}
		n, addr, err := d.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			d.logger.Errorf("Receive error: %v", err)
			continue
		}

		d.handleDatagram(buf[:n], addr)
	}
}

func (d *DataPlane) handleDatagram(data []byte, from netip.AddrPort) {
	frame, err := UnmarshalFrame(data)
	if err != nil {
		d.packetsDropped.Add(1)
		d.logger.Warnf("Dropping malformed frame from %s: %v", from, err)
		return
	}

	payload, err := decodeFrame(frame)
	if err != nil {
		d.packetsDropped.Add(1)
		d.logger.Warnf("Dropping undecodable frame from %s: %v", from, err)
		return
	}

	d.packetsReceived.Add(1)
	d.bytesReceived.Add(uint64(len(data)))

	if d.handler != nil {
		out := make([]byte, len(payload))
		copy(out, payload)
		d.handler(out, from)
	}
}

// LocalAddr returns the bound socket address
func (d *DataPlane) LocalAddr() net.Addr {
	return d.conn.LocalAddr()
}

// Close releases the socket. Run closes it on cancellation already;
// Close covers data planes that were never run.
func (d *DataPlane) Close() error {
	return d.conn.Close()
}

// Stats returns a snapshot of the monotonic counters
func (d *DataPlane) Stats() Stats {
	return Stats{
		PacketsForwarded: d.packetsForwarded.Load(),
		BytesForwarded:   d.bytesForwarded.Load(),
		PacketsDropped:   d.packetsDropped.Load(),
		PacketsReceived:  d.packetsReceived.Load(),
		BytesReceived:    d.bytesReceived.Load(),

		PacketsCompressed: d.packetsCompressed.Load(),
		CompressionSkips:  d.compressionSkips.Load(),
		BytesBeforeComp:   d.bytesBeforeComp.Load(),
		BytesAfterComp:    d.bytesAfterComp.Load(),
	}
}

// ResetStats zeroes all counters
func (d *DataPlane) ResetStats() {
	d.packetsForwarded.Store(0)
	d.bytesForwarded.Store(0)
	d.packetsDropped.Store(0)
	d.packetsReceived.Store(0)
	d.bytesReceived.Store(0)
	d.packetsCompressed.Store(0)
	d.compressionSkips.Store(0)
	d.bytesBeforeComp.Store(0)
	d.bytesAfterComp.Store(0)
}
