package model

import (
	"encoding/json"
	"fmt"
	"math"
	"net/netip"
	"time"

	"github.com/google/uuid"
)

// SiteID uniquely identifies a site in the overlay
type SiteID uuid.UUID

// NewSiteID generates a random site identifier
func NewSiteID() SiteID {
	return SiteID(uuid.New())
}

// ParseSiteID parses a site ID from its string form
func ParseSiteID(s string) (SiteID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return SiteID{}, err
	}
	return SiteID(id), nil
}

func (s SiteID) String() string {
	return uuid.UUID(s).String()
}

// PathID uniquely identifies one network path (tunnel endpoint pair).
// Immutable once assigned, compared by value.
type PathID uint64

func (p PathID) String() string {
	return fmt.Sprintf("%d", uint64(p))
}

// FlowKey identifies one traffic flow by its 5-tuple. It is comparable
// and copyable by value, so it can be used directly as a map key.
type FlowKey struct {
	SrcIP    netip.Addr `json:"src_ip"`
	DstIP    netip.Addr `json:"dst_ip"`
	SrcPort  uint16     `json:"src_port"`
	DstPort  uint16     `json:"dst_port"`
	Protocol uint8      `json:"protocol"`
}

func (f FlowKey) String() string {
	return fmt.Sprintf("%s:%d->%s:%d/%d", f.SrcIP, f.SrcPort, f.DstIP, f.DstPort, f.Protocol)
}

// Path describes one registered network path and its static metadata.
type Path struct {
	ID            PathID     `json:"id"`
	Site          SiteID     `json:"site"`
	Name          string     `json:"name"`
	Target        netip.Addr `json:"target"`
	BandwidthMbps float64    `json:"bandwidth_mbps"`
}

// TunnelEndpoint holds the remote address and compression setting for
// one path's forwarding.
type TunnelEndpoint struct {
	SiteID             SiteID         `json:"site_id"`
	PathID             PathID         `json:"path_id"`
	RemoteAddr         netip.AddrPort `json:"remote_addr"`
	CompressionEnabled bool           `json:"compression_enabled"`
}

// ProbeResult is the outcome of one measurement round. A round where
// every probe failed is still a valid result: latency is +Inf, loss
// is 100 and jitter is 0.
type ProbeResult struct {
	LatencyMs      float64 `json:"latency_ms"`
	PacketLossPct  float64 `json:"packet_loss_pct"`
	JitterMs       float64 `json:"jitter_ms"`
	ProbesSent     int     `json:"probes_sent"`
	ProbesReceived int     `json:"probes_received"`
}

// PathStatus classifies the health of a path
type PathStatus int32

const (
	StatusDown PathStatus = iota
	StatusDegraded
	StatusUp
)

func (s PathStatus) String() string {
	switch s {
	case StatusUp:
		return "up"
	case StatusDegraded:
		return "degraded"
	default:
		return "down"
	}
}

// ParsePathStatus parses a status from its string form. Unknown input
// maps to StatusDown.
func ParsePathStatus(s string) PathStatus {
	switch s {
	case "up":
		return StatusUp
	case "degraded":
		return StatusDegraded
	default:
		return StatusDown
	}
}

// MarshalText implements encoding.TextMarshaler so statuses render as
// strings in JSON responses.
func (s PathStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *PathStatus) UnmarshalText(b []byte) error {
	*s = ParsePathStatus(string(b))
	return nil
}

// PathHealth is the current assessment of one path. Entries are
// overwritten wholesale on every probe cycle; a freshly registered
// path starts as Down with score 0 until its first check completes.
type PathHealth struct {
	PathID        PathID     `json:"path_id"`
	LatencyMs     float64    `json:"latency_ms"`
	PacketLossPct float64    `json:"packet_loss_pct"`
	JitterMs      float64    `json:"jitter_ms"`
	HealthScore   float64    `json:"health_score"`
	Status        PathStatus `json:"status"`
	LastChecked   time.Time  `json:"last_checked"`
}

// MarshalJSON renders non-finite latency as null. A fully failed
// probe round stores +Inf latency, which JSON has no encoding for.
func (h PathHealth) MarshalJSON() ([]byte, error) {
	type alias PathHealth
	out := struct {
		alias
		LatencyMs interface{} `json:"latency_ms"`
	}{alias: alias(h)}
	if !math.IsInf(h.LatencyMs, 0) && !math.IsNaN(h.LatencyMs) {
		out.LatencyMs = h.LatencyMs
	}
	return json.Marshal(out)
}

// IsUsable reports whether the path can carry traffic (Up or Degraded)
func (h PathHealth) IsUsable() bool {
	return h.Status == StatusUp || h.Status == StatusDegraded
}

// IsDown reports whether the path has failed health checks
func (h PathHealth) IsDown() bool {
	return h.Status == StatusDown
}
