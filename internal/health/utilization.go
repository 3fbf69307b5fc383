package health

import (
	"sync"
	"time"

	"sdwan-overlay/internal/model"
)

// ByteCounter reports cumulative bytes transmitted per path.
// Implemented by the data plane.
type ByteCounter interface {
	TxBytes(pathID model.PathID) uint64
}

// RateUtilization derives utilization percentage from transmit byte
// deltas against each path's configured bandwidth. It samples lazily
// on read, so utilization reflects the window since the previous
// health check of the same path.
type RateUtilization struct {
	counter ByteCounter

	mu        sync.Mutex
	bandwidth map[model.PathID]float64
	lastBytes map[model.PathID]uint64
	lastSeen  map[model.PathID]time.Time
}

// NewRateUtilization builds a utilization source over a byte counter
func NewRateUtilization(counter ByteCounter) *RateUtilization {
	return &RateUtilization{
		counter:   counter,
		bandwidth: make(map[model.PathID]float64),
		lastBytes: make(map[model.PathID]uint64),
		lastSeen:  make(map[model.PathID]time.Time),
	}
}

// SetBandwidth records the nominal capacity of a path in Mbps.
// Unknown or zero capacity reports 0% utilization.
func (r *RateUtilization) SetBandwidth(pathID model.PathID, mbps float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bandwidth[pathID] = mbps
}

// Utilization implements UtilizationSource
func (r *RateUtilization) Utilization(pathID model.PathID) float64 {
	now := time.Now()
	bytes := r.counter.TxBytes(pathID)

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, seen := r.lastBytes[pathID]
	prevAt := r.lastSeen[pathID]
	r.lastBytes[pathID] = bytes
	r.lastSeen[pathID] = now

	mbps := r.bandwidth[pathID]
	if !seen || mbps <= 0 {
		return 0
	}

	elapsed := now.Sub(prevAt).Seconds()
	if elapsed <= 0 || bytes < prev {
		return 0
	}

	rateMbps := float64(bytes-prev) * 8 / 1e6 / elapsed
	pct := rateMbps / mbps * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}
