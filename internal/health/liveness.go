package health

import (
	"context"
	"time"

	"sdwan-overlay/internal/model"
)

// livenessScore maps a liveness session state onto the health score
// scale used by probe-based checks.
func livenessScore(state model.LivenessState) (float64, model.PathStatus) {
	switch state {
	case model.LivenessUp:
		return 100, model.StatusUp
	case model.LivenessInit:
		return 50, model.StatusDegraded
	default:
		return 0, model.StatusDown
	}
}

// ApplyLiveness folds a fast liveness transition into the health
// cache immediately, without waiting for the next probe cycle. The
// next completed probe check overwrites it again.
func (m *Monitor) ApplyLiveness(ev model.LivenessEvent) {
	score, status := livenessScore(ev.State)

	m.mu.Lock()
	if _, ok := m.checkLocks[ev.PathID]; !ok {
		m.mu.Unlock()
		return
	}
	h := m.cache[ev.PathID]
	h.PathID = ev.PathID
	h.HealthScore = score
	h.Status = status
	switch status {
	case model.StatusUp:
		h.PacketLossPct = 0
	case model.StatusDown:
		h.PacketLossPct = 100
	}
	h.LastChecked = time.Now()
	m.cache[ev.PathID] = h
	m.mu.Unlock()

	m.logger.Warnf("Liveness transition on path %s: %s (score %.0f)", ev.PathID, ev.State, score)

	if m.onUpdate != nil {
		m.onUpdate(h)
	}
}

// RunLiveness consumes liveness events until ctx is cancelled or the
// channel closes.
func (m *Monitor) RunLiveness(ctx context.Context, events <-chan model.LivenessEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.ApplyLiveness(ev)
		}
	}
}
