package alert

import (
	"fmt"
	"sync"
	"time"

	"sdwan-overlay/internal/model"

	"github.com/sirupsen/logrus"
)

// StatusWatcher observes health updates and notifies on status
// transitions. Repeated updates at the same status stay silent.
type StatusWatcher struct {
	logger *logrus.Logger

	mu        sync.Mutex
	last      map[model.PathID]model.PathStatus
	notifiers []Notifier
}

// NewStatusWatcher creates a status watcher with no notifiers
func NewStatusWatcher(logger *logrus.Logger) *StatusWatcher {
	return &StatusWatcher{
		logger: logger,
		last:   make(map[model.PathID]model.PathStatus),
	}
}

// Register adds a notifier for subsequent transitions
func (w *StatusWatcher) Register(n Notifier) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notifiers = append(w.notifiers, n)
}

// Observe folds one health update into the watcher. The first update
// for a path sets its baseline without alerting.
func (w *StatusWatcher) Observe(h model.PathHealth) {
	w.mu.Lock()
	prev, seen := w.last[h.PathID]
	w.last[h.PathID] = h.Status
	notifiers := make([]Notifier, len(w.notifiers))
	copy(notifiers, w.notifiers)
	w.mu.Unlock()

	if !seen || prev == h.Status {
		return
	}

	a := Alert{
		PathID:      h.PathID,
		Previous:    prev,
		Current:     h.Status,
		HealthScore: h.HealthScore,
		Message:     fmt.Sprintf("path %s transitioned %s -> %s", h.PathID, prev, h.Status),
		Timestamp:   time.Now(),
	}

	for _, n := range notifiers {
		if err := n.SendAlert(a); err != nil {
			w.logger.Errorf("Failed to send alert: %v", err)
		}
	}
}

// Forget drops the tracked status for a path
func (w *StatusWatcher) Forget(id model.PathID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.last, id)
}
