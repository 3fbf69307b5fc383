package alert

import (
	"time"

	"sdwan-overlay/internal/model"

	"github.com/sirupsen/logrus"
)

// Alert describes one path status transition
type Alert struct {
	PathID      model.PathID     `json:"path_id"`
	Previous    model.PathStatus `json:"previous"`
	Current     model.PathStatus `json:"current"`
	HealthScore float64          `json:"health_score"`
	Message     string           `json:"message"`
	Timestamp   time.Time        `json:"timestamp"`
}

// Notifier interface for alert notification
type Notifier interface {
	SendAlert(alert Alert) error
}

// LogNotifier sends alerts to local logs
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a new log alert notifier
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{
		logger: logger,
	}
}

// SendAlert implements Notifier interface - sends alert to logs
func (ln *LogNotifier) SendAlert(alert Alert) error {
	if alert.Current == model.StatusDown {
		ln.logger.Errorf("ALERT path %s: %s -> %s (score %.1f)", alert.PathID, alert.Previous, alert.Current, alert.HealthScore)
	} else {
		ln.logger.Warnf("ALERT path %s: %s -> %s (score %.1f)", alert.PathID, alert.Previous, alert.Current, alert.HealthScore)
	}
	return nil
}
