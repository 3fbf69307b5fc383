package probe

import (
	"context"
	"math"
	"net/netip"
	"sync"
	"time"

	"sdwan-overlay/internal/model"

	"github.com/sirupsen/logrus"
)

// Strategy selects how probes are sent
type Strategy int32

const (
	// StrategyICMP sends privileged echo requests (needs a raw socket)
	StrategyICMP Strategy = iota
	// StrategyUDP sends unprivileged datagrams to a high port
	StrategyUDP
	// StrategySimulated synthesizes latency for offline environments
	StrategySimulated
)

func (s Strategy) String() string {
	switch s {
	case StrategyICMP:
		return "icmp"
	case StrategyUDP:
		return "udp"
	default:
		return "simulated"
	}
}

// ParseStrategy parses a strategy name; unknown input maps to ICMP,
// which downgrades automatically when unavailable.
func ParseStrategy(s string) Strategy {
	switch s {
	case "udp":
		return StrategyUDP
	case "simulated":
		return StrategySimulated
	default:
		return StrategyICMP
	}
}

// Config controls one Prober instance
type Config struct {
	// Number of probes per measurement round
	Count int

	// Per-probe response timeout
	Timeout time.Duration

	// Delay between consecutive probes in a round
	Interval time.Duration

	// Requested strategy; the prober downgrades from it as needed
	Strategy Strategy

	// Destination port for UDP probes
	TargetPort uint16
}

// DefaultConfig returns the standard probe configuration
func DefaultConfig() Config {
	return Config{
		Count:      5,
		Timeout:    time.Second,
		Interval:   200 * time.Millisecond,
		Strategy:   StrategyICMP,
		TargetPort: 33434,
	}
}

// probeFunc sends a single probe. It returns the round-trip time and
// whether a response arrived; a non-nil error means the strategy
// itself failed and the prober should downgrade.
type probeFunc func(ctx context.Context, target netip.Addr) (time.Duration, bool, error)

// Prober measures path latency, loss and jitter with a three-level
// strategy fallback: privileged echo, unprivileged datagram,
// simulated. Downgrades are permanent for the prober's lifetime and
// shared across concurrent calls.
type Prober struct {
	cfg    Config
	logger *logrus.Logger

	mu     sync.Mutex
	active Strategy

	echo      probeFunc
	datagram  probeFunc
	simulated probeFunc
}

// New creates a prober. Raw-socket capability is evaluated once here:
// if ICMP is requested but unavailable, the prober starts at the UDP
// level instead.
func New(cfg Config, logger *logrus.Logger) *Prober {
	if cfg.Count < 1 {
		cfg.Count = 1
	}

	p := &Prober{
		cfg:    cfg,
		logger: logger,
		active: cfg.Strategy,
	}
	p.echo = p.echoProbe
	p.datagram = p.datagramProbe
	p.simulated = p.simulatedProbe

	if cfg.Strategy == StrategyICMP && !rawSocketAvailable() {
		logger.Warn("ICMP probing unavailable (insufficient permissions), using UDP")
		p.active = StrategyUDP
	}

	return p
}

// ActiveStrategy returns the strategy currently in use
func (p *Prober) ActiveStrategy() Strategy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Probe sends the configured number of probes to target and folds the
// outcomes into one result. A round where every probe fails is not an
// error: it yields latency +Inf, loss 100% and jitter 0.
func (p *Prober) Probe(ctx context.Context, target netip.Addr) model.ProbeResult {
	latencies := make([]float64, 0, p.cfg.Count)

	for i := 0; i < p.cfg.Count; i++ {
		rtt, received := p.sendProbe(ctx, target)
		if received {
			latencies = append(latencies, float64(rtt)/float64(time.Millisecond))
		}

		if i < p.cfg.Count-1 {
			select {
			case <-ctx.Done():
				return summarize(latencies, p.cfg.Count)
			case <-time.After(p.cfg.Interval):
			}
		}
	}

	return summarize(latencies, p.cfg.Count)
}

// sendProbe runs one probe at the active level, downgrading on
// strategy failure. The simulated level never fails.
func (p *Prober) sendProbe(ctx context.Context, target netip.Addr) (time.Duration, bool) {
	p.mu.Lock()
	strategy := p.active
	p.mu.Unlock()

	if strategy == StrategyICMP {
		rtt, received, err := p.echo(ctx, target)
		if err == nil {
			return rtt, received
		}
		p.logger.Warnf("ICMP probe failed: %v, falling back to UDP", err)
		p.downgrade(StrategyICMP, StrategyUDP)
		strategy = StrategyUDP
	}

	if strategy == StrategyUDP {
		rtt, received, err := p.datagram(ctx, target)
		if err == nil {
			return rtt, received
		}
		p.logger.Warnf("UDP probe failed: %v, using simulated probes", err)
		p.downgrade(StrategyUDP, StrategySimulated)
	}

	rtt, received, _ := p.simulated(ctx, target)
	return rtt, received
}

// downgrade moves the active strategy down one level. The check
// against from keeps a concurrent downgrade from overwriting a lower
// level with a higher one.
func (p *Prober) downgrade(from, to Strategy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == from {
		p.active = to
	}
}

// summarize computes the round statistics: mean latency, exact loss
// percentage and sample standard deviation of the successful
// latencies (0 when fewer than two probes succeeded).
func summarize(latencies []float64, sent int) model.ProbeResult {
	received := len(latencies)

	if received == 0 {
		return model.ProbeResult{
			LatencyMs:      math.Inf(1),
			PacketLossPct:  100,
			JitterMs:       0,
			ProbesSent:     sent,
			ProbesReceived: 0,
		}
	}

	var sum float64
	for _, l := range latencies {
		sum += l
	}
	mean := sum / float64(received)

	var jitter float64
	if received > 1 {
		var variance float64
		for _, l := range latencies {
			d := l - mean
			variance += d * d
		}
		variance /= float64(received - 1)
		jitter = math.Sqrt(variance)
	}

	return model.ProbeResult{
		LatencyMs:      mean,
		PacketLossPct:  float64(sent-received) / float64(sent) * 100,
		JitterMs:       jitter,
		ProbesSent:     sent,
		ProbesReceived: received,
	}
}
