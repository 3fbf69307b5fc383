package routing

import (
	"encoding/binary"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"

	"sdwan-overlay/internal/model"

	"github.com/sirupsen/logrus"
)

// HealthSource supplies current path health in path registration
// order. Implemented by the health monitor.
type HealthSource interface {
	OrderedSnapshot() []model.PathHealth
}

// Admission is an optional collaborator that can deny a flow before
// any path selection happens.
type Admission interface {
	Admit(flow model.FlowKey) bool
}

const bindingShardCount = 32

type bindingShard struct {
	mu    sync.Mutex
	flows map[model.FlowKey]model.PathID
}

// Engine performs policy-based sticky path selection. Flow bindings
// are sharded so unrelated flows never contend on one lock, and the
// health table is snapshotted before any shard lock is taken so the
// engine never holds two tables' locks at once.
type Engine struct {
	logger    *logrus.Logger
	health    HealthSource
	admission Admission

	policyMu sync.RWMutex
	policies []model.RoutingPolicy

	bwMu      sync.RWMutex
	bandwidth map[model.PathID]float64

	shards [bindingShardCount]bindingShard

	failovers  atomic.Uint64
	onFailover func(flow model.FlowKey, from, to model.PathID)
	onBind     func(flow model.FlowKey, path model.PathID)
	onDenied   func(flow model.FlowKey)
}

// NewEngine creates a routing engine with the built-in policy table
func NewEngine(health HealthSource, logger *logrus.Logger) *Engine {
	e := &Engine{
		logger:    logger,
		health:    health,
		policies:  DefaultPolicies(),
		bandwidth: make(map[model.PathID]float64),
	}
	for i := range e.shards {
		e.shards[i].flows = make(map[model.FlowKey]model.PathID)
	}
	return e
}

// SetAdmission wires the optional admission collaborator
func (e *Engine) SetAdmission(a Admission) {
	e.admission = a
}

// SetOnFailover registers a callback invoked whenever a bound flow is
// moved to a different path.
func (e *Engine) SetOnFailover(fn func(flow model.FlowKey, from, to model.PathID)) {
	e.onFailover = fn
}

// SetOnBind registers a callback invoked on every fresh binding,
// including rebinds after failover.
func (e *Engine) SetOnBind(fn func(flow model.FlowKey, path model.PathID)) {
	e.onBind = fn
}

// SetOnDenied registers a callback invoked when admission rejects a
// flow.
func (e *Engine) SetOnDenied(fn func(flow model.FlowKey)) {
	e.onDenied = fn
}

// SetBandwidth records a path's nominal capacity in Mbps, used by the
// highest-bandwidth preference.
func (e *Engine) SetBandwidth(id model.PathID, mbps float64) {
	e.bwMu.Lock()
	defer e.bwMu.Unlock()
	e.bandwidth[id] = mbps
}

func (e *Engine) shardFor(flow model.FlowKey) *bindingShard {
	h := fnv.New32a()
	src, _ := flow.SrcIP.MarshalBinary()
	dst, _ := flow.DstIP.MarshalBinary()
	h.Write(src)
	h.Write(dst)
	var ports [5]byte
	binary.BigEndian.PutUint16(ports[0:2], flow.SrcPort)
	binary.BigEndian.PutUint16(ports[2:4], flow.DstPort)
	ports[4] = flow.Protocol
	h.Write(ports[:])
	return &e.shards[h.Sum32()%bindingShardCount]
}

// SelectPath returns the path a flow should use. Bound flows stay on
// their path while it remains usable; otherwise admission is consulted
// and the flow is matched against the policy table, the best candidate
// winning with ties broken by path registration order. Admission is
// skipped on sticky hits since a bound flow was already admitted.
func (e *Engine) SelectPath(flow model.FlowKey) (model.PathID, error) {
	// Snapshot health before taking the shard lock
	snapshot := e.health.OrderedSnapshot()
	byID := make(map[model.PathID]model.PathHealth, len(snapshot))
	for _, h := range snapshot {
		byID[h.PathID] = h
	}

	shard := e.shardFor(flow)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	bound, hadBinding := shard.flows[flow]
	if hadBinding {
		if h, ok := byID[bound]; ok && h.IsUsable() {
			return bound, nil
		}
	}

	if e.admission != nil && !e.admission.Admit(flow) {
		if hadBinding {
			delete(shard.flows, flow)
		}
		if e.onDenied != nil {
			e.onDenied(flow)
		}
		return 0, ErrFlowDenied
	}

	policy := e.matchPolicy(flow)

	best, ok := e.pickBest(policy.Preference, snapshot)
	if !ok {
		if hadBinding {
			delete(shard.flows, flow)
		}
		return 0, ErrNoPathAvailable
	}

	shard.flows[flow] = best
	if hadBinding && bound != best {
		e.failovers.Add(1)
		e.logger.Warnf("Failover for flow %s: path %s -> %s (policy %q)", flow, bound, best, policy.Name)
		if e.onFailover != nil {
			e.onFailover(flow, bound, best)
		}
	} else if !hadBinding {
		e.logger.Debugf("Bound flow %s to path %s (policy %q)", flow, best, policy.Name)
	}
	if e.onBind != nil {
		e.onBind(flow, best)
	}
	return best, nil
}

// matchPolicy returns the first enabled policy accepting the flow.
// The catch-all guarantees a match.
func (e *Engine) matchPolicy(flow model.FlowKey) model.RoutingPolicy {
	e.policyMu.RLock()
	defer e.policyMu.RUnlock()
	for _, p := range e.policies {
		if p.Enabled && matchesFlow(p.Match, flow) {
			return p
		}
	}
	// Unreachable while the catch-all invariant holds
	return model.RoutingPolicy{Preference: model.PathPreference{Kind: model.PreferWeighted}}
}

// pickBest scores usable candidates and returns the highest scorer.
// Iteration follows registration order, so earlier paths win ties.
// A never-checked path scores 0 but remains eligible.
func (e *Engine) pickBest(pref model.PathPreference, snapshot []model.PathHealth) (model.PathID, bool) {
	e.bwMu.RLock()
	defer e.bwMu.RUnlock()

	var (
		bestID    model.PathID
		bestScore float64 = -1
		found     bool
	)
	for _, h := range snapshot {
		unchecked := h.LastChecked.IsZero()
		if !unchecked && !h.IsUsable() {
			continue
		}
		score := 0.0
		if !unchecked {
			score = e.scoreCandidate(pref, h)
		}
		if score > bestScore {
			bestID = h.PathID
			bestScore = score
			found = true
		}
	}
	return bestID, found
}

// scoreCandidate maps a path onto a comparable score where higher is
// better, regardless of preference kind.
func (e *Engine) scoreCandidate(pref model.PathPreference, h model.PathHealth) float64 {
	switch pref.Kind {
	case model.PreferLowestLatency:
		return 1e6 / (1 + h.LatencyMs)
	case model.PreferHighestBandwidth:
		return e.bandwidth[h.PathID]
	default:
		return h.HealthScore
	}
}

// RemoveFlow drops a flow's binding. No-op when absent.
func (e *Engine) RemoveFlow(flow model.FlowKey) {
	shard := e.shardFor(flow)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.flows, flow)
}

// ReevaluateAllFlows clears every binding and reruns selection for
// each previously bound flow. Flows that fail to re-select stay
// unbound and rebind on their next packet.
func (e *Engine) ReevaluateAllFlows() int {
	var flows []model.FlowKey
	for i := range e.shards {
		shard := &e.shards[i]
		shard.mu.Lock()
		for f := range shard.flows {
			flows = append(flows, f)
		}
		shard.flows = make(map[model.FlowKey]model.PathID)
		shard.mu.Unlock()
	}

	rebound := 0
	for _, f := range flows {
		if _, err := e.SelectPath(f); err == nil {
			rebound++
		} else {
			e.logger.Warnf("Flow %s left unbound after reevaluation: %v", f, err)
		}
	}
	e.logger.Infof("Reevaluated %d flows, %d rebound", len(flows), rebound)
	return rebound
}

// AddPolicy inserts or replaces a policy by ID and re-sorts the table
// ascending by priority.
func (e *Engine) AddPolicy(p model.RoutingPolicy) error {
	if err := validatePolicy(p); err != nil {
		return err
	}

	e.policyMu.Lock()
	defer e.policyMu.Unlock()

	next := make([]model.RoutingPolicy, 0, len(e.policies)+1)
	replaced := false
	for _, existing := range e.policies {
		if existing.ID == p.ID {
			next = append(next, p)
			replaced = true
		} else {
			next = append(next, existing)
		}
	}
	if !replaced {
		next = append(next, p)
	}
	sort.SliceStable(next, func(i, j int) bool {
		return next[i].Priority < next[j].Priority
	})

	if !hasCatchAll(next) {
		return ErrCatchAllRequired
	}
	e.policies = next
	return nil
}

// RemovePolicy deletes a policy by ID. Removing the last catch-all is
// refused so every flow always matches something.
func (e *Engine) RemovePolicy(id uint64) error {
	e.policyMu.Lock()
	defer e.policyMu.Unlock()

	idx := -1
	for i := range e.policies {
		if e.policies[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	next := make([]model.RoutingPolicy, 0, len(e.policies)-1)
	next = append(next, e.policies[:idx]...)
	next = append(next, e.policies[idx+1:]...)
	if !hasCatchAll(next) {
		return ErrCatchAllRequired
	}
	e.policies = next
	return nil
}

func hasCatchAll(policies []model.RoutingPolicy) bool {
	for _, p := range policies {
		if isCatchAll(p) {
			return true
		}
	}
	return false
}

// Policies returns a copy of the policy table in evaluation order
func (e *Engine) Policies() []model.RoutingPolicy {
	e.policyMu.RLock()
	defer e.policyMu.RUnlock()
	out := make([]model.RoutingPolicy, len(e.policies))
	copy(out, e.policies)
	return out
}

// Bindings returns a copy of all current flow bindings
func (e *Engine) Bindings() map[model.FlowKey]model.PathID {
	out := make(map[model.FlowKey]model.PathID)
	for i := range e.shards {
		shard := &e.shards[i]
		shard.mu.Lock()
		for f, id := range shard.flows {
			out[f] = id
		}
		shard.mu.Unlock()
	}
	return out
}

// FailoverCount returns the number of failovers since startup
func (e *Engine) FailoverCount() uint64 {
	return e.failovers.Load()
}
