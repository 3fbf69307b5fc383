package model

// PreferenceKind selects the path scoring strategy for a policy
type PreferenceKind int32

const (
	// PreferWeighted scores candidates with a weighted blend of
	// latency, jitter, loss and utilization sub-scores
	PreferWeighted PreferenceKind = iota
	// PreferLowestLatency picks the candidate with minimum latency
	PreferLowestLatency
	// PreferHighestBandwidth picks the candidate with maximum bandwidth
	PreferHighestBandwidth
)

func (k PreferenceKind) String() string {
	switch k {
	case PreferLowestLatency:
		return "lowest_latency"
	case PreferHighestBandwidth:
		return "highest_bandwidth"
	default:
		return "weighted"
	}
}

// ScoringWeights are the per-metric weights for weighted path scoring.
// Weights should sum to 1.0.
type ScoringWeights struct {
	Latency     float64 `json:"latency"`
	Jitter      float64 `json:"jitter"`
	Loss        float64 `json:"loss"`
	Utilization float64 `json:"utilization"`
}

// DefaultScoringWeights returns the standard health-score weighting
// (0.3 latency, 0.2 jitter, 0.3 loss, 0.2 utilization)
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{Latency: 0.3, Jitter: 0.2, Loss: 0.3, Utilization: 0.2}
}

// PathPreference is either a named strategy or a custom weighted
// scoring function. Weights are only consulted when Kind is
// PreferWeighted.
type PathPreference struct {
	Kind    PreferenceKind `json:"kind"`
	Weights ScoringWeights `json:"weights"`
}

// MatchRules are optional filters a flow must pass to match a policy.
// Zero values mean "match anything": empty CIDR strings match all
// addresses, a zero port range matches all ports and protocol 0
// matches all protocols.
type MatchRules struct {
	SrcCIDR    string `json:"src_cidr,omitempty"`
	DstCIDR    string `json:"dst_cidr,omitempty"`
	DstPortMin uint16 `json:"dst_port_min,omitempty"`
	DstPortMax uint16 `json:"dst_port_max,omitempty"`
	Protocol   uint8  `json:"protocol,omitempty"`
}

// RoutingPolicy binds match rules to a path preference. Policies are
// evaluated in ascending priority order; the first enabled policy
// whose rules accept the flow wins.
type RoutingPolicy struct {
	ID         uint64         `json:"id"`
	Name       string         `json:"name"`
	Priority   int            `json:"priority"`
	Match      MatchRules     `json:"match"`
	Preference PathPreference `json:"preference"`
	Enabled    bool           `json:"enabled"`
}
