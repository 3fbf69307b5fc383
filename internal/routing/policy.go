package routing

import (
	"fmt"
	"net/netip"

	"sdwan-overlay/internal/model"
)

// Well-known default policy IDs. The catch-all must always remain in
// the table.
const (
	PolicyVoIPVideo     uint64 = 1
	PolicyGaming        uint64 = 2
	PolicyBulkTransfers uint64 = 3
	PolicyDefault       uint64 = 1000
)

const (
	protoTCP = 6
	protoUDP = 17
)

// DefaultPolicies returns the built-in policy table installed at
// startup. Lower priority values win; the catch-all sits last.
func DefaultPolicies() []model.RoutingPolicy {
	return []model.RoutingPolicy{
		{
			ID:       PolicyVoIPVideo,
			Name:     "VoIP and Video",
			Priority: 10,
			Match: model.MatchRules{
				Protocol:   protoUDP,
				DstPortMin: 5060,
				DstPortMax: 5061,
			},
			Preference: model.PathPreference{Kind: model.PreferLowestLatency},
			Enabled:    true,
		},
		{
			ID:       PolicyGaming,
			Name:     "Gaming",
			Priority: 20,
			Match: model.MatchRules{
				Protocol:   protoUDP,
				DstPortMin: 27000,
				DstPortMax: 28000,
			},
			Preference: model.PathPreference{Kind: model.PreferLowestLatency},
			Enabled:    true,
		},
		{
			ID:       PolicyBulkTransfers,
			Name:     "Bulk Transfers",
			Priority: 30,
			Match: model.MatchRules{
				Protocol:   protoTCP,
				DstPortMin: 20,
				DstPortMax: 22,
			},
			Preference: model.PathPreference{Kind: model.PreferHighestBandwidth},
			Enabled:    true,
		},
		{
			ID:       PolicyDefault,
			Name:     "Default",
			Priority: 100,
			Match:    model.MatchRules{},
			Preference: model.PathPreference{
				Kind:    model.PreferWeighted,
				Weights: model.DefaultScoringWeights(),
			},
			Enabled: true,
		},
	}
}

// isCatchAll reports whether a policy matches every flow
func isCatchAll(p model.RoutingPolicy) bool {
	m := p.Match
	return p.Enabled &&
		m.SrcCIDR == "" && m.DstCIDR == "" &&
		m.DstPortMin == 0 && m.DstPortMax == 0 &&
		m.Protocol == 0
}

// validatePolicy rejects policies whose CIDR rules do not parse
func validatePolicy(p model.RoutingPolicy) error {
	if p.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPolicy)
	}
	for _, cidr := range []string{p.Match.SrcCIDR, p.Match.DstCIDR} {
		if cidr == "" {
			continue
		}
		if _, err := netip.ParsePrefix(cidr); err != nil {
			return fmt.Errorf("%w: bad CIDR %q: %v", ErrInvalidPolicy, cidr, err)
		}
	}
	if p.Match.DstPortMin > p.Match.DstPortMax {
		return fmt.Errorf("%w: port range %d-%d", ErrInvalidPolicy, p.Match.DstPortMin, p.Match.DstPortMax)
	}
	return nil
}

// matchesFlow tests a flow against a policy's match rules. Zero-value
// fields match anything.
func matchesFlow(rules model.MatchRules, flow model.FlowKey) bool {
	if rules.Protocol != 0 && rules.Protocol != flow.Protocol {
		return false
	}
	if rules.DstPortMin != 0 || rules.DstPortMax != 0 {
		if flow.DstPort < rules.DstPortMin || flow.DstPort > rules.DstPortMax {
			return false
		}
	}
	if !cidrContains(rules.SrcCIDR, flow.SrcIP) {
		return false
	}
	if !cidrContains(rules.DstCIDR, flow.DstIP) {
		return false
	}
	return true
}

func cidrContains(cidr string, addr netip.Addr) bool {
	if cidr == "" {
		return true
	}
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return false
	}
	return prefix.Contains(addr.Unmap())
}
