package routing

import "errors"

var (
	// ErrNoPathAvailable means no usable path matched the flow's
	// policy preference.
	ErrNoPathAvailable = errors.New("no path available")

	// ErrFlowDenied means admission control rejected the flow
	ErrFlowDenied = errors.New("flow denied by admission control")

	// ErrCatchAllRequired means an operation would leave the policy
	// table without a catch-all entry.
	ErrCatchAllRequired = errors.New("policy table requires a catch-all policy")

	// ErrInvalidPolicy means a policy failed validation
	ErrInvalidPolicy = errors.New("invalid policy")
)
