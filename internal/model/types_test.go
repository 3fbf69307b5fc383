package model

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathHealthJSONInfiniteLatency(t *testing.T) {
	h := PathHealth{
		PathID:        1,
		LatencyMs:     math.Inf(1),
		PacketLossPct: 100,
		Status:        StatusDown,
		LastChecked:   time.Now(),
	}

	data, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"latency_ms":null`)
	assert.Contains(t, string(data), `"packet_loss_pct":100`)
	assert.Contains(t, string(data), `"status":"down"`)
}

func TestPathHealthJSONFiniteLatencyRoundTrip(t *testing.T) {
	h := PathHealth{
		PathID:      2,
		LatencyMs:   12.5,
		JitterMs:    1.25,
		HealthScore: 91,
		Status:      StatusUp,
	}

	data, err := json.Marshal(h)
	require.NoError(t, err)

	var got PathHealth
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, h.LatencyMs, got.LatencyMs)
	assert.Equal(t, h.JitterMs, got.JitterMs)
	assert.Equal(t, h.Status, got.Status)
}

func TestPathHealthJSONNaNLatency(t *testing.T) {
	h := PathHealth{PathID: 3, LatencyMs: math.NaN()}

	data, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"latency_ms":null`)
}

func TestSliceOfPathHealthEncodes(t *testing.T) {
	paths := []PathHealth{
		{PathID: 1, LatencyMs: 10, Status: StatusUp},
		{PathID: 2, LatencyMs: math.Inf(1), PacketLossPct: 100, Status: StatusDegraded},
	}

	data, err := json.Marshal(paths)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"latency_ms":10`)
	assert.Contains(t, string(data), `"latency_ms":null`)
}
