package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"

	"sdwan-overlay/internal/dataplane"
	"sdwan-overlay/internal/health"
	"sdwan-overlay/internal/model"
	"sdwan-overlay/internal/routing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopProber struct{}

func (noopProber) Probe(ctx context.Context, target netip.Addr) model.ProbeResult {
	return model.ProbeResult{ProbesSent: 1}
}

func testHandlers(t *testing.T) *Handlers {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	monitor := health.NewMonitor(health.DefaultConfig(), noopProber{}, nil, logger)
	monitor.RegisterPath(model.Path{ID: 1, Name: "primary", Target: netip.MustParseAddr("10.0.1.1")})
	monitor.RegisterPath(model.Path{ID: 2, Name: "backup", Target: netip.MustParseAddr("10.0.2.1")})

	engine := routing.NewEngine(monitor, logger)

	dp, err := dataplane.New(dataplane.Config{ListenAddr: "127.0.0.1:0", MTU: 1400}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { dp.Close() })

	return NewHandlers(monitor, engine, dp, logger)
}

type unreachableProber struct{}

func (unreachableProber) Probe(ctx context.Context, target netip.Addr) model.ProbeResult {
	return model.ProbeResult{
		LatencyMs:     math.Inf(1),
		PacketLossPct: 100,
		ProbesSent:    5,
	}
}

func TestHealthEndpointsRenderFailedProbeRound(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	monitor := health.NewMonitor(health.DefaultConfig(), unreachableProber{}, nil, logger)
	monitor.RegisterPath(model.Path{ID: 1, Name: "dead", Target: netip.MustParseAddr("10.0.1.1")})
	_, err := monitor.CheckPathHealth(context.Background(), 1)
	require.NoError(t, err)

	engine := routing.NewEngine(monitor, logger)
	dp, err := dataplane.New(dataplane.Config{ListenAddr: "127.0.0.1:0", MTU: 1400}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { dp.Close() })
	h := NewHandlers(monitor, engine, dp, logger)

	rec := httptest.NewRecorder()
	h.GetHealth(rec, httptest.NewRequest("GET", "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Body.Bytes())

	var body struct {
		Paths []struct {
			PathID        model.PathID `json:"path_id"`
			LatencyMs     *float64     `json:"latency_ms"`
			PacketLossPct float64      `json:"packet_loss_pct"`
		} `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Paths, 1)
	assert.Nil(t, body.Paths[0].LatencyMs)
	assert.Equal(t, 100.0, body.Paths[0].PacketLossPct)

	req := mux.SetURLVars(httptest.NewRequest("GET", "/api/v1/health/1", nil), map[string]string{"path": "1"})
	rec = httptest.NewRecorder()
	h.GetPathHealth(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"latency_ms":null`)
}

func TestGetHealthListsAllPaths(t *testing.T) {
	h := testHandlers(t)

	rec := httptest.NewRecorder()
	h.GetHealth(rec, httptest.NewRequest("GET", "/api/v1/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Paths []model.PathHealth  `json:"paths"`
		Stats health.MonitorStats `json:"stats"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Paths, 2)
	assert.Equal(t, model.PathID(1), body.Paths[0].PathID)
	assert.Equal(t, 2, body.Stats.TotalPaths)
}

func TestGetPathHealth(t *testing.T) {
	h := testHandlers(t)

	req := mux.SetURLVars(httptest.NewRequest("GET", "/api/v1/health/1", nil), map[string]string{"path": "1"})
	rec := httptest.NewRecorder()
	h.GetPathHealth(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var ph model.PathHealth
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ph))
	assert.Equal(t, model.PathID(1), ph.PathID)
}

func TestGetPathHealthNotFound(t *testing.T) {
	h := testHandlers(t)

	req := mux.SetURLVars(httptest.NewRequest("GET", "/api/v1/health/99", nil), map[string]string{"path": "99"})
	rec := httptest.NewRecorder()
	h.GetPathHealth(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPathHealthBadID(t *testing.T) {
	h := testHandlers(t)

	req := mux.SetURLVars(httptest.NewRequest("GET", "/api/v1/health/abc", nil), map[string]string{"path": "abc"})
	rec := httptest.NewRecorder()
	h.GetPathHealth(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddPolicy(t *testing.T) {
	h := testHandlers(t)

	body := `{"id":50,"name":"Video","priority":15,"match":{"protocol":17,"dst_port_min":8000,"dst_port_max":8100},"preference":{"kind":1},"enabled":true}`
	rec := httptest.NewRecorder()
	h.AddPolicy(rec, httptest.NewRequest("POST", "/api/v1/policies", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	h.GetPolicies(rec, httptest.NewRequest("GET", "/api/v1/policies", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var policies []model.RoutingPolicy
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&policies))
	names := make([]string, 0, len(policies))
	for _, p := range policies {
		names = append(names, p.Name)
	}
	assert.Contains(t, names, "Video")
}

func TestAddPolicyRejectsBadBody(t *testing.T) {
	h := testHandlers(t)

	rec := httptest.NewRecorder()
	h.AddPolicy(rec, httptest.NewRequest("POST", "/api/v1/policies", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddPolicyRejectsInvalidRules(t *testing.T) {
	h := testHandlers(t)

	body := `{"id":51,"name":"Broken","priority":5,"match":{"dst_cidr":"not-a-cidr"},"enabled":true}`
	rec := httptest.NewRecorder()
	h.AddPolicy(rec, httptest.NewRequest("POST", "/api/v1/policies", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemovePolicyRefusesCatchAll(t *testing.T) {
	h := testHandlers(t)

	req := mux.SetURLVars(
		httptest.NewRequest("DELETE", "/api/v1/policies/1000", nil),
		map[string]string{"id": "1000"},
	)
	rec := httptest.NewRecorder()
	h.RemovePolicy(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRemovePolicy(t *testing.T) {
	h := testHandlers(t)

	req := mux.SetURLVars(
		httptest.NewRequest("DELETE", "/api/v1/policies/2", nil),
		map[string]string{"id": "2"},
	)
	rec := httptest.NewRecorder()
	h.RemovePolicy(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGetFlowsEmpty(t *testing.T) {
	h := testHandlers(t)

	rec := httptest.NewRecorder()
	h.GetFlows(rec, httptest.NewRequest("GET", "/api/v1/flows", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items []flowBinding `json:"items"`
		Total int           `json:"total"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Zero(t, body.Total)
	assert.Empty(t, body.Items)
}

func TestReevaluateFlows(t *testing.T) {
	h := testHandlers(t)

	rec := httptest.NewRecorder()
	h.ReevaluateFlows(rec, httptest.NewRequest("POST", "/api/v1/flows/reevaluate", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Zero(t, body["rebound"])
}

func TestDataPlaneStatsRoundTrip(t *testing.T) {
	h := testHandlers(t)

	rec := httptest.NewRecorder()
	h.GetDataPlaneStats(rec, httptest.NewRequest("GET", "/api/v1/dataplane/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats dataplane.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, dataplane.Stats{}, stats)

	rec = httptest.NewRecorder()
	h.ResetDataPlaneStats(rec, httptest.NewRequest("POST", "/api/v1/dataplane/stats/reset", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetHealthHistoryBadTimes(t *testing.T) {
	h := testHandlers(t)

	req := mux.SetURLVars(
		httptest.NewRequest("GET", "/api/v1/health/1/history?since=yesterday", nil),
		map[string]string{"path": "1"},
	)
	rec := httptest.NewRecorder()
	h.GetHealthHistory(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetHealthHistoryEmptyWithoutStore(t *testing.T) {
	h := testHandlers(t)

	req := mux.SetURLVars(
		httptest.NewRequest("GET", "/api/v1/health/1/history", nil),
		map[string]string{"path": "1"},
	)
	rec := httptest.NewRecorder()
	h.GetHealthHistory(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items []model.PathHealth `json:"items"`
		Total int                `json:"total"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Zero(t, body.Total)
}
