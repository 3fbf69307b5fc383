package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"sdwan-overlay/internal/dataplane"
	"sdwan-overlay/internal/health"
	"sdwan-overlay/internal/model"
	"sdwan-overlay/internal/routing"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Handlers struct {
	monitor  *health.Monitor
	engine   *routing.Engine
	dp       *dataplane.DataPlane
	logger   *logrus.Logger
	upgrader websocket.Upgrader
}

func NewHandlers(monitor *health.Monitor, engine *routing.Engine, dp *dataplane.DataPlane, logger *logrus.Logger) *Handlers {
	return &Handlers{
		monitor: monitor,
		engine:  engine,
		dp:      dp,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Health handlers
func (h *Handlers) GetHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"paths": h.monitor.OrderedSnapshot(),
		"stats": h.monitor.Stats(),
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handlers) GetPathHealth(w http.ResponseWriter, r *http.Request) {
	id, ok := pathIDVar(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid path id")
		return
	}

	ph, found := h.monitor.HealthFor(id)
	if !found {
		writeError(w, http.StatusNotFound, "Path not found")
		return
	}
	writeJSON(w, http.StatusOK, ph)
}

func (h *Handlers) GetHealthHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathIDVar(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid path id")
		return
	}

	since := time.Time{}
	until := time.Now()
	var err error

	if s := r.URL.Query().Get("since"); s != "" {
		since, err = time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid since time format")
			return
		}
	}
	if u := r.URL.Query().Get("until"); u != "" {
		until, err = time.Parse(time.RFC3339, u)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid until time format")
			return
		}
	}

	history, err := h.monitor.History(r.Context(), id, since, until)
	if err != nil {
		h.logger.Errorf("Failed to read health history: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to read history")
		return
	}

	response := map[string]interface{}{
		"items": history,
		"total": len(history),
	}
	writeJSON(w, http.StatusOK, response)
}

// Routing handlers
func (h *Handlers) GetPolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Policies())
}

func (h *Handlers) AddPolicy(w http.ResponseWriter, r *http.Request) {
	var policy model.RoutingPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.engine.AddPolicy(policy); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, policy)
}

func (h *Handlers) RemovePolicy(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid policy id")
		return
	}

	if err := h.engine.RemovePolicy(id); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type flowBinding struct {
	Flow   string       `json:"flow"`
	PathID model.PathID `json:"path_id"`
}

func (h *Handlers) GetFlows(w http.ResponseWriter, r *http.Request) {
	bindings := h.engine.Bindings()
	items := make([]flowBinding, 0, len(bindings))
	for flow, id := range bindings {
		items = append(items, flowBinding{Flow: flow.String(), PathID: id})
	}

	response := map[string]interface{}{
		"items":     items,
		"total":     len(items),
		"failovers": h.engine.FailoverCount(),
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handlers) ReevaluateFlows(w http.ResponseWriter, r *http.Request) {
	rebound := h.engine.ReevaluateAllFlows()
	writeJSON(w, http.StatusOK, map[string]int{"rebound": rebound})
}

// Data plane handlers
func (h *Handlers) GetDataPlaneStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dp.Stats())
}

func (h *Handlers) ResetDataPlaneStats(w http.ResponseWriter, r *http.Request) {
	h.dp.ResetStats()
	writeJSON(w, http.StatusOK, h.dp.Stats())
}

// Helper functions
func pathIDVar(r *http.Request) (model.PathID, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["path"], 10, 64)
	if err != nil {
		return 0, false
	}
	return model.PathID(id), true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"response encoding failed"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
