package api

import (
	"context"
	"net/http"
	"time"

	"sdwan-overlay/internal/dataplane"
	"sdwan-overlay/internal/health"
	"sdwan-overlay/internal/routing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server exposes the read-only administration surface: current and
// historical path health, the policy table, flow bindings and data
// plane counters.
type Server struct {
	handlers *Handlers
	logger   *logrus.Logger
	srv      *http.Server
}

// NewServer builds the HTTP server on the given listen address
func NewServer(addr string, monitor *health.Monitor, engine *routing.Engine, dp *dataplane.DataPlane, logger *logrus.Logger) *Server {
	h := NewHandlers(monitor, engine, dp, logger)

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Health endpoints
	api.HandleFunc("/health", h.GetHealth).Methods("GET")
	api.HandleFunc("/health/{path}/history", h.GetHealthHistory).Methods("GET")
	api.HandleFunc("/health/{path}", h.GetPathHealth).Methods("GET")
	api.HandleFunc("/stream/health", h.StreamHealth).Methods("GET")

	// Routing endpoints
	api.HandleFunc("/policies", h.GetPolicies).Methods("GET")
	api.HandleFunc("/policies", h.AddPolicy).Methods("POST")
	api.HandleFunc("/policies/{id}", h.RemovePolicy).Methods("DELETE")
	api.HandleFunc("/flows", h.GetFlows).Methods("GET")
	api.HandleFunc("/flows/reevaluate", h.ReevaluateFlows).Methods("POST")

	// Data plane endpoints
	api.HandleFunc("/dataplane/stats", h.GetDataPlaneStats).Methods("GET")
	api.HandleFunc("/dataplane/stats/reset", h.ResetDataPlaneStats).Methods("POST")

	// Prometheus scrape endpoint
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Liveness check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	return &Server{
		handlers: h,
		logger:   logger,
		srv: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 15 * time.Second,
		},
	}
}

// ListenAndServe blocks serving requests until Shutdown
func (s *Server) ListenAndServe() error {
	s.logger.Infof("API server listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
