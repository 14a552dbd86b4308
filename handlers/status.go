// Package handlers exposes the operator status and health surface.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stellarlend/oracle-go/supervisor"
)

// NewRouter mounts the read-only operator endpoints.
func NewRouter(sup *supervisor.Supervisor) chi.Router {
	r := chi.NewRouter()
	r.Get("/health", handleHealth(sup))
	r.Get("/status", handleStatus(sup))
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func handleHealth(sup *supervisor.Supervisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := sup.HealthCheck(r.Context())
		status := http.StatusOK
		if !health.Healthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, health)
	}
}

func handleStatus(sup *supervisor.Supervisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sup.Status())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
