package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes. metrics is mounted at /metrics when non-nil.
func SetupRoutes(handler *Handler, metrics http.Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods("GET")
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/signals/{symbol}", handler.GetSignal).Methods("GET")
	api.HandleFunc("/quality/latest", handler.GetLatestQuality).Methods("GET")
	api.HandleFunc("/breakers", handler.GetBreakers).Methods("GET")
	api.HandleFunc("/breakers/{name}/reset", handler.ResetBreaker).Methods("POST")
	api.HandleFunc("/jobs", handler.GetJobs).Methods("GET")

	return r
}
