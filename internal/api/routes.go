package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/balance", handler.GetBalance).Methods("GET")
	api.HandleFunc("/stats", handler.GetStats).Methods("GET")
	api.HandleFunc("/reference-price", handler.GetReferencePrice).Methods("GET")

	// Position routes
	api.HandleFunc("/positions", handler.GetPositions).Methods("GET")
	api.HandleFunc("/positions", handler.OpenPosition).Methods("POST")
	api.HandleFunc("/positions/{token_id}", handler.GetPosition).Methods("GET")
	api.HandleFunc("/positions/{token_id}/history", handler.GetPriceHistory).Methods("GET")

	// Trade routes
	api.HandleFunc("/trades", handler.GetTrades).Methods("GET")
	api.HandleFunc("/trades/{id:[0-9]+}", handler.GetTrade).Methods("GET")

	return r
}
