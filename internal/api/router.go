package api

import (
	"github.com/gorilla/mux"

	"nilm_simulator/internal/simulator"
)

// NewRouter builds the REST surface mirroring the engine's read and write
// APIs for polling clients.
func NewRouter(engine *simulator.Engine) *mux.Router {
	s := &server{engine: engine}

	r := mux.NewRouter()
	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.HandleFunc("/api/devices", s.getDevices).Methods("GET")
	r.HandleFunc("/api/devices/{id}/toggle", s.toggleDevice).Methods("POST")
	r.HandleFunc("/api/history", s.getHistory).Methods("GET")
	r.HandleFunc("/api/state", s.getState).Methods("GET")
	r.HandleFunc("/api/state", s.postState).Methods("POST")

	return r
}
