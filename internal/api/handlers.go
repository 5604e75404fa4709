package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"nilm_simulator/internal/simulator"
	"nilm_simulator/internal/store"
)

type server struct {
	engine *simulator.Engine
}

// Device is the catalog descriptor joined with current state.
type Device struct {
	ID            string  `json:"id"`
	Label         string  `json:"label"`
	NominalPowerW float64 `json:"nominal_power_w"`
	On            bool    `json:"on"`
	PowerW        float64 `json:"power_w"`
	ChangedAt     string  `json:"changed_at"`
}

// StateResponse reports the control state plus the current aggregate.
type StateResponse struct {
	Running     bool    `json:"running"`
	Speed       float64 `json:"speed"`
	TotalPowerW float64 `json:"total_power_w"`
}

// StateRequest updates running and/or speed. Nil fields are left unchanged.
type StateRequest struct {
	Running *bool    `json:"running"`
	Speed   *float64 `json:"speed"`
}

type Sample struct {
	Timestamp   string  `json:"timestamp"`
	TotalPowerW float64 `json:"total_power_w"`
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *server) getDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deviceList())
}

func (s *server) getState(w http.ResponseWriter, _ *http.Request) {
	st := s.engine.State()
	writeJSON(w, http.StatusOK, StateResponse{
		Running:     st.Running,
		Speed:       st.Speed,
		TotalPowerW: s.engine.TotalPower(),
	})
}

func (s *server) postState(w http.ResponseWriter, r *http.Request) {
	var req StateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Speed != nil {
		if err := s.engine.SetSpeed(*req.Speed); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Running != nil {
		s.engine.SetRunning(*req.Running)
	}

	st := s.engine.State()
	writeJSON(w, http.StatusOK, StateResponse{
		Running:     st.Running,
		Speed:       st.Speed,
		TotalPowerW: s.engine.TotalPower(),
	})
}

func (s *server) toggleDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.engine.ToggleDevice(id); err != nil {
		if errors.Is(err, store.ErrUnknownDevice) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	states := s.engine.Devices()
	desc, _ := s.engine.Catalog().Get(id)
	st := states[id]
	writeJSON(w, http.StatusOK, Device{
		ID:            desc.ID,
		Label:         desc.Label,
		NominalPowerW: desc.NominalPowerW,
		On:            st.On,
		PowerW:        st.PowerW,
		ChangedAt:     st.LastChangedAt.Format(time.RFC3339),
	})
}

func (s *server) getHistory(w http.ResponseWriter, _ *http.Request) {
	history := s.engine.History()
	samples := make([]Sample, 0, len(history))
	for _, h := range history {
		samples = append(samples, Sample{
			Timestamp:   h.Timestamp.Format(time.RFC3339),
			TotalPowerW: h.TotalPowerW,
		})
	}
	writeJSON(w, http.StatusOK, samples)
}

func (s *server) deviceList() []Device {
	states := s.engine.Devices()
	descriptors := s.engine.Catalog().All()
	devices := make([]Device, 0, len(descriptors))
	for _, d := range descriptors {
		st := states[d.ID]
		devices = append(devices, Device{
			ID:            d.ID,
			Label:         d.Label,
			NominalPowerW: d.NominalPowerW,
			On:            st.On,
			PowerW:        st.PowerW,
			ChangedAt:     st.LastChangedAt.Format(time.RFC3339),
		})
	}
	return devices
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
