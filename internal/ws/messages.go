package ws

import (
	"encoding/json"
	"time"

	"nilm_simulator/internal/model"
	"nilm_simulator/internal/simulator"
)

// Envelope wraps all WebSocket messages with a type discriminator.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants
const (
	// Client -> Server
	TypeSimStart     = "sim:start"
	TypeSimPause     = "sim:pause"
	TypeSimSetSpeed  = "sim:set_speed"
	TypeDeviceToggle = "device:toggle"

	// Server -> Client
	TypeSimState        = "sim:state"
	TypeDeviceUpdate    = "device:update"
	TypeSampleAppend    = "sample:append"
	TypeDataLoaded      = "data:loaded"
	TypeHistorySnapshot = "history:snapshot"
	TypeError           = "error"
)

// Client -> Server messages

type SetSpeedPayload struct {
	Speed float64 `json:"speed"`
}

type DeviceTogglePayload struct {
	ID string `json:"id"`
}

// Server -> Client messages

type SimStatePayload struct {
	Running bool    `json:"running"`
	Speed   float64 `json:"speed"`
}

type DeviceUpdatePayload struct {
	ID        string  `json:"id"`
	On        bool    `json:"on"`
	PowerW    float64 `json:"power_w"`
	ChangedAt string  `json:"changed_at"`
}

type SamplePayload struct {
	Timestamp   string  `json:"timestamp"`
	TotalPowerW float64 `json:"total_power_w"`
}

type DeviceInfo struct {
	ID            string  `json:"id"`
	Label         string  `json:"label"`
	NominalPowerW float64 `json:"nominal_power_w"`
	On            bool    `json:"on"`
	PowerW        float64 `json:"power_w"`
	ChangedAt     string  `json:"changed_at"`
}

type DataLoadedPayload struct {
	Devices []DeviceInfo `json:"devices"`
}

type HistorySnapshotPayload struct {
	Samples []SamplePayload `json:"samples"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func NewEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

func SimStateFromEngine(s simulator.State) SimStatePayload {
	return SimStatePayload{
		Running: s.Running,
		Speed:   s.Speed,
	}
}

func DeviceUpdateFromEngine(u simulator.DeviceUpdate) DeviceUpdatePayload {
	return DeviceUpdatePayload{
		ID:        u.ID,
		On:        u.On,
		PowerW:    u.PowerW,
		ChangedAt: u.ChangedAt.Format(time.RFC3339),
	}
}

func SampleFromEngine(s model.AggregatedSample) SamplePayload {
	return SamplePayload{
		Timestamp:   s.Timestamp.Format(time.RFC3339),
		TotalPowerW: s.TotalPowerW,
	}
}
