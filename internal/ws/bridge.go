package ws

import (
	"log"

	"nilm_simulator/internal/model"
	"nilm_simulator/internal/simulator"
)

// Bridge implements simulator.Callback and broadcasts events to the WebSocket hub.
type Bridge struct {
	hub *Hub
}

func NewBridge(hub *Hub) *Bridge {
	return &Bridge{hub: hub}
}

func (b *Bridge) OnState(s simulator.State) {
	msg, err := NewEnvelope(TypeSimState, SimStateFromEngine(s))
	if err != nil {
		log.Printf("Error marshaling sim state: %v", err)
		return
	}
	b.hub.Broadcast(msg)
}

func (b *Bridge) OnDeviceUpdate(u simulator.DeviceUpdate) {
	msg, err := NewEnvelope(TypeDeviceUpdate, DeviceUpdateFromEngine(u))
	if err != nil {
		log.Printf("Error marshaling device update: %v", err)
		return
	}
	b.hub.Broadcast(msg)
}

func (b *Bridge) OnSample(s model.AggregatedSample) {
	msg, err := NewEnvelope(TypeSampleAppend, SampleFromEngine(s))
	if err != nil {
		log.Printf("Error marshaling sample: %v", err)
		return
	}
	b.hub.Broadcast(msg)
}
