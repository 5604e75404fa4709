package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"nilm_simulator/internal/simulator"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler manages WebSocket connections and routes messages to the engine.
type Handler struct {
	hub    *Hub
	engine *simulator.Engine
}

func NewHandler(hub *Hub, engine *simulator.Engine) *Handler {
	return &Handler{hub: hub, engine: engine}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := newClient(h.hub, conn)

	h.hub.Register(client)
	go client.writePump()

	// Send catalog + current state, history, and control state
	h.sendDataLoaded(client)
	h.sendHistory(client)
	h.sendSimState(client)

	// Read messages from client
	h.readPump(client)
}

func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read error (client %s): %v", c.id, err)
			}
			return
		}

		h.handleMessage(c, msg)
	}
}

func (h *Handler) handleMessage(c *Client, msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		log.Printf("Invalid message from client %s: %v", c.id, err)
		return
	}

	switch env.Type {
	case TypeSimStart:
		h.engine.Start()

	case TypeSimPause:
		h.engine.Pause()

	case TypeSimSetSpeed:
		var p SetSpeedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Printf("Invalid set_speed payload: %v", err)
			return
		}
		if err := h.engine.SetSpeed(p.Speed); err != nil {
			h.sendError(c, err)
		}

	case TypeDeviceToggle:
		var p DeviceTogglePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Printf("Invalid toggle payload: %v", err)
			return
		}
		if err := h.engine.ToggleDevice(p.ID); err != nil {
			h.sendError(c, err)
		}

	default:
		log.Printf("Unknown message type: %s", env.Type)
	}
}

func (h *Handler) sendError(c *Client, cause error) {
	msg, err := NewEnvelope(TypeError, ErrorPayload{Message: cause.Error()})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (h *Handler) sendDataLoaded(c *Client) {
	states := h.engine.Devices()
	descriptors := h.engine.Catalog().All()
	devices := make([]DeviceInfo, 0, len(descriptors))
	for _, d := range descriptors {
		st := states[d.ID]
		devices = append(devices, DeviceInfo{
			ID:            d.ID,
			Label:         d.Label,
			NominalPowerW: d.NominalPowerW,
			On:            st.On,
			PowerW:        st.PowerW,
			ChangedAt:     st.LastChangedAt.Format(time.RFC3339),
		})
	}

	msg, err := NewEnvelope(TypeDataLoaded, DataLoadedPayload{Devices: devices})
	if err != nil {
		log.Printf("Error creating data:loaded message: %v", err)
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

func (h *Handler) sendHistory(c *Client) {
	history := h.engine.History()
	samples := make([]SamplePayload, 0, len(history))
	for _, s := range history {
		samples = append(samples, SampleFromEngine(s))
	}

	msg, err := NewEnvelope(TypeHistorySnapshot, HistorySnapshotPayload{Samples: samples})
	if err != nil {
		log.Printf("Error creating history:snapshot message: %v", err)
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

func (h *Handler) sendSimState(c *Client) {
	msg, err := NewEnvelope(TypeSimState, SimStateFromEngine(h.engine.State()))
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
