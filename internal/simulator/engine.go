package simulator

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"nilm_simulator/internal/model"
	"nilm_simulator/internal/store"
)

const (
	baseInterval = time.Second
	minInterval  = 120 * time.Millisecond
	minSpeed     = 0.1

	// Per tick: usually one device is sampled, occasionally two at once to
	// exercise overlapping transitions.
	pairToggleProbability = 0.25
	// A sampled device actually flips with this probability; otherwise the
	// tick leaves it untouched.
	flipProbability = 0.8
	// Generator-set on-power carries uniform noise within ±4 % of nominal.
	noiseSpan = 0.08
)

// State represents the current control state of the engine.
type State struct {
	Running bool    `json:"running"`
	Speed   float64 `json:"speed"`
}

// DeviceUpdate is emitted each time a device changes state.
type DeviceUpdate struct {
	ID        string    `json:"id"`
	On        bool      `json:"on"`
	PowerW    float64   `json:"power_w"`
	ChangedAt time.Time `json:"changed_at"`
}

// Callback receives engine events.
type Callback interface {
	OnState(state State)
	OnDeviceUpdate(update DeviceUpdate)
	OnSample(sample model.AggregatedSample)
}

// Engine generates synthetic device switch events at a speed-controlled
// cadence, keeps the device state store authoritative, and appends one
// aggregate sample per mutation to the history buffer. Ticks and manual
// toggles are serialized on a single mutex; every mutation finishes its
// history append before the next one runs.
type Engine struct {
	mu       sync.Mutex
	store    *store.Store
	history  *History
	callback Callback

	rng *rand.Rand
	now func() time.Time

	running bool
	speed   float64
	stopCh  chan struct{}
}

func New(s *store.Store, h *History, cb Callback) *Engine {
	return &Engine{
		store:    s,
		history:  h,
		callback: cb,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
		speed:    1,
	}
}

// SetSeed re-seeds the random source, making toggle selection, flip decisions
// and noise deterministic.
func (e *Engine) SetSeed(seed int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rng = rand.New(rand.NewSource(seed))
}

// State returns the current control state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{Running: e.running, Speed: e.speed}
}

// Devices returns a snapshot of all device states.
func (e *Engine) Devices() map[string]model.DeviceState {
	return e.store.GetAll()
}

// Catalog returns the device catalog.
func (e *Engine) Catalog() *model.Catalog {
	return e.store.Catalog()
}

// History returns an ordered copy of the buffered aggregate samples.
func (e *Engine) History() []model.AggregatedSample {
	return e.history.Snapshot()
}

// TotalPower returns the current aggregate draw.
func (e *Engine) TotalPower() float64 {
	return TotalPower(e.store.GetAll())
}

// SetRunning enables or disables tick scheduling. Pausing never clears device
// state or history.
func (e *Engine) SetRunning(run bool) {
	if run {
		e.Start()
	} else {
		e.Pause()
	}
}

// Start begins the tick loop.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	stopCh := e.stopCh
	e.mu.Unlock()

	e.broadcastState()
	go e.loop(stopCh)
}

// Pause stops scheduling future ticks. An already-fired tick runs to
// completion.
func (e *Engine) Pause() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()

	e.broadcastState()
}

// SetSpeed sets the tick speed multiplier. It takes effect when the next tick
// wait is armed. Non-positive values are rejected and the prior speed stays
// in effect.
func (e *Engine) SetSpeed(speed float64) error {
	if speed <= 0 {
		return fmt.Errorf("speed %v: %w", speed, ErrInvalidConfig)
	}

	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()

	e.broadcastState()
	return nil
}

// interval returns the current tick interval:
// clamp(baseInterval / max(speed, 0.1), minInterval, inf).
func (e *Engine) interval() time.Duration {
	e.mu.Lock()
	speed := e.speed
	e.mu.Unlock()

	if speed < minSpeed {
		speed = minSpeed
	}
	d := time.Duration(float64(baseInterval) / speed)
	if d < minInterval {
		d = minInterval
	}
	return d
}

func (e *Engine) loop(stopCh chan struct{}) {
	for {
		// One timer armed at a time; the interval is re-read each round so
		// speed changes apply on the next wait.
		timer := time.NewTimer(e.interval())
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
			e.Step()
		}
	}
}

// Step runs one tick synchronously: sample one or two devices, flip each with
// probability, then append an aggregate sample computed from the just-updated
// store. Useful for deterministic testing, does not require Start().
func (e *Engine) Step() {
	e.mu.Lock()

	ids := e.store.Catalog().IDs()
	if len(ids) == 0 {
		// Empty catalog: nothing to sample, no new history entry.
		e.mu.Unlock()
		return
	}

	now := e.now()

	count := 1
	if e.rng.Float64() < pairToggleProbability {
		count = 2
	}
	if count > len(ids) {
		count = len(ids)
	}

	var updates []DeviceUpdate
	perm := e.rng.Perm(len(ids))
	for _, idx := range perm[:count] {
		id := ids[idx]
		if e.rng.Float64() >= flipProbability {
			continue // sampled, no actual transition
		}

		st, err := e.store.Get(id)
		if err != nil {
			continue
		}
		desc, _ := e.store.Catalog().Get(id)

		st.On = !st.On
		if st.On {
			st.PowerW = noisyPower(e.rng, desc.NominalPowerW)
		} else {
			st.PowerW = 0
		}
		st.LastChangedAt = now
		e.store.SetState(id, st)

		updates = append(updates, DeviceUpdate{
			ID:        id,
			On:        st.On,
			PowerW:    st.PowerW,
			ChangedAt: now,
		})
	}

	sample := model.AggregatedSample{
		Timestamp:   now,
		TotalPowerW: TotalPower(e.store.GetAll()),
	}
	e.history.Append(sample)
	e.mu.Unlock()

	for _, u := range updates {
		e.callback.OnDeviceUpdate(u)
	}
	e.callback.OnSample(sample)
}

// ToggleDevice flips one device immediately. Turning on sets exactly the
// nominal power, distinguishing a deliberate user action from simulated
// noise. A sample reflecting the post-toggle state is appended right away.
func (e *Engine) ToggleDevice(id string) error {
	e.mu.Lock()
	st, err := e.store.Get(id)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	desc, _ := e.store.Catalog().Get(id)

	var power float64
	if !st.On {
		power = desc.NominalPowerW
	}
	update, sample := e.applyEventLocked(id, !st.On, power)
	e.mu.Unlock()

	e.callback.OnDeviceUpdate(update)
	e.callback.OnSample(sample)
	return nil
}

// ApplyEvent applies one externally sourced device event. Manual toggles
// funnel through the same mutation, and a future real-data feed adapter would
// call this in place of the generator.
func (e *Engine) ApplyEvent(id string, on bool, powerW float64) error {
	e.mu.Lock()
	if _, err := e.store.Get(id); err != nil {
		e.mu.Unlock()
		return err
	}
	update, sample := e.applyEventLocked(id, on, powerW)
	e.mu.Unlock()

	e.callback.OnDeviceUpdate(update)
	e.callback.OnSample(sample)
	return nil
}

// applyEventLocked writes one device state and appends the resulting
// aggregate sample. Must be called with mu held and a validated id.
func (e *Engine) applyEventLocked(id string, on bool, powerW float64) (DeviceUpdate, model.AggregatedSample) {
	now := e.now()
	if !on {
		powerW = 0
	}

	e.store.SetState(id, model.DeviceState{
		On:            on,
		PowerW:        powerW,
		LastChangedAt: now,
	})

	sample := model.AggregatedSample{
		Timestamp:   now,
		TotalPowerW: TotalPower(e.store.GetAll()),
	}
	e.history.Append(sample)

	return DeviceUpdate{ID: id, On: on, PowerW: powerW, ChangedAt: now}, sample
}

func (e *Engine) broadcastState() {
	e.mu.Lock()
	s := State{Running: e.running, Speed: e.speed}
	e.mu.Unlock()
	e.callback.OnState(s)
}

// noisyPower returns nominal plus uniform noise within ±4 %, rounded to the
// nearest whole watt and clamped at zero.
func noisyPower(rng *rand.Rand, nominal float64) float64 {
	noise := math.Round((rng.Float64() - 0.5) * nominal * noiseSpan)
	p := nominal + noise
	if p < 0 {
		p = 0
	}
	return p
}
