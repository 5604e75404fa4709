package simulator

import (
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nilm_simulator/internal/model"
	"nilm_simulator/internal/store"
)

type mockCallback struct {
	mu      sync.Mutex
	states  []State
	updates []DeviceUpdate
	samples []model.AggregatedSample
}

func (m *mockCallback) OnState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, s)
}

func (m *mockCallback) OnDeviceUpdate(u DeviceUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, u)
}

func (m *mockCallback) OnSample(s model.AggregatedSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
}

func (m *mockCallback) sampleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples)
}

func (m *mockCallback) lastSample() model.AggregatedSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.samples) == 0 {
		return model.AggregatedSample{}
	}
	return m.samples[len(m.samples)-1]
}

func (m *mockCallback) lastState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.states) == 0 {
		return State{}
	}
	return m.states[len(m.states)-1]
}

var initTime = time.Date(2024, 11, 21, 12, 0, 0, 0, time.UTC)

func testCatalog() *model.Catalog {
	return model.NewCatalog([]model.DeviceDescriptor{
		{ID: "kettle", Label: "Electric Kettle", NominalPowerW: 1500},
		{ID: "oven", Label: "Oven", NominalPowerW: 2200},
		{ID: "fridge", Label: "Fridge", NominalPowerW: 120},
		{ID: "network", Label: "Network", NominalPowerW: 35},
	})
}

func newTestEngine(catalog *model.Catalog, seed int64) (*Engine, *store.Store, *mockCallback) {
	s := store.New(catalog, initTime)
	h, _ := NewHistory(DefaultHistoryCapacity)
	cb := &mockCallback{}
	e := New(s, h, cb)
	e.SetSeed(seed)
	e.now = func() time.Time { return initTime }
	return e, s, cb
}

func TestEngine_InitialState(t *testing.T) {
	e, _, _ := newTestEngine(testCatalog(), 1)

	state := e.State()
	assert.False(t, state.Running)
	assert.Equal(t, 1.0, state.Speed)
	assert.Zero(t, e.TotalPower())
	assert.Empty(t, e.History())
}

func TestEngine_ToggleDevice(t *testing.T) {
	e, s, cb := newTestEngine(testCatalog(), 1)

	err := e.ToggleDevice("kettle")
	require.NoError(t, err)

	st, err := s.Get("kettle")
	require.NoError(t, err)
	assert.True(t, st.On)
	// Manual toggle: exactly nominal, no noise
	assert.Equal(t, 1500.0, st.PowerW)
	assert.Equal(t, initTime, st.LastChangedAt)

	assert.InDelta(t, 1500.0, e.TotalPower(), 0.001)

	// Sample appended reflecting the post-toggle state
	require.Equal(t, 1, cb.sampleCount())
	assert.InDelta(t, 1500.0, cb.lastSample().TotalPowerW, 0.001)
	require.Len(t, e.History(), 1)
	assert.InDelta(t, 1500.0, e.History()[0].TotalPowerW, 0.001)

	// Toggle back off
	err = e.ToggleDevice("kettle")
	require.NoError(t, err)

	st, err = s.Get("kettle")
	require.NoError(t, err)
	assert.False(t, st.On)
	assert.Zero(t, st.PowerW)
	assert.Zero(t, e.TotalPower())
	assert.Equal(t, 2, cb.sampleCount())
}

func TestEngine_ToggleUnknownDevice(t *testing.T) {
	e, s, cb := newTestEngine(testCatalog(), 1)

	err := e.ToggleDevice("unknown-id")
	assert.ErrorIs(t, err, store.ErrUnknownDevice)

	// Nothing changed, no sample appended
	for _, st := range s.GetAll() {
		assert.False(t, st.On)
	}
	assert.Zero(t, cb.sampleCount())
	assert.Empty(t, e.History())
}

func TestEngine_ApplyEvent(t *testing.T) {
	e, s, cb := newTestEngine(testCatalog(), 1)

	err := e.ApplyEvent("oven", true, 2180)
	require.NoError(t, err)

	st, err := s.Get("oven")
	require.NoError(t, err)
	assert.True(t, st.On)
	assert.InDelta(t, 2180.0, st.PowerW, 0.001)
	assert.Equal(t, 1, cb.sampleCount())

	// Off event forces zero power regardless of the supplied value
	err = e.ApplyEvent("oven", false, 500)
	require.NoError(t, err)

	st, err = s.Get("oven")
	require.NoError(t, err)
	assert.False(t, st.On)
	assert.Zero(t, st.PowerW)

	err = e.ApplyEvent("unknown-id", true, 100)
	assert.ErrorIs(t, err, store.ErrUnknownDevice)
}

func TestEngine_SetSpeed(t *testing.T) {
	e, _, cb := newTestEngine(testCatalog(), 1)

	require.NoError(t, e.SetSpeed(2.5))
	assert.Equal(t, 2.5, e.State().Speed)
	assert.Equal(t, 2.5, cb.lastState().Speed)

	err := e.SetSpeed(0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, 2.5, e.State().Speed, "prior speed stays in effect")

	err = e.SetSpeed(-3)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, 2.5, e.State().Speed)
}

func TestEngine_Interval(t *testing.T) {
	e, _, _ := newTestEngine(testCatalog(), 1)

	// speed 1 -> 1s
	assert.Equal(t, time.Second, e.interval())

	// speed 2 -> 500ms
	require.NoError(t, e.SetSpeed(2))
	assert.Equal(t, 500*time.Millisecond, e.interval())

	// speed 10 -> 100ms, clamped to the 120ms floor
	require.NoError(t, e.SetSpeed(10))
	assert.Equal(t, 120*time.Millisecond, e.interval())

	// speed 0.05 is treated as 0.1 -> 10s
	require.NoError(t, e.SetSpeed(0.05))
	assert.Equal(t, 10*time.Second, e.interval())
}

func TestEngine_StepInvariants(t *testing.T) {
	catalog := testCatalog()
	e, s, cb := newTestEngine(catalog, 42)

	for i := 0; i < 200; i++ {
		e.Step()

		for id, st := range s.GetAll() {
			desc, ok := catalog.Get(id)
			require.True(t, ok)

			if !st.On {
				assert.Zero(t, st.PowerW, "off device %s must draw 0W", id)
				continue
			}
			// Generator noise bound: within ±4% of nominal (rounding stays
			// well inside the 8% envelope)
			assert.LessOrEqual(t,
				math.Abs(st.PowerW-desc.NominalPowerW),
				0.08*desc.NominalPowerW,
				"device %s power %v outside noise bound of nominal %v", id, st.PowerW, desc.NominalPowerW)
			assert.Equal(t, st.PowerW, math.Trunc(st.PowerW), "noisy power is whole watts")
		}

		assert.LessOrEqual(t, len(e.History()), DefaultHistoryCapacity)
	}

	// Exactly one sample per tick
	assert.Equal(t, 200, cb.sampleCount())
}

func TestEngine_StepSampleMatchesStore(t *testing.T) {
	e, s, cb := newTestEngine(testCatalog(), 7)

	for i := 0; i < 50; i++ {
		e.Step()
		// The sample is computed from the just-updated store, never a
		// stale pre-tick snapshot
		assert.InDelta(t, TotalPower(s.GetAll()), cb.lastSample().TotalPowerW, 0.001)
	}
}

func TestEngine_StepEmptyCatalog(t *testing.T) {
	e, _, cb := newTestEngine(model.NewCatalog(nil), 1)

	e.Step()
	e.Step()

	assert.Zero(t, cb.sampleCount())
	assert.Empty(t, e.History())
}

func TestEngine_Deterministic(t *testing.T) {
	e1, s1, _ := newTestEngine(testCatalog(), 99)
	e2, s2, _ := newTestEngine(testCatalog(), 99)

	for i := 0; i < 50; i++ {
		e1.Step()
		e2.Step()
	}

	assert.Equal(t, s1.GetAll(), s2.GetAll())
	assert.Equal(t, e1.History(), e2.History())
}

func TestEngine_StartPause(t *testing.T) {
	e, _, cb := newTestEngine(testCatalog(), 1)

	e.Start()
	assert.True(t, e.State().Running)
	assert.True(t, cb.lastState().Running)

	// Double start is a no-op
	e.Start()
	assert.True(t, e.State().Running)

	e.Pause()
	assert.False(t, e.State().Running)

	// Double pause is a no-op
	e.Pause()
	assert.False(t, e.State().Running)
}

func TestEngine_PauseStopsSampling(t *testing.T) {
	e, s, cb := newTestEngine(testCatalog(), 1)
	require.NoError(t, e.SetSpeed(10)) // 120ms ticks

	e.Start()
	time.Sleep(400 * time.Millisecond)
	e.Pause()

	// Allow an already-fired tick to finish
	time.Sleep(150 * time.Millisecond)
	samples := cb.sampleCount()
	states := s.GetAll()
	assert.Greater(t, samples, 0)

	// Several tick intervals later: nothing new
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, samples, cb.sampleCount())
	assert.Equal(t, states, s.GetAll())
	assert.Len(t, e.History(), samples)
}

func TestEngine_PausePreservesState(t *testing.T) {
	e, s, _ := newTestEngine(testCatalog(), 1)

	require.NoError(t, e.ToggleDevice("kettle"))
	e.Start()
	e.Pause()

	st, err := s.Get("kettle")
	require.NoError(t, err)
	assert.True(t, st.On, "pausing must not clear device state")
	require.Len(t, e.History(), 1)
}

func TestEngine_TogglesWhilePaused(t *testing.T) {
	e, _, cb := newTestEngine(testCatalog(), 1)

	require.NoError(t, e.ToggleDevice("fridge"))
	require.NoError(t, e.ToggleDevice("network"))

	assert.Equal(t, 2, cb.sampleCount())
	assert.InDelta(t, 120.0+35.0, e.TotalPower(), 0.001)
}

func TestEngine_SetRunning(t *testing.T) {
	e, _, _ := newTestEngine(testCatalog(), 1)

	e.SetRunning(true)
	assert.True(t, e.State().Running)

	e.SetRunning(false)
	assert.False(t, e.State().Running)
}

func TestNoisyPower(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 1000; i++ {
		p := noisyPower(rng, 1500)
		assert.GreaterOrEqual(t, p, 1440.0)
		assert.LessOrEqual(t, p, 1560.0)
		assert.Equal(t, p, math.Trunc(p), "rounded to whole watts")
	}

	// Tiny nominal never goes negative
	for i := 0; i < 100; i++ {
		assert.GreaterOrEqual(t, noisyPower(rng, 1), 0.0)
	}
}
