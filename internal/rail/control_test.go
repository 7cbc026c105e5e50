package rail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ioc-platform/ioc/internal/model"
)

var frozen = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type fakeAuditor struct {
	mu      sync.Mutex
	records []model.AuditRecord
}

func (f *fakeAuditor) InsertAudit(r model.AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
	return nil
}

func (f *fakeAuditor) all() []model.AuditRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.AuditRecord(nil), f.records...)
}

func newTestController(t *testing.T) (*Controller, *fakeAuditor) {
	t.Helper()
	a := &fakeAuditor{}
	c := NewController(a, time.Second)
	c.now = func() time.Time { return frozen }
	return c, a
}

func apply(t *testing.T, c *Controller, action, target, value string) {
	t.Helper()
	_, err := c.Apply("op1", Action{Action: action, Target: target, Value: value})
	require.NoError(t, err)
}

// placeTrain moves a train directly, bypassing signalling.
func placeTrain(c *Controller, id, circuit string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.state.Platforms {
		if c.state.Platforms[i].TrainID == id {
			c.state.Platforms[i].TrainID = ""
		}
	}
	c.state.train(id).Circuit = circuit
	c.state.train(id).DwellTicks = 0
	c.state.syncOccupancy()
}

func trainOf(s State, id string) Train {
	for _, t := range s.Trains {
		if t.ID == id {
			return t
		}
	}
	return Train{}
}

func signalOf(s State, id string) Signal {
	for _, sig := range s.Signals {
		if sig.ID == id {
			return sig
		}
	}
	return Signal{}
}

// ---------------------------------------------------------------------------
// Layout
// ---------------------------------------------------------------------------

func TestDefaultLayout_Occupancy(t *testing.T) {
	s := DefaultLayout()

	occupied := map[string]string{}
	for _, tc := range s.TrackCircuits {
		if tc.Occupied {
			occupied[tc.ID] = tc.TrainID
		}
	}
	assert.Equal(t, map[string]string{"TC101": "T1", "TC106": "T2"}, occupied)
	for _, sig := range s.Signals {
		assert.Equal(t, AspectRed, sig.Aspect, sig.ID)
	}
	assert.False(t, s.EmergencySystems.Active)
}

func TestRoute_FollowsPoints(t *testing.T) {
	c, _ := newTestController(t)
	assert.Equal(t, "TC104", c.route("TC103"))
	assert.Equal(t, "TC104", c.route("TC201"))
	assert.Equal(t, "TC101", c.route("TC106"))

	apply(t, c, ActionMovePoint, "P1", PointReverse)
	assert.Equal(t, "TC201", c.route("TC103"))
	assert.Equal(t, "", c.route("nope"))
}

func TestState_IsDeepCopy(t *testing.T) {
	c, _ := newTestController(t)
	s := c.State()
	s.Signals[0].Aspect = AspectGreen
	s.Signals[1].Points[0] = "X"
	s.LevelCrossings[0].Approach[0] = "X"

	fresh := c.State()
	assert.Equal(t, AspectRed, fresh.Signals[0].Aspect)
	assert.Equal(t, "P1", fresh.Signals[1].Points[0])
	assert.Equal(t, "TC104", fresh.LevelCrossings[0].Approach[0])
}

// ---------------------------------------------------------------------------
// Signals
// ---------------------------------------------------------------------------

func TestChangeSignal_ClearsWhenRouteClear(t *testing.T) {
	c, _ := newTestController(t)
	msg, err := c.Apply("op1", Action{Action: ActionChangeSignal, Target: "S1", Value: AspectGreen})
	require.NoError(t, err)
	assert.Equal(t, "Signal S1 set to green", msg)
	assert.Equal(t, AspectGreen, signalOf(c.State(), "S1").Aspect)
}

func TestChangeSignal_RefusedWhenProtectedCircuitOccupied(t *testing.T) {
	c, _ := newTestController(t)
	// S4 protects TC101, where T1 stands.
	_, err := c.Apply("op1", Action{Action: ActionChangeSignal, Target: "S4", Value: AspectGreen})
	assert.ErrorIs(t, err, ErrInterlock)
	assert.Equal(t, AspectRed, signalOf(c.State(), "S4").Aspect)
}

func TestChangeSignal_LocksAndReleasesPoints(t *testing.T) {
	c, _ := newTestController(t)
	apply(t, c, ActionChangeSignal, "S2", AspectGreen)
	assert.True(t, c.State().Points[0].Locked)

	_, err := c.Apply("op1", Action{Action: ActionMovePoint, Target: "P1", Value: PointReverse})
	assert.ErrorIs(t, err, ErrInterlock)

	apply(t, c, ActionChangeSignal, "S2", AspectRed)
	assert.False(t, c.State().Points[0].Locked)
	apply(t, c, ActionMovePoint, "P1", PointReverse)
	assert.Equal(t, PointReverse, c.State().Points[0].Position)
}

func TestChangeSignal_RefusedWhenPointCircuitOccupied(t *testing.T) {
	c, _ := newTestController(t)
	placeTrain(c, "T1", "TC103")
	// S2 protects TC103 too, so the occupancy check on the circuit fires first.
	_, err := c.Apply("op1", Action{Action: ActionChangeSignal, Target: "S2", Value: AspectYellow})
	assert.ErrorIs(t, err, ErrInterlock)
}

func TestChangeSignal_RequiresCrossingLowered(t *testing.T) {
	c, _ := newTestController(t)
	_, err := c.Apply("op1", Action{Action: ActionChangeSignal, Target: "S3", Value: AspectGreen})
	require.ErrorIs(t, err, ErrInterlock)
	assert.Contains(t, err.Error(), "LC1")

	apply(t, c, ActionControlCrossing, "LC1", "lower")
	apply(t, c, ActionChangeSignal, "S3", AspectGreen)
}

func TestChangeSignal_Errors(t *testing.T) {
	c, _ := newTestController(t)

	_, err := c.Apply("op1", Action{Action: ActionChangeSignal, Target: "S9", Value: AspectGreen})
	assert.ErrorIs(t, err, ErrUnknownTarget)

	_, err = c.Apply("op1", Action{Action: ActionChangeSignal, Target: "S1", Value: "purple"})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

// ---------------------------------------------------------------------------
// Points
// ---------------------------------------------------------------------------

func TestMovePoint(t *testing.T) {
	c, _ := newTestController(t)

	msg, err := c.Apply("op1", Action{Action: ActionMovePoint, Target: "P1", Value: PointNormal})
	require.NoError(t, err)
	assert.Equal(t, "Points P1 already normal", msg)

	_, err = c.Apply("op1", Action{Action: ActionMovePoint, Target: "P1", Value: "left"})
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = c.Apply("op1", Action{Action: ActionMovePoint, Target: "P7", Value: PointReverse})
	assert.ErrorIs(t, err, ErrUnknownTarget)

	placeTrain(c, "T1", "TC103")
	_, err = c.Apply("op1", Action{Action: ActionMovePoint, Target: "P1", Value: PointReverse})
	assert.ErrorIs(t, err, ErrInterlock)
	assert.Equal(t, PointNormal, c.State().Points[0].Position)
}

// ---------------------------------------------------------------------------
// Doors
// ---------------------------------------------------------------------------

func TestControlDoors(t *testing.T) {
	c, _ := newTestController(t)

	_, err := c.Apply("op1", Action{Action: ActionControlDoors, Target: "PL1", Value: "open"})
	assert.ErrorIs(t, err, ErrInterlock, "no train at Central")

	apply(t, c, ActionControlDoors, "PL2", "open")
	s := c.State()
	assert.True(t, s.Platforms[1].DoorsOpen)
	assert.True(t, trainOf(s, "T2").DoorsOpen)

	apply(t, c, ActionControlDoors, "PL2", "close")
	s = c.State()
	assert.False(t, s.Platforms[1].DoorsOpen)
	assert.False(t, trainOf(s, "T2").DoorsOpen)

	_, err = c.Apply("op1", Action{Action: ActionControlDoors, Target: "PL2", Value: "ajar"})
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = c.Apply("op1", Action{Action: ActionControlDoors, Target: "PL9", Value: "open"})
	assert.ErrorIs(t, err, ErrUnknownTarget)
}

func TestControlDoors_RefusedWhileTrainRunning(t *testing.T) {
	c, _ := newTestController(t)
	c.mu.Lock()
	c.state.train("T2").Status = TrainRunning
	c.mu.Unlock()

	_, err := c.Apply("op1", Action{Action: ActionControlDoors, Target: "PL2", Value: "open"})
	assert.ErrorIs(t, err, ErrInterlock)
}

// ---------------------------------------------------------------------------
// Level crossings
// ---------------------------------------------------------------------------

func TestControlCrossing(t *testing.T) {
	c, _ := newTestController(t)
	apply(t, c, ActionControlCrossing, "LC1", "lower")
	assert.Equal(t, BarrierLowered, c.State().LevelCrossings[0].Barriers)
	apply(t, c, ActionControlCrossing, "LC1", "raise")
	assert.Equal(t, BarrierRaised, c.State().LevelCrossings[0].Barriers)

	_, err := c.Apply("op1", Action{Action: ActionControlCrossing, Target: "LC1", Value: "wiggle"})
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = c.Apply("op1", Action{Action: ActionControlCrossing, Target: "LC2", Value: "raise"})
	assert.ErrorIs(t, err, ErrUnknownTarget)
}

func TestControlCrossing_RaiseRefusedWhenApproachOccupied(t *testing.T) {
	c, _ := newTestController(t)
	apply(t, c, ActionControlCrossing, "LC1", "lower")
	placeTrain(c, "T1", "TC104")

	_, err := c.Apply("op1", Action{Action: ActionControlCrossing, Target: "LC1", Value: "raise"})
	require.ErrorIs(t, err, ErrInterlock)
	assert.Contains(t, err.Error(), "TC104")
	assert.Equal(t, BarrierLowered, c.State().LevelCrossings[0].Barriers)
}

func TestControlCrossing_RaiseRefusedWhileSignalCleared(t *testing.T) {
	c, _ := newTestController(t)
	apply(t, c, ActionControlCrossing, "LC1", "lower")
	apply(t, c, ActionChangeSignal, "S3", AspectGreen)

	_, err := c.Apply("op1", Action{Action: ActionControlCrossing, Target: "LC1", Value: "raise"})
	assert.ErrorIs(t, err, ErrInterlock)
}

// ---------------------------------------------------------------------------
// Emergency
// ---------------------------------------------------------------------------

func TestEmergencyStop(t *testing.T) {
	c, _ := newTestController(t)
	apply(t, c, ActionChangeSignal, "S1", AspectGreen)
	apply(t, c, ActionChangeSignal, "S2", AspectGreen)

	msg, err := c.Apply("controller", Action{Action: ActionEmergencyStop, Reason: "trespass"})
	require.NoError(t, err)
	assert.Contains(t, msg, "activated")

	s := c.State()
	for _, sig := range s.Signals {
		assert.Equal(t, AspectRed, sig.Aspect, sig.ID)
	}
	for _, tr := range s.Trains {
		assert.Equal(t, TrainEmergency, tr.Status, tr.ID)
		assert.Zero(t, tr.SpeedKmh)
	}
	for _, p := range s.Points {
		assert.False(t, p.Locked)
	}
	assert.Equal(t, BarrierLowered, s.LevelCrossings[0].Barriers)

	es := c.Emergency()
	assert.True(t, es.Active)
	assert.Equal(t, "controller", es.TriggeredBy)
	assert.Equal(t, "trespass", es.Reason)
	require.NotNil(t, es.TriggeredAt)
	assert.Equal(t, frozen, *es.TriggeredAt)

	msg, err = c.Apply("controller", Action{Action: ActionEmergencyStop})
	require.NoError(t, err)
	assert.Equal(t, "Emergency stop already active", msg)
}

func TestEmergencyStop_BlocksClearingAndRaising(t *testing.T) {
	c, _ := newTestController(t)
	apply(t, c, ActionEmergencyStop, "", "")

	_, err := c.Apply("op1", Action{Action: ActionChangeSignal, Target: "S1", Value: AspectGreen})
	assert.ErrorIs(t, err, ErrEmergencyActive)

	_, err = c.Apply("op1", Action{Action: ActionControlCrossing, Target: "LC1", Value: "raise"})
	assert.ErrorIs(t, err, ErrEmergencyActive)

	// Red is always permitted, as are doors for evacuation.
	apply(t, c, ActionChangeSignal, "S1", AspectRed)
	apply(t, c, ActionControlDoors, "PL2", "open")
}

func TestEmergencyStop_FreezesSimulation(t *testing.T) {
	c, _ := newTestController(t)
	apply(t, c, ActionChangeSignal, "S1", AspectGreen)
	apply(t, c, ActionEmergencyStop, "", "")

	c.Tick()
	c.Tick()
	s := c.State()
	assert.Equal(t, "TC101", trainOf(s, "T1").Circuit)
	assert.Equal(t, DefaultDwellTicks, trainOf(s, "T2").DwellTicks)
	assert.Equal(t, int64(2), s.Tick)
}

func TestResetEmergency(t *testing.T) {
	c, _ := newTestController(t)

	_, err := c.Apply("op1", Action{Action: ActionResetEmergency})
	assert.ErrorIs(t, err, ErrInterlock)

	apply(t, c, ActionEmergencyStop, "", "")
	apply(t, c, ActionResetEmergency, "", "")

	s := c.State()
	assert.False(t, s.EmergencySystems.Active)
	assert.Equal(t, "op1", s.EmergencySystems.ResetBy)
	assert.Equal(t, TrainHeld, trainOf(s, "T1").Status)
	assert.Equal(t, TrainStopped, trainOf(s, "T2").Status, "train at a platform resumes as stopped")

	apply(t, c, ActionChangeSignal, "S1", AspectGreen)
}

// ---------------------------------------------------------------------------
// Simulation
// ---------------------------------------------------------------------------

func TestTick_TrainHeldAtRedSignal(t *testing.T) {
	c, _ := newTestController(t)
	c.Tick()
	s := c.State()
	assert.Equal(t, "TC101", trainOf(s, "T1").Circuit)
	assert.Equal(t, TrainHeld, trainOf(s, "T1").Status)
	assert.Equal(t, DefaultDwellTicks-1, trainOf(s, "T2").DwellTicks)
}

func TestTick_TrainPassesSignalIntoPlatform(t *testing.T) {
	c, _ := newTestController(t)
	apply(t, c, ActionChangeSignal, "S1", AspectGreen)

	c.Tick()
	s := c.State()
	t1 := trainOf(s, "T1")
	assert.Equal(t, "TC102", t1.Circuit)
	assert.Equal(t, TrainStopped, t1.Status)
	assert.Equal(t, DefaultDwellTicks, t1.DwellTicks)
	assert.Equal(t, AspectRed, signalOf(s, "S1").Aspect, "signal replaced behind the train")
	assert.Equal(t, "T1", s.Platforms[0].TrainID)

	for _, tc := range s.TrackCircuits {
		switch tc.ID {
		case "TC101":
			assert.False(t, tc.Occupied)
		case "TC102":
			assert.True(t, tc.Occupied)
			assert.Equal(t, "T1", tc.TrainID)
		}
	}
}

func TestTick_SpeedFollowsAspect(t *testing.T) {
	c, _ := newTestController(t)
	placeTrain(c, "T1", "TC104")
	apply(t, c, ActionControlCrossing, "LC1", "lower")
	apply(t, c, ActionChangeSignal, "S3", AspectYellow)

	c.Tick()
	t1 := trainOf(c.State(), "T1")
	assert.Equal(t, "TC105", t1.Circuit)
	assert.Equal(t, TrainRunning, t1.Status)
	assert.Equal(t, speedYellow, t1.SpeedKmh)
}

func TestTick_DoorsHoldDeparture(t *testing.T) {
	c, _ := newTestController(t)
	apply(t, c, ActionChangeSignal, "S1", AspectGreen)
	c.Tick() // T1 into Central, T2 dwell 3 -> 2

	apply(t, c, ActionChangeSignal, "S4", AspectGreen)
	apply(t, c, ActionControlDoors, "PL2", "open")
	for range 5 {
		c.Tick()
	}
	t2 := trainOf(c.State(), "T2")
	assert.Equal(t, "TC106", t2.Circuit)
	assert.Zero(t, t2.DwellTicks)
	assert.Equal(t, TrainStopped, t2.Status)

	apply(t, c, ActionControlDoors, "PL2", "close")
	c.Tick()
	s := c.State()
	t2 = trainOf(s, "T2")
	assert.Equal(t, "TC101", t2.Circuit)
	assert.Equal(t, TrainRunning, t2.Status)
	assert.Equal(t, speedGreen, t2.SpeedKmh)
	assert.Empty(t, s.Platforms[1].TrainID)
}

func TestTick_PassingLoop(t *testing.T) {
	c, _ := newTestController(t)
	apply(t, c, ActionMovePoint, "P1", PointReverse)
	placeTrain(c, "T1", "TC103")

	c.Tick()
	assert.Equal(t, "TC201", trainOf(c.State(), "T1").Circuit)
	c.Tick()
	assert.Equal(t, "TC104", trainOf(c.State(), "T1").Circuit)
}

func TestTick_WaitsForOccupiedCircuit(t *testing.T) {
	c, _ := newTestController(t)
	placeTrain(c, "T1", "TC104")
	placeTrain(c, "T2", "TC105")
	c.mu.Lock()
	// Force S3 off red to show occupancy alone stops the train.
	c.state.signal("S3").Aspect = AspectGreen
	c.mu.Unlock()

	c.Tick()
	s := c.State()
	assert.Equal(t, "TC104", trainOf(s, "T1").Circuit)
	assert.Equal(t, TrainHeld, trainOf(s, "T1").Status)
	assert.Equal(t, "TC106", trainOf(s, "T2").Circuit)

	c.Tick()
	assert.Equal(t, "TC105", trainOf(c.State(), "T1").Circuit)
}

func TestCollect_Ticks(t *testing.T) {
	c, _ := newTestController(t)
	assert.Equal(t, "rail-sim", c.Name())
	assert.Equal(t, time.Second, c.Interval())
	require.NoError(t, c.Collect(context.Background()))
	assert.Equal(t, int64(1), c.State().Tick)
}

func TestNewController_DefaultTick(t *testing.T) {
	assert.Equal(t, 2*time.Second, NewController(nil, 0).Interval())
}

// ---------------------------------------------------------------------------
// Audit
// ---------------------------------------------------------------------------

func TestApply_Audits(t *testing.T) {
	c, a := newTestController(t)
	apply(t, c, ActionChangeSignal, "S1", AspectGreen)
	_, err := c.Apply("", Action{Action: ActionChangeSignal, Target: "S4", Value: AspectGreen})
	require.Error(t, err)
	_, err = c.Apply("op2", Action{Action: "derail"})
	require.ErrorIs(t, err, ErrUnknownAction)

	recs := a.all()
	require.Len(t, recs, 3)
	assert.Equal(t, model.AuditRecord{
		Timestamp: frozen.Unix(), Actor: "op1", Action: ActionChangeSignal,
		Target: "S1", Success: true, Message: "Signal S1 set to green",
	}, recs[0])
	assert.Equal(t, "anonymous", recs[1].Actor)
	assert.False(t, recs[1].Success)
	assert.Contains(t, recs[1].Message, "occupied")
	assert.Equal(t, "derail", recs[2].Action)
	assert.False(t, recs[2].Success)
}

func TestRefuse_AuditsWithoutApplying(t *testing.T) {
	c, a := newTestController(t)
	c.Refuse("unauthenticated", Action{Action: ActionEmergencyStop, Reason: "drill"}, ErrUnauthorized)
	c.Refuse("", Action{}, errors.New("bad body"))

	recs := a.all()
	require.Len(t, recs, 2)
	assert.Equal(t, model.AuditRecord{
		Timestamp: frozen.Unix(), Actor: "unauthenticated", Action: ActionEmergencyStop,
		Success: false, Message: ErrUnauthorized.Error(),
	}, recs[0])
	assert.Equal(t, "anonymous", recs[1].Actor)
	assert.Equal(t, "bad body", recs[1].Message)
	assert.False(t, c.Emergency().Active, "refused actions never reach the interlocking")
}

func TestApply_NilAuditor(t *testing.T) {
	c := NewController(nil, time.Second)
	_, err := c.Apply("op1", Action{Action: ActionChangeSignal, Target: "S1", Value: AspectGreen})
	assert.NoError(t, err)
}

func TestController_Concurrent(t *testing.T) {
	c, _ := newTestController(t)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				switch i % 3 {
				case 0:
					c.Tick()
				case 1:
					_ = c.State()
				default:
					_, _ = c.Apply("op", Action{Action: ActionChangeSignal, Target: "S1", Value: AspectGreen})
				}
			}
		}()
	}
	wg.Wait()
	// Goroutines 0, 3 and 6 tick.
	assert.Equal(t, int64(150), c.State().Tick)
}

func BenchmarkApply_Crossing(b *testing.B) {
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	b.Cleanup(func() { slog.SetDefault(prev) })

	c := NewController(&fakeAuditor{}, time.Second)
	cmds := [2]string{"lower", "raise"}
	b.ReportAllocs()
	for i := 0; b.Loop(); i++ {
		if _, err := c.Apply("bench", Action{Action: ActionControlCrossing, Target: "LC1", Value: cmds[i%2]}); err != nil {
			b.Fatal(err)
		}
	}
}
