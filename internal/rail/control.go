package rail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/ioc-platform/ioc/internal/model"
)

var (
	// ErrInterlock is returned when an action conflicts with the interlocking.
	ErrInterlock = errors.New("interlocking conflict")
	// ErrEmergencyActive is returned when an action is refused because the
	// emergency stop latch is set.
	ErrEmergencyActive = errors.New("emergency stop active")
	ErrUnknownAction   = errors.New("unknown action")
	ErrUnknownTarget   = errors.New("unknown target")
	ErrInvalidValue    = errors.New("invalid value")
)

// Operator actions.
const (
	ActionChangeSignal    = "change_signal"
	ActionMovePoint       = "move_point"
	ActionControlDoors    = "control_doors"
	ActionControlCrossing = "control_crossing"
	ActionEmergencyStop   = "emergency_stop"
	ActionResetEmergency  = "reset_emergency"
)

// Train speeds after passing a signal, by aspect.
const (
	speedGreen    = 80
	speedYellow   = 40
	speedUnsigned = 60
)

// Action is an operator command from the HMI.
type Action struct {
	Action string `json:"action"`
	Target string `json:"target"`
	Value  string `json:"value"`
	Reason string `json:"reason,omitempty"`
}

// Auditor persists the outcome of every operator action.
type Auditor interface {
	InsertAudit(r model.AuditRecord) error
}

// Controller owns the layout state. All methods are safe for concurrent use.
type Controller struct {
	mu       sync.Mutex
	state    State
	audit    Auditor
	interval time.Duration
	now      func() time.Time
}

// NewController creates a controller over the default layout. audit may be
// nil.
func NewController(audit Auditor, tick time.Duration) *Controller {
	if tick <= 0 {
		tick = 2 * time.Second
	}
	return &Controller{
		state:    DefaultLayout(),
		audit:    audit,
		interval: tick,
		now:      time.Now,
	}
}

// State returns a deep copy of the current layout.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Emergency returns the emergency latch.
func (c *Controller) Emergency() EmergencySystems {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone().EmergencySystems
}

// Apply executes an operator action and audits the outcome. The returned
// message describes what changed.
func (c *Controller) Apply(actor string, a Action) (string, error) {
	if actor == "" {
		actor = "anonymous"
	}

	c.mu.Lock()
	msg, err := c.apply(actor, a)
	c.mu.Unlock()

	c.record(actor, a, msg, err)
	if err != nil {
		slog.Warn("rail action refused", "actor", actor, "action", a.Action, "target", a.Target, "error", err)
		return "", err
	}
	slog.Info("rail action applied", "actor", actor, "action", a.Action, "target", a.Target, "value", a.Value)
	return msg, nil
}

// Refuse audits an action rejected before it reached the interlocking, such
// as a request without a valid operator token or with an unreadable body.
func (c *Controller) Refuse(actor string, a Action, reason error) {
	if actor == "" {
		actor = "anonymous"
	}
	c.record(actor, a, "", reason)
	slog.Warn("rail request refused", "actor", actor, "action", a.Action, "error", reason)
}

func (c *Controller) apply(actor string, a Action) (string, error) {
	switch a.Action {
	case ActionChangeSignal:
		return c.changeSignal(a.Target, a.Value)
	case ActionMovePoint:
		return c.movePoint(a.Target, a.Value)
	case ActionControlDoors:
		return c.controlDoors(a.Target, a.Value)
	case ActionControlCrossing:
		return c.controlCrossing(a.Target, a.Value)
	case ActionEmergencyStop:
		return c.emergencyStop(actor, a.Reason), nil
	case ActionResetEmergency:
		return c.resetEmergency(actor)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, a.Action)
	}
}

func (c *Controller) record(actor string, a Action, msg string, err error) {
	if c.audit == nil {
		return
	}
	rec := model.AuditRecord{
		Timestamp: c.now().Unix(),
		Actor:     actor,
		Action:    a.Action,
		Target:    a.Target,
		Success:   err == nil,
		Message:   msg,
	}
	if err != nil {
		rec.Message = err.Error()
	}
	if auditErr := c.audit.InsertAudit(rec); auditErr != nil {
		slog.Error("writing rail audit record", "action", a.Action, "error", auditErr)
	}
}

func (c *Controller) occupied() mapset.Set[string] {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, tc := range c.state.TrackCircuits {
		if tc.Occupied {
			set.Add(tc.ID)
		}
	}
	return set
}

// refreshLocks locks every point named by a signal showing a proceed aspect
// and releases all others.
func (c *Controller) refreshLocks() {
	locked := mapset.NewThreadUnsafeSet[string]()
	for _, sig := range c.state.Signals {
		if sig.Aspect != AspectRed {
			locked.Append(sig.Points...)
		}
	}
	for i := range c.state.Points {
		c.state.Points[i].Locked = locked.Contains(c.state.Points[i].ID)
	}
}

func sorted(set mapset.Set[string]) []string {
	out := set.ToSlice()
	slices.Sort(out)
	return out
}

func (c *Controller) changeSignal(id, aspect string) (string, error) {
	sig := c.state.signal(id)
	if sig == nil {
		return "", fmt.Errorf("%w: signal %q", ErrUnknownTarget, id)
	}
	switch aspect {
	case AspectRed:
		sig.Aspect = AspectRed
		c.refreshLocks()
		return fmt.Sprintf("Signal %s set to red", id), nil
	case AspectYellow, AspectGreen:
	default:
		return "", fmt.Errorf("%w: aspect %q", ErrInvalidValue, aspect)
	}

	if c.state.EmergencySystems.Active {
		return "", fmt.Errorf("%w: signal %s cannot clear", ErrEmergencyActive, id)
	}
	occupied := c.occupied()
	if occupied.Contains(sig.Protects) {
		return "", fmt.Errorf("%w: track circuit %s ahead of signal %s is occupied", ErrInterlock, sig.Protects, id)
	}
	for _, pid := range sig.Points {
		if p := c.state.point(pid); p != nil && occupied.Contains(p.Circuit) {
			return "", fmt.Errorf("%w: points %s cannot be locked while %s is occupied", ErrInterlock, pid, p.Circuit)
		}
	}
	for _, lid := range sig.Crossings {
		if lc := c.state.crossing(lid); lc != nil && lc.Barriers != BarrierLowered {
			return "", fmt.Errorf("%w: level crossing %s barriers are not lowered", ErrInterlock, lid)
		}
	}

	sig.Aspect = aspect
	c.refreshLocks()
	return fmt.Sprintf("Signal %s set to %s", id, aspect), nil
}

func (c *Controller) movePoint(id, position string) (string, error) {
	p := c.state.point(id)
	if p == nil {
		return "", fmt.Errorf("%w: points %q", ErrUnknownTarget, id)
	}
	if position != PointNormal && position != PointReverse {
		return "", fmt.Errorf("%w: position %q", ErrInvalidValue, position)
	}
	if p.Position == position {
		return fmt.Sprintf("Points %s already %s", id, position), nil
	}
	if p.Locked {
		return "", fmt.Errorf("%w: points %s are locked by a cleared signal", ErrInterlock, id)
	}
	if c.occupied().Contains(p.Circuit) {
		return "", fmt.Errorf("%w: points %s cannot move while %s is occupied", ErrInterlock, id, p.Circuit)
	}
	p.Position = position
	return fmt.Sprintf("Points %s moved to %s", id, position), nil
}

func (c *Controller) controlDoors(id, cmd string) (string, error) {
	pl := c.state.platform(id)
	if pl == nil {
		return "", fmt.Errorf("%w: platform %q", ErrUnknownTarget, id)
	}
	switch cmd {
	case "open":
		if pl.TrainID == "" {
			return "", fmt.Errorf("%w: no train at platform %s", ErrInterlock, pl.Name)
		}
		t := c.state.train(pl.TrainID)
		if t == nil || t.Status == TrainRunning {
			return "", fmt.Errorf("%w: train at platform %s is not stopped", ErrInterlock, pl.Name)
		}
		pl.DoorsOpen = true
		t.DoorsOpen = true
		return fmt.Sprintf("Doors opened at %s", pl.Name), nil
	case "close":
		pl.DoorsOpen = false
		if t := c.state.train(pl.TrainID); t != nil {
			t.DoorsOpen = false
		}
		return fmt.Sprintf("Doors closed at %s", pl.Name), nil
	default:
		return "", fmt.Errorf("%w: door command %q", ErrInvalidValue, cmd)
	}
}

func (c *Controller) controlCrossing(id, cmd string) (string, error) {
	lc := c.state.crossing(id)
	if lc == nil {
		return "", fmt.Errorf("%w: level crossing %q", ErrUnknownTarget, id)
	}
	switch cmd {
	case "lower":
		lc.Barriers = BarrierLowered
		return fmt.Sprintf("Level crossing %s barriers lowered", lc.Name), nil
	case "raise":
	default:
		return "", fmt.Errorf("%w: crossing command %q", ErrInvalidValue, cmd)
	}

	if c.state.EmergencySystems.Active {
		return "", fmt.Errorf("%w: level crossing %s must stay lowered", ErrEmergencyActive, lc.Name)
	}
	approach := mapset.NewThreadUnsafeSet(lc.Approach...)
	if busy := approach.Intersect(c.occupied()); !busy.IsEmpty() {
		return "", fmt.Errorf("%w: approach to %s is occupied (%v)", ErrInterlock, lc.Name, sorted(busy))
	}
	for _, sig := range c.state.Signals {
		if sig.Aspect == AspectRed {
			continue
		}
		if mapset.NewThreadUnsafeSet(sig.Crossings...).Contains(lc.ID) {
			return "", fmt.Errorf("%w: signal %s reads over %s", ErrInterlock, sig.ID, lc.Name)
		}
	}
	lc.Barriers = BarrierRaised
	return fmt.Sprintf("Level crossing %s barriers raised", lc.Name), nil
}

func (c *Controller) emergencyStop(actor, reason string) string {
	es := &c.state.EmergencySystems
	if es.Active {
		return "Emergency stop already active"
	}
	now := c.now()
	es.Active = true
	es.TriggeredBy = actor
	es.TriggeredAt = &now
	es.Reason = reason
	es.ResetBy = ""

	for i := range c.state.Signals {
		c.state.Signals[i].Aspect = AspectRed
	}
	c.refreshLocks()
	for i := range c.state.Trains {
		c.state.Trains[i].Status = TrainEmergency
		c.state.Trains[i].SpeedKmh = 0
	}
	for i := range c.state.LevelCrossings {
		c.state.LevelCrossings[i].Barriers = BarrierLowered
	}
	return "Emergency stop activated: all signals at red, all trains stopped"
}

func (c *Controller) resetEmergency(actor string) (string, error) {
	es := &c.state.EmergencySystems
	if !es.Active {
		return "", fmt.Errorf("%w: no emergency stop is active", ErrInterlock)
	}
	es.Active = false
	es.ResetBy = actor
	for i := range c.state.Trains {
		t := &c.state.Trains[i]
		if t.Status != TrainEmergency {
			continue
		}
		t.Status = TrainHeld
		if c.platformAt(t.Circuit) != nil {
			t.Status = TrainStopped
		}
	}
	return "Emergency stop reset", nil
}

func (c *Controller) platformAt(circuit string) *Platform {
	for i := range c.state.Platforms {
		if c.state.Platforms[i].Circuit == circuit {
			return &c.state.Platforms[i]
		}
	}
	return nil
}

func (c *Controller) signalAt(approach string) *Signal {
	for i := range c.state.Signals {
		if c.state.Signals[i].Approach == approach {
			return &c.state.Signals[i]
		}
	}
	return nil
}

// route returns the circuit a train leaving from enters, honouring points.
func (c *Controller) route(from string) string {
	for _, p := range c.state.Points {
		if p.Circuit != from {
			continue
		}
		if p.Position == PointReverse {
			return p.Reverse
		}
		return p.Normal
	}
	if tc := c.state.circuit(from); tc != nil {
		return tc.Next
	}
	return ""
}

func (c *Controller) Name() string            { return "rail-sim" }
func (c *Controller) Interval() time.Duration { return c.interval }

// Collect advances the simulation by one tick.
func (c *Controller) Collect(_ context.Context) error {
	c.Tick()
	return nil
}

// Tick moves every train that may proceed by one circuit. Nothing moves
// while the emergency latch is set.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Tick++
	if c.state.EmergencySystems.Active {
		return
	}

	for i := range c.state.Trains {
		t := &c.state.Trains[i]

		if pl := c.platformAt(t.Circuit); pl != nil && pl.TrainID == t.ID {
			if t.DwellTicks > 0 {
				t.DwellTicks--
				t.Status = TrainStopped
				t.SpeedKmh = 0
				continue
			}
			if t.DoorsOpen {
				t.Status = TrainStopped
				continue
			}
		}

		next := c.route(t.Circuit)
		sig := c.signalAt(t.Circuit)
		if next == "" || (sig != nil && sig.Aspect == AspectRed) || c.occupied().Contains(next) {
			if t.Status == TrainRunning {
				t.Status = TrainHeld
			}
			t.SpeedKmh = 0
			continue
		}

		c.advance(t, next, sig)
	}
}

func (c *Controller) advance(t *Train, next string, passed *Signal) {
	if pl := c.platformAt(t.Circuit); pl != nil && pl.TrainID == t.ID {
		pl.TrainID = ""
		pl.DoorsOpen = false
	}
	if old := c.state.circuit(t.Circuit); old != nil {
		old.Occupied = false
		old.TrainID = ""
	}
	if tc := c.state.circuit(next); tc != nil {
		tc.Occupied = true
		tc.TrainID = t.ID
	}
	t.Circuit = next
	t.Status = TrainRunning
	t.SpeedKmh = speedUnsigned

	if passed != nil {
		if passed.Aspect == AspectYellow {
			t.SpeedKmh = speedYellow
		} else {
			t.SpeedKmh = speedGreen
		}
		// Train-operated replacement: the signal returns to red behind the train.
		passed.Aspect = AspectRed
		c.refreshLocks()
	}

	if pl := c.platformAt(next); pl != nil {
		pl.TrainID = t.ID
		t.Status = TrainStopped
		t.SpeedKmh = 0
		t.DwellTicks = DefaultDwellTicks
	}
	slog.Debug("train advanced", "train", t.ID, "circuit", next, "status", t.Status)
}
