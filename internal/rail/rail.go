// Package rail simulates a small signalled railway for the SCADA HMI. It
// holds the layout state, applies operator actions under interlocking rules
// and advances trains on a fixed tick.
package rail

import "time"

// Signal aspects.
const (
	AspectRed    = "red"
	AspectYellow = "yellow"
	AspectGreen  = "green"
)

// Point positions.
const (
	PointNormal  = "normal"
	PointReverse = "reverse"
)

// Level crossing barrier states. Raised barriers leave the road open.
const (
	BarrierRaised  = "raised"
	BarrierLowered = "lowered"
)

// Train statuses.
const (
	TrainRunning   = "running"
	TrainStopped   = "stopped"
	TrainHeld      = "held"
	TrainEmergency = "emergency"
)

// TrackCircuit is a section of track whose occupancy is detected.
type TrackCircuit struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Occupied bool   `json:"occupied"`
	TrainID  string `json:"train_id,omitempty"`
	// Next is the circuit entered from this one, unless a point on this
	// circuit diverts the route.
	Next string `json:"next,omitempty"`
}

// Signal protects the entry into a track circuit.
type Signal struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Aspect   string `json:"aspect"`
	Approach string `json:"approach"` // circuit where trains wait at the signal
	Protects string `json:"protects"` // circuit entered when passing the signal
	// Points are locked while the signal shows a proceed aspect.
	Points []string `json:"points,omitempty"`
	// Crossings must be lowered before the signal may clear.
	Crossings []string `json:"crossings,omitempty"`
}

// Point is a set of switches on a circuit choosing between two routes.
type Point struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Circuit  string `json:"circuit"`
	Position string `json:"position"`
	Locked   bool   `json:"locked"`
	Normal   string `json:"normal_route"`
	Reverse  string `json:"reverse_route"`
}

// Train is a train running on the layout.
type Train struct {
	ID          string `json:"id"`
	Headcode    string `json:"headcode"`
	Circuit     string `json:"circuit"`
	Status      string `json:"status"`
	SpeedKmh    int    `json:"speed_kmh"`
	DoorsOpen   bool   `json:"doors_open"`
	Destination string `json:"destination"`
	// DwellTicks counts down while the train stands at a platform.
	DwellTicks int `json:"dwell_ticks"`
}

// Platform is a station platform on a circuit.
type Platform struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Circuit   string `json:"circuit"`
	DoorsOpen bool   `json:"doors_open"`
	TrainID   string `json:"train_id,omitempty"`
}

// LevelCrossing is a road crossing with barriers.
type LevelCrossing struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Circuit  string `json:"circuit"`
	Barriers string `json:"barriers"`
	// Approach circuits must be clear before the barriers can be raised.
	Approach []string `json:"approach"`
}

// EmergencySystems is the emergency stop latch.
type EmergencySystems struct {
	Active      bool       `json:"active"`
	TriggeredBy string     `json:"triggered_by,omitempty"`
	TriggeredAt *time.Time `json:"triggered_at,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	ResetBy     string     `json:"reset_by,omitempty"`
}

// State is the full layout as served to the HMI.
type State struct {
	TrackCircuits    []TrackCircuit   `json:"track_circuits"`
	Signals          []Signal         `json:"signals"`
	Points           []Point          `json:"points"`
	Trains           []Train          `json:"trains"`
	Platforms        []Platform       `json:"platforms"`
	LevelCrossings   []LevelCrossing  `json:"level_crossings"`
	EmergencySystems EmergencySystems `json:"emergency_systems"`
	Tick             int64            `json:"tick"`
}

// DefaultDwellTicks is how long a train stands at a platform.
const DefaultDwellTicks = 3

// DefaultLayout returns the demonstration layout: a circular main line with
// two stations, a passing loop and one level crossing.
//
//	TC101 -S1-> TC102 [Central] -S2-> TC103 (P1) --normal--> TC104 -S3-> TC105 [LC1] -> TC106 [Riverside] -S4-> TC101
//	                                        \--reverse--> TC201 (loop) --> TC104
func DefaultLayout() State {
	s := State{
		TrackCircuits: []TrackCircuit{
			{ID: "TC101", Name: "Up Approach", Next: "TC102"},
			{ID: "TC102", Name: "Central Platform", Next: "TC103"},
			{ID: "TC103", Name: "Central Junction"},
			{ID: "TC104", Name: "Mill Lane Approach", Next: "TC105"},
			{ID: "TC105", Name: "Mill Lane Crossing", Next: "TC106"},
			{ID: "TC106", Name: "Riverside Platform", Next: "TC101"},
			{ID: "TC201", Name: "Central Loop", Next: "TC104"},
		},
		Signals: []Signal{
			{ID: "S1", Name: "Central Home", Aspect: AspectRed, Approach: "TC101", Protects: "TC102"},
			{ID: "S2", Name: "Central Starter", Aspect: AspectRed, Approach: "TC102", Protects: "TC103", Points: []string{"P1"}},
			{ID: "S3", Name: "Mill Lane Protecting", Aspect: AspectRed, Approach: "TC104", Protects: "TC105", Crossings: []string{"LC1"}},
			{ID: "S4", Name: "Riverside Starter", Aspect: AspectRed, Approach: "TC106", Protects: "TC101"},
		},
		Points: []Point{
			{ID: "P1", Name: "Central Loop Points", Circuit: "TC103", Position: PointNormal, Normal: "TC104", Reverse: "TC201"},
		},
		Trains: []Train{
			{ID: "T1", Headcode: "1A01", Circuit: "TC101", Status: TrainHeld, Destination: "Riverside"},
			{ID: "T2", Headcode: "2B14", Circuit: "TC106", Status: TrainStopped, Destination: "Central", DwellTicks: DefaultDwellTicks},
		},
		Platforms: []Platform{
			{ID: "PL1", Name: "Central", Circuit: "TC102"},
			{ID: "PL2", Name: "Riverside", Circuit: "TC106", TrainID: "T2"},
		},
		LevelCrossings: []LevelCrossing{
			{ID: "LC1", Name: "Mill Lane", Circuit: "TC105", Barriers: BarrierRaised, Approach: []string{"TC104", "TC105"}},
		},
	}
	s.syncOccupancy()
	return s
}

// syncOccupancy derives circuit occupancy from train positions.
func (s *State) syncOccupancy() {
	for i := range s.TrackCircuits {
		s.TrackCircuits[i].Occupied = false
		s.TrackCircuits[i].TrainID = ""
	}
	for _, t := range s.Trains {
		if tc := s.circuit(t.Circuit); tc != nil {
			tc.Occupied = true
			tc.TrainID = t.ID
		}
	}
}

func (s *State) circuit(id string) *TrackCircuit {
	for i := range s.TrackCircuits {
		if s.TrackCircuits[i].ID == id {
			return &s.TrackCircuits[i]
		}
	}
	return nil
}

func (s *State) signal(id string) *Signal {
	for i := range s.Signals {
		if s.Signals[i].ID == id {
			return &s.Signals[i]
		}
	}
	return nil
}

func (s *State) point(id string) *Point {
	for i := range s.Points {
		if s.Points[i].ID == id {
			return &s.Points[i]
		}
	}
	return nil
}

func (s *State) platform(id string) *Platform {
	for i := range s.Platforms {
		if s.Platforms[i].ID == id {
			return &s.Platforms[i]
		}
	}
	return nil
}

func (s *State) crossing(id string) *LevelCrossing {
	for i := range s.LevelCrossings {
		if s.LevelCrossings[i].ID == id {
			return &s.LevelCrossings[i]
		}
	}
	return nil
}

func (s *State) train(id string) *Train {
	for i := range s.Trains {
		if s.Trains[i].ID == id {
			return &s.Trains[i]
		}
	}
	return nil
}

// clone returns a deep copy safe to hand to callers.
func (s *State) clone() State {
	out := *s
	out.TrackCircuits = append([]TrackCircuit(nil), s.TrackCircuits...)
	out.Signals = make([]Signal, len(s.Signals))
	for i, sig := range s.Signals {
		sig.Points = append([]string(nil), sig.Points...)
		sig.Crossings = append([]string(nil), sig.Crossings...)
		out.Signals[i] = sig
	}
	out.Points = append([]Point(nil), s.Points...)
	out.Trains = append([]Train(nil), s.Trains...)
	out.Platforms = append([]Platform(nil), s.Platforms...)
	out.LevelCrossings = make([]LevelCrossing, len(s.LevelCrossings))
	for i, lc := range s.LevelCrossings {
		lc.Approach = append([]string(nil), lc.Approach...)
		out.LevelCrossings[i] = lc
	}
	if s.EmergencySystems.TriggeredAt != nil {
		t := *s.EmergencySystems.TriggeredAt
		out.EmergencySystems.TriggeredAt = &t
	}
	return out
}
