package env

import (
	"fmt"
	"math/rand/v2"
)

// #region actions
const (
	ActionUp Action = iota
	ActionDown
	ActionLeft
	ActionRight
	ActionStay
)

// SensorDim is the length of GridWorld.Encode output:
// agent, other and food coordinates plus battery.
const SensorDim = 7

var moves = map[Action]Point{
	ActionUp:    {0, 1},
	ActionDown:  {0, -1},
	ActionLeft:  {-1, 0},
	ActionRight: {1, 0},
	ActionStay:  {0, 0},
}

var actionSpace = []Action{ActionUp, ActionDown, ActionLeft, ActionRight, ActionStay}

// ActionName returns a short label for logs.
func ActionName(a Action) string {
	switch a {
	case ActionUp:
		return "up"
	case ActionDown:
		return "down"
	case ActionLeft:
		return "left"
	case ActionRight:
		return "right"
	case ActionStay:
		return "stay"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// #endregion actions

// #region types
// Point is a grid cell.
type Point struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

type worldState struct {
	Agent   Point
	Other   Point
	Battery float64
	T       int
}

// GridWorld is a small square world with static hazards, a food cell and a
// second agent that wanders at random.
type GridWorld struct {
	size       int
	maxSteps   int
	hazards    []Point
	food       Point
	agentStart Point
	otherStart Point

	src *rand.PCG
	rng *rand.Rand

	state worldState
}

// Option customises a GridWorld at construction.
type Option func(*GridWorld)

// WithHazards replaces the default hazard cells.
func WithHazards(hazards ...Point) Option {
	return func(g *GridWorld) {
		g.hazards = append([]Point(nil), hazards...)
	}
}

// WithAgentStart sets the acting agent's start cell.
func WithAgentStart(p Point) Option {
	return func(g *GridWorld) { g.agentStart = p }
}

// WithOtherStart sets the other agent's start cell.
func WithOtherStart(p Point) Option {
	return func(g *GridWorld) { g.otherStart = p }
}

// #endregion types

// #region constructor
// NewGridWorld builds a world of size×size cells that ends after maxSteps
// transitions or when the battery runs out.
func NewGridWorld(size, maxSteps int, seed uint64, opts ...Option) (*GridWorld, error) {
	if size <= 0 {
		return nil, fmt.Errorf("size %d: %w", size, ErrInvalidWorld)
	}
	if maxSteps <= 0 {
		return nil, fmt.Errorf("max steps %d: %w", maxSteps, ErrInvalidWorld)
	}
	g := &GridWorld{
		size:       size,
		maxSteps:   maxSteps,
		hazards:    []Point{{2, 2}, {2, 3}, {3, 2}},
		food:       Point{size - 1, size - 1},
		agentStart: Point{0, 0},
		otherStart: Point{size / 2, size / 2},
	}
	for _, opt := range opts {
		opt(g)
	}
	for _, p := range append([]Point{g.agentStart, g.otherStart}, g.hazards...) {
		if !g.inBounds(p) {
			return nil, fmt.Errorf("cell (%d,%d) outside %dx%d grid: %w", p.X, p.Y, size, size, ErrInvalidWorld)
		}
	}
	g.src = rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	g.rng = rand.New(g.src)
	g.Reset()
	return g, nil
}

// #endregion constructor

// #region lifecycle
// Reset returns agents and battery to their start values. The random
// stream is not rewound.
func (g *GridWorld) Reset() Observation {
	g.state = worldState{
		Agent:   g.agentStart,
		Other:   g.otherStart,
		Battery: 1.0,
	}
	return g.Observe()
}

// Clone returns an independent copy. The random source is copied by value,
// so the clone replays the same other-agent moves as the original without
// advancing the original's stream.
func (g *GridWorld) Clone() Environment {
	c := *g
	c.hazards = append([]Point(nil), g.hazards...)
	src := *g.src
	c.src = &src
	c.rng = rand.New(c.src)
	return &c
}

// #endregion lifecycle

// #region sensing
// Observe reads normalised coordinates and battery level.
func (g *GridWorld) Observe() Observation {
	s := float32(g.size)
	vision := []float32{
		float32(g.state.Agent.X) / s, float32(g.state.Agent.Y) / s,
		float32(g.state.Other.X) / s, float32(g.state.Other.Y) / s,
		float32(g.food.X) / s, float32(g.food.Y) / s,
	}
	return Observation{
		Vision: vision,
		Body:   []float32{float32(g.state.Battery)},
	}
}

// Encode flattens an observation into vision followed by body.
func (g *GridWorld) Encode(obs Observation) []float32 {
	out := make([]float32, 0, len(obs.Vision)+len(obs.Body))
	out = append(out, obs.Vision...)
	return append(out, obs.Body...)
}

// ActionSpace lists up, down, left, right, stay.
func (g *GridWorld) ActionSpace() []Action {
	return append([]Action(nil), actionSpace...)
}

// #endregion sensing

// #region step
// Step moves both agents and scores the result.
func (g *GridWorld) Step(a Action) (Transition, error) {
	move, ok := moves[a]
	if !ok {
		return Transition{}, fmt.Errorf("step %d: %w", int(a), ErrUnknownAction)
	}

	s := &g.state
	s.T++
	s.Battery -= 0.01

	s.Agent = g.clip(Point{s.Agent.X + move.X, s.Agent.Y + move.Y})
	otherMove := moves[actionSpace[g.rng.IntN(len(actionSpace))]]
	s.Other = g.clip(Point{s.Other.X + otherMove.X, s.Other.Y + otherMove.Y})

	var harm Harm
	for _, h := range g.hazards {
		if s.Agent == h {
			harm.Self = 1.0
			s.Battery -= 0.2
		}
		if s.Other == h {
			harm.Other = 1.0
		}
	}

	reality := 0.05 + (1.0-max(s.Battery, 0.0))*0.05
	return Transition{
		Observation: g.Observe(),
		RealityCost: reality,
		Harm:        harm,
		Done:        g.Done(),
	}, nil
}

// #endregion step

// #region accessors
func (g *GridWorld) Size() int        { return g.size }
func (g *GridWorld) Agent() Point     { return g.state.Agent }
func (g *GridWorld) Other() Point     { return g.state.Other }
func (g *GridWorld) Food() Point      { return g.food }
func (g *GridWorld) Battery() float64 { return g.state.Battery }
func (g *GridWorld) Tick() int        { return g.state.T }
func (g *GridWorld) MaxSteps() int    { return g.maxSteps }

// Done reports whether the episode has ended: out of time or out of battery.
func (g *GridWorld) Done() bool {
	return g.state.T >= g.maxSteps || g.state.Battery <= 0.0
}

// Hazards returns a copy of the hazard cells.
func (g *GridWorld) Hazards() []Point {
	return append([]Point(nil), g.hazards...)
}

// IsHazard reports whether p is a hazard cell.
func (g *GridWorld) IsHazard(p Point) bool {
	for _, h := range g.hazards {
		if h == p {
			return true
		}
	}
	return false
}

// #endregion accessors

// #region helpers
func (g *GridWorld) inBounds(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < g.size && p.Y < g.size
}

func (g *GridWorld) clip(p Point) Point {
	return Point{X: clampInt(p.X, 0, g.size-1), Y: clampInt(p.Y, 0, g.size-1)}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// #endregion helpers
