package lspace

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gorgonia.org/tensor"
)

const weightScale = 0.1

// #region stack
// Stack is a four-depth latent hierarchy. Each depth is updated as
//
//	h   = tanh(W · [bottom-up ; top-down])
//	new = (1 - 0.5α)·prev + 0.5α·h
//
// where top-down is the previous value of the next depth up.
type Stack struct {
	sensorDim int
	dims      map[Depth]int
	alphas    map[Depth]float64
	weights   map[Depth]*tensor.Dense
}

// NewStack derives the weight matrices from cfg.Seed. Weights are never
// modified after construction.
func NewStack(cfg Config) (*Stack, error) {
	if cfg.SensorDim <= 0 {
		return nil, fmt.Errorf("sensor dim %d: %w", cfg.SensorDim, ErrInvalidConfig)
	}
	s := &Stack{
		sensorDim: cfg.SensorDim,
		dims:      make(map[Depth]int, len(Depths)),
		alphas:    make(map[Depth]float64, len(Depths)),
		weights:   make(map[Depth]*tensor.Dense, len(Depths)),
	}
	for _, d := range Depths {
		n, ok := cfg.Dims[d]
		if !ok || n <= 0 {
			return nil, fmt.Errorf("depth %s dim %d: %w", d, n, ErrInvalidConfig)
		}
		s.dims[d] = n
		s.alphas[d] = 1.0
		if a, ok := cfg.Alphas[d]; ok {
			s.alphas[d] = a
		}
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	for _, d := range Depths {
		rows, cols := s.dims[d], s.inputDim(d)
		backing := make([]float32, rows*cols)
		for i := range backing {
			backing[i] = float32(rng.NormFloat64() * weightScale)
		}
		s.weights[d] = tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing))
	}
	return s, nil
}

// #endregion stack

// #region initial-state
// InitialState returns all-zero vectors of the configured sizes.
func (s *Stack) InitialState() LatentState {
	return LatentState{
		Gamma: make([]float32, s.dims[Gamma]),
		Beta:  make([]float32, s.dims[Beta]),
		Theta: make([]float32, s.dims[Theta]),
		Delta: make([]float32, s.dims[Delta]),
	}
}

// #endregion initial-state

// #region update
// Update computes the next state from a sensor vector, bottom-up. Top-down
// context always comes from prev, so it lags the consuming depth by one call.
func (s *Stack) Update(x []float32, prev LatentState) (LatentState, error) {
	if len(x) != s.sensorDim {
		return LatentState{}, fmt.Errorf("sensor length %d, want %d: %w", len(x), s.sensorDim, ErrDimensionMismatch)
	}
	for _, d := range Depths {
		if got := len(prev.Depth(d)); got != s.dims[d] {
			return LatentState{}, fmt.Errorf("previous %s length %d, want %d: %w", d, got, s.dims[d], ErrDimensionMismatch)
		}
	}

	gamma, err := s.step(Gamma, concat(x, prev.Beta), prev.Gamma)
	if err != nil {
		return LatentState{}, err
	}
	beta, err := s.step(Beta, concat(gamma, prev.Theta), prev.Beta)
	if err != nil {
		return LatentState{}, err
	}
	theta, err := s.step(Theta, concat(beta, prev.Delta), prev.Theta)
	if err != nil {
		return LatentState{}, err
	}
	delta, err := s.step(Delta, concat(theta, nil), prev.Delta)
	if err != nil {
		return LatentState{}, err
	}

	return LatentState{Gamma: gamma, Beta: beta, Theta: theta, Delta: delta}, nil
}

// step applies one depth's transform and the precision-gated blend.
func (s *Stack) step(d Depth, in, prev []float32) ([]float32, error) {
	v := tensor.New(tensor.WithShape(len(in)), tensor.WithBacking(in))
	out, err := tensor.MatVecMul(s.weights[d], v)
	if err != nil {
		return nil, fmt.Errorf("%s transform: %w", d, err)
	}
	raw, ok := out.Data().([]float32)
	if !ok || len(raw) != len(prev) {
		return nil, fmt.Errorf("%s transform produced %d values, want %d: %w", d, len(raw), len(prev), ErrDimensionMismatch)
	}

	alpha := s.alphas[d]
	keep, take := 1.0-0.5*alpha, 0.5*alpha
	next := make([]float32, len(prev))
	for i := range next {
		h := math.Tanh(float64(raw[i]))
		next[i] = float32(keep*float64(prev[i]) + take*h)
	}
	return next, nil
}

// #endregion update

// #region precision
// Alpha returns the precision gain of d.
func (s *Stack) Alpha(d Depth) float64 {
	return s.alphas[d]
}

// SetAlpha replaces the precision gain of d. Values outside [0, 2] are
// accepted.
func (s *Stack) SetAlpha(d Depth, alpha float64) {
	if _, ok := s.dims[d]; !ok {
		return
	}
	s.alphas[d] = alpha
}

// Alphas returns a copy of every depth's gain.
func (s *Stack) Alphas() map[Depth]float64 {
	out := make(map[Depth]float64, len(s.alphas))
	for d, a := range s.alphas {
		out[d] = a
	}
	return out
}

// #endregion precision

// #region shape
// SensorDim is the expected sensor vector length.
func (s *Stack) SensorDim() int { return s.sensorDim }

// Dim returns the vector length of d.
func (s *Stack) Dim(d Depth) int { return s.dims[d] }

func (s *Stack) inputDim(d Depth) int {
	switch d {
	case Gamma:
		return s.sensorDim + s.dims[Beta]
	case Beta:
		return s.dims[Gamma] + s.dims[Theta]
	case Theta:
		return s.dims[Beta] + s.dims[Delta]
	default:
		return s.dims[Theta]
	}
}

// #endregion shape

// #region helpers
func concat(bottomUp, topDown []float32) []float32 {
	out := make([]float32, 0, len(bottomUp)+len(topDown))
	out = append(out, bottomUp...)
	return append(out, topDown...)
}

// #endregion helpers
