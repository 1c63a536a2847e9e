package lspace

import "errors"

// #region errors
var (
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrInvalidConfig     = errors.New("invalid lspace config")
)

// #endregion errors

// #region depth
// Depth names one layer of the stack.
type Depth string

const (
	Gamma Depth = "gamma"
	Beta  Depth = "beta"
	Theta Depth = "theta"
	Delta Depth = "delta"
)

// Depths lists the layers bottom to top.
var Depths = []Depth{Gamma, Beta, Theta, Delta}

// #endregion depth

// #region latent-state
// LatentState holds one vector per depth. Update never mutates a state in
// place; it returns a new one.
type LatentState struct {
	Gamma []float32 `json:"gamma"`
	Beta  []float32 `json:"beta"`
	Theta []float32 `json:"theta"`
	Delta []float32 `json:"delta"`
}

// Depth returns the vector for d, or nil for an unknown depth.
func (s LatentState) Depth(d Depth) []float32 {
	switch d {
	case Gamma:
		return s.Gamma
	case Beta:
		return s.Beta
	case Theta:
		return s.Theta
	case Delta:
		return s.Delta
	}
	return nil
}

// Clone deep-copies every depth.
func (s LatentState) Clone() LatentState {
	return LatentState{
		Gamma: append([]float32(nil), s.Gamma...),
		Beta:  append([]float32(nil), s.Beta...),
		Theta: append([]float32(nil), s.Theta...),
		Delta: append([]float32(nil), s.Delta...),
	}
}

// #endregion latent-state

// #region config
// Config fixes the stack's shape. Alphas are precision gains; a depth
// without an entry uses 1.0.
type Config struct {
	SensorDim int
	Dims      map[Depth]int
	Alphas    map[Depth]float64
	Seed      uint64
}

// DefaultConfig returns the reference layout for a sensor of the given size.
func DefaultConfig(sensorDim int) Config {
	return Config{
		SensorDim: sensorDim,
		Dims: map[Depth]int{
			Gamma: 8,
			Beta:  16,
			Theta: 32,
			Delta: 32,
		},
		Alphas: map[Depth]float64{
			Gamma: 1.0,
			Beta:  1.0,
			Theta: 1.0,
			Delta: 1.0,
		},
	}
}

// #endregion config
