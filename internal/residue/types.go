package residue

import "errors"

// #region errors
var (
	ErrInvalidSigma      = errors.New("dent sigma must be positive")
	ErrNegativeMagnitude = errors.New("dent magnitude must be non-negative")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrInvalidCenter     = errors.New("dent center must be finite")
)

// DefaultSigma is the spread used when the caller has no better value.
const DefaultSigma = 1.0

// #endregion errors

// #region dent
// Dent is one Gaussian bump of accumulated ethical cost.
type Dent struct {
	Center    []float32 `json:"center"`
	Magnitude float64   `json:"magnitude"`
	Sigma     float64   `json:"sigma"`
}

// #endregion dent
