package planner

import (
	"errors"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/env"
)

// #region errors
var (
	ErrEmptyActionSpace   = errors.New("environment has an empty action space")
	ErrUnsupportedHorizon = errors.New("only horizon 1 lookahead is supported")
	ErrInvalidConfig      = errors.New("invalid planner config")
)

// #endregion errors

// #region config
// Config holds the cost weights. Total cost is
// reality + LambdaEthics·ethical + RhoResidue·residue.
type Config struct {
	LambdaEthics float64
	RhoResidue   float64
	Horizon      int
}

// DefaultConfig returns the reference weights.
func DefaultConfig() Config {
	return Config{
		LambdaEthics: 1.5,
		RhoResidue:   2.0,
		Horizon:      1,
	}
}

// #endregion config

// #region breakdown
// Breakdown is the scored cost of one candidate action.
type Breakdown struct {
	Total   float64 `json:"total"`
	Reality float64 `json:"reality"`
	Ethical float64 `json:"ethical"`
	Residue float64 `json:"residue"`
}

// Candidate pairs an action with its rollout score.
type Candidate struct {
	Action    env.Action `json:"action"`
	Breakdown Breakdown  `json:"breakdown"`
	Done      bool       `json:"done"`
}

// #endregion breakdown
