package agent

import (
	"errors"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/env"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/residue"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/sleep"
)

// #region errors
var (
	ErrNotReset      = errors.New("agent: Reset must be called before Step")
	ErrInvalidConfig = errors.New("agent: invalid configuration")
	ErrDentRejected  = errors.New("agent: dent rejected by gate")
)

// #endregion errors

// #region config
// Config holds agent-level parameters.
type Config struct {
	DentSigma float64 // spread of dents recorded after a harmful step
}

// DefaultConfig returns the reference dent spread.
func DefaultConfig() Config {
	return Config{DentSigma: residue.DefaultSigma}
}

// #endregion config

// #region step-info
// StepInfo summarises the planner's view of the chosen action.
type StepInfo struct {
	Action      env.Action `json:"action"`
	Score       float64    `json:"score"`
	RealityCost float64    `json:"reality_cost"`
	EthicalCost float64    `json:"ethical_cost"`
	ResidueCost float64    `json:"residue_cost"`
}

// #endregion step-info

// #region step-result
// StepResult bundles everything returned by Step. RealityCost, EthicalCost
// and Done come from the live transition; Info carries the planner's scores.
type StepResult struct {
	Observation env.Observation
	RealityCost float64
	EthicalCost float64
	Done        bool
	Info        StepInfo

	DentAdded bool
	Sleep     *sleep.Report // nil unless consolidation ran this step
}

// #endregion step-result
