package sleep

import "errors"

// ErrInvalidConfig is returned for a non-positive period or radius.
var ErrInvalidConfig = errors.New("invalid sleep config")

// #region config
// Config controls consolidation. A pass runs every EveryNSteps agent steps.
type Config struct {
	EveryNSteps int
	MergeRadius float64

	// Precision recalibration: when at least CrowdedDents remain after
	// merging, beta alpha is multiplied by AlphaDecay, never going below
	// AlphaFloor.
	CrowdedDents int
	AlphaDecay   float64
	AlphaFloor   float64
}

// DefaultConfig returns the reference schedule.
func DefaultConfig() Config {
	return Config{
		EveryNSteps:  25,
		MergeRadius:  1.0,
		CrowdedDents: 8,
		AlphaDecay:   0.95,
		AlphaFloor:   0.5,
	}
}

// #endregion config

// #region report
// Report summarises one offline pass.
type Report struct {
	DentsBefore     int     `json:"dents_before"`
	DentsAfter      int     `json:"dents_after"`
	MagnitudeBefore float64 `json:"magnitude_before"`
	MagnitudeAfter  float64 `json:"magnitude_after"`
	BetaAlphaBefore float64 `json:"beta_alpha_before"`
	BetaAlphaAfter  float64 `json:"beta_alpha_after"`
}

// Merged is the number of dents absorbed into groups.
func (r Report) Merged() int { return r.DentsBefore - r.DentsAfter }

// Recalibrated reports whether beta precision moved.
func (r Report) Recalibrated() bool { return r.BetaAlphaAfter != r.BetaAlphaBefore }

// #endregion report
