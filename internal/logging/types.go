package logging

import "time"

// #region step-entry
// StepEntry is a single row in the step_log table.
type StepEntry struct {
	RunID       string
	Step        int
	Action      int
	Score       float64
	RealityCost float64
	EthicalCost float64 // planner's estimate for the chosen action
	ResidueCost float64
	LiveEthical float64 // what the live transition actually cost
	DentCount   int
	BetaAlpha   float64
	Slept       bool
	SleepJSON   string
	CreatedAt   time.Time
}

// #endregion step-entry

// #region sleep-record
// SleepRecord is the consolidation summary serialized into
// step_log.sleep_json.
type SleepRecord struct {
	DentsBefore     int     `json:"dents_before"`
	DentsAfter      int     `json:"dents_after"`
	MagnitudeBefore float64 `json:"magnitude_before"`
	MagnitudeAfter  float64 `json:"magnitude_after"`
	BetaAlphaBefore float64 `json:"beta_alpha_before"`
	BetaAlphaAfter  float64 `json:"beta_alpha_after"`
}

// #endregion sleep-record
