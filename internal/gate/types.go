package gate

// #region veto-type
// VetoType enumerates hard veto categories.
type VetoType string

const (
	VetoNegativeMagnitude VetoType = "negative_magnitude"
	VetoInvalidSigma      VetoType = "invalid_sigma"
	VetoNonFinite         VetoType = "non_finite"
	VetoCenterNorm        VetoType = "center_norm"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected hard veto condition.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region gate-config
// GateConfig holds thresholds for dent admission.
type GateConfig struct {
	MinMagnitude  float64 // proposals at or below this are skipped, not vetoed
	MaxCenterNorm float64 // hard cap on the L2 norm of a dent center (0 = disabled)
}

// DefaultGateConfig admits any strictly positive, finite dent.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MinMagnitude:  0,
		MaxCenterNorm: 0,
	}
}

// #endregion gate-config

// #region dent-proposal
// DentProposal is a dent the agent wants to record.
type DentProposal struct {
	Center    []float32
	Magnitude float64
	Sigma     float64
}

// #endregion dent-proposal

// #region gate-decision
// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Action      string // "commit" | "skip" | "reject"
	Reason      string
	Vetoed      bool
	VetoSignals []VetoSignal // non-empty if vetoed
}

// #endregion gate-decision
