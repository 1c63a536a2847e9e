package eval

// #region eval-config
// EvalConfig holds thresholds for post-step validation.
type EvalConfig struct {
	MaxDepthNorm float64 // fail if any depth's L2 norm exceeds this
	MaxDents     int     // warn if the residue field grows past this
}

// DefaultEvalConfig returns defaults sized for tanh-bounded depths of at
// most 32 units.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MaxDepthNorm: 6.0,
		MaxDents:     64,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Pass  bool    `json:"pass"`
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of post-step validation.
type EvalResult struct {
	Passed  bool         `json:"passed"`
	Metrics []EvalMetric `json:"metrics"`
	Reason  string       `json:"reason"`
}

// #endregion eval-result
