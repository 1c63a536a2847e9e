package gate

import (
	"fmt"
	"math"
)

// #region gate
// Gate decides whether a proposed dent may enter the residue field.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Evaluate checks hard vetoes first, then the magnitude threshold.
func (g *Gate) Evaluate(p DentProposal) GateDecision {
	var vetoes []VetoSignal

	// --- Hard veto pass ---

	// 1. Magnitude must be a finite, non-negative number
	if math.IsNaN(p.Magnitude) || math.IsInf(p.Magnitude, 0) {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoNonFinite,
			Reason: fmt.Sprintf("magnitude %v is not finite", p.Magnitude),
		})
	} else if p.Magnitude < 0 {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoNegativeMagnitude,
			Reason: fmt.Sprintf("magnitude %.4f is negative", p.Magnitude),
		})
	}

	// 2. Sigma must be positive
	if !(p.Sigma > 0) || math.IsInf(p.Sigma, 0) {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoInvalidSigma,
			Reason: fmt.Sprintf("sigma %v must be positive and finite", p.Sigma),
		})
	}

	// 3. Center must be finite and, optionally, bounded
	norm, finite := centerNorm(p.Center)
	if !finite {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoNonFinite,
			Reason: "center has non-finite components",
		})
	} else if g.config.MaxCenterNorm > 0 && norm > g.config.MaxCenterNorm {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoCenterNorm,
			Reason: fmt.Sprintf("center norm %.4f exceeds cap %.4f", norm, g.config.MaxCenterNorm),
		})
	}

	if len(vetoes) > 0 {
		return GateDecision{
			Action:      "reject",
			Reason:      fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Vetoed:      true,
			VetoSignals: vetoes,
		}
	}

	// --- Threshold ---
	if p.Magnitude <= g.config.MinMagnitude {
		return GateDecision{
			Action: "skip",
			Reason: fmt.Sprintf("magnitude %.4f at or below %.4f", p.Magnitude, g.config.MinMagnitude),
		}
	}

	return GateDecision{
		Action: "commit",
		Reason: fmt.Sprintf("passed gate: magnitude=%.4f", p.Magnitude),
	}
}

// #endregion gate

// #region helpers
// centerNorm computes the L2 norm and reports whether every component is finite.
func centerNorm(v []float32) (float64, bool) {
	var sum float64
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		sum += f * f
	}
	return math.Sqrt(sum), true
}

// #endregion helpers
