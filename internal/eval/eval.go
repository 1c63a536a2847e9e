package eval

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/lspace"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/residue"
)

// #region eval-harness
// EvalHarness runs lightweight health checks on an agent after a step.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run checks that every depth is finite and bounded. The residue count is
// informational and never fails the run. A nil field counts as empty.
func (h *EvalHarness) Run(s lspace.LatentState, field *residue.Field) EvalResult {
	var metrics []EvalMetric
	passed := true
	var failReasons []string

	// 1. Per-depth norm bounds
	for _, d := range lspace.Depths {
		norm, finite := depthNorm(s.Depth(d))
		if !finite {
			passed = false
			failReasons = append(failReasons, fmt.Sprintf("%s has non-finite values", d))
			metrics = append(metrics, EvalMetric{Name: fmt.Sprintf("%s_finite", d), Value: 0, Pass: false})
			continue
		}
		ok := norm <= h.config.MaxDepthNorm
		metrics = append(metrics, EvalMetric{
			Name:  fmt.Sprintf("%s_norm", d),
			Value: norm,
			Pass:  ok,
		})
		if !ok {
			passed = false
			failReasons = append(failReasons, fmt.Sprintf("%s norm %.4f exceeds %.4f", d, norm, h.config.MaxDepthNorm))
		}
	}

	// 2. Residue crowding: informational only
	count := 0
	if field != nil {
		count = field.Count()
	}
	metrics = append(metrics, EvalMetric{
		Name:  "residue_dents",
		Value: float64(count),
		Pass:  count <= h.config.MaxDents,
	})

	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region helpers
// depthNorm computes the L2 norm of v; finite is false if any entry is
// NaN or infinite.
func depthNorm(v []float32) (norm float64, finite bool) {
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
