package state

import (
	"fmt"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/agent"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/lspace"
)

// #region capture
// Capture builds an uncommitted snapshot of a after its most recent step.
func Capture(a *agent.Agent, parentID, runID string) (Snapshot, error) {
	latent, ok := a.State()
	if !ok {
		return Snapshot{}, fmt.Errorf("capture: %w", agent.ErrNotReset)
	}
	return NewSnapshot(parentID, runID, a.StepCount(), latent, a.Stack().Alphas(), a.Residue().Dents()), nil
}

// #endregion capture

// #region apply
// Apply loads snap into a: latent state, step counter, gains, and dents.
// Shapes and gains are checked first so a bad snapshot leaves a untouched.
func (snap Snapshot) Apply(a *agent.Agent) error {
	stack := a.Stack()
	for _, d := range lspace.Depths {
		if len(snap.Latent.Depth(d)) != stack.Dim(d) {
			return fmt.Errorf("restore latent %s: %w", d, lspace.ErrDimensionMismatch)
		}
	}
	if snap.Step < 0 {
		return fmt.Errorf("restore step %d: %w", snap.Step, agent.ErrInvalidConfig)
	}
	for d, v := range snap.Alphas {
		if v < 0 || v > 2 {
			return fmt.Errorf("restore alphas: %s gain %v out of range", d, v)
		}
	}
	if err := a.Residue().Replace(snap.Dents); err != nil {
		return fmt.Errorf("restore residue: %w", err)
	}
	if err := a.Restore(snap.Latent, snap.Step); err != nil {
		return fmt.Errorf("restore latent: %w", err)
	}
	for d, v := range snap.Alphas {
		stack.SetAlpha(d, v)
	}
	return nil
}

// #endregion apply
