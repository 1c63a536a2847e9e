package planner

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/coupling"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/env"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/lspace"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/residue"
)

// #region planner
// Planner scores every action with a one-step rollout on a cloned
// environment and picks the cheapest.
type Planner struct {
	config Config
}

// NewPlanner validates the weights.
func NewPlanner(config Config) (*Planner, error) {
	if config.Horizon != 1 {
		return nil, fmt.Errorf("horizon %d: %w", config.Horizon, ErrUnsupportedHorizon)
	}
	if !finiteNonNegative(config.LambdaEthics) || !finiteNonNegative(config.RhoResidue) {
		return nil, fmt.Errorf("lambda_ethics=%v rho_residue=%v: %w", config.LambdaEthics, config.RhoResidue, ErrInvalidConfig)
	}
	return &Planner{config: config}, nil
}

// Config returns the planner's weights.
func (p *Planner) Config() Config { return p.config }

// #endregion planner

// #region evaluate
// Evaluate scores every action in enumeration order. The live environment is
// never stepped; each action gets its own clone.
func (p *Planner) Evaluate(e env.Environment, s lspace.LatentState, field *residue.Field, cm coupling.Model) ([]Candidate, error) {
	actions := e.ActionSpace()
	if len(actions) == 0 {
		return nil, ErrEmptyActionSpace
	}

	// Residue depends on where the agent is in latent space, not on the action.
	var residueCost float64
	if field != nil {
		var err error
		residueCost, err = field.Potential(s.Beta)
		if err != nil {
			return nil, fmt.Errorf("residue cost: %w", err)
		}
	}

	candidates := make([]Candidate, 0, len(actions))
	for _, a := range actions {
		tr, err := e.Clone().Step(a)
		if err != nil {
			return nil, fmt.Errorf("rollout %d: %w", int(a), err)
		}
		ethical := cm.EthicalCost(tr.Harm)
		total := tr.RealityCost + p.config.LambdaEthics*ethical + p.config.RhoResidue*residueCost
		candidates = append(candidates, Candidate{
			Action: a,
			Breakdown: Breakdown{
				Total:   total,
				Reality: tr.RealityCost,
				Ethical: ethical,
				Residue: residueCost,
			},
			Done: tr.Done,
		})
	}
	return candidates, nil
}

// #endregion evaluate

// #region choose-action
// ChooseAction returns the lowest-total candidate. Ties keep the earliest
// action.
func (p *Planner) ChooseAction(e env.Environment, s lspace.LatentState, field *residue.Field, cm coupling.Model) (env.Action, Breakdown, error) {
	candidates, err := p.Evaluate(e, s, field, cm)
	if err != nil {
		return 0, Breakdown{}, fmt.Errorf("choose action: %w", err)
	}
	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Breakdown.Total < candidates[best].Breakdown.Total {
			best = i
		}
	}
	return candidates[best].Action, candidates[best].Breakdown, nil
}

// #endregion choose-action

// #region helpers
func finiteNonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}

// #endregion helpers
