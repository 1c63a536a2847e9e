package agent

import (
	"fmt"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/coupling"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/env"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/gate"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/lspace"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/planner"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/residue"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/sleep"
)

// #region agent
// Agent runs the online loop: sense, update latent state, plan, act, record
// residue, and occasionally consolidate.
type Agent struct {
	stack    *lspace.Stack
	planner  *planner.Planner
	field    *residue.Field
	coupling coupling.Model
	sleep    *sleep.Subsystem
	gate     *gate.Gate
	config   Config

	state *lspace.LatentState // nil until Reset
	t     int
}

// Option customises an Agent.
type Option func(*Agent)

// WithSleep enables offline consolidation.
func WithSleep(s *sleep.Subsystem) Option {
	return func(a *Agent) { a.sleep = s }
}

// WithGate replaces the default dent admission gate.
func WithGate(g *gate.Gate) Option {
	return func(a *Agent) { a.gate = g }
}

// WithConfig replaces the default agent config.
func WithConfig(c Config) Option {
	return func(a *Agent) { a.config = c }
}

// New wires the components. The residue field must live in beta space.
func New(stack *lspace.Stack, pl *planner.Planner, field *residue.Field, cm coupling.Model, opts ...Option) (*Agent, error) {
	if stack == nil || pl == nil || field == nil {
		return nil, fmt.Errorf("missing component: %w", ErrInvalidConfig)
	}
	a := &Agent{
		stack:    stack,
		planner:  pl,
		field:    field,
		coupling: cm,
		gate:     gate.NewGate(gate.DefaultGateConfig()),
		config:   DefaultConfig(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if field.Dim() != stack.Dim(lspace.Beta) {
		return nil, fmt.Errorf("residue dim %d, beta dim %d: %w", field.Dim(), stack.Dim(lspace.Beta), ErrInvalidConfig)
	}
	if !(a.config.DentSigma > 0) {
		return nil, fmt.Errorf("dent sigma %v: %w", a.config.DentSigma, ErrInvalidConfig)
	}
	return a, nil
}

// #endregion agent

// #region reset
// Reset zeroes the latent state and the step counter. Residue is kept.
func (a *Agent) Reset() {
	s := a.stack.InitialState()
	a.state = &s
	a.t = 0
}

// Restore resumes from a saved latent state and step count.
func (a *Agent) Restore(s lspace.LatentState, step int) error {
	for _, d := range lspace.Depths {
		if len(s.Depth(d)) != a.stack.Dim(d) {
			return fmt.Errorf("restore %s length %d, want %d: %w", d, len(s.Depth(d)), a.stack.Dim(d), lspace.ErrDimensionMismatch)
		}
	}
	if step < 0 {
		return fmt.Errorf("restore step %d: %w", step, ErrInvalidConfig)
	}
	c := s.Clone()
	a.state = &c
	a.t = step
	return nil
}

// #endregion reset

// #region step
// Step advances the live environment by exactly one transition.
func (a *Agent) Step(e env.Environment) (StepResult, error) {
	if a.state == nil {
		return StepResult{}, ErrNotReset
	}
	a.t++

	// 1. Sense
	x := e.Encode(e.Observe())

	// 2. Latent update
	next, err := a.stack.Update(x, *a.state)
	if err != nil {
		return StepResult{}, fmt.Errorf("step %d: latent update: %w", a.t, err)
	}
	a.state = &next

	// 3. Plan on clones
	action, parts, err := a.planner.ChooseAction(e, next, a.field, a.coupling)
	if err != nil {
		return StepResult{}, fmt.Errorf("step %d: %w", a.t, err)
	}

	// 4. Act on the live environment
	tr, err := e.Step(action)
	if err != nil {
		return StepResult{}, fmt.Errorf("step %d: act: %w", a.t, err)
	}
	ethical := a.coupling.EthicalCost(tr.Harm)

	result := StepResult{
		Observation: tr.Observation,
		RealityCost: tr.RealityCost,
		EthicalCost: ethical,
		Done:        tr.Done,
		Info: StepInfo{
			Action:      action,
			Score:       parts.Total,
			RealityCost: parts.Reality,
			EthicalCost: parts.Ethical,
			ResidueCost: parts.Residue,
		},
	}

	// 5. Residue at the post-update beta coordinate
	if ethical > 0 {
		added, err := a.recordDent(next.Beta, ethical)
		if err != nil {
			return result, fmt.Errorf("step %d: %w", a.t, err)
		}
		result.DentAdded = added
	}

	// 6. Offline consolidation
	if a.sleep != nil && a.sleep.ShouldSleep(a.t) {
		report, err := a.sleep.RunOffline(a.field, a.stack)
		if err != nil {
			return result, fmt.Errorf("step %d: sleep: %w", a.t, err)
		}
		result.Sleep = &report
	}

	return result, nil
}

func (a *Agent) recordDent(center []float32, magnitude float64) (bool, error) {
	decision := a.gate.Evaluate(gate.DentProposal{
		Center:    center,
		Magnitude: magnitude,
		Sigma:     a.config.DentSigma,
	})
	switch decision.Action {
	case "commit":
		if err := a.field.AddDent(center, magnitude, a.config.DentSigma); err != nil {
			return false, err
		}
		return true, nil
	case "skip":
		return false, nil
	default:
		return false, fmt.Errorf("%s: %w", decision.Reason, ErrDentRejected)
	}
}

// #endregion step

// #region accessors
// State returns a copy of the latent state; ok is false before Reset.
func (a *Agent) State() (lspace.LatentState, bool) {
	if a.state == nil {
		return lspace.LatentState{}, false
	}
	return a.state.Clone(), true
}

// StepCount is the number of steps since the last Reset.
func (a *Agent) StepCount() int { return a.t }

// Residue exposes the residue field for inspection.
func (a *Agent) Residue() *residue.Field { return a.field }

// Stack exposes the latent stack for inspection.
func (a *Agent) Stack() *lspace.Stack { return a.stack }

// Planner exposes the planner, e.g. to score candidates without acting.
func (a *Agent) Planner() *planner.Planner { return a.planner }

// Coupling returns the coupling model.
func (a *Agent) Coupling() coupling.Model { return a.coupling }

// #endregion accessors
