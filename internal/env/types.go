package env

import "errors"

// #region errors
var (
	ErrUnknownAction = errors.New("unknown action")
	ErrInvalidWorld  = errors.New("invalid world configuration")
)

// #endregion errors

// #region action
// Action identifies one entry of an environment's action space.
type Action int

// #endregion action

// #region observation
// Observation is the structured sensor readout of an environment.
type Observation struct {
	Vision []float32
	Body   []float32
}

// #endregion observation

// #region harm
// Harm splits the ethical outcome of a transition into harm suffered by the
// acting agent and harm suffered by the other agent.
type Harm struct {
	Self  float64
	Other float64
}

// #endregion harm

// #region transition
// Transition is the result of applying one action.
type Transition struct {
	Observation Observation
	RealityCost float64
	Harm        Harm
	Done        bool
}

// #endregion transition

// #region environment
// Environment is the collaborator the agent perceives and acts on.
// Clone must return an instance whose later mutation never affects the
// receiver, and vice versa.
type Environment interface {
	Observe() Observation
	Encode(obs Observation) []float32
	ActionSpace() []Action
	Clone() Environment
	Step(a Action) (Transition, error)
}

// #endregion environment
