package coupling

import (
	"errors"
	"fmt"
	"math"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/env"
)

// ErrNegativeKappa is returned for a coupling weight below zero.
var ErrNegativeKappa = errors.New("kappa_other must be non-negative")

// DefaultKappaOther weights another agent's harm slightly below one's own.
const DefaultKappaOther = 0.8

// Model weights how much another agent's harm counts toward ethical cost.
type Model struct {
	KappaOther float64
}

// New validates kappa and returns a Model.
func New(kappaOther float64) (Model, error) {
	if !(kappaOther >= 0) || math.IsInf(kappaOther, 0) {
		return Model{}, fmt.Errorf("kappa_other %v: %w", kappaOther, ErrNegativeKappa)
	}
	return Model{KappaOther: kappaOther}, nil
}

// EthicalCost is self harm plus weighted other harm.
func (m Model) EthicalCost(h env.Harm) float64 {
	return h.Self + m.KappaOther*h.Other
}
