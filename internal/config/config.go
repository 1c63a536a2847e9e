// Package config loads the YAML run configuration for an REE episode and
// converts it into each package's own config type.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/agent"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/coupling"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/env"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/eval"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/gate"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/lspace"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/planner"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/residue"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/sleep"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

const defaultConfigYAML = `# ree run configuration
version: 1

world:
  size: 10
  max_steps: 60
  seed: 1
  # hazards default to (2,2) (2,3) (3,2) when omitted

latent:
  seed: 0
  dims: {gamma: 8, beta: 16, theta: 32, delta: 32}
  alphas: {gamma: 1.0, beta: 1.5, theta: 1.0, delta: 0.8}

planner:
  horizon: 1
  lambda_ethics: 1.5
  rho_residue: 2.0

coupling:
  kappa_other: 0.8

residue:
  dent_sigma: 1.0

sleep:
  enabled: true
  every_n_steps: 20
  merge_radius: 0.8
  crowded_dents: 8
  alpha_decay: 0.95
  alpha_floor: 0.5

gate:
  min_magnitude: 0
  max_center_norm: 0

eval:
  max_depth_norm: 6.0
  max_dents: 64

report_every: 10
`

// WorldConfig describes the grid world.
type WorldConfig struct {
	Size       int         `yaml:"size" json:"size"`
	MaxSteps   int         `yaml:"max_steps" json:"max_steps"`
	Seed       uint64      `yaml:"seed" json:"seed"`
	Hazards    []env.Point `yaml:"hazards,omitempty" json:"hazards,omitempty"`
	AgentStart *env.Point  `yaml:"agent_start,omitempty" json:"agent_start,omitempty"`
	OtherStart *env.Point  `yaml:"other_start,omitempty" json:"other_start,omitempty"`
}

// LatentConfig describes the latent stack. Keys are depth names.
type LatentConfig struct {
	Seed   uint64             `yaml:"seed" json:"seed"`
	Dims   map[string]int     `yaml:"dims" json:"dims"`
	Alphas map[string]float64 `yaml:"alphas" json:"alphas"`
}

// PlannerConfig holds the score weights.
type PlannerConfig struct {
	Horizon      int     `yaml:"horizon" json:"horizon"`
	LambdaEthics float64 `yaml:"lambda_ethics" json:"lambda_ethics"`
	RhoResidue   float64 `yaml:"rho_residue" json:"rho_residue"`
}

// CouplingConfig holds the other-harm weight.
type CouplingConfig struct {
	KappaOther float64 `yaml:"kappa_other" json:"kappa_other"`
}

// ResidueConfig holds dent shape settings.
type ResidueConfig struct {
	DentSigma float64 `yaml:"dent_sigma" json:"dent_sigma"`
}

// SleepConfig holds offline consolidation settings.
type SleepConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	EveryNSteps  int     `yaml:"every_n_steps" json:"every_n_steps"`
	MergeRadius  float64 `yaml:"merge_radius" json:"merge_radius"`
	CrowdedDents int     `yaml:"crowded_dents" json:"crowded_dents"`
	AlphaDecay   float64 `yaml:"alpha_decay" json:"alpha_decay"`
	AlphaFloor   float64 `yaml:"alpha_floor" json:"alpha_floor"`
}

// GateConfig holds dent admission thresholds. Zero disables a check.
type GateConfig struct {
	MinMagnitude  float64 `yaml:"min_magnitude" json:"min_magnitude"`
	MaxCenterNorm float64 `yaml:"max_center_norm" json:"max_center_norm"`
}

// EvalConfig holds post-step health thresholds.
type EvalConfig struct {
	MaxDepthNorm float64 `yaml:"max_depth_norm" json:"max_depth_norm"`
	MaxDents     int     `yaml:"max_dents" json:"max_dents"`
}

// Config models a complete run configuration file.
type Config struct {
	Version     int            `yaml:"version" json:"version"`
	World       WorldConfig    `yaml:"world" json:"world"`
	Latent      LatentConfig   `yaml:"latent" json:"latent"`
	Planner     PlannerConfig  `yaml:"planner" json:"planner"`
	Coupling    CouplingConfig `yaml:"coupling" json:"coupling"`
	Residue     ResidueConfig  `yaml:"residue" json:"residue"`
	Sleep       SleepConfig    `yaml:"sleep" json:"sleep"`
	Gate        GateConfig     `yaml:"gate" json:"gate"`
	Eval        EvalConfig     `yaml:"eval" json:"eval"`
	ReportEvery int            `yaml:"report_every" json:"report_every"`
}

// Default returns the embedded default configuration.
func Default() Config {
	var c Config
	if err := yaml.Unmarshal([]byte(defaultConfigYAML), &c); err != nil {
		panic(fmt.Sprintf("config: embedded default does not parse: %v", err))
	}
	return c
}

// DefaultYAML returns the embedded default document, for `ree --print-config`.
func DefaultYAML() string { return defaultConfigYAML }

// Load reads path over the defaults and validates the result. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := Parse(data, &c); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes YAML into c, keeping any values the document omits, and
// validates the result.
func Parse(data []byte, c *Config) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	return c.Validate()
}

// Validate reports the first out-of-range setting.
func (c Config) Validate() error {
	switch {
	case c.World.Size <= 0:
		return fmt.Errorf("%w: world.size must be positive", ErrInvalid)
	case c.World.MaxSteps <= 0:
		return fmt.Errorf("%w: world.max_steps must be positive", ErrInvalid)
	case c.Planner.Horizon != 1:
		return fmt.Errorf("%w: planner.horizon %d unsupported, only 1", ErrInvalid, c.Planner.Horizon)
	case !nonNegative(c.Planner.LambdaEthics) || !nonNegative(c.Planner.RhoResidue):
		return fmt.Errorf("%w: planner weights must be non-negative", ErrInvalid)
	case !nonNegative(c.Coupling.KappaOther):
		return fmt.Errorf("%w: coupling.kappa_other must be non-negative", ErrInvalid)
	case !(c.Residue.DentSigma > 0):
		return fmt.Errorf("%w: residue.dent_sigma must be positive", ErrInvalid)
	case c.ReportEvery < 0:
		return fmt.Errorf("%w: report_every must be non-negative", ErrInvalid)
	}
	for _, d := range lspace.Depths {
		if c.Latent.Dims[string(d)] <= 0 {
			return fmt.Errorf("%w: latent.dims.%s must be positive", ErrInvalid, d)
		}
	}
	for name, a := range c.Latent.Alphas {
		if !known(name) {
			return fmt.Errorf("%w: latent.alphas has unknown depth %q", ErrInvalid, name)
		}
		// Stricter than lspace, which accepts any gain; this bounds user input only.
		if !(a >= 0 && a <= 2) {
			return fmt.Errorf("%w: latent.alphas.%s must be in [0, 2]", ErrInvalid, name)
		}
	}
	if c.Sleep.Enabled {
		if _, err := sleep.NewSubsystem(c.SleepConfig()); err != nil {
			return fmt.Errorf("%w: sleep: %v", ErrInvalid, err)
		}
	}
	return nil
}

// #region converters

// WorldOptions returns the grid options implied by the world section.
func (c Config) WorldOptions() []env.Option {
	var opts []env.Option
	if len(c.World.Hazards) > 0 {
		opts = append(opts, env.WithHazards(c.World.Hazards...))
	}
	if c.World.AgentStart != nil {
		opts = append(opts, env.WithAgentStart(*c.World.AgentStart))
	}
	if c.World.OtherStart != nil {
		opts = append(opts, env.WithOtherStart(*c.World.OtherStart))
	}
	return opts
}

// NewWorld builds the configured grid world.
func (c Config) NewWorld() (*env.GridWorld, error) {
	return env.NewGridWorld(c.World.Size, c.World.MaxSteps, c.World.Seed, c.WorldOptions()...)
}

// LSpaceConfig converts the latent section for a given sensor width.
func (c Config) LSpaceConfig(sensorDim int) lspace.Config {
	out := lspace.DefaultConfig(sensorDim)
	out.Seed = c.Latent.Seed
	for _, d := range lspace.Depths {
		if n, ok := c.Latent.Dims[string(d)]; ok {
			out.Dims[d] = n
		}
		if a, ok := c.Latent.Alphas[string(d)]; ok {
			out.Alphas[d] = a
		}
	}
	return out
}

func (c Config) PlannerConfig() planner.Config {
	return planner.Config{
		LambdaEthics: c.Planner.LambdaEthics,
		RhoResidue:   c.Planner.RhoResidue,
		Horizon:      c.Planner.Horizon,
	}
}

func (c Config) CouplingModel() (coupling.Model, error) {
	return coupling.New(c.Coupling.KappaOther)
}

func (c Config) SleepConfig() sleep.Config {
	return sleep.Config{
		EveryNSteps:  c.Sleep.EveryNSteps,
		MergeRadius:  c.Sleep.MergeRadius,
		CrowdedDents: c.Sleep.CrowdedDents,
		AlphaDecay:   c.Sleep.AlphaDecay,
		AlphaFloor:   c.Sleep.AlphaFloor,
	}
}

func (c Config) GateConfig() gate.GateConfig {
	return gate.GateConfig{
		MinMagnitude:  c.Gate.MinMagnitude,
		MaxCenterNorm: c.Gate.MaxCenterNorm,
	}
}

func (c Config) EvalConfig() eval.EvalConfig {
	return eval.EvalConfig{
		MaxDepthNorm: c.Eval.MaxDepthNorm,
		MaxDents:     c.Eval.MaxDents,
	}
}

func (c Config) AgentConfig() agent.Config {
	return agent.Config{DentSigma: c.Residue.DentSigma}
}

// NewAgent wires a fresh agent for a world whose encoded observation has
// sensorDim entries. The agent still needs Reset before its first step.
func (c Config) NewAgent(sensorDim int) (*agent.Agent, error) {
	stack, err := lspace.NewStack(c.LSpaceConfig(sensorDim))
	if err != nil {
		return nil, fmt.Errorf("latent stack: %w", err)
	}
	pl, err := planner.NewPlanner(c.PlannerConfig())
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	cm, err := c.CouplingModel()
	if err != nil {
		return nil, fmt.Errorf("coupling: %w", err)
	}
	opts := []agent.Option{
		agent.WithConfig(c.AgentConfig()),
		agent.WithGate(gate.NewGate(c.GateConfig())),
	}
	if c.Sleep.Enabled {
		sl, err := sleep.NewSubsystem(c.SleepConfig())
		if err != nil {
			return nil, fmt.Errorf("sleep: %w", err)
		}
		opts = append(opts, agent.WithSleep(sl))
	}
	return agent.New(stack, pl, residue.NewField(stack.Dim(lspace.Beta)), cm, opts...)
}

// #endregion converters

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}

func known(name string) bool {
	for _, d := range lspace.Depths {
		if string(d) == name {
			return true
		}
	}
	return false
}
