package replay

import (
	"fmt"
	"sort"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/env"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/eval"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/lspace"
)

// #region types
// StepRecord captures the outcome of one replayed step.
type StepRecord struct {
	Step        int
	Action      env.Action
	Score       float64
	RealityCost float64
	EthicalCost float64 // live transition, after coupling
	DentAdded   bool
	Slept       bool
	Dents       int
	Eval        eval.EvalResult
}

// Harmful reports whether the live transition cost anything ethically.
func (r StepRecord) Harmful() bool { return r.EthicalCost > 0 }

// Mismatch is one expectation that did not hold.
type Mismatch struct {
	Step  int
	Field string
	Want  string
	Got   string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("step %d: %s want %s, got %s", m.Step, m.Field, m.Want, m.Got)
}

// ReplayResult is the full record of a replay run.
type ReplayResult struct {
	Steps      []StepRecord
	Mismatches []Mismatch
	BetaAlpha  float64
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalSteps   int
	HarmfulSteps int
	DentsAdded   int
	Sleeps       int
	EvalFailures int
	Mismatches   int
	TotalReality float64
	TotalEthical float64
	FinalDents   int
	BetaAlpha    float64
}

// #endregion types

// #region replay
// Replay runs the fixture's episode in memory and checks every expectation.
// Two replays of the same fixture produce identical records.
func Replay(f *Fixture) (ReplayResult, error) {
	world, err := f.Config.NewWorld()
	if err != nil {
		return ReplayResult{}, fmt.Errorf("world: %w", err)
	}
	a, err := f.Config.NewAgent(env.SensorDim)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("agent: %w", err)
	}
	harness := eval.NewEvalHarness(f.Config.EvalConfig())

	expected := make(map[int]ExpectedStep, len(f.Expected))
	for _, e := range f.Expected {
		expected[e.Step] = e
	}

	var result ReplayResult
	a.Reset()
	for !world.Done() && (f.Steps == 0 || a.StepCount() < f.Steps) {
		res, err := a.Step(world)
		if err != nil {
			return result, fmt.Errorf("replay: %w", err)
		}
		latent, _ := a.State()
		rec := StepRecord{
			Step:        a.StepCount(),
			Action:      res.Info.Action,
			Score:       res.Info.Score,
			RealityCost: res.RealityCost,
			EthicalCost: res.EthicalCost,
			DentAdded:   res.DentAdded,
			Slept:       res.Sleep != nil,
			Dents:       a.Residue().Count(),
			Eval:        harness.Run(latent, a.Residue()),
		}
		result.Steps = append(result.Steps, rec)
		if e, ok := expected[rec.Step]; ok {
			result.Mismatches = append(result.Mismatches, compare(e, rec)...)
			delete(expected, rec.Step)
		}
	}
	missing := make([]int, 0, len(expected))
	for step := range expected {
		missing = append(missing, step)
	}
	sort.Ints(missing)
	for _, step := range missing {
		result.Mismatches = append(result.Mismatches, Mismatch{Step: step, Field: "step", Want: "reached", Got: "episode ended"})
	}
	result.BetaAlpha = a.Stack().Alpha(lspace.Beta)
	return result, nil
}

func compare(e ExpectedStep, r StepRecord) []Mismatch {
	var out []Mismatch
	check := func(field string, ok bool, want, got interface{}) {
		if !ok {
			out = append(out, Mismatch{Step: r.Step, Field: field, Want: fmt.Sprint(want), Got: fmt.Sprint(got)})
		}
	}
	if e.Action != nil {
		check("action", *e.Action == int(r.Action), env.ActionName(env.Action(*e.Action)), env.ActionName(r.Action))
	}
	if e.Harmful != nil {
		check("harmful", *e.Harmful == r.Harmful(), *e.Harmful, r.Harmful())
	}
	if e.DentAdded != nil {
		check("dent_added", *e.DentAdded == r.DentAdded, *e.DentAdded, r.DentAdded)
	}
	if e.Slept != nil {
		check("slept", *e.Slept == r.Slept, *e.Slept, r.Slept)
	}
	if e.Dents != nil {
		check("dents", *e.Dents == r.Dents, *e.Dents, r.Dents)
	}
	return out
}

// Summarize computes aggregate stats from a replay result.
func Summarize(result ReplayResult) ReplaySummary {
	s := ReplaySummary{
		TotalSteps: len(result.Steps),
		Mismatches: len(result.Mismatches),
		BetaAlpha:  result.BetaAlpha,
	}
	for _, r := range result.Steps {
		s.TotalReality += r.RealityCost
		s.TotalEthical += r.EthicalCost
		if r.Harmful() {
			s.HarmfulSteps++
		}
		if r.DentAdded {
			s.DentsAdded++
		}
		if r.Slept {
			s.Sleeps++
		}
		if !r.Eval.Passed {
			s.EvalFailures++
		}
		s.FinalDents = r.Dents
	}
	return s
}

// #endregion replay
