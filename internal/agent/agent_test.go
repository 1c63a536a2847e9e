package agent

import (
	"errors"
	"math"
	"testing"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/coupling"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/env"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/gate"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/lspace"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/planner"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/residue"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/sleep"
)

// #region helpers
func newAgent(t *testing.T, sl *sleep.Subsystem, opts ...Option) *Agent {
	t.Helper()
	cfg := lspace.DefaultConfig(env.SensorDim)
	cfg.Alphas = map[lspace.Depth]float64{lspace.Gamma: 1.0, lspace.Beta: 1.5, lspace.Theta: 1.0, lspace.Delta: 0.8}
	stack, err := lspace.NewStack(cfg)
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	pl, err := planner.NewPlanner(planner.DefaultConfig())
	if err != nil {
		t.Fatalf("NewPlanner: %v", err)
	}
	cm, err := coupling.New(coupling.DefaultKappaOther)
	if err != nil {
		t.Fatalf("coupling.New: %v", err)
	}
	if sl != nil {
		opts = append(opts, WithSleep(sl))
	}
	a, err := New(stack, pl, residue.NewField(stack.Dim(lspace.Beta)), cm, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func newSleep(t *testing.T, every int, radius float64) *sleep.Subsystem {
	t.Helper()
	cfg := sleep.DefaultConfig()
	cfg.EveryNSteps = every
	cfg.MergeRadius = radius
	s, err := sleep.NewSubsystem(cfg)
	if err != nil {
		t.Fatalf("NewSubsystem: %v", err)
	}
	return s
}

func safeWorld(t *testing.T) *env.GridWorld {
	t.Helper()
	w, err := env.NewGridWorld(10, 60, 1)
	if err != nil {
		t.Fatalf("NewGridWorld: %v", err)
	}
	return w
}

// hazardWorld is a single cell that is also a hazard: every action hurts
// both agents.
func hazardWorld(t *testing.T) *env.GridWorld {
	t.Helper()
	w, err := env.NewGridWorld(1, 100, 1, env.WithHazards(env.Point{}))
	if err != nil {
		t.Fatalf("NewGridWorld: %v", err)
	}
	return w
}

func mustStep(t *testing.T, a *Agent, e env.Environment) StepResult {
	t.Helper()
	res, err := a.Step(e)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	return res
}

// #endregion helpers

func TestStepBeforeResetFails(t *testing.T) {
	a := newAgent(t, nil)
	w := safeWorld(t)
	if _, err := a.Step(w); !errors.Is(err, ErrNotReset) {
		t.Fatalf("expected ErrNotReset, got %v", err)
	}
	if w.Tick() != 0 {
		t.Fatal("environment advanced before reset")
	}
	if _, ok := a.State(); ok {
		t.Fatal("state should be unset before reset")
	}
}

func TestResetZeroesState(t *testing.T) {
	a := newAgent(t, nil)
	a.Reset()
	st, ok := a.State()
	if !ok {
		t.Fatal("expected state after reset")
	}
	for _, d := range lspace.Depths {
		for _, v := range st.Depth(d) {
			if v != 0 {
				t.Fatalf("%s not zero after reset", d)
			}
		}
	}
	if a.StepCount() != 0 {
		t.Fatalf("expected step 0, got %d", a.StepCount())
	}
}

func TestSafeStepLeavesNoResidue(t *testing.T) {
	a := newAgent(t, nil)
	a.Reset()
	w := safeWorld(t)
	res := mustStep(t, a, w)
	if res.EthicalCost != 0 {
		t.Fatalf("expected ethical cost 0, got %v", res.EthicalCost)
	}
	if a.Residue().Count() != 0 {
		t.Fatalf("expected no dents, got %d", a.Residue().Count())
	}
	if res.DentAdded {
		t.Fatal("no dent should be reported")
	}
	if w.Tick() != 1 {
		t.Fatalf("expected live world advanced once, got %d", w.Tick())
	}
	if a.StepCount() != 1 {
		t.Fatalf("expected step 1, got %d", a.StepCount())
	}
	if res.Info.Score != res.Info.RealityCost+1.5*res.Info.EthicalCost+2.0*res.Info.ResidueCost {
		t.Fatalf("score does not compose: %+v", res.Info)
	}
}

func TestHazardStepAddsOneDent(t *testing.T) {
	a := newAgent(t, nil)
	a.Reset()
	w := hazardWorld(t)
	res := mustStep(t, a, w)
	if !(res.EthicalCost > 0) {
		t.Fatalf("expected positive ethical cost, got %v", res.EthicalCost)
	}
	if math.Abs(res.EthicalCost-1.8) > 1e-12 {
		t.Fatalf("expected 1 + 0.8*1, got %v", res.EthicalCost)
	}
	if a.Residue().Count() != 1 || !res.DentAdded {
		t.Fatalf("expected exactly one dent, got %d", a.Residue().Count())
	}

	st, _ := a.State()
	d := a.Residue().Dents()[0]
	if d.Magnitude != res.EthicalCost || d.Sigma != residue.DefaultSigma {
		t.Fatalf("unexpected dent %+v", d)
	}
	for i := range st.Beta {
		if d.Center[i] != st.Beta[i] {
			t.Fatal("dent center should be the post-update beta")
		}
	}

	mustStep(t, a, w)
	if a.Residue().Count() != 2 {
		t.Fatalf("expected 2 dents after second harmful step, got %d", a.Residue().Count())
	}
}

func TestResidueRaisesNextScore(t *testing.T) {
	a := newAgent(t, nil)
	a.Reset()
	w := hazardWorld(t)
	first := mustStep(t, a, w)
	second := mustStep(t, a, w)
	if first.Info.ResidueCost != 0 {
		t.Fatalf("first step should see an empty field, got %v", first.Info.ResidueCost)
	}
	if !(second.Info.ResidueCost > 0) {
		t.Fatalf("second step should feel the first dent, got %v", second.Info.ResidueCost)
	}
}

func TestSleepMergesOnFifthStep(t *testing.T) {
	a := newAgent(t, newSleep(t, 5, 100))
	a.Reset()
	w := hazardWorld(t)

	for i := 1; i <= 4; i++ {
		res := mustStep(t, a, w)
		if res.Sleep != nil {
			t.Fatalf("unexpected consolidation at step %d", i)
		}
		if a.Residue().Count() != i {
			t.Fatalf("step %d: expected %d dents, got %d", i, i, a.Residue().Count())
		}
	}
	res := mustStep(t, a, w)
	if res.Sleep == nil {
		t.Fatal("expected consolidation at step 5")
	}
	if a.Residue().Count() != 1 || res.Sleep.DentsBefore != 5 {
		t.Fatalf("expected 5 dents merged into 1, got report %+v", *res.Sleep)
	}
	if math.Abs(a.Residue().TotalMagnitude()-5*1.8) > 1e-9 {
		t.Fatalf("merged magnitude %v, want 9", a.Residue().TotalMagnitude())
	}
	if a.Stack().Alpha(lspace.Beta) != 1.5 {
		t.Fatalf("beta alpha should not move with 1 dent, got %v", a.Stack().Alpha(lspace.Beta))
	}
}

func TestSleepRecalibratesWhenCrowded(t *testing.T) {
	a := newAgent(t, newSleep(t, 5, 0))
	a.Reset()
	w := hazardWorld(t)
	for i := 0; i < 10; i++ {
		mustStep(t, a, w)
	}
	if a.Residue().Count() < 8 {
		t.Fatalf("expected distinct dents to survive, got %d", a.Residue().Count())
	}
	if math.Abs(a.Stack().Alpha(lspace.Beta)-1.5*0.95) > 1e-12 {
		t.Fatalf("expected one recalibration, got alpha %v", a.Stack().Alpha(lspace.Beta))
	}
}

func TestNegativeHarmAddsNoDent(t *testing.T) {
	a := newAgent(t, nil)
	a.Reset()
	e := &rewardEnv{GridWorld: safeWorld(t)}
	res := mustStep(t, a, e)
	if res.EthicalCost >= 0 {
		t.Fatalf("expected negative ethical cost, got %v", res.EthicalCost)
	}
	if a.Residue().Count() != 0 {
		t.Fatal("negative ethical cost must not leave a dent")
	}
}

func TestGateRejectionSurfaces(t *testing.T) {
	g := gate.NewGate(gate.GateConfig{MaxCenterNorm: 1e-9})
	a := newAgent(t, nil, WithGate(g))
	a.Reset()
	_, err := a.Step(hazardWorld(t))
	if !errors.Is(err, ErrDentRejected) {
		t.Fatalf("expected ErrDentRejected, got %v", err)
	}
	if a.Residue().Count() != 0 {
		t.Fatal("rejected dent was stored")
	}
}

func TestNewValidation(t *testing.T) {
	stack, _ := lspace.NewStack(lspace.DefaultConfig(env.SensorDim))
	pl, _ := planner.NewPlanner(planner.DefaultConfig())
	if _, err := New(stack, pl, residue.NewField(3), coupling.Model{}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for wrong residue dim, got %v", err)
	}
	field := residue.NewField(stack.Dim(lspace.Beta))
	if _, err := New(stack, pl, field, coupling.Model{}, WithConfig(Config{DentSigma: 0})); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for zero dent sigma, got %v", err)
	}
}

func TestRestore(t *testing.T) {
	a := newAgent(t, nil)
	a.Reset()
	w := safeWorld(t)
	mustStep(t, a, w)
	mustStep(t, a, w)
	saved, _ := a.State()

	b := newAgent(t, nil)
	if err := b.Restore(saved, a.StepCount()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if b.StepCount() != 2 {
		t.Fatalf("expected step 2, got %d", b.StepCount())
	}

	wa := w.Clone()
	wb := w.Clone()
	ra := mustStep(t, a, wa)
	rb := mustStep(t, b, wb)
	if ra.Info != rb.Info {
		t.Fatalf("restored agent diverged: %+v vs %+v", ra.Info, rb.Info)
	}

	bad := saved.Clone()
	bad.Delta = bad.Delta[:1]
	if err := b.Restore(bad, 0); !errors.Is(err, lspace.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

// rewardEnv reports negative harm, i.e. a transition that helps.
type rewardEnv struct {
	*env.GridWorld
}

func (r *rewardEnv) Clone() env.Environment {
	return &rewardEnv{GridWorld: r.GridWorld.Clone().(*env.GridWorld)}
}

func (r *rewardEnv) Step(a env.Action) (env.Transition, error) {
	tr, err := r.GridWorld.Step(a)
	tr.Harm = env.Harm{Self: -0.5}
	return tr, err
}
