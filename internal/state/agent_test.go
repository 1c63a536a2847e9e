package state

import (
	"errors"
	"testing"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/agent"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/coupling"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/env"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/lspace"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/planner"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/residue"
)

func newTestAgent(t *testing.T) *agent.Agent {
	t.Helper()
	stack, err := lspace.NewStack(lspace.DefaultConfig(env.SensorDim))
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	pl, err := planner.NewPlanner(planner.DefaultConfig())
	if err != nil {
		t.Fatalf("NewPlanner: %v", err)
	}
	cm, _ := coupling.New(coupling.DefaultKappaOther)
	a, err := agent.New(stack, pl, residue.NewField(stack.Dim(lspace.Beta)), cm)
	if err != nil {
		t.Fatalf("agent.New: %v", err)
	}
	return a
}

func TestCaptureBeforeReset(t *testing.T) {
	if _, err := Capture(newTestAgent(t), "", "run"); !errors.Is(err, agent.ErrNotReset) {
		t.Fatalf("expected ErrNotReset, got %v", err)
	}
}

func TestCaptureCommitApply(t *testing.T) {
	s := tempDB(t)
	a := newTestAgent(t)
	a.Reset()
	w, err := env.NewGridWorld(1, 50, 3, env.WithHazards(env.Point{}))
	if err != nil {
		t.Fatalf("NewGridWorld: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := a.Step(w); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	a.Stack().SetAlpha(lspace.Beta, 0.7)

	snap, err := Capture(a, "", "run-x")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	mustCommit(t, s, snap)

	loaded, err := s.GetCurrent()
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	b := newTestAgent(t)
	if err := loaded.Apply(b); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if b.StepCount() != 3 || b.Residue().Count() != 3 || b.Stack().Alpha(lspace.Beta) != 0.7 {
		t.Fatalf("restored agent: step=%d dents=%d alpha=%v", b.StepCount(), b.Residue().Count(), b.Stack().Alpha(lspace.Beta))
	}

	wa, wb := w.Clone(), w.Clone()
	ra, err := a.Step(wa)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	rb, err := b.Step(wb)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if ra.Info != rb.Info {
		t.Fatalf("restored agent diverged: %+v vs %+v", ra.Info, rb.Info)
	}
}

func TestApplyRejectsBadSnapshot(t *testing.T) {
	a := newTestAgent(t)
	a.Reset()
	good, _ := Capture(a, "", "run")

	bad := good
	bad.Latent = good.Latent.Clone()
	bad.Latent.Beta = bad.Latent.Beta[:2]
	bad.Dents = []residue.Dent{{Center: make([]float32, 16), Magnitude: 1, Sigma: 1}}
	if err := bad.Apply(a); !errors.Is(err, lspace.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if a.Residue().Count() != 0 {
		t.Fatal("rejected snapshot modified the residue field")
	}

	bad = good
	bad.Alphas = map[lspace.Depth]float64{lspace.Beta: 3}
	if err := bad.Apply(a); err == nil {
		t.Fatal("expected error for out-of-range alpha")
	}
}
