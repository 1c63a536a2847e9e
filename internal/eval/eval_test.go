package eval

import (
	"math"
	"strings"
	"testing"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/lspace"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/residue"
)

func makeState(fill float32) lspace.LatentState {
	mk := func(n int) []float32 {
		v := make([]float32, n)
		for i := range v {
			v[i] = fill
		}
		return v
	}
	return lspace.LatentState{Gamma: mk(8), Beta: mk(16), Theta: mk(32), Delta: mk(32)}
}

func metric(t *testing.T, r EvalResult, name string) EvalMetric {
	t.Helper()
	for _, m := range r.Metrics {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("metric %s not found in %+v", name, r.Metrics)
	return EvalMetric{}
}

func TestEvalPassesOnZeroState(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	result := h.Run(makeState(0), nil)
	if !result.Passed {
		t.Fatalf("expected pass on zero state, got fail: %s", result.Reason)
	}
	if len(result.Metrics) != len(lspace.Depths)+1 {
		t.Fatalf("expected %d metrics, got %d", len(lspace.Depths)+1, len(result.Metrics))
	}
	if result.Reason != "all checks passed" {
		t.Fatalf("unexpected reason %q", result.Reason)
	}
}

func TestEvalPassesOnSaturatedTanh(t *testing.T) {
	// Every entry at the tanh bound: the widest depth has norm sqrt(32).
	h := NewEvalHarness(DefaultEvalConfig())
	if result := h.Run(makeState(0.999), nil); !result.Passed {
		t.Fatalf("bounded state should pass: %s", result.Reason)
	}
}

func TestEvalFailsOnDepthNorm(t *testing.T) {
	config := DefaultEvalConfig()
	config.MaxDepthNorm = 3.0
	h := NewEvalHarness(config)

	// gamma: sqrt(8) ~ 2.83 passes, beta: 4 fails, theta/delta: ~5.66 fail
	result := h.Run(makeState(1), nil)
	if result.Passed {
		t.Fatal("expected fail on high depth norm")
	}
	if !metric(t, result, "gamma_norm").Pass || metric(t, result, "beta_norm").Pass {
		t.Fatalf("unexpected per-depth results %+v", result.Metrics)
	}
	if !strings.Contains(result.Reason, "3 checks") {
		t.Fatalf("expected 3 failed checks in reason, got %q", result.Reason)
	}
}

func TestEvalSingleFailureReason(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	s := makeState(0)
	s.Beta[0] = 10
	result := h.Run(s, nil)
	if result.Passed {
		t.Fatal("expected fail")
	}
	if !strings.HasPrefix(result.Reason, "eval failed: beta norm") {
		t.Fatalf("unexpected reason %q", result.Reason)
	}
}

func TestEvalFailsOnNonFinite(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	s := makeState(0)
	s.Theta[3] = float32(math.NaN())
	s.Delta[0] = float32(math.Inf(1))
	result := h.Run(s, nil)
	if result.Passed {
		t.Fatal("expected fail on non-finite state")
	}
	if metric(t, result, "theta_finite").Pass || metric(t, result, "delta_finite").Pass {
		t.Fatal("finite metrics should fail")
	}
}

func TestEvalResidueCountInformational(t *testing.T) {
	config := DefaultEvalConfig()
	config.MaxDents = 1
	h := NewEvalHarness(config)
	field := residue.NewField(2)
	for i := 0; i < 3; i++ {
		if err := field.AddDent([]float32{float32(i), 0}, 1, 1); err != nil {
			t.Fatalf("AddDent: %v", err)
		}
	}
	result := h.Run(makeState(0), field)
	if !result.Passed {
		t.Fatalf("residue count must not fail the run: %s", result.Reason)
	}
	m := metric(t, result, "residue_dents")
	if m.Pass || m.Value != 3 {
		t.Fatalf("unexpected residue metric %+v", m)
	}
}
