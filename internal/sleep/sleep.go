package sleep

import (
	"fmt"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/lspace"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/residue"
)

// minMergeWeight guards the centroid division for all-zero magnitudes.
const minMergeWeight = 1e-6

// #region subsystem
// Subsystem runs offline consolidation: dent merging followed by beta
// precision recalibration.
type Subsystem struct {
	config Config
}

// NewSubsystem validates cfg.
func NewSubsystem(cfg Config) (*Subsystem, error) {
	if cfg.EveryNSteps <= 0 {
		return nil, fmt.Errorf("every_n_steps %d: %w", cfg.EveryNSteps, ErrInvalidConfig)
	}
	if !(cfg.MergeRadius >= 0) {
		return nil, fmt.Errorf("merge_radius %v: %w", cfg.MergeRadius, ErrInvalidConfig)
	}
	if cfg.AlphaDecay <= 0 || cfg.AlphaDecay > 1 {
		return nil, fmt.Errorf("alpha_decay %v: %w", cfg.AlphaDecay, ErrInvalidConfig)
	}
	return &Subsystem{config: cfg}, nil
}

// Config returns the schedule.
func (s *Subsystem) Config() Config { return s.config }

// ShouldSleep is true when t is a positive multiple of EveryNSteps.
func (s *Subsystem) ShouldSleep(t int) bool {
	return t > 0 && t%s.config.EveryNSteps == 0
}

// #endregion subsystem

// #region run-offline
// RunOffline merges nearby dents, then lowers beta precision if residue is
// still crowded.
func (s *Subsystem) RunOffline(field *residue.Field, stack *lspace.Stack) (Report, error) {
	report := Report{
		DentsBefore:     field.Count(),
		MagnitudeBefore: field.TotalMagnitude(),
		BetaAlphaBefore: stack.Alpha(lspace.Beta),
	}

	if field.Count() >= 2 {
		merged := MergeDents(field.Dents(), s.config.MergeRadius)
		if err := field.Replace(merged); err != nil {
			return Report{}, fmt.Errorf("run offline: %w", err)
		}
	}

	if field.Count() >= s.config.CrowdedDents {
		alpha := stack.Alpha(lspace.Beta) * s.config.AlphaDecay
		stack.SetAlpha(lspace.Beta, max(s.config.AlphaFloor, alpha))
	}

	report.DentsAfter = field.Count()
	report.MagnitudeAfter = field.TotalMagnitude()
	report.BetaAlphaAfter = stack.Alpha(lspace.Beta)
	return report, nil
}

// #endregion run-offline

// #region merge
// MergeDents groups dents around representatives in encounter order: each
// unassigned dent claims every later unassigned dent whose center lies within
// radius of its own. Groups collapse to a magnitude-weighted centroid with
// summed magnitude and mean sigma; singletons pass through unchanged.
func MergeDents(dents []residue.Dent, radius float64) []residue.Dent {
	used := make([]bool, len(dents))
	out := make([]residue.Dent, 0, len(dents))

	for i, rep := range dents {
		if used[i] {
			continue
		}
		used[i] = true
		group := []residue.Dent{rep}
		for j := i + 1; j < len(dents); j++ {
			if used[j] {
				continue
			}
			if residue.Distance(rep.Center, dents[j].Center) <= radius {
				group = append(group, dents[j])
				used[j] = true
			}
		}
		if len(group) == 1 {
			out = append(out, rep)
			continue
		}
		out = append(out, collapse(group))
	}
	return out
}

func collapse(group []residue.Dent) residue.Dent {
	dim := len(group[0].Center)
	acc := make([]float64, dim)
	var mag, sigma float64
	for _, d := range group {
		for k, c := range d.Center {
			acc[k] += float64(c) * d.Magnitude
		}
		mag += d.Magnitude
		sigma += d.Sigma
	}
	weight := max(mag, minMergeWeight)
	center := make([]float32, dim)
	for k := range center {
		center[k] = float32(acc[k] / weight)
	}
	return residue.Dent{
		Center:    center,
		Magnitude: mag,
		Sigma:     sigma / float64(len(group)),
	}
}

// #endregion merge
