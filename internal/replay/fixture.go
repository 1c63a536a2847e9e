package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/config"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/logging"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture. Config is
// decoded over the default run configuration, so a fixture only names what
// it changes.
type Fixture struct {
	Description string         `json:"description"`
	Config      config.Config  `json:"config"`
	Steps       int            `json:"steps"` // 0 runs until the world reports done
	Expected    []ExpectedStep `json:"expected"`
}

// ExpectedStep pins what should happen at one step. Nil fields are not
// checked.
type ExpectedStep struct {
	Step      int   `json:"step"`
	Action    *int  `json:"action,omitempty"`
	Harmful   *bool `json:"harmful,omitempty"`
	DentAdded *bool `json:"dent_added,omitempty"`
	Slept     *bool `json:"slept,omitempty"`
	Dents     *int  `json:"dents,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads, parses, and validates a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	f := Fixture{Config: config.Default()}
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if err := f.Config.Validate(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	if f.Steps < 0 {
		return nil, fmt.Errorf("fixture %s: negative steps", path)
	}
	return &f, nil
}

// #endregion fixture-loader

// #region fixture-export

// FromSteps builds a fixture that pins every logged step of a run. cfg must
// be the configuration the run was started with, and the run must have
// started from a freshly reset agent.
func FromSteps(description string, cfg config.Config, steps []logging.StepEntry) *Fixture {
	f := &Fixture{
		Description: description,
		Config:      cfg,
		Steps:       len(steps),
		Expected:    make([]ExpectedStep, len(steps)),
	}
	prevDents := 0
	for i, s := range steps {
		action := s.Action
		harmful := s.LiveEthical > 0
		slept := s.Slept
		dents := s.DentCount
		f.Expected[i] = ExpectedStep{
			Step:    s.Step,
			Action:  &action,
			Harmful: &harmful,
			Slept:   &slept,
			Dents:   &dents,
		}
		// Consolidation can shrink the count, so only non-sleep steps say
		// whether a dent landed.
		if !slept {
			added := dents > prevDents
			f.Expected[i].DentAdded = &added
		}
		prevDents = dents
	}
	return f
}

// Save writes the fixture as indented JSON.
func (f *Fixture) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// #endregion fixture-export
