package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/agent"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/config"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/env"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/eval"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/logging"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/state"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/tui"
	"github.com/google/uuid"
)

// #region main
func main() {
	configPath := flag.String("config", envOr("REE_CONFIG", ""), "path to run config YAML (defaults built in)")
	dbPath := flag.String("db", envOr("REE_DB", "ree.db"), "SQLite path for snapshots and step log; empty disables persistence")
	resume := flag.Bool("resume", false, "restore the agent from the active snapshot before playing")
	watch := flag.Bool("watch", false, "show the episode in a terminal UI")
	seed := flag.Int64("seed", -1, "override world.seed")
	printConfig := flag.Bool("print-config", false, "print the default config and exit")
	flag.Parse()

	if *printConfig {
		fmt.Print(config.DefaultYAML())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *seed >= 0 {
		cfg.World.Seed = uint64(*seed)
	}

	world, err := cfg.NewWorld()
	if err != nil {
		log.Fatalf("world: %v", err)
	}
	a, err := cfg.NewAgent(env.SensorDim)
	if err != nil {
		log.Fatalf("agent: %v", err)
	}
	a.Reset()

	r := &runner{cfg: cfg, agent: a, runID: uuid.NewString(), eval: eval.NewEvalHarness(cfg.EvalConfig())}
	if *dbPath != "" {
		store, err := state.NewStore(*dbPath)
		if err != nil {
			log.Fatalf("failed to open store: %v", err)
		}
		defer store.Close()
		r.store = store

		if *resume {
			if err := r.restore(); err != nil {
				log.Fatalf("resume: %v", err)
			}
		}
	} else if *resume {
		log.Fatal("--resume needs --db")
	}

	fmt.Println("REE agent ready.")
	fmt.Printf("  run: %s | world: %dx%d seed %d | DB: %s\n", r.runID, cfg.World.Size, cfg.World.Size, cfg.World.Seed, orNone(*dbPath))

	if *watch {
		model := tui.New(a, world, tui.WithStepHook(r.record))
		final, err := tea.NewProgram(model).Run()
		if err != nil {
			log.Fatalf("tui: %v", err)
		}
		if err := final.(tui.Model).Err(); err != nil {
			log.Fatalf("episode: %v", err)
		}
	} else if err := r.play(world); err != nil {
		log.Fatalf("episode: %v", err)
	}

	if err := r.commit(); err != nil {
		log.Printf("final snapshot: %v", err)
	}
	fmt.Println("Episode done.")
	fmt.Printf("steps=%d total_reality_cost=%.3f total_ethical_cost=%.3f dents=%d\n",
		r.steps, r.totalReality, r.totalEthical, a.Residue().Count())
}

// #endregion main

// #region runner
type runner struct {
	cfg   config.Config
	agent *agent.Agent
	store *state.Store
	eval  *eval.EvalHarness
	runID string

	parentID     string
	steps        int
	totalReality float64
	totalEthical float64
}

func (r *runner) play(world *env.GridWorld) error {
	for !world.Done() {
		res, err := r.agent.Step(world)
		if err != nil {
			return err
		}
		if err := r.record(res); err != nil {
			return err
		}
		if r.cfg.ReportEvery > 0 && r.steps%r.cfg.ReportEvery == 0 {
			fmt.Printf("t=%03d action=%d score=%.3f dents=%d batt=%.2f\n",
				r.steps, res.Info.Action, res.Info.Score, r.agent.Residue().Count(), world.Battery())
		}
		if res.Done {
			break
		}
	}
	return nil
}

// record accumulates totals, logs the step, and snapshots after sleep.
func (r *runner) record(res agent.StepResult) error {
	r.steps++
	r.totalReality += res.RealityCost
	r.totalEthical += res.EthicalCost

	if latent, ok := r.agent.State(); ok {
		if h := r.eval.Run(latent, r.agent.Residue()); !h.Passed {
			log.Printf("t=%03d health: %s", r.steps, h.Reason)
		}
	}
	if r.store == nil {
		return nil
	}
	entry, err := logging.EntryFromResult(r.runID, r.agent, res)
	if err != nil {
		return err
	}
	if err := logging.LogStep(r.store.DB(), entry); err != nil {
		return err
	}
	if res.Sleep != nil {
		return r.commit()
	}
	return nil
}

func (r *runner) commit() error {
	if r.store == nil {
		return nil
	}
	snap, err := state.Capture(r.agent, r.parentID, r.runID)
	if err != nil {
		return err
	}
	if err := r.store.CommitSnapshot(snap); err != nil {
		return err
	}
	r.parentID = snap.VersionID
	return nil
}

func (r *runner) restore() error {
	snap, err := r.store.GetCurrent()
	if err != nil {
		return fmt.Errorf("no active snapshot: %w", err)
	}
	if err := snap.Apply(r.agent); err != nil {
		if errors.Is(err, agent.ErrInvalidConfig) {
			return fmt.Errorf("snapshot %s does not fit this config: %w", snap.VersionID, err)
		}
		return err
	}
	r.parentID = snap.VersionID
	log.Printf("resumed from %s (run %s, step %d, %d dents)", shortID(snap.VersionID), shortID(snap.RunID), snap.Step, len(snap.Dents))
	return nil
}

// #endregion runner

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion helpers
