package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/config"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/env"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/logging"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/replay"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/state"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to ree.db (DB mode)")
	runID := flag.String("run", "", "run to replay in DB mode (default: latest)")
	cfgPath := flag.String("config", "", "config the run was started with (DB mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/ree.db [--run id] [--config ree.yaml]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		exitCode = runDBMode(*dbPath, *runID, *cfgPath)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region db-extract

func runDBMode(dbPath, runID, cfgPath string) int {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	store, err := state.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()

	if runID == "" {
		runID, err = latestRun(store.DB())
		if err != nil {
			fmt.Fprintf(os.Stderr, "find latest run: %v\n", err)
			return 2
		}
	}

	steps, err := logging.ListSteps(store.DB(), runID, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list steps: %v\n", err)
		return 2
	}
	if len(steps) == 0 {
		fmt.Fprintf(os.Stderr, "no steps logged for run %s\n", runID)
		return 2
	}

	return replayFixture(replay.FromSteps("run "+runID, cfg, steps))
}

// latestRun returns the run that logged the most recent step.
func latestRun(db *sql.DB) (string, error) {
	var runID string
	err := db.QueryRow(`SELECT run_id FROM step_log ORDER BY id DESC LIMIT 1`).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.New("step_log is empty")
	}
	return runID, err
}

// #endregion db-extract

// #region output

func runFixtureMode(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	return replayFixture(f)
}

func replayFixture(f *replay.Fixture) int {
	result, err := replay.Replay(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}
	printComparison(f, result)

	s := replay.Summarize(result)
	fmt.Printf("\nSummary: %d steps, %d harmful, %d dents added, %d sleeps, %d eval failures\n",
		s.TotalSteps, s.HarmfulSteps, s.DentsAdded, s.Sleeps, s.EvalFailures)
	fmt.Printf("total_reality_cost=%.3f total_ethical_cost=%.3f dents=%d beta_alpha=%.3f\n",
		s.TotalReality, s.TotalEthical, s.FinalDents, s.BetaAlpha)

	if s.Mismatches > 0 {
		fmt.Printf("\n%d mismatches:\n", s.Mismatches)
		for _, m := range result.Mismatches {
			fmt.Println("  " + m.String())
		}
		return 1
	}
	return 0
}

// printComparison outputs one row per pinned step.
func printComparison(f *replay.Fixture, result replay.ReplayResult) {
	fmt.Printf("%-6s| %-10s| %-10s| %-6s| %s\n", "Step", "Expected", "Replayed", "Dents", "Match")
	fmt.Printf("%-6s+%-11s+%-11s+%-7s+%s\n", "------", "-----------", "-----------", "-------", "------")

	bad := make(map[int]bool, len(result.Mismatches))
	for _, m := range result.Mismatches {
		bad[m.Step] = true
	}
	for _, e := range f.Expected {
		if e.Step < 1 || e.Step > len(result.Steps) {
			fmt.Printf("%-6d| %-10s| %-10s| %-6s| %s\n", e.Step, expectedAction(e), "-", "-", "MISSING")
			continue
		}
		r := result.Steps[e.Step-1]
		match := "OK"
		if bad[e.Step] {
			match = "DIFF"
		}
		fmt.Printf("%-6d| %-10s| %-10s| %-6d| %s\n", e.Step, expectedAction(e), env.ActionName(r.Action), r.Dents, match)
	}
}

func expectedAction(e replay.ExpectedStep) string {
	if e.Action == nil {
		return "*"
	}
	return env.ActionName(env.Action(*e.Action))
}

// #endregion output
