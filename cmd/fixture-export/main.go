package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/config"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/logging"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/replay"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/state"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to ree.db")
	runID := flag.String("run", "", "run to export (default: latest)")
	cfgPath := flag.String("config", "", "config the run was started with")
	last := flag.Int("last", 0, "pin only the first N steps (0 = all)")
	outPath := flag.String("out", "", "output fixture JSON path")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/ree.db --out path/to/fixture.json [--run id] [--config ree.yaml] [--last N]")
		os.Exit(2)
	}

	if err := run(*dbPath, *runID, *cfgPath, *last, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(dbPath, runID, cfgPath string, last int, outPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	store, err := state.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	db := store.DB()
	if runID == "" {
		if runID, err = latestRun(db); err != nil {
			return err
		}
	}

	// Steps are replayed from a fresh reset, so only a prefix can be pinned.
	steps, err := logging.ListSteps(db, runID, last)
	if err != nil {
		return fmt.Errorf("list steps: %w", err)
	}
	if len(steps) == 0 {
		return fmt.Errorf("no steps logged for run %s", runID)
	}

	f := replay.FromSteps(fmt.Sprintf("exported from run %s (%d steps)", runID, len(steps)), cfg, steps)
	if err := f.Save(outPath); err != nil {
		return err
	}

	harmful := 0
	for _, s := range steps {
		if s.LiveEthical > 0 {
			harmful++
		}
	}
	fmt.Printf("Exported %d steps (%d harmful) from run %s to %s\n", len(steps), harmful, runID, outPath)
	return nil
}

func latestRun(db *sql.DB) (string, error) {
	var runID string
	err := db.QueryRow(`SELECT run_id FROM step_log ORDER BY id DESC LIMIT 1`).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.New("step_log is empty")
	}
	if err != nil {
		return "", fmt.Errorf("find latest run: %w", err)
	}
	return runID, nil
}

// #endregion extract
