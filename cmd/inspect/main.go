package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/env"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/eval"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/logging"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/lspace"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/state"
	_ "modernc.org/sqlite"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// #region main

func main() {
	dbPath := flag.String("db", os.Getenv("REE_DB"), "path to ree.db")
	last := flag.Int("last", 20, "show N most recent snapshots")
	version := flag.String("version", "", "show single snapshot detail")
	run := flag.String("run", "", "show the step log of one run")
	rollback := flag.String("rollback", "", "make a snapshot active again")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/ree.db [--last N] [--version id] [--run id] [--rollback id] [--json]")
		os.Exit(2)
	}

	store, err := state.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *rollback != "":
		err = store.Rollback(*rollback)
		if err == nil {
			fmt.Printf("active snapshot is now %s\n", *rollback)
		}
	case *version != "":
		err = runDetailMode(store, *version, *jsonOut)
	case *run != "":
		err = runStepsMode(store, *run, *last, *jsonOut)
	default:
		err = runListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	VersionID string  `json:"version_id"`
	ParentID  string  `json:"parent_id,omitempty"`
	RunID     string  `json:"run_id"`
	Step      int     `json:"step"`
	Dents     int     `json:"dents"`
	BetaAlpha float64 `json:"beta_alpha"`
	Active    bool    `json:"active"`
	CreatedAt string  `json:"created_at"`
}

func runListMode(store *state.Store, last int, jsonOut bool) error {
	versions, err := store.ListVersions(last)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(os.Stderr, "no snapshots found")
		return nil
	}
	activeID := ""
	if cur, err := store.GetCurrent(); err == nil {
		activeID = cur.VersionID
	}

	// Store returns newest first; print chronologically.
	rows := make([]listRow, len(versions))
	for i, v := range versions {
		rows[len(versions)-1-i] = listRow{
			VersionID: v.VersionID,
			ParentID:  v.ParentID,
			RunID:     v.RunID,
			Step:      v.Step,
			Dents:     v.DentCount,
			BetaAlpha: v.BetaAlpha,
			Active:    v.VersionID == activeID,
			CreatedAt: v.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("%-10s  %-10s  %6s  %6s  %8s  %s", "Version", "Run", "Step", "Dents", "β alpha", "Time")))
	for _, r := range rows {
		marker := " "
		if r.Active {
			marker = okStyle.Render("*")
		}
		fmt.Printf("%s%-9s  %-10s  %6d  %6d  %8.3f  %s\n",
			marker, shortID(r.VersionID), shortID(r.RunID), r.Step, r.Dents, r.BetaAlpha, labelStyle.Render(r.CreatedAt))
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	VersionID string             `json:"version_id"`
	ParentID  string             `json:"parent_id"`
	RunID     string             `json:"run_id"`
	Step      int                `json:"step"`
	CreatedAt string             `json:"created_at"`
	Alphas    map[string]float64 `json:"alphas"`
	Health    eval.EvalResult    `json:"health"`
	Dents     []dentRow          `json:"dents"`
}

type dentRow struct {
	Magnitude float64 `json:"magnitude"`
	Sigma     float64 `json:"sigma"`
	Norm      float64 `json:"center_norm"`
}

func runDetailMode(store *state.Store, versionID string, jsonOut bool) error {
	snap, err := store.GetVersion(versionID)
	if err != nil {
		return err
	}

	out := detailOutput{
		VersionID: snap.VersionID,
		ParentID:  snap.ParentID,
		RunID:     snap.RunID,
		Step:      snap.Step,
		CreatedAt: snap.CreatedAt.Format("2006-01-02T15:04:05Z"),
		Alphas:    make(map[string]float64, len(snap.Alphas)),
		Health:    eval.NewEvalHarness(eval.DefaultEvalConfig()).Run(snap.Latent, nil),
	}
	for d, a := range snap.Alphas {
		out.Alphas[string(d)] = a
	}
	for _, d := range snap.Dents {
		out.Dents = append(out.Dents, dentRow{Magnitude: d.Magnitude, Sigma: d.Sigma, Norm: norm(d.Center)})
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Println(headerStyle.Render("Snapshot " + out.VersionID))
	fmt.Printf("%s %s\n", labelStyle.Render("Parent: "), out.ParentID)
	fmt.Printf("%s %s\n", labelStyle.Render("Run:    "), out.RunID)
	fmt.Printf("%s %d\n", labelStyle.Render("Step:   "), out.Step)
	fmt.Printf("%s %s\n", labelStyle.Render("Created:"), out.CreatedAt)

	fmt.Println(headerStyle.Render("\nDepths"))
	for _, d := range lspace.Depths {
		fmt.Printf("  %-6s alpha %.3f  dim %d\n", d, snap.Alphas[d], len(snap.Latent.Depth(d)))
	}
	for _, m := range out.Health.Metrics {
		mark := okStyle.Render("ok")
		if !m.Pass {
			mark = badStyle.Render("!!")
		}
		fmt.Printf("  %-16s %10.4f  %s\n", m.Name, m.Value, mark)
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("\nResidue (%d dents)", len(out.Dents))))
	for i, d := range out.Dents {
		fmt.Printf("  #%-3d magnitude %.3f  sigma %.3f  |center| %.3f\n", i, d.Magnitude, d.Sigma, d.Norm)
	}
	return nil
}

// #endregion detail-mode

// #region steps-mode

func runStepsMode(store *state.Store, runID string, last int, jsonOut bool) error {
	steps, err := logging.ListSteps(store.DB(), runID, 0)
	if err != nil {
		return err
	}
	if last > 0 && len(steps) > last {
		steps = steps[len(steps)-last:]
	}
	if jsonOut {
		return printJSON(steps)
	}
	if len(steps) == 0 {
		fmt.Fprintln(os.Stderr, "no steps logged for run", runID)
		return nil
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("%5s  %-5s  %7s  %7s  %7s  %7s  %5s  %s", "Step", "Act", "Score", "Real", "Eth", "Resid", "Dents", "Notes")))
	for _, s := range steps {
		var notes []string
		if s.LiveEthical > 0 {
			notes = append(notes, badStyle.Render(fmt.Sprintf("harm %.2f", s.LiveEthical)))
		}
		if s.Slept {
			notes = append(notes, labelStyle.Render("sleep"))
		}
		fmt.Printf("%5d  %-5s  %7.3f  %7.3f  %7.3f  %7.3f  %5d  %s\n",
			s.Step, env.ActionName(env.Action(s.Action)), s.Score, s.RealityCost, s.EthicalCost, s.ResidueCost, s.DentCount, strings.Join(notes, " "))
	}
	return nil
}

// #endregion steps-mode

// #region output

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
