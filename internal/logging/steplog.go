package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/agent"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/lspace"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/sleep"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region log-step
// LogStep writes one agent step to the step_log table.
func LogStep(db *sql.DB, entry StepEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	slept := 0
	if entry.Slept {
		slept = 1
	}

	_, err := db.Exec(
		`INSERT INTO step_log (run_id, step, action, score, reality_cost, ethical_cost, residue_cost, live_ethical, dent_count, beta_alpha, slept, sleep_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.Step,
		entry.Action,
		entry.Score,
		entry.RealityCost,
		entry.EthicalCost,
		entry.ResidueCost,
		entry.LiveEthical,
		entry.DentCount,
		entry.BetaAlpha,
		slept,
		nullIfEmpty(entry.SleepJSON),
		entry.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("log step: %w", err)
	}
	return nil
}

// #endregion log-step

// #region entry-from-result
// EntryFromResult flattens an agent step into a log row.
func EntryFromResult(runID string, a *agent.Agent, res agent.StepResult) (StepEntry, error) {
	entry := StepEntry{
		RunID:       runID,
		Step:        a.StepCount(),
		Action:      int(res.Info.Action),
		Score:       res.Info.Score,
		RealityCost: res.Info.RealityCost,
		EthicalCost: res.Info.EthicalCost,
		ResidueCost: res.Info.ResidueCost,
		LiveEthical: res.EthicalCost,
		DentCount:   a.Residue().Count(),
		BetaAlpha:   a.Stack().Alpha(lspace.Beta),
	}
	if res.Sleep != nil {
		b, err := json.Marshal(sleepRecord(*res.Sleep))
		if err != nil {
			return entry, fmt.Errorf("marshal sleep: %w", err)
		}
		entry.Slept = true
		entry.SleepJSON = string(b)
	}
	return entry, nil
}

func sleepRecord(r sleep.Report) SleepRecord {
	return SleepRecord{
		DentsBefore:     r.DentsBefore,
		DentsAfter:      r.DentsAfter,
		MagnitudeBefore: r.MagnitudeBefore,
		MagnitudeAfter:  r.MagnitudeAfter,
		BetaAlphaBefore: r.BetaAlphaBefore,
		BetaAlphaAfter:  r.BetaAlphaAfter,
	}
}

// #endregion entry-from-result

// #region list-steps
// ListSteps returns the logged steps of a run in step order. A limit of
// zero or less returns every row.
func ListSteps(db *sql.DB, runID string, limit int) ([]StepEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(
		`SELECT run_id, step, action, score, reality_cost, ethical_cost, residue_cost, live_ethical, dent_count, beta_alpha, slept, sleep_json, created_at
		 FROM step_log WHERE run_id = ? ORDER BY step ASC, id ASC LIMIT ?`, runID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var out []StepEntry
	for rows.Next() {
		var e StepEntry
		var slept int
		var sleepJSON sql.NullString
		var createdStr string
		if err := rows.Scan(&e.RunID, &e.Step, &e.Action, &e.Score, &e.RealityCost, &e.EthicalCost,
			&e.ResidueCost, &e.LiveEthical, &e.DentCount, &e.BetaAlpha, &slept, &sleepJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		e.Slept = slept != 0
		if sleepJSON.Valid {
			e.SleepJSON = sleepJSON.String
		}
		e.CreatedAt, _ = time.Parse(timeLayout, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion list-steps

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
