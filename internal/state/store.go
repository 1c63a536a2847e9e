package state

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/lspace"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/residue"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	version_id    TEXT PRIMARY KEY,
	parent_id     TEXT,
	run_id        TEXT NOT NULL,
	step          INTEGER NOT NULL,
	latent        BLOB NOT NULL,
	alphas_json   TEXT NOT NULL,
	dents         BLOB NOT NULL,
	dent_count    INTEGER NOT NULL,
	created_at    TEXT NOT NULL,
	metrics_json  TEXT,
	FOREIGN KEY (parent_id) REFERENCES snapshots(version_id)
);

CREATE TABLE IF NOT EXISTS active_snapshot (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES snapshots(version_id)
);

CREATE TABLE IF NOT EXISTS step_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	step          INTEGER NOT NULL,
	action        INTEGER NOT NULL,
	score         REAL NOT NULL,
	reality_cost  REAL NOT NULL,
	ethical_cost  REAL NOT NULL,
	residue_cost  REAL NOT NULL,
	live_ethical  REAL NOT NULL,
	dent_count    INTEGER NOT NULL,
	beta_alpha    REAL NOT NULL,
	slept         INTEGER NOT NULL DEFAULT 0,
	sleep_json    TEXT,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_step_log_run ON step_log(run_id, step);
`

// #endregion schema

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region store-struct
// Store manages versioned agent snapshots in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing connection whose schema is already in place.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region new-snapshot
// NewSnapshot builds an uncommitted snapshot with a fresh version ID.
func NewSnapshot(parentID, runID string, step int, latent lspace.LatentState, alphas map[lspace.Depth]float64, dents []residue.Dent) Snapshot {
	a := make(map[lspace.Depth]float64, len(alphas))
	for d, v := range alphas {
		a[d] = v
	}
	return Snapshot{
		VersionID: uuid.New().String(),
		ParentID:  parentID,
		RunID:     runID,
		Step:      step,
		Latent:    latent.Clone(),
		Alphas:    a,
		Dents:     append([]residue.Dent(nil), dents...),
		CreatedAt: time.Now().UTC(),
	}
}

// #endregion new-snapshot

// #region commit-snapshot
// CommitSnapshot inserts a new version and moves the active pointer to it
// atomically.
func (s *Store) CommitSnapshot(snap Snapshot) error {
	alphasJSON, err := json.Marshal(snap.Alphas)
	if err != nil {
		return fmt.Errorf("marshal alphas: %w", err)
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO snapshots (version_id, parent_id, run_id, step, latent, alphas_json, dents, dent_count, created_at, metrics_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.VersionID, nullIfEmpty(snap.ParentID), snap.RunID, snap.Step,
		encodeLatent(snap.Latent), string(alphasJSON), encodeDents(snap.Dents), len(snap.Dents),
		snap.CreatedAt.Format(timeLayout), nullIfEmpty(snap.MetricsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_snapshot (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		snap.VersionID,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}

	return tx.Commit()
}

// #endregion commit-snapshot

// #region get-current
// GetCurrent reads the active snapshot.
func (s *Store) GetCurrent() (Snapshot, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_snapshot WHERE id = 1`).Scan(&versionID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(versionID)
}

// #endregion get-current

// #region get-version
// GetVersion retrieves a specific snapshot by ID.
func (s *Store) GetVersion(id string) (Snapshot, error) {
	var snap Snapshot
	var parentID, metricsJSON sql.NullString
	var latentBlob, dentBlob []byte
	var alphasJSON, createdStr string

	err := s.db.QueryRow(
		`SELECT version_id, parent_id, run_id, step, latent, alphas_json, dents, created_at, metrics_json
		 FROM snapshots WHERE version_id = ?`, id,
	).Scan(&snap.VersionID, &parentID, &snap.RunID, &snap.Step, &latentBlob, &alphasJSON, &dentBlob, &createdStr, &metricsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("get version %s: %w", id, ErrVersionNotFound)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get version %s: %w", id, err)
	}

	if parentID.Valid {
		snap.ParentID = parentID.String
	}
	if snap.Latent, err = decodeLatent(latentBlob); err != nil {
		return Snapshot{}, fmt.Errorf("decode latent: %w", err)
	}
	if snap.Dents, err = decodeDents(dentBlob); err != nil {
		return Snapshot{}, fmt.Errorf("decode dents: %w", err)
	}
	if err := json.Unmarshal([]byte(alphasJSON), &snap.Alphas); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal alphas: %w", err)
	}
	snap.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	if metricsJSON.Valid {
		snap.MetricsJSON = metricsJSON.String
	}
	return snap, nil
}

// #endregion get-version

// #region rollback
// Rollback sets the active pointer to a previous snapshot.
func (s *Store) Rollback(targetVersionID string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM snapshots WHERE version_id = ?`, targetVersionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("rollback %s: %w", targetVersionID, ErrVersionNotFound)
	}

	_, err = s.db.Exec(
		`INSERT INTO active_snapshot (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		targetVersionID,
	)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion rollback

// #region list-versions
// ListVersions returns summaries of the most recent snapshots, newest first.
func (s *Store) ListVersions(limit int) ([]SnapshotSummary, error) {
	rows, err := s.db.Query(
		`SELECT version_id, parent_id, run_id, step, alphas_json, dent_count, created_at
		 FROM snapshots ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []SnapshotSummary
	for rows.Next() {
		var sum SnapshotSummary
		var parentID sql.NullString
		var alphasJSON, createdStr string

		if err := rows.Scan(&sum.VersionID, &parentID, &sum.RunID, &sum.Step, &alphasJSON, &sum.DentCount, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if parentID.Valid {
			sum.ParentID = parentID.String
		}
		var alphas map[lspace.Depth]float64
		if err := json.Unmarshal([]byte(alphasJSON), &alphas); err != nil {
			return nil, fmt.Errorf("unmarshal alphas: %w", err)
		}
		sum.BetaAlpha = alphas[lspace.Beta]
		sum.CreatedAt, _ = time.Parse(timeLayout, createdStr)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// #endregion list-versions

// #region encoding
// Vectors are stored as a little-endian uint32 length followed by float32s.
func appendVector(buf []byte, v []float32) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v)))
	for _, f := range v {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

func readVector(b []byte) ([]float32, []byte, error) {
	if len(b) < 4 {
		return nil, nil, errors.New("truncated vector header")
	}
	n := int(binary.LittleEndian.Uint32(b))
	b = b[4:]
	if n > len(b)/4 {
		return nil, nil, fmt.Errorf("truncated vector: want %d values", n)
	}
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, b[n*4:], nil
}

func encodeLatent(s lspace.LatentState) []byte {
	var buf []byte
	for _, d := range lspace.Depths {
		buf = appendVector(buf, s.Depth(d))
	}
	return buf
}

func decodeLatent(b []byte) (lspace.LatentState, error) {
	vecs := make([][]float32, len(lspace.Depths))
	for i := range vecs {
		v, rest, err := readVector(b)
		if err != nil {
			return lspace.LatentState{}, fmt.Errorf("%s: %w", lspace.Depths[i], err)
		}
		vecs[i], b = v, rest
	}
	return lspace.LatentState{Gamma: vecs[0], Beta: vecs[1], Theta: vecs[2], Delta: vecs[3]}, nil
}

func encodeDents(dents []residue.Dent) []byte {
	buf := binary.LittleEndian.AppendUint32(nil, uint32(len(dents)))
	for _, d := range dents {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(d.Magnitude))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(d.Sigma))
		buf = appendVector(buf, d.Center)
	}
	return buf
}

func decodeDents(b []byte) ([]residue.Dent, error) {
	if len(b) < 4 {
		return nil, errors.New("truncated dent header")
	}
	n := int(binary.LittleEndian.Uint32(b))
	b = b[4:]
	// magnitude, sigma and an empty center take 20 bytes at minimum
	if n > len(b)/20 {
		return nil, fmt.Errorf("truncated dents: header claims %d", n)
	}
	dents := make([]residue.Dent, 0, n)
	for i := 0; i < n; i++ {
		if len(b) < 16 {
			return nil, fmt.Errorf("truncated dent %d", i)
		}
		d := residue.Dent{
			Magnitude: math.Float64frombits(binary.LittleEndian.Uint64(b)),
			Sigma:     math.Float64frombits(binary.LittleEndian.Uint64(b[8:])),
		}
		center, rest, err := readVector(b[16:])
		if err != nil {
			return nil, fmt.Errorf("dent %d: %w", i, err)
		}
		d.Center, b = center, rest
		dents = append(dents, d)
	}
	return dents, nil
}

// #endregion encoding

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
