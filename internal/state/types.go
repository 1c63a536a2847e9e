package state

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/lspace"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/residue"
)

// ErrVersionNotFound is returned when a snapshot ID does not exist.
var ErrVersionNotFound = errors.New("snapshot version not found")

// #region snapshot
// Snapshot is a versioned copy of everything an agent carries between
// steps: latent state, precision gains, and the residue field.
type Snapshot struct {
	VersionID   string
	ParentID    string
	RunID       string
	Step        int
	Latent      lspace.LatentState
	Alphas      map[lspace.Depth]float64
	Dents       []residue.Dent
	CreatedAt   time.Time
	MetricsJSON string
}

// #endregion snapshot

// #region snapshot-summary
// SnapshotSummary is the listing view used by inspect.
type SnapshotSummary struct {
	VersionID string
	ParentID  string
	RunID     string
	Step      int
	DentCount int
	BetaAlpha float64
	CreatedAt time.Time
}

// #endregion snapshot-summary
