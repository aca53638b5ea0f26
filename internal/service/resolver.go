package service

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/mkravets/notesync/models"
)

// Winner is the side of a divergence that the resolver picked.
type Winner string

const (
	// WinnerNone means the sides already agree and no transfer is needed.
	WinnerNone Winner = "none"

	WinnerLocal  Winner = "local"
	WinnerRemote Winner = "remote"

	// WinnerBoth keeps both versions: the remote copy stays at its path and
	// the local copy is uploaded under Resolution.AlternatePath.
	WinnerBoth Winner = "both"

	// WinnerManual raises a ConflictRecord and blocks the entity until the
	// host resolves it explicitly.
	WinnerManual Winner = "manual"
)

// Resolution is the resolver's verdict for one divergent entity.
type Resolution struct {
	Winner Winner

	// AlternatePath is set only for WinnerBoth: the disambiguated remote
	// path the local copy is uploaded to.
	AlternatePath string
}

// conflictResolver is the concrete implementation of the conflict decision
// table. It performs a purely in-memory comparison of the two content
// hashes; no storage layer or logger is required because the operation is
// stateless and produces no side effects.
type conflictResolver struct{}

// NewConflictResolver constructs a resolver ready for use. Because Resolve
// is a stateless, in-memory operation, no dependencies are needed.
func NewConflictResolver() ConflictResolver {
	return &conflictResolver{}
}

// ConflictResolver decides the winning side when local and remote copies of
// one entity diverge. Given a fixed input the verdict is always the same,
// so the decision table can be tested exhaustively.
type ConflictResolver interface {
	// Resolve classifies the divergence at remotePath. An empty hash means
	// that side has no copy of the entity. The timestamp is only used to
	// build the disambiguated path for CreateBoth; callers pass the run
	// start time so every entity of one run gets the same suffix.
	Resolve(remotePath, localHash, remoteHash string, policy models.ConflictPolicy, at time.Time) (Resolution, error)
}

func (r *conflictResolver) Resolve(remotePath, localHash, remoteHash string, policy models.ConflictPolicy, at time.Time) (Resolution, error) {
	// One side missing: the present side wins unconditionally. A create on
	// one side against nothing on the other is not a real conflict.
	switch {
	case localHash == "" && remoteHash == "":
		return Resolution{Winner: WinnerNone}, nil
	case remoteHash == "":
		return Resolution{Winner: WinnerLocal}, nil
	case localHash == "":
		return Resolution{Winner: WinnerRemote}, nil
	}

	// Both present with identical content: already in sync.
	if localHash == remoteHash {
		return Resolution{Winner: WinnerNone}, nil
	}

	switch policy {
	case models.PolicyLocalWins:
		return Resolution{Winner: WinnerLocal}, nil
	case models.PolicyRemoteWins:
		return Resolution{Winner: WinnerRemote}, nil
	case models.PolicyCreateBoth:
		return Resolution{
			Winner:        WinnerBoth,
			AlternatePath: conflictedCopyPath(remotePath, at),
		}, nil
	case models.PolicyManualMerge:
		return Resolution{Winner: WinnerManual}, nil
	default:
		return Resolution{}, fmt.Errorf("%w: %q", ErrUnknownConflictPolicy, policy)
	}
}

// conflictedCopyPath inserts a timestamped marker before the extension:
// "note/abc.json" becomes "note/abc (conflicted copy 2006-01-02 150405).json".
func conflictedCopyPath(remotePath string, at time.Time) string {
	ext := path.Ext(remotePath)
	base := strings.TrimSuffix(remotePath, ext)
	return fmt.Sprintf("%s (conflicted copy %s)%s", base, at.Format("2006-01-02 150405"), ext)
}
