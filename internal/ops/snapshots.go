package ops

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/voidmem/internal/db"
	"github.com/hpungsan/voidmem/internal/errors"
	"github.com/hpungsan/voidmem/internal/memory"
)

// Checkpoint commits the session and returns what was written.
func Checkpoint(ctx context.Context, s *Session) (*CommitOutput, error) {
	return s.Commit(ctx)
}

// SnapshotsInput contains parameters for the Snapshots operation.
type SnapshotsInput struct {
	Limit  int
	Offset int
}

// SnapshotsOutput lists stored snapshots, newest first.
type SnapshotsOutput struct {
	Items      []db.SnapshotRow `json:"items"`
	Pagination Pagination       `json:"pagination"`
}

// Snapshots lists the store's snapshots without their bodies.
func Snapshots(ctx context.Context, s *Session, input SnapshotsInput) (*SnapshotsOutput, error) {
	if input.Offset < 0 {
		return nil, errors.NewValidation("offset must be >= 0")
	}
	limit := clampLimit(input.Limit, DefaultListLimit, MaxListLimit)

	rows, total, err := db.ListSnapshots(s.DB, s.Store, limit, input.Offset)
	if err != nil {
		return nil, err
	}
	return &SnapshotsOutput{
		Items: rows,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  input.Offset,
			HasMore: input.Offset+len(rows) < total,
			Total:   total,
		},
	}, nil
}

// RestoreInput contains parameters for the Restore operation.
type RestoreInput struct {
	SnapshotID string
}

// RestoreOutput contains the result of the Restore operation.
type RestoreOutput struct {
	SnapshotID string `json:"snapshot_id"`
	Tick       int64  `json:"tick"`
	Count      int    `json:"count"`
	Archived   int    `json:"archived_events"`
}

// Restore replaces the session's state with a stored snapshot. Buffered
// events are archived first. The session is not committed.
func Restore(ctx context.Context, s *Session, input RestoreInput) (*RestoreOutput, error) {
	id := strings.TrimSpace(input.SnapshotID)
	if id == "" {
		return nil, errors.NewValidation("snapshot_id is required")
	}
	row, err := db.GetSnapshot(s.DB, id)
	if err != nil {
		return nil, err
	}
	if row.Store != s.Store {
		return nil, errors.NewNotFound("snapshot", id)
	}

	// Validate before touching the buffer so a bad snapshot changes nothing.
	if _, err := memory.Load(row.Body); err != nil {
		return nil, err
	}

	_, archived, err := s.archiveEvents()
	if err != nil {
		return nil, err
	}
	if err := s.Manager.Restore(row.Body); err != nil {
		return nil, err
	}
	s.SnapshotID = row.ID

	s.Logger.Info("snapshot restored", zap.String("store", s.Store), zap.String("snapshot", row.ID))
	return &RestoreOutput{
		SnapshotID: row.ID,
		Tick:       s.Manager.CurrentTick(),
		Count:      s.Manager.Stats().Count,
		Archived:   archived,
	}, nil
}

// PruneSnapshotsInput contains parameters for the PruneSnapshots operation.
type PruneSnapshotsInput struct {
	Keep int
}

// PruneSnapshotsOutput contains the result of the PruneSnapshots operation.
type PruneSnapshotsOutput struct {
	Pruned  int    `json:"pruned"`
	Message string `json:"message"`
}

// PruneSnapshots permanently deletes all but the newest Keep snapshots.
func PruneSnapshots(ctx context.Context, s *Session, input PruneSnapshotsInput) (*PruneSnapshotsOutput, error) {
	count, err := db.PruneSnapshots(s.DB, s.Store, input.Keep)
	if err != nil {
		return nil, err
	}
	return &PruneSnapshotsOutput{
		Pruned:  count,
		Message: formatPruneMessage(count, s.Store, input.Keep),
	}, nil
}

// formatPruneMessage creates a human-readable message for the prune result.
func formatPruneMessage(count int, store string, keep int) string {
	if count == 0 {
		return fmt.Sprintf("No snapshots to prune in store %q", store)
	}
	word := "snapshot"
	if count > 1 {
		word = "snapshots"
	}
	return fmt.Sprintf("Permanently deleted %d %s from store %q (kept newest %d)", count, word, store, keep)
}
