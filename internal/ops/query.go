package ops

import (
	"context"

	"github.com/hpungsan/voidmem/internal/memory"
)

// StatsOutput is the manager summary plus event buffer state.
type StatsOutput struct {
	memory.Stats
	Store          string `json:"store"`
	SnapshotID     string `json:"snapshot_id,omitempty"`
	BufferedEvents int    `json:"buffered_events"`
	DroppedEvents  uint64 `json:"dropped_events"`
}

// Stats summarizes the session's manager.
func Stats(ctx context.Context, s *Session) (*StatsOutput, error) {
	buffered, dropped := s.Manager.EventBacklog()
	return &StatsOutput{
		Stats:          s.Manager.Stats(),
		Store:          s.Store,
		SnapshotID:     s.SnapshotID,
		BufferedEvents: buffered,
		DroppedEvents:  dropped,
	}, nil
}

// TopInput contains parameters for the Top operation.
type TopInput struct {
	N int
}

// TopOutput lists the best chunks by composite score.
type TopOutput struct {
	Items    []memory.Scored `json:"items"`
	Frontier []string        `json:"frontier"`
}

// Top returns the best N chunks. N defaults to 10 and is capped at memory.MaxTop.
func Top(ctx context.Context, s *Session, input TopInput) (*TopOutput, error) {
	n := clampLimit(input.N, DefaultTopLimit, memory.MaxTop)
	return &TopOutput{
		Items:    s.Manager.Top(n),
		Frontier: s.Manager.Frontier(),
	}, nil
}
