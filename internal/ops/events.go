package ops

import (
	"context"

	"github.com/hpungsan/voidmem/internal/db"
	"github.com/hpungsan/voidmem/internal/errors"
	"github.com/hpungsan/voidmem/internal/memory"
)

// Event listing limits.
const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// DrainOutput holds the events removed from the buffer.
type DrainOutput struct {
	Events   []memory.Event `json:"events"`
	Archived int            `json:"archived"`
}

// Drain archives the event buffer and clears what was archived. A failed
// archive leaves the buffer as it was.
func Drain(ctx context.Context, s *Session) (*DrainOutput, error) {
	events, archived, err := s.archiveEvents()
	if err != nil {
		return nil, err
	}
	return &DrainOutput{Events: events, Archived: archived}, nil
}

// PeekInput contains parameters for the Peek operation.
type PeekInput struct {
	Limit int
}

// PeekOutput holds buffered events without consuming them.
type PeekOutput struct {
	Events   []memory.Event `json:"events"`
	Buffered int            `json:"buffered"`
	Dropped  uint64         `json:"dropped"`
}

// Peek copies the oldest buffered events.
func Peek(ctx context.Context, s *Session, input PeekInput) (*PeekOutput, error) {
	if input.Limit < 0 {
		return nil, errors.NewValidation("limit must be >= 0")
	}
	buffered, dropped := s.Manager.EventBacklog()
	return &PeekOutput{
		Events:   s.Manager.PeekEvents(input.Limit),
		Buffered: buffered,
		Dropped:  dropped,
	}, nil
}

// HistoryInput contains parameters for the History operation.
type HistoryInput struct {
	Type          string
	AfterSequence uint64
	Limit         int
}

// HistoryOutput lists archived events.
type HistoryOutput struct {
	Events []db.EventRow `json:"events"`
}

// History reads archived events in sequence order.
func History(ctx context.Context, s *Session, input HistoryInput) (*HistoryOutput, error) {
	rows, err := db.ListEvents(s.DB, s.Store, db.EventFilter{
		Type:          input.Type,
		AfterSequence: input.AfterSequence,
		Limit:         clampLimit(input.Limit, DefaultHistoryLimit, MaxHistoryLimit),
	})
	if err != nil {
		return nil, err
	}
	return &HistoryOutput{Events: rows}, nil
}
