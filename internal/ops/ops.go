package ops

import (
	"context"
	"database/sql"
	"sync"

	"go.uber.org/zap"

	"github.com/hpungsan/voidmem/internal/config"
	"github.com/hpungsan/voidmem/internal/db"
	"github.com/hpungsan/voidmem/internal/errors"
	"github.com/hpungsan/voidmem/internal/memory"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
	DefaultTopLimit  = 10
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Session binds a manager to the snapshot store it was loaded from.
type Session struct {
	DB      *sql.DB
	Config  *config.Config
	Logger  *zap.Logger
	Store   string
	Manager *memory.Manager

	// SnapshotID is the snapshot the manager was restored from, if any.
	SnapshotID string

	// Recovered holds the load error when the latest snapshot was unreadable
	// and the session started from an empty manager instead.
	Recovered error

	mu sync.Mutex
}

// Lock serializes callers that share the session across surfaces, such as
// the MCP server and the dashboard running in one process. Operations in
// this package do not lock on their own.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the lock taken by Lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// OpenSession restores the latest snapshot of cfg.Store, or starts an empty
// manager when the store has none.
func OpenSession(ctx context.Context, database *sql.DB, cfg *config.Config, logger *zap.Logger) (*Session, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	store := cfg.Store
	if store == "" {
		store = "default"
	}
	s := &Session{DB: database, Config: cfg, Logger: logger, Store: store}

	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}

	// New events must sort after everything already archived, even when the
	// snapshot is older than the archive or missing.
	archived, err := db.MaxEventSequence(database, store)
	if err != nil {
		return nil, err
	}
	opts := []memory.Option{memory.WithLogger(logger), memory.WithEventSequence(archived)}

	row, err := db.LatestSnapshot(database, store)
	switch {
	case errors.Is(err, errors.ErrNotFound):
		s.Manager, err = memory.New(params, opts...)
		return s, err
	case err != nil:
		return nil, err
	}

	m, err := memory.Load(row.Body, opts...)
	if err != nil {
		if !errors.IsPersistence(err) {
			return nil, err
		}
		logger.Warn("latest snapshot unreadable, starting empty",
			zap.String("store", store),
			zap.String("snapshot", row.ID),
			zap.Error(err))
		s.Recovered = err
		s.Manager, err = memory.New(params, opts...)
		return s, err
	}

	s.Manager = m
	s.SnapshotID = row.ID
	logger.Debug("session restored",
		zap.String("store", store),
		zap.String("snapshot", row.ID),
		zap.Int64("tick", m.CurrentTick()))
	return s, nil
}

// CommitOutput reports what Commit persisted.
type CommitOutput struct {
	SnapshotID string `json:"snapshot_id"`
	Archived   int    `json:"archived_events"`
	Pruned     int    `json:"pruned_snapshots"`
}

// Commit archives buffered events, then stores a snapshot and applies the
// retention policy.
func (s *Session) Commit(ctx context.Context) (*CommitOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	_, archived, err := s.archiveEvents()
	if err != nil {
		return nil, err
	}

	row, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	if err := db.InsertSnapshot(s.DB, row); err != nil {
		return nil, err
	}
	s.SnapshotID = row.ID

	pruned := 0
	if keep := s.Config.SnapshotRetention; keep > 0 {
		pruned, err = db.PruneSnapshots(s.DB, s.Store, keep)
		if err != nil {
			return nil, err
		}
	}

	s.Logger.Debug("session committed",
		zap.String("store", s.Store),
		zap.String("snapshot", row.ID),
		zap.Int("archived", archived),
		zap.Int("pruned", pruned))
	return &CommitOutput{SnapshotID: row.ID, Archived: archived, Pruned: pruned}, nil
}

// archiveEvents writes the buffered events to the archive and only then
// removes them from the buffer. On error the buffer is left untouched.
func (s *Session) archiveEvents() ([]memory.Event, int, error) {
	events := s.Manager.PeekEvents(0)
	archived, err := db.ArchiveEvents(s.DB, s.Store, events)
	if err != nil {
		return nil, 0, err
	}
	if len(events) > 0 {
		s.Manager.DiscardThrough(events[len(events)-1].Sequence)
	}
	return events, archived, nil
}

// snapshot serializes the manager into an unsaved row.
func (s *Session) snapshot() (*db.SnapshotRow, error) {
	body, err := s.Manager.Save()
	if err != nil {
		return nil, err
	}
	st := s.Manager.Stats()
	return &db.SnapshotRow{
		Store:          s.Store,
		Version:        memory.SnapshotVersion,
		Tick:           st.Tick,
		ChunkCount:     st.Count,
		TerritoryCount: st.TerritoryCount,
		Body:           body,
	}, nil
}

// clampLimit applies the default when limit is unset and caps it at max.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
