package db

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/voidmem/internal/errors"
	"github.com/hpungsan/voidmem/internal/memory"
)

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a ULID that sorts after every id previously returned by
// this process.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// SnapshotRow is a stored manager snapshot. Body is the persisted JSON.
type SnapshotRow struct {
	ID             string `json:"id"`
	Store          string `json:"store"`
	Version        int    `json:"version"`
	Tick           int64  `json:"tick"`
	ChunkCount     int    `json:"chunk_count"`
	TerritoryCount int    `json:"territory_count"`
	Body           []byte `json:"-"`
	CreatedAt      int64  `json:"created_at"`
}

// InsertSnapshot stores a snapshot. ID and CreatedAt are filled in when empty.
func InsertSnapshot(db *sql.DB, s *SnapshotRow) error {
	if s.ID == "" {
		s.ID = NewID()
	}
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().Unix()
	}

	query := `
		INSERT INTO snapshots (
			id, store, version, tick, chunk_count, territory_count, body, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.Exec(query,
		s.ID, s.Store, s.Version, s.Tick, s.ChunkCount, s.TerritoryCount, s.Body, s.CreatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetSnapshot retrieves a snapshot with its body.
func GetSnapshot(db *sql.DB, id string) (*SnapshotRow, error) {
	query := `
		SELECT id, store, version, tick, chunk_count, territory_count, body, created_at
		FROM snapshots
		WHERE id = ?
	`
	s, err := scanSnapshot(db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("snapshot", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return s, nil
}

// LatestSnapshot retrieves the newest snapshot of a store with its body.
func LatestSnapshot(db *sql.DB, store string) (*SnapshotRow, error) {
	query := `
		SELECT id, store, version, tick, chunk_count, territory_count, body, created_at
		FROM snapshots
		WHERE store = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	s, err := scanSnapshot(db.QueryRow(query, store))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("snapshot", store)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return s, nil
}

// ListSnapshots returns snapshot metadata, newest first, without bodies,
// plus the total number of snapshots in the store.
func ListSnapshots(db *sql.DB, store string, limit, offset int) ([]SnapshotRow, int, error) {
	var total int
	if err := db.QueryRow(`SELECT COUNT(*) FROM snapshots WHERE store = ?`, store).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `
		SELECT id, store, version, tick, chunk_count, territory_count, created_at
		FROM snapshots
		WHERE store = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := db.Query(query, store, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []SnapshotRow{}
	for rows.Next() {
		var s SnapshotRow
		if err := rows.Scan(&s.ID, &s.Store, &s.Version, &s.Tick, &s.ChunkCount, &s.TerritoryCount, &s.CreatedAt); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return out, total, nil
}

// PruneSnapshots deletes all but the newest keep snapshots of a store and
// returns how many were removed.
func PruneSnapshots(db *sql.DB, store string, keep int) (int, error) {
	if keep < 1 {
		return 0, errors.NewValidationf("keep must be >= 1, got %d", keep)
	}
	query := `
		DELETE FROM snapshots
		WHERE store = ? AND id NOT IN (
			SELECT id FROM snapshots
			WHERE store = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
	`
	result, err := db.Exec(query, store, store, keep)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

func scanSnapshot(row *sql.Row) (*SnapshotRow, error) {
	var s SnapshotRow
	err := row.Scan(&s.ID, &s.Store, &s.Version, &s.Tick, &s.ChunkCount, &s.TerritoryCount, &s.Body, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// EventRow is an archived lifecycle event.
type EventRow struct {
	Store      string          `json:"store"`
	Sequence   uint64          `json:"sequence"`
	Tick       int64           `json:"tick"`
	Type       string          `json:"type"`
	Details    json.RawMessage `json:"details,omitempty"`
	ArchivedAt int64           `json:"archived_at"`
}

// EventFilter narrows ListEvents. Zero values mean no filter.
type EventFilter struct {
	Type          string
	AfterSequence uint64
	Limit         int
}

// ArchiveEvents appends events to the archive in one transaction. Events
// whose sequence is already archived for the store are skipped. It returns
// the number of rows written.
func ArchiveEvents(db *sql.DB, store string, events []memory.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO events (store, sequence, tick, type, details, archived_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	written := 0
	for _, e := range events {
		var details sql.NullString
		if len(e.Details) > 0 {
			data, err := json.Marshal(e.Details)
			if err != nil {
				return 0, errors.NewInternal(err)
			}
			details = sql.NullString{String: string(data), Valid: true}
		}
		result, err := stmt.Exec(store, e.Sequence, e.Tick, string(e.Type), details, now)
		if err != nil {
			return 0, errors.NewInternal(err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, errors.NewInternal(err)
		}
		written += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.NewInternal(err)
	}
	return written, nil
}

// MaxEventSequence returns the highest archived sequence of a store, or 0
// when nothing is archived.
func MaxEventSequence(db *sql.DB, store string) (uint64, error) {
	var seq uint64
	err := db.QueryRow(`SELECT COALESCE(MAX(sequence), 0) FROM events WHERE store = ?`, store).Scan(&seq)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return seq, nil
}

// ListEvents returns archived events of a store in sequence order.
func ListEvents(db *sql.DB, store string, f EventFilter) ([]EventRow, error) {
	query := `
		SELECT store, sequence, tick, type, details, archived_at
		FROM events
		WHERE store = ? AND sequence > ?
	`
	args := []any{store, f.AfterSequence}
	if f.Type != "" {
		query += " AND type = ?"
		args = append(args, f.Type)
	}
	query += " ORDER BY sequence ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []EventRow{}
	for rows.Next() {
		var (
			e       EventRow
			details sql.NullString
		)
		if err := rows.Scan(&e.Store, &e.Sequence, &e.Tick, &e.Type, &details, &e.ArchivedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		if details.Valid && details.String != "" {
			e.Details = json.RawMessage(details.String)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// DrillRow records one disaster recovery drill.
type DrillRow struct {
	ID         string `json:"id"`
	Store      string `json:"store"`
	Status     string `json:"status"`
	Anomalies  int    `json:"anomalies"`
	SnapshotID string `json:"snapshot_id,omitempty"`
	RunDir     string `json:"run_dir,omitempty"`
	Report     string `json:"-"`
	CreatedAt  int64  `json:"created_at"`
}

// InsertDrill stores a drill record. ID and CreatedAt are filled in when empty.
func InsertDrill(db *sql.DB, d *DrillRow) error {
	if d.ID == "" {
		d.ID = NewID()
	}
	if d.CreatedAt == 0 {
		d.CreatedAt = time.Now().Unix()
	}

	query := `
		INSERT INTO drills (id, store, status, anomalies, snapshot_id, run_dir, report, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.Exec(query,
		d.ID, d.Store, d.Status, d.Anomalies,
		toNullString(d.SnapshotID), toNullString(d.RunDir), toNullString(d.Report), d.CreatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListDrills returns the newest drills of a store, without reports.
func ListDrills(db *sql.DB, store string, limit int) ([]DrillRow, error) {
	query := `
		SELECT id, store, status, anomalies, snapshot_id, run_dir, created_at
		FROM drills
		WHERE store = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	rows, err := db.Query(query, store, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []DrillRow{}
	for rows.Next() {
		var (
			d                  DrillRow
			snapshotID, runDir sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.Store, &d.Status, &d.Anomalies, &snapshotID, &runDir, &d.CreatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		d.SnapshotID = snapshotID.String
		d.RunDir = runDir.String
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// toNullString maps the empty string to NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
