package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/hpungsan/voidmem/internal/chunk"
	"github.com/hpungsan/voidmem/internal/errors"
)

// SnapshotVersion is the only snapshot format this package reads and writes.
const SnapshotVersion = 1

// Snapshot is the persisted form of a Manager. Buffered events are not
// part of it; event_sequence continues where it left off.
type Snapshot struct {
	Version         int                 `json:"version"`
	Tick            int64               `json:"tick"`
	EventSequence   uint64              `json:"event_sequence"`
	NextTerritoryID int64               `json:"next_territory_id"`
	TotalRegistered uint64              `json:"total_registered"`
	TotalPruned     uint64              `json:"total_pruned"`
	Splits          uint64              `json:"splits"`
	Merges          uint64              `json:"merges"`
	RewardEMA       float64             `json:"reward_ema"`
	Params          Params              `json:"params"`
	Chunks          []State             `json:"chunks"`
	Territories     []Territory         `json:"territories"`
	Engrams         map[string][]string `json:"engrams"`
}

// Save serializes the full state as indented JSON. Chunks and territories
// are sorted by id, so equal states produce identical bytes.
func (m *Manager) Save() ([]byte, error) {
	m.mu.Lock()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("encode snapshot: %w", err))
	}
	return append(data, '\n'), nil
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{
		Version:         SnapshotVersion,
		Tick:            m.tick,
		EventSequence:   m.eventSeq,
		NextTerritoryID: m.nextTerritoryID,
		TotalRegistered: m.totalRegistered,
		TotalPruned:     m.totalPruned,
		Splits:          m.splits,
		Merges:          m.merges,
		RewardEMA:       m.rewardEMA,
		Params:          m.params,
		Chunks:          make([]State, 0, len(m.chunks)),
		Territories:     make([]Territory, 0, len(m.territories)),
		Engrams:         make(map[string][]string, len(m.engrams)),
	}
	for _, id := range m.sortedChunkIDs() {
		snap.Chunks = append(snap.Chunks, m.chunks[id].view())
	}
	for _, id := range m.sortedTerritoryIDs() {
		snap.Territories = append(snap.Territories, m.territories[id].view())
	}
	for k, v := range m.engrams {
		snap.Engrams[k] = append([]string(nil), v...)
	}
	return snap
}

// Load rebuilds a Manager from Save output. Unknown versions fail with
// PERSISTENCE_VERSION; anything malformed or inconsistent fails with
// PERSISTENCE_FORMAT.
func Load(data []byte, opts ...Option) (*Manager, error) {
	var head struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, errors.NewPersistenceFormat(fmt.Sprintf("snapshot is not valid JSON: %v", err))
	}
	if head.Version == nil {
		return nil, errors.NewPersistenceFormat("snapshot has no version field")
	}
	if *head.Version != SnapshotVersion {
		return nil, errors.NewPersistenceVersion(*head.Version, SnapshotVersion)
	}

	var snap Snapshot
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snap); err != nil {
		return nil, errors.NewPersistenceFormat(fmt.Sprintf("decode snapshot: %v", err))
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, errors.NewPersistenceFormat("unexpected data after snapshot")
	}

	m, err := fromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func fromSnapshot(snap Snapshot) (*Manager, error) {
	formatErr := func(format string, args ...any) error {
		return errors.NewPersistenceFormat(fmt.Sprintf(format, args...))
	}

	if err := snap.Params.Validate(); err != nil {
		return nil, formatErr("invalid params: %v", err)
	}
	if snap.Tick < 0 {
		return nil, formatErr("negative tick %d", snap.Tick)
	}
	if !finite(snap.RewardEMA) || snap.RewardEMA < 0 || snap.RewardEMA > 1 {
		return nil, formatErr("reward_ema out of range: %v", snap.RewardEMA)
	}
	if snap.NextTerritoryID < 1 {
		return nil, formatErr("next_territory_id must be >= 1, got %d", snap.NextTerritoryID)
	}

	m := newManager(snap.Params)
	m.tick = snap.Tick
	m.eventSeq = snap.EventSequence
	m.nextTerritoryID = snap.NextTerritoryID
	m.totalRegistered = snap.TotalRegistered
	m.totalPruned = snap.TotalPruned
	m.splits = snap.Splits
	m.merges = snap.Merges
	m.rewardEMA = snap.RewardEMA

	for i := range snap.Chunks {
		s := snap.Chunks[i]
		if s.ID == "" {
			return nil, formatErr("chunk %d has empty id", i)
		}
		if _, dup := m.chunks[s.ID]; dup {
			return nil, formatErr("duplicate chunk id %q", s.ID)
		}
		if !s.healthy() || s.Confidence < 0 || s.Confidence > 1 || s.Novelty < 0 || s.Novelty > 1 ||
			s.Boredom < 0 || s.UseCount < 0 {
			return nil, formatErr("chunk %q has out-of-range state", s.ID)
		}
		s.features = chunk.Extract(s.RawText)
		m.chunks[s.ID] = &s
	}

	claimed := 0
	for _, tv := range snap.Territories {
		if tv.ID < 1 || tv.ID >= snap.NextTerritoryID {
			return nil, formatErr("territory id %d outside [1,%d)", tv.ID, snap.NextTerritoryID)
		}
		if _, dup := m.territories[tv.ID]; dup {
			return nil, formatErr("duplicate territory id %d", tv.ID)
		}
		if len(tv.Members) == 0 {
			return nil, formatErr("territory %d has no members", tv.ID)
		}
		if tv.LastSplitTick < neverTick || tv.LastMergeTick < neverTick {
			return nil, formatErr("territory %d has invalid split/merge tick", tv.ID)
		}

		t := newTerritory(tv.ID, tv.CreatedTick)
		t.lastSplitTick = tv.LastSplitTick
		t.lastMergeTick = tv.LastMergeTick
		for _, id := range tv.Members {
			s, ok := m.chunks[id]
			if !ok {
				return nil, formatErr("territory %d references unknown chunk %q", tv.ID, id)
			}
			if s.TerritoryID != tv.ID {
				return nil, formatErr("chunk %q claims territory %d but is listed in %d", id, s.TerritoryID, tv.ID)
			}
			if _, dup := t.members[id]; dup {
				return nil, formatErr("territory %d lists chunk %q twice", tv.ID, id)
			}
			t.addMember(s)
			claimed++
		}
		if !sameCentroid(t.centroid, tv.Centroid) {
			return nil, formatErr("territory %d centroid does not match its members", tv.ID)
		}
		m.territories[t.id] = t
	}
	if claimed != len(m.chunks) {
		return nil, formatErr("%d chunks are not assigned to any territory", len(m.chunks)-claimed)
	}

	summaries := make([]string, 0, len(snap.Engrams))
	for k := range snap.Engrams {
		summaries = append(summaries, k)
	}
	sort.Strings(summaries)
	for _, summary := range summaries {
		members := snap.Engrams[summary]
		if summary == "" || len(members) < 2 {
			return nil, formatErr("engram %q needs a summary id and at least two members", summary)
		}
		for _, id := range members {
			if _, ok := m.chunks[id]; !ok {
				return nil, formatErr("engram %q references unknown chunk %q", summary, id)
			}
		}
		m.engrams[summary] = append([]string(nil), members...)
	}
	return m, nil
}

func sameCentroid(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// Restore replaces this manager's state with a snapshot. On any error the
// current state is left untouched. Logger and condenser are kept, and the
// event sequence never moves backwards.
func (m *Manager) Restore(data []byte) error {
	loaded, err := Load(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = loaded.params
	m.tick = loaded.tick
	if loaded.eventSeq > m.eventSeq {
		m.eventSeq = loaded.eventSeq
	}
	m.nextTerritoryID = loaded.nextTerritoryID
	m.totalRegistered = loaded.totalRegistered
	m.totalPruned = loaded.totalPruned
	m.splits = loaded.splits
	m.merges = loaded.merges
	m.rewardEMA = loaded.rewardEMA
	m.chunks = loaded.chunks
	m.territories = loaded.territories
	m.engrams = loaded.engrams
	m.events = newEventBuffer(loaded.params.EventBufferSize)
	m.pendingCondense = nil
	return nil
}

// Clone returns an independent copy built through a save/load round trip.
// The copy has no buffered events and no condenser.
func (m *Manager) Clone() (*Manager, error) {
	data, err := m.Save()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	logger := m.logger
	m.mu.Unlock()
	return Load(data, WithLogger(logger))
}
