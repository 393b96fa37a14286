package memory

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hpungsan/voidmem/internal/chunk"
	"github.com/hpungsan/voidmem/internal/errors"
)

// CondenseFunc summarizes a set of over-reinforced chunk texts. Returning
// ok=false declines; otherwise the summary is registered as a new chunk.
type CondenseFunc func(texts []string) (summaryID, summary string, ok bool)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for skipped chunks and structural changes.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithCondenser installs a condensation callback.
func WithCondenser(fn CondenseFunc) Option {
	return func(m *Manager) { m.condenser = fn }
}

// WithEventSequence makes the next event sequence start after seq. It never
// lowers the sequence a manager already carries.
func WithEventSequence(seq uint64) Option {
	return func(m *Manager) {
		if seq > m.eventSeq {
			m.eventSeq = seq
		}
	}
}

// Manager is the aggregate root: it owns every chunk and territory.
// All exported methods take one coarse lock.
type Manager struct {
	mu        sync.Mutex
	params    Params
	logger    *zap.Logger
	condenser CondenseFunc

	tick            int64
	eventSeq        uint64
	nextTerritoryID int64
	totalRegistered uint64
	totalPruned     uint64
	splits          uint64
	merges          uint64
	rewardEMA       float64

	chunks      map[string]*State
	territories map[int64]*territory
	engrams     map[string][]string
	events      *eventBuffer

	pendingCondense []string

	// pruneRounds caps prune passes when > 0; zero derives it from the store size.
	pruneRounds int
}

// New creates an empty manager.
func New(params Params, opts ...Option) (*Manager, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	m := newManager(params)
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func newManager(params Params) *Manager {
	return &Manager{
		params:          params,
		logger:          zap.NewNop(),
		nextTerritoryID: 1,
		chunks:          make(map[string]*State),
		territories:     make(map[int64]*territory),
		engrams:         make(map[string][]string),
		events:          newEventBuffer(params.EventBufferSize),
	}
}

// SetCondenser replaces the condensation callback; nil disables it.
func (m *Manager) SetCondenser(fn CondenseFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.condenser = fn
}

// Params returns the active tuning.
func (m *Manager) Params() Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params
}

// Reconfigure replaces the tuning. Existing state is kept as-is; new limits
// apply from the next operation.
func (m *Manager) Reconfigure(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = p
	m.events.resize(p.EventBufferSize)
	return nil
}

// CurrentTick returns the logical clock.
func (m *Manager) CurrentTick() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tick
}

// RegisterChunks creates or refreshes one chunk per id. Inputs are validated
// in full before anything changes.
func (m *Manager) RegisterChunks(ids, texts []string) error {
	if len(ids) != len(texts) {
		return errors.NewValidationf("ids and texts length mismatch: %d != %d", len(ids), len(texts))
	}
	for i, id := range ids {
		if id == "" {
			return errors.NewValidationf("ids[%d] is empty", i)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerLocked(ids, texts)
	return nil
}

func (m *Manager) registerLocked(ids, texts []string) {
	for i, id := range ids {
		text := texts[i]
		if s, ok := m.chunks[id]; ok {
			m.refresh(s, text)
			continue
		}

		s := newState(id, text, m.params, m.tick)
		m.chunks[id] = s
		m.totalRegistered++
		t := m.assign(s)
		m.emit(EventRegister, map[string]any{
			"id":        id,
			"territory": t.id,
			"chars":     s.features.Chars,
			"words":     s.features.Words,
			"tokens":    s.features.EstimatedTokens(),
			"duplicate": false,
		})
		m.maybeSplit(t)
	}
}

// refresh keeps learned state and only bumps recency; changed text updates
// the territory features in place and rechecks the territory for a split.
func (m *Manager) refresh(s *State, text string) {
	s.LastTouchedTick = m.tick
	changed := text != s.RawText
	if changed {
		t := m.territories[s.TerritoryID]
		t.removeTokens(s.features.Tokens)
		s.RawText = text
		s.features = chunk.Extract(text)
		t.addTokens(s.features.Tokens)
	}
	m.emit(EventRegister, map[string]any{
		"id":        s.ID,
		"territory": s.TerritoryID,
		"duplicate": true,
	})
	if changed {
		m.maybeSplit(m.territories[s.TerritoryID])
	}
}

// Remove deletes the given ids and returns how many were live.
func (m *Manager) Remove(ids ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, id := range ids {
		s, ok := m.chunks[id]
		if !ok {
			continue
		}
		m.removeChunk(s, ReasonRemoved, map[string]any{})
		n++
	}
	return n
}

// removeChunk drops a chunk everywhere it is referenced and emits a prune event.
func (m *Manager) removeChunk(s *State, reason string, details map[string]any) {
	delete(m.chunks, s.ID)
	if t, ok := m.territories[s.TerritoryID]; ok {
		t.removeMember(s)
		if len(t.members) == 0 {
			delete(m.territories, t.id)
		}
	}
	m.dropFromEngrams(s.ID)
	m.totalPruned++

	details["id"] = s.ID
	details["reason"] = reason
	details["territory"] = s.TerritoryID
	m.emit(EventPrune, details)
}

// Chunk returns a copy of one chunk's state.
func (m *Manager) Chunk(id string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.chunks[id]
	if !ok {
		return State{}, false
	}
	return s.view(), true
}

// Chunks returns copies of every chunk, sorted by id.
func (m *Manager) Chunks() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]State, 0, len(m.chunks))
	for _, id := range m.sortedChunkIDs() {
		out = append(out, m.chunks[id].view())
	}
	return out
}

// Territories returns copies of every territory, sorted by id.
func (m *Manager) Territories() []Territory {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Territory, 0, len(m.territories))
	for _, id := range m.sortedTerritoryIDs() {
		out = append(out, m.territories[id].view())
	}
	return out
}

// ConsumeEvents returns and clears the event buffer.
func (m *Manager) ConsumeEvents() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events.drain()
}

// PeekEvents copies up to limit buffered events without clearing them.
func (m *Manager) PeekEvents(limit int) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events.peek(limit)
}

// DiscardThrough removes buffered events whose sequence is at most seq and
// returns how many were removed. Events emitted later stay buffered.
func (m *Manager) DiscardThrough(seq uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events.discardThrough(seq)
}

// EventBacklog reports how many events are buffered and how many were
// dropped because the buffer was full.
func (m *Manager) EventBacklog() (buffered int, dropped uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events.events), m.events.dropped
}

func (s *State) view() State {
	v := *s
	v.features = chunk.Features{}
	return v
}

func (m *Manager) sortedChunkIDs() []string {
	ids := make([]string, 0, len(m.chunks))
	for id := range m.chunks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) sortedTerritoryIDs() []int64 {
	ids := make([]int64, 0, len(m.territories))
	for id := range m.territories {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
