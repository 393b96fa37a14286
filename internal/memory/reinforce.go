package memory

import (
	"sort"

	"github.com/hpungsan/voidmem/internal/errors"
)

// rewardAlpha is the smoothing factor of the reward moving average.
const rewardAlpha = 0.05

// Reinforce applies retrieval feedback. Unknown ids are reported as
// reinforce_miss events and never fail the batch.
func (m *Manager) Reinforce(batch Batch, heatGain float64, ttlBoost int) error {
	if err := batch.Validate(); err != nil {
		return err
	}
	if !finite(heatGain) || heatGain < 0 {
		return errors.NewValidationf("heat_gain must be a finite value >= 0, got %v", heatGain)
	}
	if ttlBoost < 0 {
		return errors.NewValidationf("ttl_boost must be >= 0, got %d", ttlBoost)
	}

	m.mu.Lock()
	touched := make(map[int64]struct{})
	for q, query := range batch.Queries {
		seen := make(map[string]struct{}, len(query.Matches))
		simSum, hits := 0.0, 0
		for _, match := range query.Matches {
			if _, dup := seen[match.ID]; dup {
				continue
			}
			seen[match.ID] = struct{}{}

			s, ok := m.chunks[match.ID]
			if !ok {
				miss := errors.NewReinforceMiss(match.ID)
				m.emit(EventReinforceMiss, map[string]any{
					"id":    match.ID,
					"query": q,
					"error": miss.Error(),
				})
				continue
			}

			sim := clamp01(1 - match.Distance)
			m.reinforceOne(s, q, sim, heatGain, ttlBoost)
			touched[s.TerritoryID] = struct{}{}
			simSum += sim
			hits++
		}
		if hits > 0 {
			m.rewardEMA = (1-rewardAlpha)*m.rewardEMA + rewardAlpha*(simSum/float64(hits))
		}
	}

	ids := make([]int64, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		m.maybeSplit(m.territories[id])
	}

	ids2, texts, fn := m.takeCondense()
	m.mu.Unlock()

	m.runCondenser(fn, ids2, texts)
	return nil
}

func (m *Manager) reinforceOne(s *State, query int, sim, heatGain float64, ttlBoost int) {
	confBefore, heatBefore := s.Confidence, s.Heat

	s.Confidence = clamp01(s.Confidence + sim*m.params.ReinforcementRate)

	if s.UseCount > 0 && m.tick-s.LastTouchedTick <= int64(m.params.BoredomGap) {
		s.Boredom++
	} else {
		s.Boredom = 0
	}

	s.Novelty -= m.params.HabituationScale / float64(1+s.UseCount)
	if s.Novelty < m.params.NoveltyFloor {
		s.Novelty = m.params.NoveltyFloor
	}
	s.Novelty = clamp01(s.Novelty)

	s.Heat = saturate(s.Heat + heatGain*sim)
	if ttlBoost >= m.params.MaxTTL-s.TTL {
		s.TTL = m.params.MaxTTL
	} else {
		s.TTL += ttlBoost
	}
	s.Mass = saturate(s.Mass + sim*(1+heatGain))
	s.UseCount++
	s.LastTouchedTick = m.tick

	m.emit(EventReinforce, map[string]any{
		"id":                s.ID,
		"query":             query,
		"similarity":        sim,
		"confidence_before": confBefore,
		"confidence_after":  s.Confidence,
		"heat_before":       heatBefore,
		"heat_after":        s.Heat,
	})

	if m.condenser != nil &&
		s.Boredom >= m.params.CondenseBoredom &&
		s.Confidence+epsilon >= m.params.CondenseConfidence &&
		s.Mass+epsilon >= m.params.CondenseMass {
		m.queueCondense(s.ID)
	}
}

// Degrade caps the ttl of each live id at ttlFloor and marks it as more
// habituated. It returns the number of chunks changed.
func (m *Manager) Degrade(ids []string, ttlFloor int) (int, error) {
	if ttlFloor < 1 {
		return 0, errors.NewValidationf("ttl_floor must be >= 1, got %d", ttlFloor)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		s, ok := m.chunks[id]
		if !ok {
			continue
		}
		if s.TTL > ttlFloor {
			s.TTL = ttlFloor
		}
		s.Boredom++
		n++
	}
	m.emit(EventDegrade, map[string]any{"count": n, "ttl_floor": ttlFloor})
	return n, nil
}

// RegisterEngram records summaryID as a consolidated group over at least
// two live members. It reports false when too few members are live.
func (m *Manager) RegisterEngram(summaryID string, memberIDs []string) (bool, error) {
	if summaryID == "" {
		return false, errors.NewValidation("summary id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engramLocked(summaryID, memberIDs), nil
}

func (m *Manager) engramLocked(summaryID string, memberIDs []string) bool {
	live := make([]string, 0, len(memberIDs))
	seen := make(map[string]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		if _, dup := seen[id]; dup || id == summaryID {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := m.chunks[id]; ok {
			live = append(live, id)
		}
	}
	if len(live) < 2 {
		return false
	}
	sort.Strings(live)

	for _, id := range live {
		m.chunks[id].Boredom++
	}
	m.engrams[summaryID] = live
	m.emit(EventEngram, map[string]any{
		"summary": summaryID,
		"members": len(live),
	})
	return true
}

// Engrams returns a copy of the recorded groups.
func (m *Manager) Engrams() map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]string, len(m.engrams))
	for k, v := range m.engrams {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func (m *Manager) dropFromEngrams(id string) {
	delete(m.engrams, id)
	for summary, members := range m.engrams {
		kept := members[:0]
		for _, mid := range members {
			if mid != id {
				kept = append(kept, mid)
			}
		}
		if len(kept) < 2 {
			delete(m.engrams, summary)
			continue
		}
		m.engrams[summary] = kept
	}
}

func (m *Manager) queueCondense(id string) {
	for _, p := range m.pendingCondense {
		if p == id {
			return
		}
	}
	m.pendingCondense = append(m.pendingCondense, id)
}

// takeCondense empties the pending queue. Callers hold m.mu.
func (m *Manager) takeCondense() ([]string, []string, CondenseFunc) {
	if len(m.pendingCondense) == 0 || m.condenser == nil {
		m.pendingCondense = nil
		return nil, nil, nil
	}
	ids := make([]string, 0, len(m.pendingCondense))
	texts := make([]string, 0, len(m.pendingCondense))
	for _, id := range m.pendingCondense {
		if s, ok := m.chunks[id]; ok {
			ids = append(ids, id)
			texts = append(texts, s.RawText)
		}
	}
	m.pendingCondense = nil
	return ids, texts, m.condenser
}

// runCondenser invokes the callback without holding the lock, then
// registers the summary and links it to its sources.
func (m *Manager) runCondenser(fn CondenseFunc, ids, texts []string) {
	if fn == nil || len(ids) == 0 {
		return
	}
	summaryID, summary, ok := fn(texts)
	if !ok || summaryID == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerLocked([]string{summaryID}, []string{summary})
	linked := m.engramLocked(summaryID, ids)
	m.emit(EventCondense, map[string]any{
		"summary": summaryID,
		"sources": len(ids),
		"engram":  linked,
	})
}
