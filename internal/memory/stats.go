package memory

import "sort"

// MaxTop bounds the size of a Top query.
const MaxTop = 100

// Stats is a read-only summary of the manager.
type Stats struct {
	Count           int     `json:"count"`
	AvgConfidence   float64 `json:"avg_confidence"`
	AvgNovelty      float64 `json:"avg_novelty"`
	AvgBoredom      float64 `json:"avg_boredom"`
	AvgMass         float64 `json:"avg_mass"`
	AvgHeat         float64 `json:"avg_heat"`
	MaxHeat         float64 `json:"max_heat"`
	TerritoryCount  int     `json:"territory_count"`
	FrontierSize    int     `json:"frontier_size"`
	EngramCount     int     `json:"engram_count"`
	Tick            int64   `json:"tick"`
	TotalRegistered uint64  `json:"total_registered"`
	TotalPruned     uint64  `json:"total_pruned"`
	Splits          uint64  `json:"splits"`
	Merges          uint64  `json:"merges"`
	RewardEMA       float64 `json:"reward_ema"`
}

// Scored is one ranked chunk.
type Scored struct {
	ID         string  `json:"id"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Heat       float64 `json:"heat"`
	Territory  int64   `json:"territory"`
}

// Stats summarizes the live set. Sums run in id order.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Stats{
		Count:           len(m.chunks),
		TerritoryCount:  len(m.territories),
		EngramCount:     len(m.engrams),
		Tick:            m.tick,
		TotalRegistered: m.totalRegistered,
		TotalPruned:     m.totalPruned,
		Splits:          m.splits,
		Merges:          m.merges,
		RewardEMA:       m.rewardEMA,
	}
	if st.Count == 0 {
		return st
	}

	var conf, nov, bored, mass, heat float64
	for _, id := range m.sortedChunkIDs() {
		s := m.chunks[id]
		conf += s.Confidence
		nov += s.Novelty
		bored += float64(s.Boredom)
		mass += s.Mass
		heat += s.Heat
		if s.Heat > st.MaxHeat {
			st.MaxHeat = s.Heat
		}
		if s.Novelty+epsilon >= m.params.FrontierNovelty && s.Boredom == 0 {
			st.FrontierSize++
		}
	}
	n := float64(st.Count)
	st.AvgConfidence = conf / n
	st.AvgNovelty = nov / n
	st.AvgBoredom = bored / n
	st.AvgMass = mass / n
	st.AvgHeat = heat / n
	return st
}

// Top returns the n best chunks by composite score, descending, ties by id.
// n is clamped to [1, MaxTop].
func (m *Manager) Top(n int) []Scored {
	if n < 1 {
		n = 1
	}
	if n > MaxTop {
		n = MaxTop
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]Scored, 0, len(m.chunks))
	for _, s := range m.chunks {
		all = append(all, Scored{
			ID:         s.ID,
			Score:      s.compositeScore(m.params, m.tick),
			Confidence: s.Confidence,
			Heat:       s.Heat,
			Territory:  s.TerritoryID,
		})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].ID < all[j].ID
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// CompositeScore returns the ranking score Top uses for one chunk.
func (m *Manager) CompositeScore(id string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.chunks[id]
	if !ok {
		return 0, false
	}
	return s.compositeScore(m.params, m.tick), true
}

// ExploratoryWeight is novelty discounted by habituation, in [0,1].
func (m *Manager) ExploratoryWeight(id string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.chunks[id]
	if !ok {
		return 0, false
	}
	return s.exploratoryWeight(), true
}

// Frontier returns the ids counted in Stats.FrontierSize, sorted.
func (m *Manager) Frontier() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for _, id := range m.sortedChunkIDs() {
		s := m.chunks[id]
		if s.Novelty+epsilon >= m.params.FrontierNovelty && s.Boredom == 0 {
			out = append(out, id)
		}
	}
	return out
}
