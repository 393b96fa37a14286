package memory

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/hpungsan/voidmem/internal/chunk"
)

// neverTick marks a split or merge that has not happened.
const neverTick int64 = -1

// Territory is the exported view of a cluster.
type Territory struct {
	ID            int64          `json:"id"`
	Members       []string       `json:"members"`
	Centroid      map[string]int `json:"centroid"`
	CreatedTick   int64          `json:"created_tick"`
	LastSplitTick int64          `json:"last_split_tick"`
	LastMergeTick int64          `json:"last_merge_tick"`
}

// territory keeps a token-count centroid: centroid[t] is the number of
// members whose token set contains t. All similarity math runs on integer
// sums so results never depend on map iteration order.
type territory struct {
	id            int64
	members       map[string]*State
	centroid      map[string]int
	sumSq         int
	createdTick   int64
	lastSplitTick int64
	lastMergeTick int64
}

func newTerritory(id, tick int64) *territory {
	return &territory{
		id:            id,
		members:       make(map[string]*State),
		centroid:      make(map[string]int),
		createdTick:   tick,
		lastSplitTick: neverTick,
		lastMergeTick: neverTick,
	}
}

func (t *territory) addMember(s *State) {
	t.members[s.ID] = s
	s.TerritoryID = t.id
	t.addTokens(s.features.Tokens)
}

func (t *territory) removeMember(s *State) {
	if _, ok := t.members[s.ID]; !ok {
		return
	}
	delete(t.members, s.ID)
	t.removeTokens(s.features.Tokens)
}

func (t *territory) addTokens(tokens []string) {
	for _, tok := range tokens {
		c := t.centroid[tok]
		t.centroid[tok] = c + 1
		t.sumSq += 2*c + 1
	}
}

func (t *territory) removeTokens(tokens []string) {
	for _, tok := range tokens {
		c := t.centroid[tok]
		if c == 0 {
			continue
		}
		t.sumSq -= 2*c - 1
		if c == 1 {
			delete(t.centroid, tok)
		} else {
			t.centroid[tok] = c - 1
		}
	}
}

func (t *territory) sortedMembers() []*State {
	out := make([]*State, 0, len(t.members))
	for _, s := range t.members {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *territory) view() Territory {
	members := make([]string, 0, len(t.members))
	for id := range t.members {
		members = append(members, id)
	}
	sort.Strings(members)
	centroid := make(map[string]int, len(t.centroid))
	for k, v := range t.centroid {
		centroid[k] = v
	}
	return Territory{
		ID:            t.id,
		Members:       members,
		Centroid:      centroid,
		CreatedTick:   t.createdTick,
		LastSplitTick: t.lastSplitTick,
		LastMergeTick: t.lastMergeTick,
	}
}

// similarity is the cosine between a binary token vector and a count centroid.
func similarity(tokens []string, centroid map[string]int, sumSq int) float64 {
	if len(tokens) == 0 || sumSq == 0 {
		return 0
	}
	dot := 0
	for _, tok := range tokens {
		dot += centroid[tok]
	}
	return float64(dot) / (math.Sqrt(float64(len(tokens))) * math.Sqrt(float64(sumSq)))
}

// centroidCosine compares two count centroids.
func centroidCosine(a, b *territory) float64 {
	if a.sumSq == 0 || b.sumSq == 0 {
		return 0
	}
	small, large := a.centroid, b.centroid
	if len(small) > len(large) {
		small, large = large, small
	}
	dot := 0
	for tok, c := range small {
		dot += c * large[tok]
	}
	return float64(dot) / (math.Sqrt(float64(a.sumSq)) * math.Sqrt(float64(b.sumSq)))
}

// dispersion is the mean pairwise Jaccard dissimilarity of the members.
func dispersion(members []*State) float64 {
	if len(members) < 2 {
		return 0
	}
	total := 0.0
	pairs := 0
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			total += 1 - chunk.Jaccard(members[i].features.Tokens, members[j].features.Tokens)
			pairs++
		}
	}
	return total / float64(pairs)
}

// assign places a new chunk in the closest territory, or a fresh one when
// nothing is within assign_threshold.
func (m *Manager) assign(s *State) *territory {
	var best *territory
	bestSim := -1.0
	for _, id := range m.sortedTerritoryIDs() {
		t := m.territories[id]
		sim := similarity(s.features.Tokens, t.centroid, t.sumSq)
		if sim > bestSim+epsilon {
			best, bestSim = t, sim
		}
	}

	if best == nil || bestSim+epsilon < m.params.AssignThreshold {
		best = m.createTerritory()
	}
	best.addMember(s)
	return best
}

func (m *Manager) createTerritory() *territory {
	t := newTerritory(m.nextTerritoryID, m.tick)
	m.nextTerritoryID++
	m.territories[t.id] = t
	m.emit(EventTerritoryCreate, map[string]any{"territory": t.id})
	return t
}

// maybeSplit divides a territory that has grown both large and diverse.
func (m *Manager) maybeSplit(t *territory) {
	if t == nil || len(t.members) <= m.params.SplitSize {
		return
	}
	members := t.sortedMembers()
	disp := dispersion(members)
	if disp <= m.params.SplitDispersion+epsilon {
		return
	}

	keep, move := twoMeans(members)
	if len(keep) == 0 || len(move) == 0 {
		return
	}

	nt := m.createTerritory()
	for _, s := range move {
		t.removeMember(s)
		nt.addMember(s)
	}
	t.lastSplitTick = m.tick
	nt.lastSplitTick = m.tick
	m.splits++

	m.logger.Debug("territory split",
		zap.Int64("territory", t.id),
		zap.Int64("new_territory", nt.id),
		zap.Int("kept", len(keep)),
		zap.Int("moved", len(move)),
		zap.Float64("dispersion", disp))
	m.emit(EventSplit, map[string]any{
		"territory":     t.id,
		"new_territory": nt.id,
		"kept":          len(keep),
		"moved":         len(move),
		"dispersion":    disp,
	})
}

// twoMeans partitions members (sorted by id) around the most dissimilar
// pair, then refines once against the two group centroids. The first
// return value is the half that keeps the original territory id.
func twoMeans(members []*State) (keep, move []*State) {
	seedA, seedB := 0, 1
	worst := -1.0
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			d := 1 - chunk.Jaccard(members[i].features.Tokens, members[j].features.Tokens)
			if d > worst+epsilon {
				worst, seedA, seedB = d, i, j
			}
		}
	}

	inB := make([]bool, len(members))
	for i, s := range members {
		simA := chunk.Jaccard(s.features.Tokens, members[seedA].features.Tokens)
		simB := chunk.Jaccard(s.features.Tokens, members[seedB].features.Tokens)
		inB[i] = simB > simA+epsilon
	}

	refined := refine(members, inB)
	if refined != nil {
		inB = refined
	}
	return partition(members, inB, seedA)
}

// partition splits members by inB. The larger group comes first; on equal
// sizes the group holding members[seedA] does.
func partition(members []*State, inB []bool, seedA int) (keep, move []*State) {
	var a, b []*State
	for i, s := range members {
		if inB[i] {
			b = append(b, s)
		} else {
			a = append(a, s)
		}
	}
	switch {
	case len(b) > len(a):
		return b, a
	case len(a) > len(b):
		return a, b
	case inB[seedA]:
		return b, a
	default:
		return a, b
	}
}

// refine reassigns each member to the nearer group centroid. It returns nil
// when refinement would leave a group empty.
func refine(members []*State, inB []bool) []bool {
	ga, gb := newTerritory(0, 0), newTerritory(0, 0)
	for i, s := range members {
		if inB[i] {
			gb.addTokens(s.features.Tokens)
		} else {
			ga.addTokens(s.features.Tokens)
		}
	}

	out := make([]bool, len(members))
	nb := 0
	for i, s := range members {
		simA := similarity(s.features.Tokens, ga.centroid, ga.sumSq)
		simB := similarity(s.features.Tokens, gb.centroid, gb.sumSq)
		out[i] = simB > simA+epsilon
		if out[i] {
			nb++
		}
	}
	if nb == 0 || nb == len(members) {
		return nil
	}
	return out
}

// mergeScan folds small, close territory pairs together. Pairs are scanned
// in id order and the lower id always survives.
func (m *Manager) mergeScan() {
	ids := m.sortedTerritoryIDs()
	for i := 0; i < len(ids); i++ {
		a, ok := m.territories[ids[i]]
		if !ok {
			continue
		}
		for j := i + 1; j < len(ids); j++ {
			b, ok := m.territories[ids[j]]
			if !ok {
				continue
			}
			if len(a.members)+len(b.members) >= m.params.MergeSize {
				continue
			}
			closeness := centroidCosine(a, b)
			if closeness+epsilon < m.params.MergeCloseness {
				continue
			}
			m.mergeInto(a, b, closeness)
		}
	}
}

func (m *Manager) mergeInto(a, b *territory, closeness float64) {
	moved := len(b.members)
	for _, s := range b.sortedMembers() {
		b.removeMember(s)
		a.addMember(s)
	}
	delete(m.territories, b.id)
	a.lastMergeTick = m.tick
	m.merges++

	m.logger.Debug("territory merge",
		zap.Int64("territory", a.id),
		zap.Int64("absorbed", b.id),
		zap.Int("moved", moved))
	m.emit(EventMerge, map[string]any{
		"territory": a.id,
		"absorbed":  b.id,
		"moved":     moved,
		"members":   len(a.members),
		"closeness": closeness,
	})
}
