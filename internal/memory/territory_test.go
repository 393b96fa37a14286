package memory

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/voidmem/internal/chunk"
)

func TestSimilarity(t *testing.T) {
	tr := newTerritory(1, 0)
	tr.addTokens(chunk.Tokens("river water flow"))
	tr.addTokens(chunk.Tokens("river water stone"))

	// centroid: flow 1, river 2, stone 1, water 2; sumSq = 10
	assert.Equal(t, 10, tr.sumSq)
	assert.InDelta(t, 4/(math.Sqrt(2)*math.Sqrt(10)), similarity([]string{"river", "water"}, tr.centroid, tr.sumSq), 1e-12)
	assert.Equal(t, 0.0, similarity([]string{"desert"}, tr.centroid, tr.sumSq))
	assert.Equal(t, 0.0, similarity(nil, tr.centroid, tr.sumSq))

	tr.removeTokens(chunk.Tokens("river water stone"))
	assert.Equal(t, map[string]int{"flow": 1, "river": 1, "water": 1}, tr.centroid)
	assert.Equal(t, 3, tr.sumSq)
}

func TestAssign_JoinsClosestTerritory(t *testing.T) {
	m := newTestManager(t, nil)
	require.NoError(t, m.RegisterChunks(
		[]string{"a", "b", "c"},
		[]string{"river water flow fast", "desert sand dune heat", "river water flow slow"},
	))

	a, _ := m.Chunk("a")
	b, _ := m.Chunk("b")
	c, _ := m.Chunk("c")
	assert.Equal(t, a.TerritoryID, c.TerritoryID)
	assert.NotEqual(t, a.TerritoryID, b.TerritoryID)
	assert.Equal(t, 2, m.Stats().TerritoryCount)

	creates := eventsOfType(m.ConsumeEvents(), EventTerritoryCreate)
	assert.Len(t, creates, 2)
}

func TestAssign_TiesGoToLowestID(t *testing.T) {
	m := newTestManager(t, func(p *Params) { p.AssignThreshold = 0 })
	require.NoError(t, m.RegisterChunks([]string{"a"}, []string{"alpha"}))
	m.territories[2] = newTerritory(2, 0)
	m.nextTerritoryID = 3
	m.territories[2].addMember(newState("b", "bravo", m.params, 0))
	m.chunks["b"] = m.territories[2].members["b"]

	require.NoError(t, m.RegisterChunks([]string{"c"}, []string{"charlie"}))
	c, _ := m.Chunk("c")
	assert.Equal(t, int64(1), c.TerritoryID)
}

func TestDispersion(t *testing.T) {
	same := []*State{
		newState("a", "one two three", DefaultParams(), 0),
		newState("b", "one two three", DefaultParams(), 0),
	}
	assert.Equal(t, 0.0, dispersion(same))

	apart := []*State{
		newState("a", "aaa bbb", DefaultParams(), 0),
		newState("b", "ccc ddd", DefaultParams(), 0),
		newState("c", "eee fff", DefaultParams(), 0),
	}
	assert.Equal(t, 1.0, dispersion(apart))
	assert.Equal(t, 0.0, dispersion(apart[:1]))
}

func TestTwoMeans_SeparatesFamilies(t *testing.T) {
	p := DefaultParams()
	members := []*State{
		newState("a1", "ocean wave tide salt", p, 0),
		newState("a2", "ocean wave tide foam", p, 0),
		newState("a3", "ocean wave salt foam", p, 0),
		newState("b1", "mountain rock snow peak", p, 0),
		newState("b2", "mountain rock snow ridge", p, 0),
	}
	keep, move := twoMeans(members)

	ids := func(ss []*State) []string {
		var out []string
		for _, s := range ss {
			out = append(out, s.ID)
		}
		return out
	}
	assert.Equal(t, []string{"a1", "a2", "a3"}, ids(keep))
	assert.Equal(t, []string{"b1", "b2"}, ids(move))
}

func TestPartition_TieKeepsSeedA(t *testing.T) {
	p := DefaultParams()
	members := []*State{
		newState("m0", "alpha", p, 0),
		newState("m1", "bravo", p, 0),
		newState("m2", "charlie", p, 0),
		newState("m3", "delta", p, 0),
	}

	keep, move := partition(members, []bool{true, false, true, false}, 0)
	require.Len(t, keep, 2)
	require.Len(t, move, 2)
	assert.Equal(t, "m0", keep[0].ID, "seed A moved to the second group and still keeps the id")

	keep, _ = partition(members, []bool{false, true, false, true}, 0)
	assert.Equal(t, "m0", keep[0].ID)

	keep, move = partition(members, []bool{true, true, true, false}, 0)
	assert.Len(t, keep, 3)
	assert.Equal(t, "m3", move[0].ID, "larger group wins over seed A")
}

func TestSplit_AfterRefresh(t *testing.T) {
	m := newTestManager(t, func(p *Params) {
		p.AssignThreshold = 0
		p.SplitSize = 4
		p.SplitDispersion = 0.5
	})
	texts := make([]string, 5)
	for i := range texts {
		texts[i] = "shared common words here"
	}
	require.NoError(t, m.RegisterChunks(seqIDs("x", 5), texts))
	require.Equal(t, 1, m.Stats().TerritoryCount)
	m.ConsumeEvents()

	require.NoError(t, m.RegisterChunks([]string{"x00", "x01"}, []string{"ocean wave tide salt", "ocean wave tide salt"}))

	splits := eventsOfType(m.ConsumeEvents(), EventSplit)
	require.Len(t, splits, 1)
	assert.Equal(t, 2, m.Stats().TerritoryCount)
	a, _ := m.Chunk("x00")
	b, _ := m.Chunk("x02")
	assert.NotEqual(t, a.TerritoryID, b.TerritoryID)
	assertInvariants(t, m)
}

func TestSplit_NotBelowThresholds(t *testing.T) {
	m := newTestManager(t, func(p *Params) {
		p.AssignThreshold = 0
		p.SplitSize = 4
		p.SplitDispersion = 0.5
	})
	texts := make([]string, 8)
	for i := range texts {
		texts[i] = "shared common words here"
	}
	require.NoError(t, m.RegisterChunks(seqIDs("x", 8), texts))
	assert.Equal(t, 1, m.Stats().TerritoryCount, "identical members have no dispersion")
	assert.Empty(t, eventsOfType(m.ConsumeEvents(), EventSplit))
}

func TestSplit_AfterReinforcement(t *testing.T) {
	m := newTestManager(t, func(p *Params) {
		p.AssignThreshold = 0
		p.SplitSize = 100
		p.SplitDispersion = 0.5
	})
	require.NoError(t, m.RegisterChunks(seqIDs("s", 6), distinctTexts(6)))
	require.Equal(t, 1, m.Stats().TerritoryCount)

	p := m.Params()
	p.SplitSize = 4
	require.NoError(t, m.Reconfigure(p))
	reinforce(t, m, 0.1, 0.2, 0, "s00")

	assert.Equal(t, 2, m.Stats().TerritoryCount)
	assertInvariants(t, m)
}

func TestMergeScan(t *testing.T) {
	m := newTestManager(t, func(p *Params) {
		p.AssignThreshold = 0.9
		p.DiffusionInterval = 1
	})
	require.NoError(t, m.RegisterChunks([]string{"a", "b"}, []string{"river water flow", "river water stone"}))
	require.Equal(t, 2, m.Stats().TerritoryCount)
	m.ConsumeEvents()

	require.NoError(t, m.Tick(1))

	st := m.Stats()
	assert.Equal(t, 1, st.TerritoryCount)
	assert.Equal(t, uint64(1), st.Merges)

	trs := m.Territories()
	require.Len(t, trs, 1)
	assert.Equal(t, int64(1), trs[0].ID, "lower id survives")
	assert.Equal(t, []string{"a", "b"}, trs[0].Members)
	assert.Equal(t, int64(1), trs[0].LastMergeTick)

	merges := eventsOfType(m.ConsumeEvents(), EventMerge)
	require.Len(t, merges, 1)
	assert.Equal(t, int64(2), merges[0].Details["absorbed"])
	assertInvariants(t, m)
}

func TestMergeScan_RespectsThresholds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
		texts  []string
	}{
		{
			name:   "too far apart",
			mutate: func(p *Params) { p.DiffusionInterval = 1 },
			texts:  []string{"river water flow", "desert sand dune"},
		},
		{
			name: "too large together",
			mutate: func(p *Params) {
				p.DiffusionInterval = 1
				p.AssignThreshold = 0.9
				p.MergeSize = 2
			},
			texts: []string{"river water flow", "river water stone"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t, tt.mutate)
			require.NoError(t, m.RegisterChunks([]string{"a", "b"}, tt.texts))
			require.NoError(t, m.Tick(1))
			assert.Equal(t, 2, m.Stats().TerritoryCount)
		})
	}
}
