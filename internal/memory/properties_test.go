package memory

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

var vocabulary = []string{
	"ocean", "wave", "tide", "salt", "foam", "mountain", "rock", "snow", "peak",
	"ridge", "desert", "sand", "dune", "forest", "tree", "moss", "fern", "river",
	"water", "flow", "glacier", "volcano", "lava", "storm", "cloud",
}

func randomText(r *rand.Rand) string {
	n := 2 + r.Intn(5)
	words := make([]string, n)
	for i := range words {
		words[i] = vocabulary[r.Intn(len(vocabulary))]
	}
	return fmt.Sprint(words)
}

// drive applies a pseudo-random but seeded sequence of operations.
func drive(t *testing.T, m *Manager, seed int64, steps int, check func()) {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	next := 0
	for step := 0; step < steps; step++ {
		switch op := r.Intn(10); {
		case op < 3:
			n := 1 + r.Intn(4)
			ids := make([]string, n)
			texts := make([]string, n)
			for i := range ids {
				if next > 0 && r.Intn(5) == 0 {
					ids[i] = fmt.Sprintf("c%03d", r.Intn(next))
				} else {
					ids[i] = fmt.Sprintf("c%03d", next)
					next++
				}
				texts[i] = randomText(r)
			}
			require.NoError(t, m.RegisterChunks(ids, texts))
		case op < 7:
			if next == 0 {
				continue
			}
			queries := 1 + r.Intn(3)
			res := Results{IDs: make([][]string, queries), Distances: make([][]float64, queries)}
			for q := 0; q < queries; q++ {
				k := 1 + r.Intn(4)
				for i := 0; i < k; i++ {
					res.IDs[q] = append(res.IDs[q], fmt.Sprintf("c%03d", r.Intn(next)))
					res.Distances[q] = append(res.Distances[q], r.Float64()*2.5-0.5)
				}
			}
			b, err := res.Batch()
			require.NoError(t, err)
			require.NoError(t, m.Reinforce(b, r.Float64()*3, r.Intn(50)))
		case op < 9:
			require.NoError(t, m.Tick(1+r.Intn(3)))
			require.LessOrEqual(t, m.Stats().Count, m.Params().Capacity)
		default:
			if next == 0 {
				continue
			}
			_, err := m.Degrade([]string{fmt.Sprintf("c%03d", r.Intn(next))}, 1+r.Intn(40))
			require.NoError(t, err)
		}
		if check != nil {
			check()
		}
	}
}

func fuzzParams(p *Params) {
	p.Capacity = 24
	p.BaseTTL = 30
	p.DiffusionInterval = 4
	p.SplitSize = 5
	p.SplitDispersion = 0.6
	p.AssignThreshold = 0.3
	p.PruneSample = 16
}

func TestProperty_StateStaysInBounds(t *testing.T) {
	for seed := int64(1); seed <= 8; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			m := newTestManager(t, fuzzParams)
			drive(t, m, seed, 400, func() { assertInvariants(t, m) })
		})
	}
}

func TestProperty_DeterministicEventLog(t *testing.T) {
	run := func() []byte {
		m, err := New(testParams(fuzzParams))
		require.NoError(t, err)
		var log []Event
		drive(t, m, 42, 300, func() { log = append(log, m.ConsumeEvents()...) })
		out, err := json.Marshal(log)
		require.NoError(t, err)
		return out
	}

	first := run()
	second := run()
	require.Equal(t, string(first), string(second))
	require.Contains(t, string(first), `"type":"prune"`)
}

func TestProperty_RoundTripAnywhere(t *testing.T) {
	m := newTestManager(t, fuzzParams)
	steps := 0
	drive(t, m, 7, 200, func() {
		steps++
		if steps%25 != 0 {
			return
		}
		data, err := m.Save()
		require.NoError(t, err)
		loaded, err := Load(data)
		require.NoError(t, err)
		again, err := loaded.Save()
		require.NoError(t, err)
		require.Equal(t, string(data), string(again))
	})
}
