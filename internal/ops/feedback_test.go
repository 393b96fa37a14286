package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/voidmem/internal/errors"
	"github.com/hpungsan/voidmem/internal/memory"
)

func TestReinforce_FromResults(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	register(t, s, "a", "alpha signal", "b", "beta signal")

	gain, boost := 0.5, 10
	out, err := Reinforce(ctx, s, ReinforceInput{
		Results: &memory.Results{
			IDs:       [][]string{{"a", "ghost"}, {"b", "a", "a"}},
			Distances: [][]float64{{0.1, 0.2}, {0.3, 0.4, 0.4}},
		},
		HeatGain: &gain,
		TTLBoost: &boost,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Queries)
	assert.Equal(t, 5, out.Matches)
	assert.Equal(t, 3, out.Hits)
	assert.Equal(t, 1, out.Misses)
	assert.Greater(t, out.RewardEMA, 0.0)

	a, ok := s.Manager.Chunk("a")
	require.True(t, ok)
	assert.Equal(t, 2, a.UseCount)
	assert.InDelta(t, 0.5*0.9+0.5*0.6, a.Heat, 1e-9)
}

func TestReinforce_FromBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	register(t, s, "a", "alpha signal")

	out, err := Reinforce(ctx, s, ReinforceInput{Batch: &memory.Batch{Queries: []memory.Query{
		{Matches: []memory.Match{{ID: "a", Distance: 0}}},
	}}})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Hits)

	a, _ := s.Manager.Chunk("a")
	assert.InDelta(t, DefaultHeatGain, a.Heat, 1e-9)
}

func TestReinforce_Validation(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	tests := []struct {
		name  string
		input ReinforceInput
	}{
		{"neither", ReinforceInput{}},
		{"both", ReinforceInput{Batch: &memory.Batch{}, Results: &memory.Results{}}},
		{"ragged", ReinforceInput{Results: &memory.Results{IDs: [][]string{{"a"}}, Distances: [][]float64{}}}},
		{"negative gain", ReinforceInput{Batch: &memory.Batch{}, HeatGain: ptr(-1.0)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Reinforce(ctx, s, tc.input)
			assert.True(t, errors.Is(err, errors.ErrValidation), "got %v", err)
		})
	}
}

func TestTick(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	out, err := Tick(ctx, s, TickInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Tick)

	out, err = Tick(ctx, s, TickInput{Steps: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(6), out.Tick)

	_, err = Tick(ctx, s, TickInput{Steps: -2})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestDegrade(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	register(t, s, "a", "alpha signal", "b", "beta signal")

	out, err := Degrade(ctx, s, DegradeInput{IDs: []string{"a", "missing"}})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Degraded)
	assert.Equal(t, DefaultTTLFloor, out.TTLFloor)

	a, _ := s.Manager.Chunk("a")
	assert.Equal(t, DefaultTTLFloor, a.TTL)
	assert.Equal(t, 1, a.Boredom)

	_, err = Degrade(ctx, s, DegradeInput{IDs: []string{"a"}, TTLFloor: ptr(0)})
	assert.True(t, errors.Is(err, errors.ErrValidation))
	_, err = Degrade(ctx, s, DegradeInput{})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func ptr[T any](v T) *T { return &v }
