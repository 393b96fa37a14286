package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/voidmem/internal/errors"
)

func TestRegister(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	out, err := Register(ctx, s, RegisterInput{Chunks: []ChunkInput{
		{ID: "a", Text: "vacuum resonance calibration"},
		{ID: "b", Text: "queue management protocol"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Registered)
	assert.Equal(t, 0, out.Refreshed)
	assert.Equal(t, 2, out.Count)
	assert.GreaterOrEqual(t, out.Territories, 1)

	out, err = Register(ctx, s, RegisterInput{Chunks: []ChunkInput{
		{ID: " a ", Text: "vacuum resonance calibration"},
		{ID: "c", Text: "centroid drift notebook"},
		{ID: "c", Text: "centroid drift notebook"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Registered)
	assert.Equal(t, 1, out.Refreshed)
	assert.Equal(t, 3, out.Count)
}

func TestRegister_Validation(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	_, err := Register(ctx, s, RegisterInput{})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = Register(ctx, s, RegisterInput{Chunks: []ChunkInput{{ID: "ok", Text: "x"}, {ID: "  ", Text: "y"}}})
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Equal(t, 0, s.Manager.Stats().Count)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	register(t, s, "a", "alpha signal", "b", "beta signal")

	out, err := Remove(ctx, s, RemoveInput{IDs: []string{"a", "missing"}})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Removed)
	assert.Equal(t, 1, out.Count)

	_, err = Remove(ctx, s, RemoveInput{})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestInspect(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	register(t, s, "a", "alpha signal pattern", "b", "beta signal pattern", "sum", "summary text")
	_, err := Engram(ctx, s, EngramInput{SummaryID: "sum", Members: []string{"a", "b"}})
	require.NoError(t, err)

	out, err := Inspect(ctx, s, InspectInput{ID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "a", out.Chunk.ID)
	assert.Equal(t, "alpha signal pattern", out.Chunk.RawText)
	assert.Equal(t, 20, out.Chars)
	assert.Equal(t, 5, out.TokensEstimate)
	assert.Greater(t, out.CompositeScore, 0.0)
	assert.Equal(t, []string{"sum"}, out.Engrams)

	_, err = Inspect(ctx, s, InspectInput{ID: "nope"})
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	_, err = Inspect(ctx, s, InspectInput{})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestTerritories(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	register(t, s, "a", "alpha signal", "b", "unrelated words")

	out, err := Territories(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, len(out.Territories), out.Count)

	members := 0
	for _, tr := range out.Territories {
		members += len(tr.Members)
	}
	assert.Equal(t, 2, members)
}

func TestEngram(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	register(t, s, "a", "alpha signal", "b", "beta signal")

	out, err := Engram(ctx, s, EngramInput{SummaryID: "sum", Members: []string{"b", "a", "gone"}})
	require.NoError(t, err)
	assert.True(t, out.Recorded)
	assert.Equal(t, []string{"a", "b"}, out.Members)

	out, err = Engram(ctx, s, EngramInput{SummaryID: "solo", Members: []string{"a"}})
	require.NoError(t, err)
	assert.False(t, out.Recorded)

	_, err = Engram(ctx, s, EngramInput{Members: []string{"a", "b"}})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}
