package memory

import (
	"sort"

	"go.uber.org/zap"

	"github.com/hpungsan/voidmem/internal/errors"
)

type pruneCandidate struct {
	s     *State
	score float64
}

// pruneIfNeeded evicts the lowest scoring chunks until the live count is at
// the prune target. Sampling walks the sorted ids with a fixed stride whose
// offset is derived from the tick, so runs are reproducible.
func (m *Manager) pruneIfNeeded() {
	capacity := m.params.Capacity
	if len(m.chunks) <= capacity {
		return
	}
	target := m.params.pruneTarget()

	maxRounds := len(m.chunks)/m.params.PruneSample + 2
	if m.pruneRounds > 0 {
		maxRounds = m.pruneRounds
	}
	for round := 0; round < maxRounds && len(m.chunks) > capacity; round++ {
		candidates := m.pruneSample(round)
		for _, c := range candidates {
			if len(m.chunks) <= target {
				break
			}
			m.removeChunk(c.s, ReasonCapacity, map[string]any{"score": c.score})
		}
	}

	// Every round evicts at least one sampled chunk, so this only trips when
	// the round budget is cut short.
	if len(m.chunks) > capacity {
		err := errors.NewCapacityInvariant(len(m.chunks), capacity)
		m.logger.Warn("prune pass aborted", zap.Error(err))
		m.emit(EventError, map[string]any{
			"code":     string(err.Code),
			"message":  err.Message,
			"count":    len(m.chunks),
			"capacity": capacity,
		})
	}
}

// pruneSample picks up to prune_sample chunks and returns them ordered for
// eviction: ascending score, then oldest touch, then lowest id.
func (m *Manager) pruneSample(round int) []pruneCandidate {
	ids := m.sortedChunkIDs()
	n := len(ids)
	sampleSize := m.params.PruneSample
	stride := 1
	if n > sampleSize {
		stride = n / sampleSize
	}
	offset := int((m.tick + int64(round)) % int64(stride))

	candidates := make([]pruneCandidate, 0, sampleSize)
	for i := offset; i < n && len(candidates) < sampleSize; i += stride {
		s := m.chunks[ids[i]]
		candidates = append(candidates, pruneCandidate{s: s, score: s.pruneScore(m.params)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score < b.score
		}
		if a.s.LastTouchedTick != b.s.LastTouchedTick {
			return a.s.LastTouchedTick < b.s.LastTouchedTick
		}
		return a.s.ID < b.s.ID
	})
	return candidates
}
