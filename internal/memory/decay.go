package memory

import (
	"go.uber.org/zap"

	"github.com/hpungsan/voidmem/internal/errors"
)

// Tick advances the logical clock by n steps. Each step decays every chunk,
// expires chunks whose ttl runs out, diffuses and merges on the diffusion
// interval, and prunes when over capacity. One decay event summarizes the call.
func (m *Manager) Tick(n int) error {
	if n < 1 {
		return errors.NewValidationf("tick count must be >= 1, got %d", n)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	startTick := m.tick
	var processed, expired, skipped int
	heatDelta := 0.0
	for step := 0; step < n; step++ {
		p, e, s, d := m.decayStep()
		processed += p
		expired += e
		skipped += s
		heatDelta += d

		m.tick++
		if m.tick%int64(m.params.DiffusionInterval) == 0 {
			m.diffuseAll()
			m.mergeScan()
		}
		if len(m.chunks) > m.params.Capacity {
			m.pruneIfNeeded()
		}
	}

	avgDelta := 0.0
	if processed > 0 {
		avgDelta = heatDelta / float64(processed)
	}
	m.emit(EventDecay, map[string]any{
		"ticks":          n,
		"from_tick":      startTick,
		"chunks":         processed,
		"avg_heat_delta": avgDelta,
		"expired":        expired,
		"skipped":        skipped,
		"live":           len(m.chunks),
	})
	return nil
}

// decayStep applies one tick of passive decay in id order.
func (m *Manager) decayStep() (processed, expired, skipped int, heatDelta float64) {
	heatFactor := halfLifeFactor(m.params.DecayHalfLife)
	confFactor := halfLifeFactor(m.params.ConfidenceHalfLife)

	for _, id := range m.sortedChunkIDs() {
		s := m.chunks[id]
		if !s.healthy() {
			m.logger.Warn("repairing chunk with invalid state",
				zap.String("id", s.ID),
				zap.Float64("heat", s.Heat),
				zap.Float64("confidence", s.Confidence),
				zap.Int("ttl", s.TTL))
			s.repair()
			skipped++
			continue
		}

		before := s.Heat
		s.Heat *= heatFactor
		if s.LastTouchedTick != m.tick {
			s.Confidence = clamp01(s.Confidence * confFactor)
			s.Novelty = clamp01(s.Novelty + m.params.NoveltyRecovery*(1-s.Novelty))
		}
		heatDelta += s.Heat - before
		processed++

		if s.TTL > 0 {
			s.TTL--
		}
		if s.TTL == 0 {
			m.removeChunk(s, ReasonTTLExpired, map[string]any{})
			expired++
		}
	}
	return processed, expired, skipped, heatDelta
}
