package memory

import (
	"math"

	"github.com/hpungsan/voidmem/internal/chunk"
)

// epsilon guards threshold comparisons against flapping at boundaries.
const epsilon = 1e-9

// maxAccumulator caps heat and mass so sums over a full store stay finite.
const maxAccumulator = 1e15

// State is one chunk's lifecycle state. Values handed out by the Manager
// are copies; the live record never leaves the package.
type State struct {
	ID              string  `json:"id"`
	RawText         string  `json:"raw_text"`
	Confidence      float64 `json:"confidence"`
	Novelty         float64 `json:"novelty"`
	Boredom         int     `json:"boredom"`
	Heat            float64 `json:"heat"`
	TTL             int     `json:"ttl"`
	Mass            float64 `json:"mass"`
	UseCount        int     `json:"use_count"`
	TerritoryID     int64   `json:"territory_id"`
	CreatedTick     int64   `json:"created_tick"`
	LastTouchedTick int64   `json:"last_touched_tick"`

	features chunk.Features
}

func newState(id, text string, p Params, tick int64) *State {
	return &State{
		ID:              id,
		RawText:         text,
		Confidence:      p.InitialConfidence,
		Novelty:         1.0,
		TTL:             p.BaseTTL,
		CreatedTick:     tick,
		LastTouchedTick: tick,
		features:        chunk.Extract(text),
	}
}

// pruneScore ranks chunks for capacity eviction; lower goes first.
func (s *State) pruneScore(p Params) float64 {
	return s.Confidence*(1-p.NoveltyWeight) + s.Novelty*p.NoveltyWeight - p.BoredomPenalty*float64(s.Boredom)
}

// compositeScore ranks chunks for Top.
func (s *State) compositeScore(p Params, tick int64) float64 {
	dt := float64(tick - s.LastTouchedTick)
	if dt < 0 {
		dt = 0
	}
	recency := math.Exp(-math.Ln2 * dt / p.RecencyHalfLife)
	return s.Confidence*(1-p.NoveltyWeight) + s.Novelty*p.NoveltyWeight + 0.1*s.Heat + recency
}

// exploratoryWeight favours novel chunks that have not been over-reinforced.
func (s *State) exploratoryWeight() float64 {
	b := float64(s.Boredom)
	return s.Novelty * (1 - b/(1+b))
}

// healthy reports whether every float field is finite and in range.
func (s *State) healthy() bool {
	return finite(s.Confidence) && finite(s.Novelty) && finite(s.Heat) && finite(s.Mass) &&
		s.Heat >= 0 && s.TTL >= 0
}

// repair forces a damaged state back inside its invariants.
func (s *State) repair() {
	if !finite(s.Heat) || s.Heat < 0 {
		s.Heat = 0
	}
	if !finite(s.Confidence) {
		s.Confidence = 0
	}
	if !finite(s.Novelty) {
		s.Novelty = 1
	}
	if !finite(s.Mass) {
		s.Mass = 0
	}
	if s.TTL < 0 {
		s.TTL = 0
	}
	s.Confidence = clamp01(s.Confidence)
	s.Novelty = clamp01(s.Novelty)
}

// saturate clamps an accumulated value to maxAccumulator.
func saturate(v float64) float64 {
	if math.IsNaN(v) || v > maxAccumulator {
		return maxAccumulator
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// halfLifeFactor is the per-tick multiplier for a half-life in ticks.
func halfLifeFactor(halfLife float64) float64 {
	return math.Exp(-math.Ln2 / halfLife)
}
