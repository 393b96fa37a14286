package memory

import (
	"math"

	"github.com/hpungsan/voidmem/internal/errors"
)

// Params tunes a Manager. A copy is embedded in every snapshot so a loaded
// manager keeps interpreting its state the way it was saved.
type Params struct {
	Capacity           int     `json:"capacity" yaml:"capacity"`
	BaseTTL            int     `json:"base_ttl" yaml:"base_ttl"`
	MaxTTL             int     `json:"max_ttl" yaml:"max_ttl"`
	DecayHalfLife      float64 `json:"decay_half_life" yaml:"decay_half_life"`
	ConfidenceHalfLife float64 `json:"confidence_half_life" yaml:"confidence_half_life"`
	InitialConfidence  float64 `json:"initial_confidence" yaml:"initial_confidence"`
	ReinforcementRate  float64 `json:"reinforcement_rate" yaml:"reinforcement_rate"`
	HabituationScale   float64 `json:"habituation_scale" yaml:"habituation_scale"`
	NoveltyFloor       float64 `json:"novelty_floor" yaml:"novelty_floor"`
	NoveltyRecovery    float64 `json:"novelty_recovery" yaml:"novelty_recovery"`
	BoredomGap         int     `json:"boredom_gap" yaml:"boredom_gap"`
	BoredomPenalty     float64 `json:"boredom_penalty" yaml:"boredom_penalty"`
	NoveltyWeight      float64 `json:"novelty_weight" yaml:"novelty_weight"`
	PruneSample        int     `json:"prune_sample" yaml:"prune_sample"`
	PruneTargetRatio   float64 `json:"prune_target_ratio" yaml:"prune_target_ratio"`
	DiffusionInterval  int     `json:"diffusion_interval" yaml:"diffusion_interval"`
	DiffusionKappa     float64 `json:"diffusion_kappa" yaml:"diffusion_kappa"`
	AssignThreshold    float64 `json:"assign_threshold" yaml:"assign_threshold"`
	SplitSize          int     `json:"split_size" yaml:"split_size"`
	SplitDispersion    float64 `json:"split_dispersion" yaml:"split_dispersion"`
	MergeSize          int     `json:"merge_size" yaml:"merge_size"`
	MergeCloseness     float64 `json:"merge_closeness" yaml:"merge_closeness"`
	FrontierNovelty    float64 `json:"frontier_novelty" yaml:"frontier_novelty"`
	RecencyHalfLife    float64 `json:"recency_half_life" yaml:"recency_half_life"`
	EventBufferSize    int     `json:"event_buffer_size" yaml:"event_buffer_size"`
	CondenseBoredom    int     `json:"condense_boredom" yaml:"condense_boredom"`
	CondenseConfidence float64 `json:"condense_confidence" yaml:"condense_confidence"`
	CondenseMass       float64 `json:"condense_mass" yaml:"condense_mass"`
}

// DefaultParams returns the stock tuning.
func DefaultParams() Params {
	return Params{
		Capacity:           256,
		BaseTTL:            120,
		MaxTTL:             1024,
		DecayHalfLife:      32,
		ConfidenceHalfLife: 256,
		InitialConfidence:  0.5,
		ReinforcementRate:  0.3,
		HabituationScale:   0.25,
		NoveltyFloor:       0.05,
		NoveltyRecovery:    0.01,
		BoredomGap:         2,
		BoredomPenalty:     0.05,
		NoveltyWeight:      0.35,
		PruneSample:        64,
		PruneTargetRatio:   0.9,
		DiffusionInterval:  12,
		DiffusionKappa:     0.25,
		AssignThreshold:    0.35,
		SplitSize:          12,
		SplitDispersion:    0.75,
		MergeSize:          6,
		MergeCloseness:     0.5,
		FrontierNovelty:    0.8,
		RecencyHalfLife:    64,
		EventBufferSize:    1024,
		CondenseBoredom:    4,
		CondenseConfidence: 0.6,
		CondenseMass:       5.0,
	}
}

// Validate reports the first out-of-range field as a validation error.
func (p Params) Validate() error {
	ints := []struct {
		name string
		v    int
		min  int
	}{
		{"capacity", p.Capacity, 1},
		{"base_ttl", p.BaseTTL, 1},
		{"max_ttl", p.MaxTTL, p.BaseTTL},
		{"boredom_gap", p.BoredomGap, 0},
		{"prune_sample", p.PruneSample, 1},
		{"diffusion_interval", p.DiffusionInterval, 1},
		{"split_size", p.SplitSize, 2},
		{"merge_size", p.MergeSize, 2},
		{"event_buffer_size", p.EventBufferSize, 1},
		{"condense_boredom", p.CondenseBoredom, 1},
	}
	for _, f := range ints {
		if f.v < f.min {
			return errors.NewValidationf("%s must be >= %d, got %d", f.name, f.min, f.v)
		}
	}

	positive := []struct {
		name string
		v    float64
	}{
		{"decay_half_life", p.DecayHalfLife},
		{"confidence_half_life", p.ConfidenceHalfLife},
		{"recency_half_life", p.RecencyHalfLife},
	}
	for _, f := range positive {
		if !finite(f.v) || f.v <= 0 {
			return errors.NewValidationf("%s must be > 0, got %v", f.name, f.v)
		}
	}

	nonNegative := []struct {
		name string
		v    float64
	}{
		{"habituation_scale", p.HabituationScale},
		{"boredom_penalty", p.BoredomPenalty},
		{"condense_mass", p.CondenseMass},
	}
	for _, f := range nonNegative {
		if !finite(f.v) || f.v < 0 {
			return errors.NewValidationf("%s must be >= 0, got %v", f.name, f.v)
		}
	}

	unit := []struct {
		name string
		v    float64
	}{
		{"initial_confidence", p.InitialConfidence},
		{"reinforcement_rate", p.ReinforcementRate},
		{"novelty_recovery", p.NoveltyRecovery},
		{"novelty_weight", p.NoveltyWeight},
		{"diffusion_kappa", p.DiffusionKappa},
		{"assign_threshold", p.AssignThreshold},
		{"split_dispersion", p.SplitDispersion},
		{"merge_closeness", p.MergeCloseness},
		{"frontier_novelty", p.FrontierNovelty},
		{"condense_confidence", p.CondenseConfidence},
	}
	for _, f := range unit {
		if !finite(f.v) || f.v < 0 || f.v > 1 {
			return errors.NewValidationf("%s must be in [0,1], got %v", f.name, f.v)
		}
	}

	if !finite(p.NoveltyFloor) || p.NoveltyFloor <= 0 || p.NoveltyFloor >= 1 {
		return errors.NewValidationf("novelty_floor must be in (0,1), got %v", p.NoveltyFloor)
	}
	if !finite(p.PruneTargetRatio) || p.PruneTargetRatio <= 0 || p.PruneTargetRatio > 1 {
		return errors.NewValidationf("prune_target_ratio must be in (0,1], got %v", p.PruneTargetRatio)
	}
	return nil
}

// pruneTarget is the live count a capacity prune aims for.
func (p Params) pruneTarget() int {
	return int(math.Floor(float64(p.Capacity)*p.PruneTargetRatio + epsilon))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
