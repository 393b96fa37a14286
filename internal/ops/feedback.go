package ops

import (
	"context"

	"github.com/hpungsan/voidmem/internal/errors"
	"github.com/hpungsan/voidmem/internal/memory"
)

// Reinforcement defaults applied when the caller leaves them unset.
const (
	DefaultHeatGain = 1.0
	DefaultTTLBoost = 60
	DefaultTTLFloor = 24
)

// ReinforceInput contains parameters for the Reinforce operation. Exactly one
// of Batch or Results is used; Results is the parallel-list bridge shape.
type ReinforceInput struct {
	Batch    *memory.Batch
	Results  *memory.Results
	HeatGain *float64
	TTLBoost *int
}

// ReinforceOutput contains the result of the Reinforce operation.
type ReinforceOutput struct {
	Queries   int     `json:"queries"`
	Matches   int     `json:"matches"`
	Hits      int     `json:"hits"`
	Misses    int     `json:"misses"`
	RewardEMA float64 `json:"reward_ema"`
}

// Reinforce applies retrieval feedback.
func Reinforce(ctx context.Context, s *Session, input ReinforceInput) (*ReinforceOutput, error) {
	var batch memory.Batch
	switch {
	case input.Batch != nil && input.Results != nil:
		return nil, errors.NewValidation("specify either batch or results, not both")
	case input.Batch != nil:
		batch = *input.Batch
	case input.Results != nil:
		b, err := input.Results.Batch()
		if err != nil {
			return nil, err
		}
		batch = b
	default:
		return nil, errors.NewValidation("batch or results is required")
	}

	heatGain := DefaultHeatGain
	if input.HeatGain != nil {
		heatGain = *input.HeatGain
	}
	ttlBoost := DefaultTTLBoost
	if input.TTLBoost != nil {
		ttlBoost = *input.TTLBoost
	}

	// Count against the buffer so callers see hits and misses without draining it.
	before := s.Manager.PeekEvents(0)
	if err := s.Manager.Reinforce(batch, heatGain, ttlBoost); err != nil {
		return nil, err
	}
	after := s.Manager.PeekEvents(0)

	out := &ReinforceOutput{
		Queries:   len(batch.Queries),
		Matches:   batch.Size(),
		RewardEMA: s.Manager.Stats().RewardEMA,
	}
	var lastSeq uint64
	if len(before) > 0 {
		lastSeq = before[len(before)-1].Sequence
	}
	for _, e := range after {
		if e.Sequence <= lastSeq {
			continue
		}
		switch e.Type {
		case memory.EventReinforce:
			out.Hits++
		case memory.EventReinforceMiss:
			out.Misses++
		}
	}
	return out, nil
}

// TickInput contains parameters for the Tick operation.
type TickInput struct {
	Steps int
}

// TickOutput contains the result of the Tick operation.
type TickOutput struct {
	Tick  int64 `json:"tick"`
	Count int   `json:"count"`
}

// Tick advances the clock. Steps defaults to 1.
func Tick(ctx context.Context, s *Session, input TickInput) (*TickOutput, error) {
	steps := input.Steps
	if steps == 0 {
		steps = 1
	}
	if err := s.Manager.Tick(steps); err != nil {
		return nil, err
	}
	return &TickOutput{Tick: s.Manager.CurrentTick(), Count: s.Manager.Stats().Count}, nil
}

// DegradeInput contains parameters for the Degrade operation.
type DegradeInput struct {
	IDs      []string
	TTLFloor *int
}

// DegradeOutput contains the result of the Degrade operation.
type DegradeOutput struct {
	Degraded int `json:"degraded"`
	TTLFloor int `json:"ttl_floor"`
}

// Degrade caps ttl and raises boredom for the given chunks.
func Degrade(ctx context.Context, s *Session, input DegradeInput) (*DegradeOutput, error) {
	if len(input.IDs) == 0 {
		return nil, errors.NewValidation("ids is required")
	}
	floor := DefaultTTLFloor
	if input.TTLFloor != nil {
		floor = *input.TTLFloor
	}
	n, err := s.Manager.Degrade(input.IDs, floor)
	if err != nil {
		return nil, err
	}
	return &DegradeOutput{Degraded: n, TTLFloor: floor}, nil
}
