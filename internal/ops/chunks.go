package ops

import (
	"context"
	"sort"
	"strings"

	"github.com/hpungsan/voidmem/internal/chunk"
	"github.com/hpungsan/voidmem/internal/errors"
	"github.com/hpungsan/voidmem/internal/memory"
)

// ChunkInput is one chunk to register.
type ChunkInput struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// RegisterInput contains parameters for the Register operation.
type RegisterInput struct {
	Chunks []ChunkInput
}

// RegisterOutput contains the result of the Register operation.
type RegisterOutput struct {
	Registered  int `json:"registered"`
	Refreshed   int `json:"refreshed"`
	Count       int `json:"count"`
	Territories int `json:"territories"`
}

// Register adds chunks to the manager. Ids already live are refreshed.
func Register(ctx context.Context, s *Session, input RegisterInput) (*RegisterOutput, error) {
	if len(input.Chunks) == 0 {
		return nil, errors.NewValidation("chunks is required")
	}

	ids := make([]string, len(input.Chunks))
	texts := make([]string, len(input.Chunks))
	refreshed := 0
	seen := make(map[string]struct{}, len(input.Chunks))
	for i, c := range input.Chunks {
		ids[i] = strings.TrimSpace(c.ID)
		texts[i] = c.Text
		if _, dup := seen[ids[i]]; dup {
			continue
		}
		seen[ids[i]] = struct{}{}
		if _, ok := s.Manager.Chunk(ids[i]); ok {
			refreshed++
		}
	}

	if err := s.Manager.RegisterChunks(ids, texts); err != nil {
		return nil, err
	}

	st := s.Manager.Stats()
	return &RegisterOutput{
		Registered:  len(seen) - refreshed,
		Refreshed:   refreshed,
		Count:       st.Count,
		Territories: st.TerritoryCount,
	}, nil
}

// RemoveInput contains parameters for the Remove operation.
type RemoveInput struct {
	IDs []string
}

// RemoveOutput contains the result of the Remove operation.
type RemoveOutput struct {
	Removed int `json:"removed"`
	Count   int `json:"count"`
}

// Remove deletes chunks. Unknown ids are ignored.
func Remove(ctx context.Context, s *Session, input RemoveInput) (*RemoveOutput, error) {
	if len(input.IDs) == 0 {
		return nil, errors.NewValidation("ids is required")
	}
	n := s.Manager.Remove(input.IDs...)
	return &RemoveOutput{Removed: n, Count: s.Manager.Stats().Count}, nil
}

// InspectInput contains parameters for the Inspect operation.
type InspectInput struct {
	ID string
}

// InspectOutput is one chunk with its derived scores.
type InspectOutput struct {
	Chunk             memory.State `json:"chunk"`
	Chars             int          `json:"chars"`
	TokensEstimate    int          `json:"tokens_estimate"`
	CompositeScore    float64      `json:"composite_score"`
	ExploratoryWeight float64      `json:"exploratory_weight"`
	Engrams           []string     `json:"engrams"`
}

// Inspect returns one chunk's state.
func Inspect(ctx context.Context, s *Session, input InspectInput) (*InspectOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewValidation("id is required")
	}
	st, ok := s.Manager.Chunk(id)
	if !ok {
		return nil, errors.NewNotFound("chunk", id)
	}
	score, _ := s.Manager.CompositeScore(id)
	weight, _ := s.Manager.ExploratoryWeight(id)

	engrams := []string{}
	for summary, members := range s.Manager.Engrams() {
		for _, member := range members {
			if member == id {
				engrams = append(engrams, summary)
				break
			}
		}
	}
	sort.Strings(engrams)

	return &InspectOutput{
		Chunk:             st,
		Chars:             chunk.CountChars(st.RawText),
		TokensEstimate:    chunk.EstimateTokens(st.RawText),
		CompositeScore:    score,
		ExploratoryWeight: weight,
		Engrams:           engrams,
	}, nil
}

// TerritoriesOutput lists every territory.
type TerritoriesOutput struct {
	Territories []memory.Territory `json:"territories"`
	Count       int                `json:"count"`
}

// Territories returns every territory, sorted by id.
func Territories(ctx context.Context, s *Session) (*TerritoriesOutput, error) {
	ts := s.Manager.Territories()
	return &TerritoriesOutput{Territories: ts, Count: len(ts)}, nil
}

// EngramInput contains parameters for the Engram operation.
type EngramInput struct {
	SummaryID string
	Members   []string
}

// EngramOutput contains the result of the Engram operation.
type EngramOutput struct {
	Recorded bool     `json:"recorded"`
	Members  []string `json:"members,omitempty"`
}

// Engram records a consolidation group over live members.
func Engram(ctx context.Context, s *Session, input EngramInput) (*EngramOutput, error) {
	ok, err := s.Manager.RegisterEngram(strings.TrimSpace(input.SummaryID), input.Members)
	if err != nil {
		return nil, err
	}
	out := &EngramOutput{Recorded: ok}
	if ok {
		out.Members = s.Manager.Engrams()[strings.TrimSpace(input.SummaryID)]
	}
	return out, nil
}
