package memory

import (
	"github.com/hpungsan/voidmem/internal/errors"
)

// Match is one ranked hit for a query: a chunk id and its distance
// (0 is identical, larger is less similar).
type Match struct {
	ID       string  `json:"id"`
	Distance float64 `json:"distance"`
}

// Query is one query's ranked matches.
type Query struct {
	Matches []Match `json:"matches"`
}

// Batch is a validated set of reinforcement feedback.
type Batch struct {
	Queries []Query `json:"queries"`
}

// Results is the loose bridge shape produced by external rankers:
// parallel lists of ids and distances, one row per query.
type Results struct {
	IDs       [][]string  `json:"ids"`
	Distances [][]float64 `json:"distances"`
}

// Batch converts the bridge shape into a Batch, rejecting ragged rows.
func (r Results) Batch() (Batch, error) {
	if len(r.IDs) != len(r.Distances) {
		return Batch{}, errors.NewValidationf("results has %d id rows but %d distance rows", len(r.IDs), len(r.Distances))
	}
	b := Batch{Queries: make([]Query, len(r.IDs))}
	for q, row := range r.IDs {
		if len(row) != len(r.Distances[q]) {
			return Batch{}, errors.NewValidationf("results row %d has %d ids but %d distances", q, len(row), len(r.Distances[q]))
		}
		matches := make([]Match, len(row))
		for i, id := range row {
			matches[i] = Match{ID: id, Distance: r.Distances[q][i]}
		}
		b.Queries[q] = Query{Matches: matches}
	}
	if err := b.Validate(); err != nil {
		return Batch{}, err
	}
	return b, nil
}

// Validate checks every match has an id and a finite distance.
func (b Batch) Validate() error {
	for q, query := range b.Queries {
		for i, match := range query.Matches {
			if match.ID == "" {
				return errors.NewValidationf("query %d match %d has empty id", q, i)
			}
			if !finite(match.Distance) {
				return errors.NewValidationf("query %d match %d has non-finite distance", q, i)
			}
		}
	}
	return nil
}

// Size is the total number of matches across all queries.
func (b Batch) Size() int {
	n := 0
	for _, q := range b.Queries {
		n += len(q.Matches)
	}
	return n
}
