package search

import "fmt"

// Weights controls how much each retrieval signal contributes to the fused
// score. The weights do not have to sum to one; only the resulting ordering
// matters, not the absolute scores.
type Weights struct {
	Lexical float64
	Vector  float64
}

// DefaultWeights leans on vector similarity while keeping keyword matches
// relevant.
func DefaultWeights() Weights {
	return Weights{Lexical: 0.35, Vector: 0.65}
}

// Validate checks that each weight lies in [0, 1] and at least one signal
// contributes.
func (w Weights) Validate() error {
	if w.Lexical < 0 || w.Lexical > 1 {
		return fmt.Errorf("%w: lexical weight %v out of [0, 1]", ErrInvalidWeights, w.Lexical)
	}
	if w.Vector < 0 || w.Vector > 1 {
		return fmt.Errorf("%w: vector weight %v out of [0, 1]", ErrInvalidWeights, w.Vector)
	}
	if w.Lexical == 0 && w.Vector == 0 {
		return fmt.Errorf("%w: both weights are zero", ErrInvalidWeights)
	}
	return nil
}
