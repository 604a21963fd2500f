// Package batch groups a stream of transitions into a trainable unit
// with vectorized access to each transition field
package batch

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"sfneuman.com/goppo/timestep"
)

// Batch is an ordered, shuffleable, sliceable view over a sequence of
// transitions. Accessors return one row or element per transition, in
// the current order of the batch. Shuffling permutes every field by
// the same permutation, so per-transition correspondence between
// fields is always preserved.
//
// A Batch does not own its transitions: it is constructed fresh per
// training call over the current transition pool and discarded
// afterwards. Slicing produces a view over the same backing array.
type Batch struct {
	transitions []*timestep.Transition
	rng         *rand.Rand
}

// New returns a new Batch over the argument transitions. The seed
// determines the shuffling order.
func New(transitions []*timestep.Transition, seed uint64) *Batch {
	return &Batch{
		transitions: transitions,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Size returns the number of transitions in the Batch
func (b *Batch) Size() int {
	return len(b.transitions)
}

// Transitions returns the underlying transitions in current order
func (b *Batch) Transitions() []*timestep.Transition {
	return b.transitions
}

// Shuffle reorders the transitions uniformly at random, in place. All
// subsequent field accessors reflect the new order.
func (b *Batch) Shuffle() {
	b.rng.Shuffle(len(b.transitions), func(i, j int) {
		b.transitions[i], b.transitions[j] = b.transitions[j],
			b.transitions[i]
	})
}

// Slice returns a view over the transitions in [start, end). The view
// shares its backing array with the receiver; no transitions are
// copied.
func (b *Batch) Slice(start, end int) (*Batch, error) {
	if start < 0 || end > len(b.transitions) || start > end {
		return nil, fmt.Errorf("slice: illegal range [%v, %v) for batch "+
			"of size %v", start, end, len(b.transitions))
	}
	return &Batch{transitions: b.transitions[start:end], rng: b.rng}, nil
}

// States returns the state of every transition as the rows of a matrix
func (b *Batch) States() *mat.Dense {
	return b.vectorField(func(t *timestep.Transition) *mat.VecDense {
		return t.State
	})
}

// NextStates returns the next state of every transition as the rows of
// a matrix
func (b *Batch) NextStates() *mat.Dense {
	return b.vectorField(func(t *timestep.Transition) *mat.VecDense {
		return t.NextState
	})
}

// Actions returns the action of every transition as the rows of a
// matrix
func (b *Batch) Actions() *mat.Dense {
	return b.vectorField(func(t *timestep.Transition) *mat.VecDense {
		return t.Action
	})
}

// Rewards returns the reward of every transition
func (b *Batch) Rewards() []float64 {
	rewards := make([]float64, len(b.transitions))
	for i, t := range b.transitions {
		rewards[i] = t.Reward
	}
	return rewards
}

// GameOvers returns the episode-termination flag of every transition
func (b *Batch) GameOvers() []bool {
	gameOvers := make([]bool, len(b.transitions))
	for i, t := range b.transitions {
		gameOvers[i] = t.GameOver
	}
	return gameOvers
}

// Info returns the computed quantity stored under key for every
// transition. An error is returned when any transition is missing the
// key, which means the corresponding precomputation never ran.
func (b *Batch) Info(key string) ([]float64, error) {
	values := make([]float64, len(b.transitions))
	for i, t := range b.transitions {
		value, ok := t.Info[key]
		if !ok {
			return nil, fmt.Errorf("info: no %q recorded for transition "+
				"%v", key, i)
		}
		values[i] = value
	}
	return values, nil
}

// TotalReturns returns the precomputed cumulative discounted return of
// every transition. The returns must have been computed and recorded
// beforehand; an error is returned otherwise.
func (b *Batch) TotalReturns() ([]float64, error) {
	returns, err := b.Info(timestep.TotalReturn)
	if err != nil {
		return nil, fmt.Errorf("totalreturns: returns were never "+
			"computed for this batch: %v", err)
	}
	return returns, nil
}

func (b *Batch) vectorField(
	field func(*timestep.Transition) *mat.VecDense) *mat.Dense {
	if len(b.transitions) == 0 {
		return nil
	}

	cols := field(b.transitions[0]).Len()
	out := mat.NewDense(len(b.transitions), cols, nil)
	for i, t := range b.transitions {
		out.SetRow(i, field(t).RawVector().Data)
	}
	return out
}
