// Package memory implements ordered transition pools that accumulate
// experience between training calls
package memory

import (
	"fmt"

	"sfneuman.com/goppo/timestep"
)

// Episodic is an ordered pool of transitions spanning whole episodes.
// Training controllers borrow the pool's transitions for the duration
// of one training call and hand control back by calling Clean.
//
// The pool is not safe for concurrent use: callers must pause data
// collection while a training call is reading the pool.
type Episodic struct {
	transitions       []*timestep.Transition
	completedEpisodes int
	maxSize           int
}

// NewEpisodic returns a new Episodic pool holding at most maxSize
// transitions, or an unbounded pool when maxSize <= 0.
func NewEpisodic(maxSize int) *Episodic {
	return &Episodic{maxSize: maxSize}
}

// Add appends a transition to the pool
func (e *Episodic) Add(t *timestep.Transition) error {
	if e.maxSize > 0 && len(e.transitions) >= e.maxSize {
		return fmt.Errorf("add: cannot add new transition, pool at "+
			"maximum capacity (%v)", e.maxSize)
	}

	e.transitions = append(e.transitions, t)
	if t.GameOver {
		e.completedEpisodes++
	}
	return nil
}

// Transitions returns the pooled transitions in insertion order. The
// returned slice is the pool's own backing storage; callers borrow it
// exclusively until they Clean the pool.
func (e *Episodic) Transitions() []*timestep.Transition {
	return e.transitions
}

// NumSteps returns the number of pooled transitions
func (e *Episodic) NumSteps() int {
	return len(e.transitions)
}

// NumCompletedEpisodes returns the number of completed episodes in the
// pool
func (e *Episodic) NumCompletedEpisodes() int {
	return e.completedEpisodes
}

// LastEpisodeEnded returns whether the most recent transition closed
// its episode. An empty pool trivially has no open episode.
func (e *Episodic) LastEpisodeEnded() bool {
	if len(e.transitions) == 0 {
		return true
	}
	return e.transitions[len(e.transitions)-1].GameOver
}

// Clean discards all pooled transitions, returning ownership of the
// pool to the data-collection side.
func (e *Episodic) Clean() {
	e.transitions = e.transitions[:0]
	e.completedEpisodes = 0
}
