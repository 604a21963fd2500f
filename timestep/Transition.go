package timestep

import (
	"gonum.org/v1/gonum/mat"
)

// Computed per-transition quantities stored in a Transition's Info map.
const (
	Advantage   string = "advantage"
	ValueTarget string = "gae_based_value_target"
	TotalReturn string = "total_return"
)

// Transition packages together a single environment step: the state the
// agent was in, the action it took, the reward it received, and the
// state it ended up in. GameOver is true when the transition ends an
// episode.
//
// The Info map holds scalar quantities computed for the transition
// after it was recorded, such as its advantage or value target. Info is
// mutated in place by whoever computes these quantities; readers should
// use HasInfo to check for a key before reading it.
type Transition struct {
	State     *mat.VecDense
	Action    *mat.VecDense
	Reward    float64
	NextState *mat.VecDense
	GameOver  bool
	Info      map[string]float64
}

// NewTransition returns a new Transition with an empty Info map
func NewTransition(state, action *mat.VecDense, reward float64,
	nextState *mat.VecDense, gameOver bool) *Transition {
	return &Transition{
		State:     state,
		Action:    action,
		Reward:    reward,
		NextState: nextState,
		GameOver:  gameOver,
		Info:      make(map[string]float64),
	}
}

// SetInfo records a computed scalar quantity on the Transition
func (t *Transition) SetInfo(key string, value float64) {
	if t.Info == nil {
		t.Info = make(map[string]float64)
	}
	t.Info[key] = value
}

// HasInfo returns whether a computed quantity has been recorded under
// the argument key
func (t *Transition) HasInfo(key string) bool {
	_, ok := t.Info[key]
	return ok
}
