// Package agent describes the interfaces of policy optimization
// agents and the collaborators they consume. Concrete agents live in
// sub-packages, one per learning algorithm.
package agent

import (
	"gonum.org/v1/gonum/mat"
	"sfneuman.com/goppo/batch"
)

// PolicyOptimizer is the surface a policy optimization agent exposes
// upward. Train is called periodically; when not enough experience
// has accumulated it is a no-op and returns a nil loss summary.
type PolicyOptimizer interface {
	// Train runs one full training iteration over the accumulated
	// experience and returns the final head losses, or nil when not
	// enough experience has accumulated
	Train() ([]float64, error)

	// LearnFromBatch performs the learning step on a prepared batch,
	// returning the total loss, the per-head losses, and the global
	// norm of the unclipped gradient
	LearnFromBatch(b *batch.Batch) (float64, []float64, float64, error)

	// GetPrediction returns the policy head outputs for a batch of
	// states, excluding the value head
	GetPrediction(states *mat.Dense) ([]*mat.Dense, error)

	// ObserveTransition records one environment step for later
	// training
	ObserveTransition(state, action *mat.VecDense, reward float64,
		nextState *mat.VecDense, gameOver bool) error
}

// StateValuer estimates state values independently of the agent's own
// value head. An external critic satisfies this interface.
type StateValuer interface {
	StateValues(states *mat.Dense) ([]float64, error)
}
