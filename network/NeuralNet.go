// Package network implements the actor-critic networks that
// policy-gradient agents learn: a shared fully-connected trunk with a
// state-value head and policy distribution-parameter heads.
package network

import (
	"gonum.org/v1/gonum/mat"
	"sfneuman.com/goppo/spec"
)

// Prediction holds the per-head outputs of a forward pass over a
// batch of states.
type Prediction struct {
	// Values holds the value head's output, one value per state
	Values []float64

	// Policy holds one matrix per distribution-parameter head, with
	// one row per state: logits for a discrete policy, mean and log
	// standard deviation for a continuous one
	Policy []*mat.Dense
}

// TrainInput packages everything needed for one gradient step over a
// batch: the states, the actions taken in them, the estimated
// advantage of each action, and the value head's regression targets.
//
// OldPolicy and ClipDecay are consumed only by networks with a
// likelihood-ratio clipped loss: OldPolicy holds the old policy's
// distribution parameters for the batch states, one matrix per head,
// and ClipDecay scales the clipping range of the current step.
type TrainInput struct {
	States       *mat.Dense
	Actions      *mat.Dense
	Advantages   []float64
	ValueTargets []float64
	OldPolicy    []*mat.Dense
	ClipDecay    float64
}

// TrainResult reports the outcome of one gradient step
type TrainResult struct {
	// TotalLoss is the combined loss of all heads
	TotalLoss float64

	// HeadLosses holds the value head loss and the policy head loss
	HeadLosses []float64

	// GradNorm is the global L2 norm of the unclipped gradient
	GradNorm float64

	// KL is the mean KL divergence from the old policy to the current
	// one; always 0 for networks without an old-policy input
	KL float64

	// Entropy is the mean entropy of the current policy
	Entropy float64
}

// Network is the narrow surface that learning agents consume: value
// and policy predictions, a single gradient step, and an old-policy
// snapshot. Implementations are not safe for concurrent use; agents
// serialize all calls within one training invocation.
type Network interface {
	// Predict runs the online network forward over a batch of states
	// of any size
	Predict(states *mat.Dense) (*Prediction, error)

	// PredictTarget runs the old-policy snapshot forward. The batch
	// must be exactly BatchSize rows.
	PredictTarget(states *mat.Dense) (*Prediction, error)

	// TrainStep performs one gradient update from a batch of exactly
	// BatchSize transitions
	TrainStep(in TrainInput) (TrainResult, error)

	// SyncTarget copies the online network's parameters into the
	// old-policy snapshot
	SyncTarget() error

	// BatchSize returns the number of transitions consumed by one
	// TrainStep
	BatchSize() int

	// ActionSpace returns the action space the policy is defined over
	ActionSpace() spec.ActionSpace
}
