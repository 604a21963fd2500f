// Package spec implements specifications of the spaces an agent
// interacts with
package spec

import "fmt"

// Cardinality determines the cardinality of an action space (discrete
// or continuous)
type Cardinality string

const (
	Continuous Cardinality = "Continuous"
	Discrete   Cardinality = "Discrete"
)

// ActionSpace describes the action space of an environment. The
// cardinality fixes how a policy over the space is parameterized: a
// discrete space gets one softmax logit per action, a continuous space
// gets a mean and a log standard deviation per action dimension. The
// parameterization is resolved once, when an agent is constructed,
// rather than re-branched at every call site.
type ActionSpace struct {
	Cardinality

	// NumActions is the number of available actions in a discrete
	// space; ignored for continuous spaces
	NumActions int

	// Dims is the dimensionality of a continuous action; ignored for
	// discrete spaces, where actions are scalar indices
	Dims int
}

// NewDiscrete returns the ActionSpace of a discrete space with
// numActions available actions
func NewDiscrete(numActions int) ActionSpace {
	return ActionSpace{Cardinality: Discrete, NumActions: numActions,
		Dims: 1}
}

// NewContinuous returns the ActionSpace of a continuous space with
// dims action dimensions
func NewContinuous(dims int) ActionSpace {
	return ActionSpace{Cardinality: Continuous, Dims: dims}
}

// PolicyHeads returns the number of distribution-parameter heads a
// policy over the space predicts: logits only for a discrete space,
// mean and log standard deviation for a continuous one.
func (a ActionSpace) PolicyHeads() int {
	switch a.Cardinality {
	case Discrete:
		return 1
	case Continuous:
		return 2
	default:
		panic(fmt.Sprintf("policyheads: illegal cardinality %v",
			a.Cardinality))
	}
}

// PolicyParams returns the width of each distribution-parameter head
func (a ActionSpace) PolicyParams() int {
	switch a.Cardinality {
	case Discrete:
		return a.NumActions
	case Continuous:
		return a.Dims
	default:
		panic(fmt.Sprintf("policyparams: illegal cardinality %v",
			a.Cardinality))
	}
}

// Validate returns an error describing whether the ActionSpace is
// well formed
func (a ActionSpace) Validate() error {
	switch a.Cardinality {
	case Discrete:
		if a.NumActions < 2 {
			return fmt.Errorf("validate: discrete space needs at least 2 "+
				"actions, have %v", a.NumActions)
		}
	case Continuous:
		if a.Dims < 1 {
			return fmt.Errorf("validate: continuous space needs at least "+
				"1 dimension, have %v", a.Dims)
		}
	default:
		return fmt.Errorf("validate: illegal cardinality %v",
			a.Cardinality)
	}
	return nil
}
