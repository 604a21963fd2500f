// Package actorcritic implements a single-step actor-critic agent:
// once enough transitions have accumulated, one gradient update is
// performed over the whole collected batch and the memory is cleared.
package actorcritic

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
	"sfneuman.com/goppo/advantage"
	"sfneuman.com/goppo/agent"
	"sfneuman.com/goppo/batch"
	"sfneuman.com/goppo/memory"
	"sfneuman.com/goppo/network"
	"sfneuman.com/goppo/timestep"
)

// Config describes an actor-critic agent. The zero value is not
// usable; start from NewDefaultConfig.
type Config struct {
	// Rescaler selects how the policy gradient is rescaled
	Rescaler advantage.Rescaler

	// Gamma is the discount factor
	Gamma float64

	// Lambda is the generalized advantage estimation parameter, used
	// only when Rescaler is advantage.GAE
	Lambda float64

	// EstimateValueUsingGAE selects whether the value head's targets
	// are the GAE advantages plus the state values, rather than the
	// plain bootstrapped discounted returns
	EstimateValueUsingGAE bool

	// NumStepsBetweenUpdates is the number of environment steps
	// collected before each gradient update
	NumStepsBetweenUpdates int

	// Seed seeds the batch construction
	Seed uint64
}

// NewDefaultConfig returns a Config with reasonable defaults
func NewDefaultConfig() Config {
	return Config{
		Rescaler:               advantage.AValue,
		Gamma:                  0.99,
		Lambda:                 0.96,
		EstimateValueUsingGAE:  false,
		NumStepsBetweenUpdates: 5000,
	}
}

// Validate returns an error describing why the configuration is
// malformed, or nil if it is well formed
func (c Config) Validate() error {
	if c.Gamma < 0 || c.Gamma >= 1 {
		return fmt.Errorf("validate: discount out of range"+
			"\n\twant(∈ [0, 1))\n\thave(%v)", c.Gamma)
	}
	if c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("validate: lambda out of range"+
			"\n\twant(∈ [0, 1])\n\thave(%v)", c.Lambda)
	}
	if c.NumStepsBetweenUpdates <= 0 {
		return fmt.Errorf("validate: steps between updates must be "+
			"positive\n\twant(> 0)\n\thave(%v)", c.NumStepsBetweenUpdates)
	}
	return nil
}

// ActorCritic learns a policy and a state-value function with the
// vanilla policy gradient. An optional external critic can replace
// the agent's own value head for advantage estimation.
type ActorCritic struct {
	net    network.Network
	mem    *memory.Episodic
	critic agent.StateValuer
	sink   agent.Sink

	config    Config
	estimator advantage.Estimator
}

// New returns a new ActorCritic agent. The network's batch size must
// equal the configured number of steps between updates; the whole
// collected batch is consumed by a single gradient step. The critic
// may be nil unless the rescaler is advantage.CustomActorCritic; the
// sink may be nil, in which case diagnostics are discarded.
func New(net network.Network, mem *memory.Episodic,
	critic agent.StateValuer, sink agent.Sink,
	config Config) (*ActorCritic, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("actorcritic: %v", err)
	}
	if net.BatchSize() != config.NumStepsBetweenUpdates {
		return nil, fmt.Errorf("actorcritic: network batch size must "+
			"match steps between updates\n\twant(%v)\n\thave(%v)",
			config.NumStepsBetweenUpdates, net.BatchSize())
	}
	if sink == nil {
		sink = agent.NopSink{}
	}

	return &ActorCritic{
		net:    net,
		mem:    mem,
		critic: critic,
		sink:   sink,
		config: config,
		estimator: advantage.Estimator{
			Gamma:                 config.Gamma,
			Lambda:                config.Lambda,
			EstimateValueUsingGAE: config.EstimateValueUsingGAE,
		},
	}, nil
}

// ObserveTransition records one environment step for later training
func (a *ActorCritic) ObserveTransition(state, action *mat.VecDense,
	reward float64, nextState *mat.VecDense, gameOver bool) error {
	t := timestep.NewTransition(state, action, reward, nextState,
		gameOver)
	if err := a.mem.Add(t); err != nil {
		return fmt.Errorf("observetransition: %v", err)
	}
	return nil
}

// Train performs one gradient update if enough steps have
// accumulated, then clears the memory. When not enough experience has
// accumulated it is a no-op and returns a nil loss summary.
func (a *ActorCritic) Train() ([]float64, error) {
	if a.mem.NumSteps() < a.config.NumStepsBetweenUpdates {
		return nil, nil
	}

	transitions := a.mem.Transitions()[:a.config.NumStepsBetweenUpdates]
	b := batch.New(transitions, a.config.Seed)

	_, headLosses, _, err := a.LearnFromBatch(b)
	if err != nil {
		return nil, fmt.Errorf("train: %v", err)
	}

	a.mem.Clean()
	return headLosses, nil
}

// LearnFromBatch performs one gradient update over a batch of exactly
// the network's batch size, returning the total loss, the per-head
// losses, and the global norm of the unclipped gradient. Each
// transition's cumulative return and value target are written into
// its auxiliary info as a side effect.
func (a *ActorCritic) LearnFromBatch(b *batch.Batch) (float64,
	[]float64, float64, error) {
	values, err := a.stateValues(b.States())
	if err != nil {
		return 0, nil, 0, fmt.Errorf("learnfrombatch: %v", err)
	}
	a.sink.Record(agent.ValuesSignal, values...)

	advantages, targets, err := a.fillAdvantages(b, values)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("learnfrombatch: %v", err)
	}

	result, err := a.net.TrainStep(network.TrainInput{
		States:       b.States(),
		Actions:      b.Actions(),
		Advantages:   advantages,
		ValueTargets: targets,
		ClipDecay:    1.0,
	})
	if err != nil {
		return 0, nil, 0, fmt.Errorf("learnfrombatch: %v", err)
	}

	a.sink.Record(agent.AdvantagesSignal, advantages...)
	a.sink.Record(agent.TotalLossSignal, result.TotalLoss)
	a.sink.Record(agent.UnclippedGradsSignal, result.GradNorm)
	a.sink.Record(agent.ValueLossSignal, result.HeadLosses[0])
	a.sink.Record(agent.PolicyLossSignal, result.HeadLosses[1])
	a.sink.Record(agent.EntropySignal, result.Entropy)

	return result.TotalLoss, result.HeadLosses, result.GradNorm, nil
}

// GetPrediction returns the policy head outputs for a batch of
// states, excluding the value head
func (a *ActorCritic) GetPrediction(states *mat.Dense) ([]*mat.Dense,
	error) {
	prediction, err := a.net.Predict(states)
	if err != nil {
		return nil, fmt.Errorf("getprediction: %v", err)
	}
	return prediction.Policy, nil
}

// stateValues estimates the value of every state in a batch, using
// the external critic when the rescaler calls for one
func (a *ActorCritic) stateValues(states *mat.Dense) ([]float64,
	error) {
	if a.config.Rescaler == advantage.CustomActorCritic &&
		a.critic != nil {
		return a.critic.StateValues(states)
	}
	prediction, err := a.net.Predict(states)
	if err != nil {
		return nil, err
	}
	return prediction.Values, nil
}

// fillAdvantages computes advantages and value targets for every
// transition of a batch, splitting the computation at episode
// boundaries. An unrecognized rescaler, or a missing external critic,
// leaves both all zero after a warning.
func (a *ActorCritic) fillAdvantages(b *batch.Batch,
	values []float64) ([]float64, []float64, error) {
	advantages := make([]float64, b.Size())
	targets := make([]float64, b.Size())

	knownRescaler := a.config.Rescaler.Known()
	if a.config.Rescaler == advantage.CustomActorCritic &&
		a.critic == nil {
		fmt.Fprintf(os.Stderr, "warning: custom actor critic rescaling "+
			"requires an external critic\n")
		knownRescaler = false
	}
	if !knownRescaler {
		if !a.config.Rescaler.Known() {
			fmt.Fprintf(os.Stderr, "warning: the requested policy "+
				"gradient rescaler is not available\n")
		}
		return advantages, targets, nil
	}

	rewards := b.Rewards()
	transitions := b.Transitions()

	for _, window := range advantage.Windows(b.GameOvers()) {
		start, end := window[0], window[1]

		bootstrap, err := a.bootstrapValue(transitions[end-1])
		if err != nil {
			return nil, nil, err
		}

		switch a.config.Rescaler {
		case advantage.AValue, advantage.CustomActorCritic:
			returns := a.estimator.BootstrappedReturns(
				rewards[start:end], bootstrap)
			for i, r := range returns {
				targets[start+i] = r
				advantages[start+i] = r - values[start+i]
			}
		case advantage.GAE:
			windowValues := make([]float64, 0, end-start+1)
			windowValues = append(windowValues, values[start:end]...)
			windowValues = append(windowValues, bootstrap)

			adv, windowTargets, err := a.estimator.Generalized(
				rewards[start:end], windowValues)
			if err != nil {
				return nil, nil, err
			}
			copy(advantages[start:], adv)
			copy(targets[start:], windowTargets)
		}

		// cumulative returns back the total_returns() accessor
		returns := a.estimator.BootstrappedReturns(rewards[start:end],
			bootstrap)
		for i, r := range returns {
			transitions[start+i].SetInfo(timestep.TotalReturn, r)
		}
	}

	for i, t := range b.Transitions() {
		t.SetInfo(timestep.Advantage, advantages[i])
		t.SetInfo(timestep.ValueTarget, targets[i])
	}
	return advantages, targets, nil
}

// bootstrapValue returns the value terminating a window's backward
// recursion: zero after a terminal transition, the estimated value of
// the next state otherwise
func (a *ActorCritic) bootstrapValue(
	last *timestep.Transition) (float64, error) {
	if last.GameOver {
		return 0, nil
	}

	nextState := mat.NewDense(1, last.NextState.Len(),
		last.NextState.RawVector().Data)
	values, err := a.stateValues(nextState)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}
