// Package clippedppo implements a clipped proximal policy
// optimization agent: collected experience is replayed for multiple
// optimization epochs over reshuffled minibatches, with the policy
// update bounded by a clipped likelihood ratio against an old-policy
// snapshot.
package clippedppo

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
	"sfneuman.com/goppo/advantage"
	"sfneuman.com/goppo/agent"
	"sfneuman.com/goppo/batch"
	"sfneuman.com/goppo/memory"
	"sfneuman.com/goppo/network"
	"sfneuman.com/goppo/schedule"
	"sfneuman.com/goppo/timestep"
	"sfneuman.com/goppo/utils/floatutils"
)

// Config describes a clipped PPO agent. The zero value is not usable;
// start from NewDefaultConfig.
type Config struct {
	// Rescaler selects how the policy gradient is rescaled
	Rescaler advantage.Rescaler

	// Gamma is the discount factor
	Gamma float64

	// Lambda is the generalized advantage estimation parameter
	Lambda float64

	// EstimateValueUsingGAE selects whether the value head's targets
	// are the GAE advantages plus the state values, rather than the
	// cumulative discounted returns
	EstimateValueUsingGAE bool

	// OptimizationEpochs is the number of passes over the collected
	// batch per training iteration
	OptimizationEpochs int

	// NumConsecutivePlayingSteps is the number of environment steps
	// collected before each training iteration
	NumConsecutivePlayingSteps int

	// RequireFullEpisodes delays training until the last collected
	// episode has ended
	RequireFullEpisodes bool

	// ClipDecaySchedule scales the likelihood-ratio clip range over
	// training; stepped once per training iteration
	ClipDecaySchedule schedule.Schedule

	// Seed seeds batch shuffling
	Seed uint64
}

// NewDefaultConfig returns a Config with the conventional clipped PPO
// defaults
func NewDefaultConfig() Config {
	return Config{
		Rescaler:                   advantage.GAE,
		Gamma:                      0.99,
		Lambda:                     0.95,
		EstimateValueUsingGAE:      true,
		OptimizationEpochs:         10,
		NumConsecutivePlayingSteps: 2048,
		RequireFullEpisodes:        true,
		ClipDecaySchedule:          schedule.NewConstant(1.0),
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
	if c.OptimizationEpochs <= 0 {
		return fmt.Errorf("validate: optimization epochs must be "+
			"positive\n\twant(> 0)\n\thave(%v)", c.OptimizationEpochs)
	}
	if c.NumConsecutivePlayingSteps <= 0 {
		return fmt.Errorf("validate: playing steps must be positive"+
			"\n\twant(> 0)\n\thave(%v)", c.NumConsecutivePlayingSteps)
	}
	if c.ClipDecaySchedule == nil {
		return fmt.Errorf("validate: clip decay schedule required")
	}
	return nil
}

// epochResult holds the mean training diagnostics of one
// optimization epoch
type epochResult struct {
	totalLoss  float64
	valueLoss  float64
	policyLoss float64
	gradNorm   float64
	kl         float64
	entropy    float64
}

// ClippedPPO learns a policy and a state-value function with the
// clipped surrogate objective.
type ClippedPPO struct {
	net  network.Network
	mem  *memory.Episodic
	sink agent.Sink

	config            Config
	estimator         advantage.Estimator
	trainingIteration int
}

// New returns a new ClippedPPO agent. The network's batch size is the
// minibatch size; the collected batch is partitioned into minibatches
// of that size each epoch. The sink may be nil, in which case
// diagnostics are discarded.
func New(net network.Network, mem *memory.Episodic, sink agent.Sink,
	config Config) (*ClippedPPO, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("clippedppo: %v", err)
	}
	if net.BatchSize() > config.NumConsecutivePlayingSteps {
		return nil, fmt.Errorf("clippedppo: minibatch size exceeds "+
			"collected steps\n\twant(≤ %v)\n\thave(%v)",
			config.NumConsecutivePlayingSteps, net.BatchSize())
	}
	if sink == nil {
		sink = agent.NopSink{}
	}

	return &ClippedPPO{
		net:    net,
		mem:    mem,
		sink:   sink,
		config: config,
		estimator: advantage.Estimator{
			Gamma:                 config.Gamma,
			Lambda:                config.Lambda,
			EstimateValueUsingGAE: config.EstimateValueUsingGAE,
		},
	}, nil
}

// TrainingIteration returns the number of completed training
// iterations
func (c *ClippedPPO) TrainingIteration() int {
	return c.trainingIteration
}

// ObserveTransition records one environment step for later training
func (c *ClippedPPO) ObserveTransition(state, action *mat.VecDense,
	reward float64, nextState *mat.VecDense, gameOver bool) error {
	t := timestep.NewTransition(state, action, reward, nextState,
		gameOver)
	if err := c.mem.Add(t); err != nil {
		return fmt.Errorf("observetransition: %v", err)
	}
	return nil
}

// ready reports whether enough experience has accumulated for a
// training iteration
func (c *ClippedPPO) ready() bool {
	if c.mem.NumSteps() < c.config.NumConsecutivePlayingSteps {
		return false
	}
	return !c.config.RequireFullEpisodes || c.mem.LastEpisodeEnded()
}

// Train runs one full training iteration over the accumulated
// experience: snapshot the old policy, fill per-transition advantages
// and value targets, then optimize for multiple epochs over
// reshuffled minibatches. Afterwards the memory is cleared and the
// clip decay schedule advances. When not enough experience has
// accumulated it is a no-op and returns a nil loss summary.
func (c *ClippedPPO) Train() ([]float64, error) {
	if !c.ready() {
		return nil, nil
	}

	if err := c.net.SyncTarget(); err != nil {
		return nil, fmt.Errorf("train: %v", err)
	}

	// derive a fresh seed per iteration so that successive
	// iterations do not replay the same shuffle sequence
	seed := c.config.Seed + uint64(c.trainingIteration)

	// advantages are computed over all accumulated transitions so
	// that no estimation window is cut short
	full := batch.New(c.mem.Transitions(), seed)
	if err := c.fillAdvantages(full); err != nil {
		return nil, fmt.Errorf("train: %v", err)
	}

	transitions := c.mem.Transitions()
	steps := c.config.NumConsecutivePlayingSteps
	b := batch.New(transitions[:steps], seed)

	result, err := c.trainNetwork(b, c.config.OptimizationEpochs)
	if err != nil {
		return nil, fmt.Errorf("train: %v", err)
	}

	c.sink.Record(agent.ValueLossSignal, result.valueLoss)
	c.sink.Record(agent.PolicyLossSignal, result.policyLoss)

	c.mem.Clean()
	c.config.ClipDecaySchedule.Step()
	c.trainingIteration++

	return []float64{result.valueLoss, result.policyLoss}, nil
}

// LearnFromBatch optimizes the network over a prepared batch for the
// configured number of epochs, returning the final epoch's mean total
// loss, head losses, and unclipped gradient norm. The old-policy
// snapshot and the per-transition advantages are refreshed first.
func (c *ClippedPPO) LearnFromBatch(b *batch.Batch) (float64,
	[]float64, float64, error) {
	if err := c.net.SyncTarget(); err != nil {
		return 0, nil, 0, fmt.Errorf("learnfrombatch: %v", err)
	}
	if err := c.fillAdvantages(b); err != nil {
		return 0, nil, 0, fmt.Errorf("learnfrombatch: %v", err)
	}

	result, err := c.trainNetwork(b, c.config.OptimizationEpochs)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("learnfrombatch: %v", err)
	}
	return result.totalLoss,
		[]float64{result.valueLoss, result.policyLoss},
		result.gradNorm, nil
}

// GetPrediction returns the policy head outputs for a batch of
// states, excluding the value head
func (c *ClippedPPO) GetPrediction(states *mat.Dense) ([]*mat.Dense,
	error) {
	prediction, err := c.net.Predict(states)
	if err != nil {
		return nil, fmt.Errorf("getprediction: %v", err)
	}
	return prediction.Policy, nil
}

// fillAdvantages computes standardized advantages and value targets
// for every transition of a batch and writes them into the
// transitions' auxiliary info. The computation is split at episode
// boundaries; advantages are standardized across the whole batch. An
// unrecognized rescaler leaves every advantage zero after a warning.
func (c *ClippedPPO) fillAdvantages(b *batch.Batch) error {
	prediction, err := c.net.Predict(b.States())
	if err != nil {
		return err
	}
	values := prediction.Values
	c.sink.Record(agent.ValuesSignal, values...)

	advantages := make([]float64, b.Size())
	targets := make([]float64, b.Size())

	if !c.config.Rescaler.Known() {
		fmt.Fprintf(os.Stderr, "warning: the requested policy gradient "+
			"rescaler is not available\n")
	} else {
		rewards := b.Rewards()
		transitions := b.Transitions()

		for _, window := range advantage.Windows(b.GameOvers()) {
			start, end := window[0], window[1]

			bootstrap, err := c.bootstrapValue(transitions[end-1])
			if err != nil {
				return err
			}

			returns := c.estimator.BootstrappedReturns(
				rewards[start:end], bootstrap)
			for i, r := range returns {
				transitions[start+i].SetInfo(timestep.TotalReturn, r)
			}

			switch c.config.Rescaler {
			case advantage.AValue, advantage.CustomActorCritic:
				for i, r := range returns {
					targets[start+i] = r
					advantages[start+i] = r - values[start+i]
				}
			case advantage.GAE:
				windowValues := make([]float64, 0, end-start+1)
				windowValues = append(windowValues,
					values[start:end]...)
				windowValues = append(windowValues, bootstrap)

				adv, windowTargets, err := c.estimator.Generalized(
					rewards[start:end], windowValues)
				if err != nil {
					return err
				}
				copy(advantages[start:], adv)
				copy(targets[start:], windowTargets)
			}
		}

		advantage.Standardize(advantages)
	}

	for i, t := range b.Transitions() {
		t.SetInfo(timestep.Advantage, advantages[i])
		t.SetInfo(timestep.ValueTarget, targets[i])
	}

	c.sink.Record(agent.AdvantagesSignal, advantages...)
	return nil
}

// bootstrapValue returns the value terminating a window's backward
// recursion: zero after a terminal transition, the predicted value of
// the next state otherwise
func (c *ClippedPPO) bootstrapValue(
	last *timestep.Transition) (float64, error) {
	if last.GameOver {
		return 0, nil
	}

	nextState := mat.NewDense(1, last.NextState.Len(),
		last.NextState.RawVector().Data)
	prediction, err := c.net.Predict(nextState)
	if err != nil {
		return 0, err
	}
	return prediction.Values[0], nil
}

// trainNetwork optimizes the network over the batch for the given
// number of epochs. Each epoch reshuffles the batch and partitions it
// into minibatches of the network's batch size; a trailing partial
// minibatch is dropped. The returned diagnostics are the means of the
// final epoch.
func (c *ClippedPPO) trainNetwork(b *batch.Batch,
	epochs int) (epochResult, error) {
	minibatchSize := c.net.BatchSize()
	numMinibatches := b.Size() / minibatchSize
	if numMinibatches == 0 {
		return epochResult{}, fmt.Errorf("trainnetwork: batch smaller "+
			"than a minibatch\n\twant(≥ %v)\n\thave(%v)", minibatchSize,
			b.Size())
	}

	var result epochResult
	for epoch := 0; epoch < epochs; epoch++ {
		b.Shuffle()

		totalLosses := make([]float64, numMinibatches)
		valueLosses := make([]float64, numMinibatches)
		policyLosses := make([]float64, numMinibatches)
		gradNorms := make([]float64, numMinibatches)
		kls := make([]float64, numMinibatches)
		entropies := make([]float64, numMinibatches)

		for i := 0; i < numMinibatches; i++ {
			start := i * minibatchSize
			minibatch, err := b.Slice(start, start+minibatchSize)
			if err != nil {
				return epochResult{}, fmt.Errorf("trainnetwork: %v", err)
			}

			stepResult, err := c.trainMinibatch(minibatch)
			if err != nil {
				return epochResult{}, fmt.Errorf("trainnetwork: %v", err)
			}

			totalLosses[i] = stepResult.TotalLoss
			valueLosses[i] = stepResult.HeadLosses[0]
			policyLosses[i] = stepResult.HeadLosses[1]
			gradNorms[i] = stepResult.GradNorm
			kls[i] = stepResult.KL
			entropies[i] = stepResult.Entropy
		}

		result = epochResult{
			totalLoss:  floatutils.Mean(totalLosses...),
			valueLoss:  floatutils.Mean(valueLosses...),
			policyLoss: floatutils.Mean(policyLosses...),
			gradNorm:   floatutils.Mean(gradNorms...),
			kl:         floatutils.Mean(kls...),
			entropy:    floatutils.Mean(entropies...),
		}
	}

	c.sink.Record(agent.TotalLossSignal, result.totalLoss)
	c.sink.Record(agent.KLDivergenceSignal, result.kl)
	c.sink.Record(agent.EntropySignal, result.entropy)
	return result, nil
}

// trainMinibatch issues one gradient step over a minibatch, feeding
// the old policy's distribution parameters and the current clip decay
func (c *ClippedPPO) trainMinibatch(
	minibatch *batch.Batch) (network.TrainResult, error) {
	states := minibatch.States()

	old, err := c.net.PredictTarget(states)
	if err != nil {
		return network.TrainResult{}, err
	}

	advantages, err := minibatch.Info(timestep.Advantage)
	if err != nil {
		return network.TrainResult{}, err
	}

	var targets []float64
	if c.config.EstimateValueUsingGAE {
		targets, err = minibatch.Info(timestep.ValueTarget)
	} else {
		targets, err = minibatch.TotalReturns()
	}
	if err != nil {
		return network.TrainResult{}, err
	}
	c.sink.Record(agent.ValueTargetsSignal, targets...)

	result, err := c.net.TrainStep(network.TrainInput{
		States:       states,
		Actions:      minibatch.Actions(),
		Advantages:   advantages,
		ValueTargets: targets,
		OldPolicy:    old.Policy,
		ClipDecay:    c.config.ClipDecaySchedule.Value(),
	})
	if err != nil {
		return network.TrainResult{}, err
	}

	c.sink.Record(agent.UnclippedGradsSignal, result.GradNorm)
	return result, nil
}
