package main

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"sfneuman.com/goppo/agent"
	"sfneuman.com/goppo/agent/clippedppo"
	"sfneuman.com/goppo/initwfn"
	"sfneuman.com/goppo/memory"
	"sfneuman.com/goppo/network"
	"sfneuman.com/goppo/solver"
	"sfneuman.com/goppo/spec"
	"sfneuman.com/goppo/utils/floatutils"
)

// chain is a small deterministic MDP used to exercise the training
// cycle: states 0..length-1, action 1 moves right, action 0 moves
// left, reward 1 only when reaching the rightmost state, which ends
// the episode.
type chain struct {
	length int
	state  int
}

func (c *chain) features() *mat.VecDense {
	// one-hot state encoding
	obs := mat.NewVecDense(c.length, nil)
	obs.SetVec(c.state, 1.0)
	return obs
}

func (c *chain) step(action int) (reward float64, gameOver bool) {
	if action == 1 {
		c.state++
	} else if c.state > 0 {
		c.state--
	}
	if c.state == c.length-1 {
		c.state = 0
		return 1.0, true
	}
	return 0.0, false
}

func main() {
	var seed uint64 = 192382
	rng := rand.New(rand.NewSource(seed))

	const (
		chainLength   = 5
		minibatchSize = 16
		playingSteps  = 64
	)
	space := spec.NewDiscrete(2)

	net, err := network.NewClippedPPO(
		chainLength,
		minibatchSize,
		space,
		[]int{32},
		[]bool{true},
		[]*network.Activation{network.TanH()},
		initwfn.NewGlorotU(1.0),
		solver.NewDefaultAdam(0.0003, minibatchSize),
		0.5,  // value loss weight
		0.01, // entropy bonus
		0.2,  // clip range
	)
	if err != nil {
		panic(err)
	}

	config := clippedppo.NewDefaultConfig()
	config.NumConsecutivePlayingSteps = playingSteps
	config.OptimizationEpochs = 4
	config.Seed = seed

	sink := agent.NewRecorder()
	ppo, err := clippedppo.New(net, memory.NewEpisodic(0), sink, config)
	if err != nil {
		panic(err)
	}

	env := &chain{length: chainLength}
	for iteration := 0; iteration < 5; {
		state := env.features()

		// sample an action from the current policy
		policy, err := ppo.GetPrediction(mat.NewDense(1, chainLength,
			state.RawVector().Data))
		if err != nil {
			panic(err)
		}
		action := sampleAction(rng, policy[0].RawRowView(0))

		reward, gameOver := env.step(action)
		err = ppo.ObserveTransition(state,
			mat.NewVecDense(1, []float64{float64(action)}), reward,
			env.features(), gameOver)
		if err != nil {
			panic(err)
		}

		losses, err := ppo.Train()
		if err != nil {
			panic(err)
		}
		if losses != nil {
			iteration++
			entropy, _ := sink.Last(agent.EntropySignal)
			fmt.Printf("iteration %d\tvalue loss %.4f\tpolicy loss "+
				"%.4f\tentropy %.4f\n", iteration, losses[0], losses[1],
				entropy)
		}
	}

	// print the learned greedy policy
	for s := 0; s < chainLength-1; s++ {
		env.state = s
		policy, err := ppo.GetPrediction(mat.NewDense(1, chainLength,
			env.features().RawVector().Data))
		if err != nil {
			panic(err)
		}
		greedy := floatutils.ArgMax(policy[0].RawRowView(0)...)
		fmt.Printf("state %d\tgreedy action %d\n", s, greedy[0])
	}
}

// sampleAction draws an action from a softmax over logits
func sampleAction(rng *rand.Rand, logits []float64) int {
	max := floatutils.Max(logits...)
	var total float64
	probs := make([]float64, len(logits))
	for i, logit := range logits {
		probs[i] = math.Exp(logit - max)
		total += probs[i]
	}

	u := rng.Float64() * total
	for i, p := range probs {
		u -= p
		if u <= 0 {
			return i
		}
	}
	return len(probs) - 1
}
