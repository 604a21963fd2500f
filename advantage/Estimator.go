package advantage

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// StdFloor is added to the standard deviation when standardizing
// advantages so that a zero-variance batch never divides by zero.
const StdFloor = 1e-8

// Estimator computes per-timestep advantages and value-function
// targets for a single episode window: a maximal contiguous run of
// transitions ending at a terminal state or at the end of the
// available data. Neither estimation method is valid across an episode
// boundary; callers must split their data into windows first, e.g.
// with Windows.
type Estimator struct {
	// Gamma is the discount factor ℽ
	Gamma float64

	// Lambda is the λ of GAE(λ)
	Lambda float64

	// EstimateValueUsingGAE selects the value-target mode for
	// Generalized: when true the target is advantage + V, otherwise it
	// is the plain bootstrapped discounted return
	EstimateValueUsingGAE bool
}

// BootstrappedReturns computes the discounted return of every
// timestep in a window by the backward recursion
//
//	R[i] = rewards[i] + ℽ*R[i+1]
//
// terminated with the bootstrap value: 0 when the window ends in a
// terminal state, otherwise the predicted value of the state following
// the window's last transition.
func (e Estimator) BootstrappedReturns(rewards []float64,
	bootstrap float64) []float64 {
	returns := make([]float64, len(rewards))

	r := bootstrap
	for i := len(rewards) - 1; i >= 0; i-- {
		r = rewards[i] + e.Gamma*r
		returns[i] = r
	}
	return returns
}

// Generalized computes GAE(λ) advantages and value targets for one
// episode window. The values argument holds the predicted value of
// each state in the window plus one trailing bootstrap value, so
// len(values) must equal len(rewards)+1. The bootstrap must be 0 when
// the window ends in a terminal state.
//
// Advantages are the discounted cumulative sums, at rate ℽλ, of the
// TD residuals
//
//	δ[i] = rewards[i] + ℽ*values[i+1] - values[i]
//
// Value targets are either advantage + value (EstimateValueUsingGAE)
// or the plain bootstrapped discounted return of the rewards.
func (e Estimator) Generalized(rewards, values []float64) (adv,
	targets []float64, err error) {
	if len(values) != len(rewards)+1 {
		return nil, nil, fmt.Errorf("generalized: illegal values length "+
			"\n\twant(%v)\n\thave(%v)", len(rewards)+1, len(values))
	}
	n := len(rewards)
	if n == 0 {
		return nil, nil, fmt.Errorf("generalized: empty window")
	}

	stateVals := mat.NewVecDense(n, values[:n])
	nextStateVals := mat.NewVecDense(n, values[1:])
	rews := mat.NewVecDense(n, rewards)

	deltas := mat.NewVecDense(n, nil)
	deltas.AddScaledVec(rews, e.Gamma, nextStateVals)
	deltas.SubVec(deltas, stateVals)

	adv = Discount(deltas, e.Gamma*e.Lambda)

	if e.EstimateValueUsingGAE {
		targets = make([]float64, n)
		for i := range targets {
			targets[i] = adv[i] + values[i]
		}
	} else {
		// Bootstrapped rewards-to-go, dropping the trailing entry
		// that holds the bootstrap itself
		extended := make([]float64, n+1)
		copy(extended, rewards)
		extended[n] = values[n]
		targets = DiscountSlice(extended, e.Gamma)[:n]
	}

	return adv, targets, nil
}

// Standardize rescales x in place to zero mean and unit variance,
// using the population standard deviation. A floor of StdFloor keeps a
// constant input from producing NaN or Inf; such an input comes back
// as all zeros.
func Standardize(x []float64) {
	if len(x) == 0 {
		return
	}
	mean := stat.Mean(x, nil)
	std := stat.PopStdDev(x, nil) + StdFloor

	for i := range x {
		x[i] = (x[i] - mean) / std
	}
}

// Windows returns the [start, end) index ranges of the maximal
// contiguous episode windows in a batch described by its game-over
// flags. Every window but possibly the last ends at a terminal
// transition; the last window is open when the final flag is false.
func Windows(gameOvers []bool) [][2]int {
	var windows [][2]int
	start := 0
	for i, over := range gameOvers {
		if over {
			windows = append(windows, [2]int{start, i + 1})
			start = i + 1
		}
	}
	if start < len(gameOvers) {
		windows = append(windows, [2]int{start, len(gameOvers)})
	}
	return windows
}
