package network

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
	"sfneuman.com/goppo/spec"
	"sfneuman.com/goppo/utils/op"
)

// distribution builds the policy-distribution parts of a loss graph:
// the log probability density of a batch of actions, the policy
// entropy, and the KL divergence from an old policy. Which concrete
// distribution backs a network is resolved once, from the action
// space, when the network is constructed.
type distribution interface {
	// logPdf returns a vector node holding the log probability
	// density of each action under the policy heads
	logPdf(policy []*G.Node, actions *G.Node) *G.Node

	// entropy returns a scalar node holding the mean policy entropy
	// over the batch
	entropy(policy []*G.Node) *G.Node

	// kl returns a scalar node holding the mean KL divergence from
	// the old policy heads to the current ones
	kl(old, current []*G.Node) *G.Node

	// actionShape returns the shape of the action input node for a
	// batch of the given size
	actionShape(batch int) tensor.Shape

	// actionTensor converts a batch of actions, one row per
	// transition, into the network's action input representation
	actionTensor(actions *mat.Dense) (*tensor.Dense, error)
}

// newDistribution returns the distribution for an action space
func newDistribution(space spec.ActionSpace) (distribution, error) {
	switch space.Cardinality {
	case spec.Discrete:
		return categorical{numActions: space.NumActions}, nil
	case spec.Continuous:
		return gaussian{dims: space.Dims}, nil
	default:
		return nil, fmt.Errorf("newdistribution: illegal cardinality %v",
			space.Cardinality)
	}
}

// categorical is a softmax distribution over a discrete action space,
// parameterized by one head of logits.
type categorical struct {
	numActions int
}

// logSoftmax returns the log of the softmax of logits along the
// feature axis
func logSoftmax(logits *G.Node) *G.Node {
	return G.Must(G.BroadcastSub(logits, op.LogSumExp(logits, 1), nil,
		[]byte{1}))
}

func (c categorical) logPdf(policy []*G.Node, actions *G.Node) *G.Node {
	// actions holds one-hot rows, so the product selects each row's
	// taken-action log probability
	selected := G.Must(G.HadamardProd(actions, logSoftmax(policy[0])))
	return G.Must(G.Sum(selected, 1))
}

func (c categorical) entropy(policy []*G.Node) *G.Node {
	logProbs := logSoftmax(policy[0])
	probs := G.Must(G.Exp(logProbs))
	perSample := G.Must(G.Sum(G.Must(G.HadamardProd(probs, logProbs)), 1))
	return G.Must(G.Neg(G.Must(G.Mean(perSample))))
}

func (c categorical) kl(old, current []*G.Node) *G.Node {
	oldLogProbs := logSoftmax(old[0])
	oldProbs := G.Must(G.Exp(oldLogProbs))
	diff := G.Must(G.Sub(oldLogProbs, logSoftmax(current[0])))
	perSample := G.Must(G.Sum(G.Must(G.HadamardProd(oldProbs, diff)), 1))
	return G.Must(G.Mean(perSample))
}

func (c categorical) actionShape(batch int) tensor.Shape {
	return tensor.Shape{batch, c.numActions}
}

func (c categorical) actionTensor(actions *mat.Dense) (*tensor.Dense,
	error) {
	rows, cols := actions.Dims()
	if cols != 1 {
		return nil, fmt.Errorf("actiontensor: discrete actions must be "+
			"scalar indices\n\twant(1 column)\n\thave(%v)", cols)
	}

	oneHot := make([]float64, rows*c.numActions)
	for i := 0; i < rows; i++ {
		index := int(actions.At(i, 0))
		if index < 0 || index >= c.numActions {
			return nil, fmt.Errorf("actiontensor: action index %v out of "+
				"range [0, %v)", index, c.numActions)
		}
		oneHot[i*c.numActions+index] = 1.0
	}

	return tensor.New(
		tensor.WithShape(rows, c.numActions),
		tensor.WithBacking(oneHot),
	), nil
}

// gaussian is a diagonal Gaussian distribution over a continuous
// action space, parameterized by a mean head and a log standard
// deviation head.
type gaussian struct {
	dims int
}

func (g gaussian) logPdf(policy []*G.Node, actions *G.Node) *G.Node {
	mean, logStd := policy[0], policy[1]
	std := G.Must(G.Exp(logStd))
	return op.GaussianLogPdf(mean, std, actions)
}

func (g gaussian) entropy(policy []*G.Node) *G.Node {
	logStd := policy[1]
	c := G.NewConstant(0.5 * math.Log(2*math.Pi*math.E))
	perDim := G.Must(G.Add(logStd, c))
	perSample := G.Must(G.Sum(perDim, 1))
	return G.Must(G.Mean(perSample))
}

func (g gaussian) kl(old, current []*G.Node) *G.Node {
	oldMean, oldLogStd := old[0], old[1]
	mean, logStd := current[0], current[1]

	two := G.NewConstant(2.0)
	half := G.NewConstant(0.5)

	oldVar := G.Must(G.Exp(G.Must(G.HadamardProd(two, oldLogStd))))
	variance := G.Must(G.Exp(G.Must(G.HadamardProd(two, logStd))))

	meanDiff := G.Must(G.Sub(oldMean, mean))
	meanDiff = G.Must(G.Square(meanDiff))

	// log(σ/σ_old) + (σ_old² + (μ_old - μ)²) / (2σ²) - 1/2, per dim
	ratio := G.Must(G.Add(oldVar, meanDiff))
	ratio = G.Must(G.HadamardDiv(ratio, variance))
	ratio = G.Must(G.HadamardProd(half, ratio))

	perDim := G.Must(G.Sub(logStd, oldLogStd))
	perDim = G.Must(G.Add(perDim, ratio))
	perDim = G.Must(G.Sub(perDim, half))

	perSample := G.Must(G.Sum(perDim, 1))
	return G.Must(G.Mean(perSample))
}

func (g gaussian) actionShape(batch int) tensor.Shape {
	return tensor.Shape{batch, g.dims}
}

func (g gaussian) actionTensor(actions *mat.Dense) (*tensor.Dense,
	error) {
	rows, cols := actions.Dims()
	if cols != g.dims {
		return nil, fmt.Errorf("actiontensor: illegal action "+
			"dimensionality\n\twant(%v)\n\thave(%v)", g.dims, cols)
	}

	backing := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		copy(backing[i*cols:(i+1)*cols], actions.RawRowView(i))
	}
	return tensor.New(
		tensor.WithShape(rows, cols),
		tensor.WithBacking(backing),
	), nil
}
