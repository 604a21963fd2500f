package network

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
	"sfneuman.com/goppo/spec"
)

// acMLP implements a multi-layered perceptron with a shared trunk, a
// state-value head, and one or more policy distribution-parameter
// heads. The number and width of policy heads is fixed by the action
// space when the network is built.
type acMLP struct {
	g         *G.ExprGraph
	space     spec.ActionSpace
	features  int
	batchSize int

	input       *G.Node
	trunk       []*fcLayer
	valueHead   *fcLayer
	policyHeads []*fcLayer

	valuePred *G.Node
	valueVal  G.Value

	policyPreds []*G.Node
	policyVals  []G.Value

	learnables G.Nodes
	model      []G.ValueGrad
}

// newACMLP creates a new actor-critic MLP on the graph g. The trunk
// has one hidden layer per entry of hiddenSizes; a linear value head
// and linear policy heads are always appended.
func newACMLP(g *G.ExprGraph, features, batch int, space spec.ActionSpace,
	hiddenSizes []int, biases []bool, activations []*Activation,
	init G.InitWFn) (*acMLP, error) {
	if len(hiddenSizes) == 0 {
		return nil, fmt.Errorf("newacmlp: at least one hidden layer " +
			"required")
	}
	if len(hiddenSizes) != len(activations) {
		return nil, fmt.Errorf("newacmlp: invalid number of activations"+
			"\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		return nil, fmt.Errorf("newacmlp: invalid number of biases"+
			"\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(biases))
	}
	if err := space.Validate(); err != nil {
		return nil, fmt.Errorf("newacmlp: %v", err)
	}

	input := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(batch, features),
		G.WithName("states"),
		G.WithInit(G.Zeroes()),
	)

	trunk := make([]*fcLayer, len(hiddenSizes))
	in := features
	for i, size := range hiddenSizes {
		trunk[i] = newFCLayer(g, in, size, biases[i], activations[i], init,
			fmt.Sprintf("trunk%d", i))
		in = size
	}

	valueHead := newFCLayer(g, in, 1, true, Identity(), init, "valueHead")

	policyHeads := make([]*fcLayer, space.PolicyHeads())
	for i := range policyHeads {
		policyHeads[i] = newFCLayer(g, in, space.PolicyParams(), true,
			Identity(), init, fmt.Sprintf("policyHead%d", i))
	}

	net := &acMLP{
		g:           g,
		space:       space,
		features:    features,
		batchSize:   batch,
		input:       input,
		trunk:       trunk,
		valueHead:   valueHead,
		policyHeads: policyHeads,
	}
	if err := net.fwd(); err != nil {
		return nil, fmt.Errorf("newacmlp: could not compute forward "+
			"pass: %v", err)
	}
	return net, nil
}

// fwd adds the forward pass of the network to the computational graph
func (m *acMLP) fwd() error {
	x := m.input
	var err error
	for i, layer := range m.trunk {
		if x, err = layer.fwd(x); err != nil {
			return fmt.Errorf("fwd: could not compute forward pass of "+
				"trunk layer %v: %v", i, err)
		}
	}

	value, err := m.valueHead.fwd(x)
	if err != nil {
		return fmt.Errorf("fwd: could not compute value head: %v", err)
	}
	m.valuePred = G.Must(G.Ravel(value))
	G.Read(m.valuePred, &m.valueVal)

	m.policyPreds = make([]*G.Node, len(m.policyHeads))
	m.policyVals = make([]G.Value, len(m.policyHeads))
	for i, head := range m.policyHeads {
		pred, err := head.fwd(x)
		if err != nil {
			return fmt.Errorf("fwd: could not compute policy head %v: %v",
				i, err)
		}
		m.policyPreds[i] = pred
		G.Read(m.policyPreds[i], &m.policyVals[i])
	}
	return nil
}

// SetInput sets the value of the input node before running the
// forward pass
func (m *acMLP) SetInput(input []float64) error {
	if len(input) != m.features*m.batchSize {
		return fmt.Errorf("setinput: invalid number of inputs"+
			"\n\twant(%v)\n\thave(%v)", m.features*m.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(m.batchSize, m.features),
	)
	return G.Let(m.input, inputTensor)
}

// Set sets the weights of the network to be equal to the weights of
// another network with the same architecture
func (m *acMLP) Set(source *acMLP) error {
	sourceNodes := source.Learnables()
	nodes := m.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("set: source network has different "+
			"architecture\n\twant(%v learnables)\n\thave(%v)", len(nodes),
			len(sourceNodes))
	}
	for i, destLearnable := range nodes {
		sourceLearnable := sourceNodes[i].Clone()
		err := G.Let(destLearnable, sourceLearnable.(*G.Node).Value())
		if err != nil {
			return err
		}
	}
	return nil
}

// Learnables returns the learnable nodes of the network
func (m *acMLP) Learnables() G.Nodes {
	if m.learnables == nil {
		for _, layer := range m.trunk {
			m.learnables = append(m.learnables, layer.learnables()...)
		}
		m.learnables = append(m.learnables, m.valueHead.learnables()...)
		for _, head := range m.policyHeads {
			m.learnables = append(m.learnables, head.learnables()...)
		}
	}
	return m.learnables
}

// Model returns the learnable nodes with their gradients
func (m *acMLP) Model() []G.ValueGrad {
	if m.model == nil {
		for _, node := range m.Learnables() {
			m.model = append(m.model, node)
		}
	}
	return m.model
}

// values returns the value head's output after a forward pass
func (m *acMLP) values() []float64 {
	return m.valueVal.Data().([]float64)
}

// policyParams returns the policy heads' outputs after a forward pass
func (m *acMLP) policyParams() [][]float64 {
	out := make([][]float64, len(m.policyVals))
	for i, val := range m.policyVals {
		out[i] = val.Data().([]float64)
	}
	return out
}

// gradNorm returns the global L2 norm of the gradients of the
// network's learnables. It must be called after a backward pass and
// before the solver consumes the gradients.
func (m *acMLP) gradNorm() (float64, error) {
	var sumSquares float64
	for _, node := range m.Learnables() {
		grad, err := node.Grad()
		if err != nil {
			return 0, fmt.Errorf("gradnorm: no gradient for %v: %v",
				node.Name(), err)
		}
		switch data := grad.Data().(type) {
		case []float64:
			for _, g := range data {
				sumSquares += g * g
			}
		case float64:
			sumSquares += data * data
		default:
			return 0, fmt.Errorf("gradnorm: unexpected gradient type %T",
				data)
		}
	}
	return math.Sqrt(sumSquares), nil
}
