package network

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// flatten returns the elements of a matrix in row-major order
func flatten(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	out := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}

// letVector binds a vector node to the argument data
func letVector(node *G.Node, data []float64) error {
	return G.Let(node, tensor.New(
		tensor.WithShape(len(data)),
		tensor.WithBacking(data),
	))
}

// letMatrix binds a matrix node to the elements of a matrix
func letMatrix(node *G.Node, m *mat.Dense) error {
	rows, cols := m.Dims()
	return G.Let(node, tensor.New(
		tensor.WithShape(rows, cols),
		tensor.WithBacking(flatten(m)),
	))
}

// predictBatch runs a batch-1 network forward over every row of
// states, collecting the value and policy head outputs. It accepts
// state batches of any size, at the price of one VM run per row.
func predictBatch(net *acMLP, vm G.VM, states *mat.Dense) (*Prediction,
	error) {
	rows, cols := states.Dims()
	if cols != net.features {
		return nil, fmt.Errorf("predictbatch: illegal state size"+
			"\n\twant(%v)\n\thave(%v)", net.features, cols)
	}

	params := net.space.PolicyParams()
	prediction := &Prediction{
		Values: make([]float64, rows),
		Policy: make([]*mat.Dense, len(net.policyHeads)),
	}
	for h := range prediction.Policy {
		prediction.Policy[h] = mat.NewDense(rows, params, nil)
	}

	for i := 0; i < rows; i++ {
		input := make([]float64, cols)
		copy(input, states.RawRowView(i))
		if err := net.SetInput(input); err != nil {
			return nil, fmt.Errorf("predictbatch: %v", err)
		}
		if err := vm.RunAll(); err != nil {
			return nil, fmt.Errorf("predictbatch: could not run forward "+
				"pass: %v", err)
		}

		prediction.Values[i] = net.values()[0]
		for h, headParams := range net.policyParams() {
			prediction.Policy[h].SetRow(i, headParams)
		}
		vm.Reset()
	}

	return prediction, nil
}
