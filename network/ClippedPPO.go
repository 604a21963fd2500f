package network

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
	"sfneuman.com/goppo/initwfn"
	"sfneuman.com/goppo/solver"
	"sfneuman.com/goppo/spec"
	"sfneuman.com/goppo/utils/op"
)

// ppoNet is an actor-critic MLP trained with the likelihood-ratio
// clipped surrogate loss. It maintains three copies of the network:
// the online network, whose graph also holds the loss and gradients;
// a target network, which freezes the old policy for the duration of
// a training run; and a batch-1 prediction network for forward passes
// over state batches of arbitrary size. The target and prediction
// graphs are forward-only.
type ppoNet struct {
	space     spec.ActionSpace
	dist      distribution
	features  int
	batchSize int
	epsilon   float64

	online   *acMLP
	onlineVM G.VM
	sol      *solver.Solver

	target   *acMLP
	targetVM G.VM

	predict   *acMLP
	predictVM G.VM

	// loss graph inputs
	actions      *G.Node
	advantages   *G.Node
	valueTargets *G.Node
	oldPolicy    []*G.Node
	clipLow      *G.Node
	clipHigh     *G.Node

	// loss graph fetches
	totalLossVal  G.Value
	valueLossVal  G.Value
	policyLossVal G.Value
	entropyVal    G.Value
	klVal         G.Value
}

// NewClippedPPO returns a new Network trained with the clipped
// surrogate loss. The batch argument fixes the number of transitions
// consumed by each TrainStep and accepted by PredictTarget. The total
// loss is valueLossWeight times the value head's mean squared error,
// plus the clipped surrogate policy loss, minus betaEntropy times the
// mean policy entropy. The likelihood ratio is clipped to
// [1-ε∙decay, 1+ε∙decay], where ε is epsilon and decay is supplied by
// each TrainStep.
func NewClippedPPO(features, batch int, space spec.ActionSpace,
	hiddenSizes []int, biases []bool, activations []*Activation,
	init *initwfn.InitWFn, sol *solver.Solver, valueLossWeight,
	betaEntropy, epsilon float64) (Network, error) {
	if epsilon <= 0 {
		return nil, fmt.Errorf("newclippedppo: clip range must be "+
			"positive\n\twant(> 0)\n\thave(%v)", epsilon)
	}
	if batch <= 0 {
		return nil, fmt.Errorf("newclippedppo: batch size must be "+
			"positive\n\twant(> 0)\n\thave(%v)", batch)
	}
	dist, err := newDistribution(space)
	if err != nil {
		return nil, fmt.Errorf("newclippedppo: %v", err)
	}

	g := G.NewGraph()
	online, err := newACMLP(g, features, batch, space, hiddenSizes,
		biases, activations, init.InitWFn())
	if err != nil {
		return nil, fmt.Errorf("newclippedppo: could not create online "+
			"network: %v", err)
	}

	net := &ppoNet{
		space:     space,
		dist:      dist,
		features:  features,
		batchSize: batch,
		epsilon:   epsilon,
		online:    online,
		sol:       sol,
	}

	actionShape := dist.actionShape(batch)
	net.actions = G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(actionShape...),
		G.WithName("actions"),
		G.WithInit(G.Zeroes()),
	)
	net.advantages = G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(batch),
		G.WithName("advantages"),
		G.WithInit(G.Zeroes()),
	)
	net.valueTargets = G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(batch),
		G.WithName("valueTargets"),
		G.WithInit(G.Zeroes()),
	)
	net.clipLow = G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(batch),
		G.WithName("clipLow"),
		G.WithInit(G.Ones()),
	)
	net.clipHigh = G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(batch),
		G.WithName("clipHigh"),
		G.WithInit(G.Ones()),
	)
	net.oldPolicy = make([]*G.Node, space.PolicyHeads())
	for i := range net.oldPolicy {
		net.oldPolicy[i] = G.NewMatrix(
			g,
			tensor.Float64,
			G.WithShape(batch, space.PolicyParams()),
			G.WithName(fmt.Sprintf("oldPolicy%d", i)),
			G.WithInit(G.Zeroes()),
		)
	}

	if err := net.fwd(valueLossWeight, betaEntropy); err != nil {
		return nil, fmt.Errorf("newclippedppo: could not compute loss: "+
			"%v", err)
	}

	net.onlineVM = G.NewTapeMachine(g,
		G.BindDualValues(online.Learnables()...))

	gTarget := G.NewGraph()
	net.target, err = newACMLP(gTarget, features, batch, space,
		hiddenSizes, biases, activations, init.InitWFn())
	if err != nil {
		return nil, fmt.Errorf("newclippedppo: could not create target "+
			"network: %v", err)
	}
	net.targetVM = G.NewTapeMachine(gTarget)

	gPredict := G.NewGraph()
	net.predict, err = newACMLP(gPredict, features, 1, space,
		hiddenSizes, biases, activations, init.InitWFn())
	if err != nil {
		return nil, fmt.Errorf("newclippedppo: could not create "+
			"prediction network: %v", err)
	}
	net.predictVM = G.NewTapeMachine(gPredict)

	if err := net.target.Set(online); err != nil {
		return nil, fmt.Errorf("newclippedppo: could not sync target "+
			"network: %v", err)
	}
	if err := net.predict.Set(online); err != nil {
		return nil, fmt.Errorf("newclippedppo: could not sync "+
			"prediction network: %v", err)
	}

	return net, nil
}

// fwd adds the clipped surrogate loss to the online network's graph
// and registers the diagnostic fetches
func (p *ppoNet) fwd(valueLossWeight, betaEntropy float64) error {
	logPdf := p.dist.logPdf(p.online.policyPreds, p.actions)
	oldLogPdf := p.dist.logPdf(p.oldPolicy, p.actions)

	ratio := G.Must(G.Exp(G.Must(G.Sub(logPdf, oldLogPdf))))
	clipped, err := op.ClipTo(ratio, p.clipLow, p.clipHigh)
	if err != nil {
		return fmt.Errorf("fwd: could not clip likelihood ratio: %v", err)
	}

	scaled := G.Must(G.HadamardProd(ratio, p.advantages))
	clippedScaled := G.Must(G.HadamardProd(clipped, p.advantages))
	surrogate, err := op.Min(scaled, clippedScaled)
	if err != nil {
		return fmt.Errorf("fwd: could not compute surrogate: %v", err)
	}
	policyLoss := G.Must(G.Neg(G.Must(G.Mean(surrogate))))
	G.Read(policyLoss, &p.policyLossVal)

	entropy := p.dist.entropy(p.online.policyPreds)
	G.Read(entropy, &p.entropyVal)

	kl := p.dist.kl(p.oldPolicy, p.online.policyPreds)
	G.Read(kl, &p.klVal)

	valueLoss := G.Must(G.Mean(G.Must(G.Square(G.Must(G.Sub(
		p.online.valuePred, p.valueTargets))))))
	G.Read(valueLoss, &p.valueLossVal)

	totalLoss := G.Must(G.Mul(G.NewConstant(valueLossWeight), valueLoss))
	totalLoss = G.Must(G.Add(totalLoss, policyLoss))
	if betaEntropy != 0 {
		bonus := G.Must(G.Mul(G.NewConstant(betaEntropy), entropy))
		totalLoss = G.Must(G.Sub(totalLoss, bonus))
	}
	G.Read(totalLoss, &p.totalLossVal)

	_, err = G.Grad(totalLoss, p.online.Learnables()...)
	if err != nil {
		return fmt.Errorf("fwd: could not compute gradient: %v", err)
	}
	return nil
}

// TrainStep performs one gradient update on the clipped surrogate
// loss from a batch of exactly BatchSize transitions
func (p *ppoNet) TrainStep(in TrainInput) (TrainResult, error) {
	if err := p.validate(in); err != nil {
		return TrainResult{}, fmt.Errorf("trainstep: %v", err)
	}

	if err := p.online.SetInput(flatten(in.States)); err != nil {
		return TrainResult{}, fmt.Errorf("trainstep: %v", err)
	}

	actions, err := p.dist.actionTensor(in.Actions)
	if err != nil {
		return TrainResult{}, fmt.Errorf("trainstep: %v", err)
	}
	if err := G.Let(p.actions, actions); err != nil {
		return TrainResult{}, fmt.Errorf("trainstep: could not set "+
			"actions: %v", err)
	}

	advantages := make([]float64, len(in.Advantages))
	copy(advantages, in.Advantages)
	if err := letVector(p.advantages, advantages); err != nil {
		return TrainResult{}, fmt.Errorf("trainstep: could not set "+
			"advantages: %v", err)
	}

	targets := make([]float64, len(in.ValueTargets))
	copy(targets, in.ValueTargets)
	if err := letVector(p.valueTargets, targets); err != nil {
		return TrainResult{}, fmt.Errorf("trainstep: could not set "+
			"value targets: %v", err)
	}

	for i, head := range in.OldPolicy {
		if err := letMatrix(p.oldPolicy[i], head); err != nil {
			return TrainResult{}, fmt.Errorf("trainstep: could not set "+
				"old policy head %v: %v", i, err)
		}
	}

	low := make([]float64, p.batchSize)
	high := make([]float64, p.batchSize)
	for i := range low {
		low[i] = 1.0 - p.epsilon*in.ClipDecay
		high[i] = 1.0 + p.epsilon*in.ClipDecay
	}
	if err := letVector(p.clipLow, low); err != nil {
		return TrainResult{}, fmt.Errorf("trainstep: could not set "+
			"clip range: %v", err)
	}
	if err := letVector(p.clipHigh, high); err != nil {
		return TrainResult{}, fmt.Errorf("trainstep: could not set "+
			"clip range: %v", err)
	}

	if err := p.onlineVM.RunAll(); err != nil {
		return TrainResult{}, fmt.Errorf("trainstep: could not run "+
			"train step: %v", err)
	}

	gradNorm, err := p.online.gradNorm()
	if err != nil {
		return TrainResult{}, fmt.Errorf("trainstep: %v", err)
	}
	if err := p.sol.Step(p.online.Model()); err != nil {
		return TrainResult{}, fmt.Errorf("trainstep: could not step "+
			"solver: %v", err)
	}

	result := TrainResult{
		TotalLoss: p.totalLossVal.Data().(float64),
		HeadLosses: []float64{
			p.valueLossVal.Data().(float64),
			p.policyLossVal.Data().(float64),
		},
		GradNorm: gradNorm,
		KL:       p.klVal.Data().(float64),
		Entropy:  p.entropyVal.Data().(float64),
	}
	p.onlineVM.Reset()

	if err := p.predict.Set(p.online); err != nil {
		return TrainResult{}, fmt.Errorf("trainstep: could not sync "+
			"prediction network: %v", err)
	}
	return result, nil
}

// validate checks the shapes of a training batch
func (p *ppoNet) validate(in TrainInput) error {
	rows, cols := in.States.Dims()
	if rows != p.batchSize || cols != p.features {
		return fmt.Errorf("illegal state batch\n\twant(%v x %v)"+
			"\n\thave(%v x %v)", p.batchSize, p.features, rows, cols)
	}
	if len(in.Advantages) != p.batchSize {
		return fmt.Errorf("illegal number of advantages"+
			"\n\twant(%v)\n\thave(%v)", p.batchSize, len(in.Advantages))
	}
	if len(in.ValueTargets) != p.batchSize {
		return fmt.Errorf("illegal number of value targets"+
			"\n\twant(%v)\n\thave(%v)", p.batchSize,
			len(in.ValueTargets))
	}
	if len(in.OldPolicy) != len(p.oldPolicy) {
		return fmt.Errorf("illegal number of old policy heads"+
			"\n\twant(%v)\n\thave(%v)", len(p.oldPolicy),
			len(in.OldPolicy))
	}
	for i, head := range in.OldPolicy {
		rows, cols := head.Dims()
		if rows != p.batchSize || cols != p.space.PolicyParams() {
			return fmt.Errorf("illegal old policy head %v"+
				"\n\twant(%v x %v)\n\thave(%v x %v)", i, p.batchSize,
				p.space.PolicyParams(), rows, cols)
		}
	}
	// a fully decayed clip (decay 0) pins the ratio to 1; only a
	// negative decay is malformed
	if in.ClipDecay < 0 {
		return fmt.Errorf("illegal clip decay\n\twant(≥ 0)\n\thave(%v)",
			in.ClipDecay)
	}
	return nil
}

// Predict runs the online network forward over a batch of states of
// any size
func (p *ppoNet) Predict(states *mat.Dense) (*Prediction, error) {
	return predictBatch(p.predict, p.predictVM, states)
}

// PredictTarget runs the old-policy snapshot forward over a batch of
// exactly BatchSize states
func (p *ppoNet) PredictTarget(states *mat.Dense) (*Prediction, error) {
	rows, cols := states.Dims()
	if rows != p.batchSize || cols != p.features {
		return nil, fmt.Errorf("predicttarget: illegal state batch"+
			"\n\twant(%v x %v)\n\thave(%v x %v)", p.batchSize,
			p.features, rows, cols)
	}

	if err := p.target.SetInput(flatten(states)); err != nil {
		return nil, fmt.Errorf("predicttarget: %v", err)
	}
	if err := p.targetVM.RunAll(); err != nil {
		return nil, fmt.Errorf("predicttarget: could not run forward "+
			"pass: %v", err)
	}

	values := make([]float64, p.batchSize)
	copy(values, p.target.values())

	policy := make([]*mat.Dense, len(p.target.policyHeads))
	for h, headParams := range p.target.policyParams() {
		backing := make([]float64, len(headParams))
		copy(backing, headParams)
		policy[h] = mat.NewDense(p.batchSize, p.space.PolicyParams(),
			backing)
	}
	p.targetVM.Reset()

	return &Prediction{Values: values, Policy: policy}, nil
}

// SyncTarget copies the online network's weights into the old-policy
// snapshot
func (p *ppoNet) SyncTarget() error {
	if err := p.target.Set(p.online); err != nil {
		return fmt.Errorf("synctarget: %v", err)
	}
	return nil
}

// BatchSize returns the number of transitions consumed by one
// TrainStep
func (p *ppoNet) BatchSize() int {
	return p.batchSize
}

// ActionSpace returns the action space the policy is defined over
func (p *ppoNet) ActionSpace() spec.ActionSpace {
	return p.space
}
