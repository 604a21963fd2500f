package network

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
	"sfneuman.com/goppo/initwfn"
	"sfneuman.com/goppo/solver"
	"sfneuman.com/goppo/spec"
)

// acNet is an actor-critic MLP trained with the vanilla policy
// gradient loss. Unlike ppoNet it keeps no old-policy snapshot; the
// policy loss is the advantage-weighted negative log likelihood of
// the actions taken.
type acNet struct {
	space     spec.ActionSpace
	dist      distribution
	features  int
	batchSize int

	online   *acMLP
	onlineVM G.VM
	sol      *solver.Solver

	predict   *acMLP
	predictVM G.VM

	actions      *G.Node
	advantages   *G.Node
	valueTargets *G.Node

	totalLossVal  G.Value
	valueLossVal  G.Value
	policyLossVal G.Value
	entropyVal    G.Value
}

// NewActorCritic returns a new Network trained with the vanilla
// policy gradient loss. The total loss is valueLossWeight times the
// value head's mean squared error, plus the policy loss, minus
// betaEntropy times the mean policy entropy.
func NewActorCritic(features, batch int, space spec.ActionSpace,
	hiddenSizes []int, biases []bool, activations []*Activation,
	init *initwfn.InitWFn, sol *solver.Solver, valueLossWeight,
	betaEntropy float64) (Network, error) {
	if batch <= 0 {
		return nil, fmt.Errorf("newactorcritic: batch size must be "+
			"positive\n\twant(> 0)\n\thave(%v)", batch)
	}
	dist, err := newDistribution(space)
	if err != nil {
		return nil, fmt.Errorf("newactorcritic: %v", err)
	}

	g := G.NewGraph()
	online, err := newACMLP(g, features, batch, space, hiddenSizes,
		biases, activations, init.InitWFn())
	if err != nil {
		return nil, fmt.Errorf("newactorcritic: could not create online "+
			"network: %v", err)
	}

	net := &acNet{
		space:     space,
		dist:      dist,
		features:  features,
		batchSize: batch,
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

	if err := net.fwd(valueLossWeight, betaEntropy); err != nil {
		return nil, fmt.Errorf("newactorcritic: could not compute "+
			"loss: %v", err)
	}

	net.onlineVM = G.NewTapeMachine(g,
		G.BindDualValues(online.Learnables()...))

	gPredict := G.NewGraph()
	net.predict, err = newACMLP(gPredict, features, 1, space,
		hiddenSizes, biases, activations, init.InitWFn())
	if err != nil {
		return nil, fmt.Errorf("newactorcritic: could not create "+
			"prediction network: %v", err)
	}
	net.predictVM = G.NewTapeMachine(gPredict)

	if err := net.predict.Set(online); err != nil {
		return nil, fmt.Errorf("newactorcritic: could not sync "+
			"prediction network: %v", err)
	}

	return net, nil
}

// fwd adds the policy gradient loss to the online network's graph and
// registers the diagnostic fetches
func (a *acNet) fwd(valueLossWeight, betaEntropy float64) error {
	logPdf := a.dist.logPdf(a.online.policyPreds, a.actions)

	weighted := G.Must(G.HadamardProd(logPdf, a.advantages))
	policyLoss := G.Must(G.Neg(G.Must(G.Mean(weighted))))
	G.Read(policyLoss, &a.policyLossVal)

	entropy := a.dist.entropy(a.online.policyPreds)
	G.Read(entropy, &a.entropyVal)

	valueLoss := G.Must(G.Mean(G.Must(G.Square(G.Must(G.Sub(
		a.online.valuePred, a.valueTargets))))))
	G.Read(valueLoss, &a.valueLossVal)

	totalLoss := G.Must(G.Mul(G.NewConstant(valueLossWeight), valueLoss))
	totalLoss = G.Must(G.Add(totalLoss, policyLoss))
	if betaEntropy != 0 {
		bonus := G.Must(G.Mul(G.NewConstant(betaEntropy), entropy))
		totalLoss = G.Must(G.Sub(totalLoss, bonus))
	}
	G.Read(totalLoss, &a.totalLossVal)

	_, err := G.Grad(totalLoss, a.online.Learnables()...)
	if err != nil {
		return fmt.Errorf("fwd: could not compute gradient: %v", err)
	}
	return nil
}

// TrainStep performs one gradient update on the policy gradient loss
// from a batch of exactly BatchSize transitions. The OldPolicy and
// ClipDecay fields of the input are ignored.
func (a *acNet) TrainStep(in TrainInput) (TrainResult, error) {
	rows, cols := in.States.Dims()
	if rows != a.batchSize || cols != a.features {
		return TrainResult{}, fmt.Errorf("trainstep: illegal state "+
			"batch\n\twant(%v x %v)\n\thave(%v x %v)", a.batchSize,
			a.features, rows, cols)
	}
	if len(in.Advantages) != a.batchSize {
		return TrainResult{}, fmt.Errorf("trainstep: illegal number of "+
			"advantages\n\twant(%v)\n\thave(%v)", a.batchSize,
			len(in.Advantages))
	}
	if len(in.ValueTargets) != a.batchSize {
		return TrainResult{}, fmt.Errorf("trainstep: illegal number of "+
			"value targets\n\twant(%v)\n\thave(%v)", a.batchSize,
			len(in.ValueTargets))
	}

	if err := a.online.SetInput(flatten(in.States)); err != nil {
		return TrainResult{}, fmt.Errorf("trainstep: %v", err)
	}

	actions, err := a.dist.actionTensor(in.Actions)
	if err != nil {
		return TrainResult{}, fmt.Errorf("trainstep: %v", err)
	}
	if err := G.Let(a.actions, actions); err != nil {
		return TrainResult{}, fmt.Errorf("trainstep: could not set "+
			"actions: %v", err)
	}

	advantages := make([]float64, len(in.Advantages))
	copy(advantages, in.Advantages)
	if err := letVector(a.advantages, advantages); err != nil {
		return TrainResult{}, fmt.Errorf("trainstep: could not set "+
			"advantages: %v", err)
	}

	targets := make([]float64, len(in.ValueTargets))
	copy(targets, in.ValueTargets)
	if err := letVector(a.valueTargets, targets); err != nil {
		return TrainResult{}, fmt.Errorf("trainstep: could not set "+
			"value targets: %v", err)
	}

	if err := a.onlineVM.RunAll(); err != nil {
		return TrainResult{}, fmt.Errorf("trainstep: could not run "+
			"train step: %v", err)
	}

	gradNorm, err := a.online.gradNorm()
	if err != nil {
		return TrainResult{}, fmt.Errorf("trainstep: %v", err)
	}
	if err := a.sol.Step(a.online.Model()); err != nil {
		return TrainResult{}, fmt.Errorf("trainstep: could not step "+
			"solver: %v", err)
	}

	result := TrainResult{
		TotalLoss: a.totalLossVal.Data().(float64),
		HeadLosses: []float64{
			a.valueLossVal.Data().(float64),
			a.policyLossVal.Data().(float64),
		},
		GradNorm: gradNorm,
		Entropy:  a.entropyVal.Data().(float64),
	}
	a.onlineVM.Reset()

	if err := a.predict.Set(a.online); err != nil {
		return TrainResult{}, fmt.Errorf("trainstep: could not sync "+
			"prediction network: %v", err)
	}
	return result, nil
}

// Predict runs the online network forward over a batch of states of
// any size
func (a *acNet) Predict(states *mat.Dense) (*Prediction, error) {
	return predictBatch(a.predict, a.predictVM, states)
}

// PredictTarget always fails; the vanilla policy gradient keeps no
// old-policy snapshot
func (a *acNet) PredictTarget(states *mat.Dense) (*Prediction, error) {
	return nil, fmt.Errorf("predicttarget: no old-policy snapshot")
}

// SyncTarget is a no-op; the vanilla policy gradient keeps no
// old-policy snapshot
func (a *acNet) SyncTarget() error {
	return nil
}

// BatchSize returns the number of transitions consumed by one
// TrainStep
func (a *acNet) BatchSize() int {
	return a.batchSize
}

// ActionSpace returns the action space the policy is defined over
func (a *acNet) ActionSpace() spec.ActionSpace {
	return a.space
}
