package clippedppo

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	"sfneuman.com/goppo/agent"
	"sfneuman.com/goppo/memory"
	"sfneuman.com/goppo/network"
	"sfneuman.com/goppo/spec"
	"sfneuman.com/goppo/timestep"
)

// stubNet is a Network double that predicts a constant state value
// and counts gradient steps and old-policy snapshots.
type stubNet struct {
	batchSize  int
	space      spec.ActionSpace
	value      float64
	trainCalls int
	syncCalls  int
	lastInput  network.TrainInput
}

func (s *stubNet) Predict(states *mat.Dense) (*network.Prediction,
	error) {
	rows, _ := states.Dims()
	values := make([]float64, rows)
	for i := range values {
		values[i] = s.value
	}
	policy := make([]*mat.Dense, s.space.PolicyHeads())
	for h := range policy {
		policy[h] = mat.NewDense(rows, s.space.PolicyParams(), nil)
	}
	return &network.Prediction{Values: values, Policy: policy}, nil
}

func (s *stubNet) PredictTarget(states *mat.Dense) (*network.Prediction,
	error) {
	return s.Predict(states)
}

func (s *stubNet) TrainStep(in network.TrainInput) (network.TrainResult,
	error) {
	s.trainCalls++
	s.lastInput = in
	return network.TrainResult{
		HeadLosses: []float64{0.5, 0.25},
		KL:         0.01,
		Entropy:    0.5,
	}, nil
}

func (s *stubNet) SyncTarget() error {
	s.syncCalls++
	return nil
}

func (s *stubNet) BatchSize() int { return s.batchSize }

func (s *stubNet) ActionSpace() spec.ActionSpace { return s.space }

func newTestAgent(t *testing.T, net *stubNet, steps, epochs int,
	requireFullEpisodes bool) (*ClippedPPO, *memory.Episodic,
	*agent.Recorder) {
	t.Helper()

	mem := memory.NewEpisodic(0)
	sink := agent.NewRecorder()

	config := NewDefaultConfig()
	config.NumConsecutivePlayingSteps = steps
	config.OptimizationEpochs = epochs
	config.RequireFullEpisodes = requireFullEpisodes
	config.Gamma = 0.9

	a, err := New(net, mem, sink, config)
	if err != nil {
		t.Fatal(err)
	}
	return a, mem, sink
}

func addSteps(t *testing.T, a *ClippedPPO, rewards []float64,
	terminal bool) {
	t.Helper()
	for i, reward := range rewards {
		gameOver := terminal && i == len(rewards)-1
		err := a.ObserveTransition(
			mat.NewVecDense(2, []float64{float64(i), 0.5}),
			mat.NewVecDense(1, []float64{float64(i % 2)}),
			reward,
			mat.NewVecDense(2, []float64{float64(i + 1), 0.5}),
			gameOver,
		)
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestTrainNotReadyBelowStepThreshold(t *testing.T) {
	net := &stubNet{batchSize: 2, space: spec.NewDiscrete(2)}
	a, _, _ := newTestAgent(t, net, 4, 2, true)

	addSteps(t, a, []float64{1, 1, 1}, true)
	losses, err := a.Train()
	if err != nil {
		t.Fatal(err)
	}
	if losses != nil {
		t.Errorf("expected no-op before enough steps, got %v", losses)
	}
	if net.syncCalls != 0 || net.trainCalls != 0 {
		t.Error("expected no network activity before enough steps")
	}
}

func TestTrainWaitsForFullEpisode(t *testing.T) {
	net := &stubNet{batchSize: 2, space: spec.NewDiscrete(2)}
	a, _, _ := newTestAgent(t, net, 4, 2, true)

	addSteps(t, a, []float64{1, 1, 1, 1}, false)
	losses, err := a.Train()
	if err != nil {
		t.Fatal(err)
	}
	if losses != nil {
		t.Error("expected no-op while the last episode is open")
	}

	// one more terminal step completes the episode
	addSteps(t, a, []float64{1}, true)
	losses, err = a.Train()
	if err != nil {
		t.Fatal(err)
	}
	if losses == nil {
		t.Error("expected training once the episode ended")
	}
}

func TestTrainMinibatchCount(t *testing.T) {
	const steps, epochs, minibatch = 5, 3, 2
	net := &stubNet{batchSize: minibatch, space: spec.NewDiscrete(2)}
	a, mem, _ := newTestAgent(t, net, steps, epochs, true)

	addSteps(t, a, []float64{1, 1, 1, 1, 1}, true)
	losses, err := a.Train()
	if err != nil {
		t.Fatal(err)
	}
	if len(losses) != 2 {
		t.Fatalf("expected 2 head losses, got %v", len(losses))
	}

	// the trailing remainder transition is dropped each epoch
	expected := epochs * (steps / minibatch)
	if net.trainCalls != expected {
		t.Errorf("expected %v gradient steps, got %v", expected,
			net.trainCalls)
	}
	if net.syncCalls != 1 {
		t.Errorf("expected a single old-policy snapshot, got %v",
			net.syncCalls)
	}
	if mem.NumSteps() != 0 {
		t.Errorf("expected memory cleared after training, have %v steps",
			mem.NumSteps())
	}
	if a.TrainingIteration() != 1 {
		t.Errorf("expected 1 completed iteration, got %v",
			a.TrainingIteration())
	}
}

func TestTrainStandardizesAdvantages(t *testing.T) {
	net := &stubNet{batchSize: 2, space: spec.NewDiscrete(2)}
	a, mem, sink := newTestAgent(t, net, 4, 1, true)

	addSteps(t, a, []float64{1, 2, 3, 4}, true)
	transitions := mem.Transitions()
	if _, err := a.Train(); err != nil {
		t.Fatal(err)
	}

	advantages := sink.Signal(agent.AdvantagesSignal)
	if len(advantages) != 4 {
		t.Fatalf("expected 4 advantage samples, got %v",
			len(advantages))
	}

	var mean float64
	for _, adv := range advantages {
		mean += adv
	}
	mean /= float64(len(advantages))
	if math.Abs(mean) > 1e-10 {
		t.Errorf("expected standardized advantages with mean 0, got "+
			"mean %v", mean)
	}

	for i, transition := range transitions {
		if !transition.HasInfo(timestep.Advantage) {
			t.Errorf("transition %v: missing advantage info", i)
		}
		if !transition.HasInfo(timestep.ValueTarget) {
			t.Errorf("transition %v: missing value target info", i)
		}
	}
}

func TestTrainRecordsTotalLoss(t *testing.T) {
	net := &stubNet{batchSize: 2, space: spec.NewDiscrete(2)}
	a, _, sink := newTestAgent(t, net, 4, 1, true)

	addSteps(t, a, []float64{1, 1, 1, 1}, true)
	if _, err := a.Train(); err != nil {
		t.Fatal(err)
	}

	if _, ok := sink.Last(agent.TotalLossSignal); !ok {
		t.Error("expected a total loss sample")
	}
	if _, ok := sink.Last(agent.KLDivergenceSignal); !ok {
		t.Error("expected a KL divergence sample")
	}
}

func TestTrainShufflesDifferentlyAcrossIterations(t *testing.T) {
	// a single full-batch minibatch exposes the shuffled order
	// through the gradient step's state matrix
	const steps = 8
	net := &stubNet{batchSize: steps, space: spec.NewDiscrete(2)}
	a, _, _ := newTestAgent(t, net, steps, 1, true)

	shuffledOrder := func() []float64 {
		rows, _ := net.lastInput.States.Dims()
		order := make([]float64, rows)
		for i := 0; i < rows; i++ {
			order[i] = net.lastInput.States.At(i, 0)
		}
		return order
	}

	addSteps(t, a, []float64{1, 1, 1, 1, 1, 1, 1, 1}, true)
	if _, err := a.Train(); err != nil {
		t.Fatal(err)
	}
	first := shuffledOrder()

	// the same states collected again must not replay the identical
	// permutation on the next iteration
	addSteps(t, a, []float64{1, 1, 1, 1, 1, 1, 1, 1}, true)
	if _, err := a.Train(); err != nil {
		t.Fatal(err)
	}
	second := shuffledOrder()

	identical := true
	for i := range first {
		if first[i] != second[i] {
			identical = false
			break
		}
	}
	if identical {
		t.Errorf("expected different shuffle orders across iterations, "+
			"got %v twice", first)
	}
}

func TestTrainStepReceivesOldPolicyAndDecay(t *testing.T) {
	net := &stubNet{batchSize: 2, space: spec.NewContinuous(2)}
	a, _, _ := newTestAgent(t, net, 2, 1, true)

	if err := a.ObserveTransition(
		mat.NewVecDense(2, []float64{0, 0}),
		mat.NewVecDense(2, []float64{0.1, -0.1}),
		1.0,
		mat.NewVecDense(2, []float64{1, 0}),
		false,
	); err != nil {
		t.Fatal(err)
	}
	if err := a.ObserveTransition(
		mat.NewVecDense(2, []float64{1, 0}),
		mat.NewVecDense(2, []float64{0.2, 0.3}),
		1.0,
		mat.NewVecDense(2, []float64{2, 0}),
		true,
	); err != nil {
		t.Fatal(err)
	}

	if _, err := a.Train(); err != nil {
		t.Fatal(err)
	}

	if len(net.lastInput.OldPolicy) != 2 {
		t.Fatalf("expected mean and log std old-policy heads, got %v",
			len(net.lastInput.OldPolicy))
	}
	if net.lastInput.ClipDecay != 1.0 {
		t.Errorf("expected constant clip decay 1.0, got %v",
			net.lastInput.ClipDecay)
	}
}

func TestMinibatchLargerThanBatch(t *testing.T) {
	net := &stubNet{batchSize: 8, space: spec.NewDiscrete(2)}
	config := NewDefaultConfig()
	config.NumConsecutivePlayingSteps = 4

	if _, err := New(net, memory.NewEpisodic(0), nil,
		config); err == nil {
		t.Error("expected error for minibatch larger than the batch")
	}
}
