package actorcritic

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	"sfneuman.com/goppo/advantage"
	"sfneuman.com/goppo/agent"
	"sfneuman.com/goppo/memory"
	"sfneuman.com/goppo/network"
	"sfneuman.com/goppo/spec"
	"sfneuman.com/goppo/timestep"
)

// stubNet is a Network double that predicts a constant state value
// and records the inputs of each gradient step.
type stubNet struct {
	batchSize  int
	space      spec.ActionSpace
	value      float64
	trainCalls int
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
	return network.TrainResult{HeadLosses: []float64{0.5, 0.25}}, nil
}

func (s *stubNet) SyncTarget() error { return nil }

func (s *stubNet) BatchSize() int { return s.batchSize }

func (s *stubNet) ActionSpace() spec.ActionSpace { return s.space }

func addSteps(t *testing.T, a *ActorCritic, rewards []float64,
	terminal bool) {
	t.Helper()
	for i, reward := range rewards {
		gameOver := terminal && i == len(rewards)-1
		err := a.ObserveTransition(
			mat.NewVecDense(2, []float64{float64(i), 0}),
			mat.NewVecDense(1, []float64{0}),
			reward,
			mat.NewVecDense(2, []float64{float64(i + 1), 0}),
			gameOver,
		)
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestTrainNotReady(t *testing.T) {
	net := &stubNet{batchSize: 3, space: spec.NewDiscrete(2)}
	mem := memory.NewEpisodic(0)

	config := NewDefaultConfig()
	config.NumStepsBetweenUpdates = 3
	config.Gamma = 0.9

	a, err := New(net, mem, nil, nil, config)
	if err != nil {
		t.Fatal(err)
	}

	addSteps(t, a, []float64{1, 1}, false)
	losses, err := a.Train()
	if err != nil {
		t.Fatal(err)
	}
	if losses != nil {
		t.Errorf("expected no-op before enough steps, got %v", losses)
	}
	if net.trainCalls != 0 {
		t.Errorf("expected no gradient steps, got %v", net.trainCalls)
	}
}

func TestTrainAValueReturns(t *testing.T) {
	net := &stubNet{batchSize: 3, space: spec.NewDiscrete(2)}
	mem := memory.NewEpisodic(0)
	sink := agent.NewRecorder()

	config := NewDefaultConfig()
	config.NumStepsBetweenUpdates = 3
	config.Gamma = 0.9

	a, err := New(net, mem, nil, sink, config)
	if err != nil {
		t.Fatal(err)
	}

	addSteps(t, a, []float64{1, 1, 1}, true)
	losses, err := a.Train()
	if err != nil {
		t.Fatal(err)
	}
	if len(losses) != 2 {
		t.Fatalf("expected 2 head losses, got %v", len(losses))
	}
	if net.trainCalls != 1 {
		t.Fatalf("expected a single gradient step, got %v",
			net.trainCalls)
	}

	// terminal episode with V=0: advantages equal the returns
	expected := []float64{2.71, 1.9, 1.0}
	for i, e := range expected {
		if math.Abs(net.lastInput.Advantages[i]-e) > 1e-10 {
			t.Errorf("advantage %v: expected %v, got %v", i, e,
				net.lastInput.Advantages[i])
		}
		if math.Abs(net.lastInput.ValueTargets[i]-e) > 1e-10 {
			t.Errorf("value target %v: expected %v, got %v", i, e,
				net.lastInput.ValueTargets[i])
		}
	}

	if mem.NumSteps() != 0 {
		t.Errorf("expected memory cleared after training, have %v steps",
			mem.NumSteps())
	}
	if _, ok := sink.Last(agent.PolicyLossSignal); !ok {
		t.Error("expected a policy loss sample")
	}
	if _, ok := sink.Last(agent.TotalLossSignal); !ok {
		t.Error("expected a total loss sample")
	}
}

func TestTrainWritesTotalReturns(t *testing.T) {
	net := &stubNet{batchSize: 2, space: spec.NewDiscrete(2)}
	mem := memory.NewEpisodic(0)

	config := NewDefaultConfig()
	config.NumStepsBetweenUpdates = 2
	config.Gamma = 0.5

	a, err := New(net, mem, nil, nil, config)
	if err != nil {
		t.Fatal(err)
	}

	addSteps(t, a, []float64{1, 2}, true)
	transitions := mem.Transitions()
	if _, err := a.Train(); err != nil {
		t.Fatal(err)
	}

	if !transitions[0].HasInfo(timestep.TotalReturn) {
		t.Fatal("expected cumulative return on the first transition")
	}
	if r := transitions[0].Info[timestep.TotalReturn]; r != 2.0 {
		t.Errorf("expected cumulative return 2.0, got %v", r)
	}
	if r := transitions[1].Info[timestep.TotalReturn]; r != 2.0 {
		t.Errorf("expected cumulative return 2.0, got %v", r)
	}
}

func TestUnknownRescalerZeroAdvantages(t *testing.T) {
	net := &stubNet{batchSize: 2, space: spec.NewDiscrete(2)}
	mem := memory.NewEpisodic(0)

	config := NewDefaultConfig()
	config.NumStepsBetweenUpdates = 2
	config.Rescaler = advantage.Rescaler(99)

	a, err := New(net, mem, nil, nil, config)
	if err != nil {
		t.Fatal(err)
	}

	addSteps(t, a, []float64{1, 1}, true)
	if _, err := a.Train(); err != nil {
		t.Fatal(err)
	}

	for i, adv := range net.lastInput.Advantages {
		if adv != 0 {
			t.Errorf("advantage %v: expected 0 for unknown rescaler, "+
				"got %v", i, adv)
		}
	}
}

func TestCustomRescalerWithoutCritic(t *testing.T) {
	net := &stubNet{batchSize: 2, space: spec.NewDiscrete(2)}
	mem := memory.NewEpisodic(0)

	config := NewDefaultConfig()
	config.NumStepsBetweenUpdates = 2
	config.Rescaler = advantage.CustomActorCritic

	a, err := New(net, mem, nil, nil, config)
	if err != nil {
		t.Fatal(err)
	}

	addSteps(t, a, []float64{1, 1}, true)
	if _, err := a.Train(); err != nil {
		t.Fatal(err)
	}

	// nil critic degrades to zero advantages rather than failing
	for i, adv := range net.lastInput.Advantages {
		if adv != 0 {
			t.Errorf("advantage %v: expected 0 without a critic, got %v",
				i, adv)
		}
	}
}

func TestBatchSizeMismatch(t *testing.T) {
	net := &stubNet{batchSize: 4, space: spec.NewDiscrete(2)}
	config := NewDefaultConfig()
	config.NumStepsBetweenUpdates = 3

	if _, err := New(net, memory.NewEpisodic(0), nil, nil,
		config); err == nil {
		t.Error("expected error for mismatched batch size")
	}
}
