package advantage

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

const tolerance = 1e-10

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) < tolerance
}

func TestDiscountZeroSequence(t *testing.T) {
	for _, gamma := range []float64{0.0, 0.5, 0.9, 0.99} {
		x := mat.NewVecDense(5, nil)
		out := Discount(x, gamma)
		for i, y := range out {
			if y != 0.0 {
				t.Errorf("gamma %v: expected 0 at index %v, got %v", gamma,
					i, y)
			}
		}
	}
}

func TestDiscountZeroRate(t *testing.T) {
	x := []float64{1.5, -2.0, 3.0, 0.25}
	out := DiscountSlice(x, 0.0)
	for i := range x {
		if !closeEnough(out[i], x[i]) {
			t.Errorf("expected %v at index %v, got %v", x[i], i, out[i])
		}
	}
}

func TestDiscountConstantSequence(t *testing.T) {
	const c, gamma = 2.5, 0.9
	const n = 6

	x := make([]float64, n)
	for i := range x {
		x[i] = c
	}
	out := DiscountSlice(x, gamma)

	// Closed form: c * (1 - ℽ^(n-t)) / (1 - ℽ)
	for i := 0; i < n; i++ {
		expected := c * (1 - math.Pow(gamma, float64(n-i))) / (1 - gamma)
		if !closeEnough(out[i], expected) {
			t.Errorf("expected %v at index %v, got %v", expected, i, out[i])
		}
	}
}

func TestBootstrappedReturnsTerminal(t *testing.T) {
	// Three-step episode, ℽ = 0.9, all rewards 1, terminal end
	e := Estimator{Gamma: 0.9}
	returns := e.BootstrappedReturns([]float64{1, 1, 1}, 0.0)

	expected := []float64{2.71, 1.9, 1.0}
	for i := range expected {
		if !closeEnough(returns[i], expected[i]) {
			t.Errorf("expected %v at index %v, got %v", expected[i], i,
				returns[i])
		}
	}
}

func TestGeneralized(t *testing.T) {
	// Two-step window, terminal, V = [1, 1] and bootstrap 0:
	// δ = [2 + 0.99*1 - 1, 3 + 0.99*0 - 1] = [1.99, 2.0]
	// adv = discount(δ, 0.99*0.95) = [1.99 + 0.9405*2.0, 2.0]
	e := Estimator{Gamma: 0.99, Lambda: 0.95, EstimateValueUsingGAE: true}
	adv, targets, err := e.Generalized([]float64{2, 3}, []float64{1, 1, 0})
	if err != nil {
		t.Fatal(err)
	}

	expectedAdv := []float64{1.99 + 0.9405*2.0, 2.0}
	for i := range expectedAdv {
		if !closeEnough(adv[i], expectedAdv[i]) {
			t.Errorf("expected advantage %v at index %v, got %v",
				expectedAdv[i], i, adv[i])
		}
	}

	// Target mode (a): advantage + V
	for i := range targets {
		expected := expectedAdv[i] + []float64{1, 1}[i]
		if !closeEnough(targets[i], expected) {
			t.Errorf("expected target %v at index %v, got %v", expected, i,
				targets[i])
		}
	}
}

func TestGeneralizedLengthMismatch(t *testing.T) {
	e := Estimator{Gamma: 0.99, Lambda: 0.95}
	if _, _, err := e.Generalized([]float64{1, 1}, []float64{1, 1}); err == nil {
		t.Error("expected error for values length != rewards length + 1")
	}
}

// With λ = 1 and plain return targets, the GAE target equals the
// bootstrapped discounted return computed directly.
func TestGeneralizedTargetMatchesPlainReturn(t *testing.T) {
	rewards := []float64{1.0, -0.5, 2.0, 0.0, 3.0}
	values := []float64{0.3, -0.1, 0.7, 0.2, 1.0, 0.5}
	e := Estimator{Gamma: 0.9, Lambda: 1.0, EstimateValueUsingGAE: false}

	_, targets, err := e.Generalized(rewards, values)
	if err != nil {
		t.Fatal(err)
	}

	plain := e.BootstrappedReturns(rewards, values[len(values)-1])
	for i := range plain {
		if !closeEnough(targets[i], plain[i]) {
			t.Errorf("expected target %v at index %v, got %v", plain[i], i,
				targets[i])
		}
	}
}

// Advantages for a two-episode batch equal the concatenation of the
// advantages computed independently per episode.
func TestEpisodeIsolation(t *testing.T) {
	e := Estimator{Gamma: 0.99, Lambda: 0.95, EstimateValueUsingGAE: true}

	rewards1 := []float64{1, 0, 2}
	values1 := []float64{0.5, 0.1, 0.9, 0}
	rewards2 := []float64{-1, 3}
	values2 := []float64{0.2, 0.6, 0}

	adv1, _, err := e.Generalized(rewards1, values1)
	if err != nil {
		t.Fatal(err)
	}
	adv2, _, err := e.Generalized(rewards2, values2)
	if err != nil {
		t.Fatal(err)
	}

	gameOvers := []bool{false, false, true, false, true}
	rewards := append(append([]float64{}, rewards1...), rewards2...)
	values := append(append([]float64{}, values1[:3]...), values2[:2]...)

	var got []float64
	for _, w := range Windows(gameOvers) {
		start, end := w[0], w[1]
		vals := append(append([]float64{}, values[start:end]...), 0.0)
		adv, _, err := e.Generalized(rewards[start:end], vals)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, adv...)
	}

	expected := append(append([]float64{}, adv1...), adv2...)
	if len(got) != len(expected) {
		t.Fatalf("expected %v advantages, got %v", len(expected), len(got))
	}
	for i := range expected {
		if !closeEnough(got[i], expected[i]) {
			t.Errorf("expected %v at index %v, got %v", expected[i], i,
				got[i])
		}
	}
}

func TestStandardize(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 10}
	Standardize(x)

	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	if math.Abs(mean) > 1e-8 {
		t.Errorf("expected mean 0, got %v", mean)
	}

	var variance float64
	for _, v := range x {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(x))
	if math.Abs(math.Sqrt(variance)-1.0) > 1e-6 {
		t.Errorf("expected unit standard deviation, got %v",
			math.Sqrt(variance))
	}
}

func TestStandardizeConstantInput(t *testing.T) {
	x := []float64{3, 3, 3, 3}
	Standardize(x)
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("standardizing a constant input produced %v at "+
				"index %v", v, i)
		}
	}
}

func TestWindows(t *testing.T) {
	tests := []struct {
		gameOvers []bool
		expected  [][2]int
	}{
		{[]bool{false, false, true}, [][2]int{{0, 3}}},
		{[]bool{true, true}, [][2]int{{0, 1}, {1, 2}}},
		{[]bool{false, true, false}, [][2]int{{0, 2}, {2, 3}}},
		{[]bool{false, false}, [][2]int{{0, 2}}},
		{nil, nil},
	}

	for _, test := range tests {
		got := Windows(test.gameOvers)
		if len(got) != len(test.expected) {
			t.Errorf("%v: expected %v windows, got %v", test.gameOvers,
				len(test.expected), len(got))
			continue
		}
		for i := range got {
			if got[i] != test.expected[i] {
				t.Errorf("%v: expected window %v, got %v", test.gameOvers,
					test.expected[i], got[i])
			}
		}
	}
}

func TestRescalerKnown(t *testing.T) {
	for _, r := range []Rescaler{AValue, CustomActorCritic, GAE} {
		if !r.Known() {
			t.Errorf("expected %v to be a known rescaler", r)
		}
	}
	if Rescaler(42).Known() {
		t.Error("expected an out-of-range rescaler to be unknown")
	}
}
