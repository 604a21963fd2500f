package floatutils

import "testing"

func TestClip(t *testing.T) {
	tests := []struct {
		value, min, max, expected float64
	}{
		{0.5, 0.0, 1.0, 0.5},
		{-1.0, 0.0, 1.0, 0.0},
		{2.0, 0.0, 1.0, 1.0},
		{0.8, 0.8, 1.2, 0.8},
	}
	for _, test := range tests {
		if out := Clip(test.value, test.min, test.max); out != test.expected {
			t.Errorf("Clip(%v, %v, %v): expected %v, got %v", test.value,
				test.min, test.max, test.expected, out)
		}
	}
}

func TestMinMax(t *testing.T) {
	floats := []float64{3.0, -1.5, 2.0, -1.5, 7.25}
	if out := Min(floats...); out != -1.5 {
		t.Errorf("expected min -1.5, got %v", out)
	}
	if out := Max(floats...); out != 7.25 {
		t.Errorf("expected max 7.25, got %v", out)
	}
}

func TestArgMax(t *testing.T) {
	indices := ArgMax(1.0, 3.0, 2.0)
	if len(indices) != 1 || indices[0] != 1 {
		t.Errorf("expected indices [1], got %v", indices)
	}

	// ties return every attaining index
	indices = ArgMax(3.0, 1.0, 3.0)
	if len(indices) != 2 || indices[0] != 0 || indices[1] != 2 {
		t.Errorf("expected indices [0 2], got %v", indices)
	}
}

func TestMean(t *testing.T) {
	if out := Mean(1.0, 2.0, 3.0, 4.0); out != 2.5 {
		t.Errorf("expected mean 2.5, got %v", out)
	}
	if out := Mean(-2.0, 2.0); out != 0.0 {
		t.Errorf("expected mean 0, got %v", out)
	}
}
