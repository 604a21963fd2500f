// Package schedule implements scalar schedules that decay a value over
// the course of training
package schedule

import "sfneuman.com/goppo/utils/floatutils"

// Schedule yields a scalar value that may change as training
// progresses. Step advances the schedule by one tick; Value returns
// the current value without advancing.
type Schedule interface {
	Value() float64
	Step()
}

// Constant is a Schedule that always yields the same value
type Constant struct {
	value float64
}

// NewConstant returns a Schedule fixed at value
func NewConstant(value float64) *Constant {
	return &Constant{value: value}
}

func (c *Constant) Value() float64 { return c.value }

func (c *Constant) Step() {}

// Linear is a Schedule that interpolates linearly from an initial to a
// final value over a fixed number of steps, then stays at the final
// value.
type Linear struct {
	initial     float64
	final       float64
	totalSteps  int
	currentStep int
}

// NewLinear returns a Schedule decaying from initial to final over
// steps ticks
func NewLinear(initial, final float64, steps int) *Linear {
	return &Linear{initial: initial, final: final, totalSteps: steps}
}

func (l *Linear) Value() float64 {
	if l.currentStep >= l.totalSteps {
		return l.final
	}
	progress := float64(l.currentStep) / float64(l.totalSteps)
	value := l.initial + (l.final-l.initial)*progress
	return floatutils.Clip(value, floatutils.Min(l.initial, l.final),
		floatutils.Max(l.initial, l.final))
}

func (l *Linear) Step() {
	if l.currentStep < l.totalSteps {
		l.currentStep++
	}
}
