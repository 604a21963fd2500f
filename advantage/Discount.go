// Package advantage implements discounted return computation and
// advantage estimation for policy-gradient learning, following
// https://arxiv.org/abs/1506.02438
package advantage

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Discount computes the exponentially discounted cumulative sum of x:
//
//	y[t] = x[t] + rate*y[t+1]
//
// with y taken as 0 beyond the end of x. Equivalently, for index t,
// y[t] is the sum over k of rate^k * x[t+k]. The input vector is not
// modified.
func Discount(x *mat.VecDense, rate float64) []float64 {
	rates := mat.NewVecDense(x.Len(), nil)
	cumSums := make([]float64, x.Len())
	scaled := mat.NewVecDense(x.Len(), nil)
	backing := scaled.RawVector().Data

	for i := 0; i < x.Len(); i++ {
		rates.ScaleVec(rate, rates)
		rates.SetVec(x.Len()-i-1, 1)

		scaled.MulElemVec(rates, x)
		cumSums[x.Len()-i-1] = floats.Sum(backing[x.Len()-i-1:])
	}

	return cumSums
}

// DiscountSlice is a convenience wrapper for Discount on a raw slice
func DiscountSlice(x []float64, rate float64) []float64 {
	if len(x) == 0 {
		return nil
	}
	v := mat.NewVecDense(len(x), nil)
	copy(v.RawVector().Data, x)
	return Discount(v, rate)
}
