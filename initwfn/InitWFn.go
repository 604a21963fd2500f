// Package initwfn wraps Gorgonia weight initializers behind typed
// configurations so that agent configs can describe them as data.
package initwfn

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Type describes the different types of weight initializers that are
// available
type Type string

// Available InitWFn types
const (
	GlorotU  Type = "GlorotU"
	GlorotN  Type = "GlorotN"
	Zeroes   Type = "Zeroes"
	Ones     Type = "Ones"
	Gaussian Type = "Gaussian"
)

// InitWFn pairs a Gorgonia InitWFn with the configuration that
// created it
type InitWFn struct {
	initWFn G.InitWFn
	Type
	Config
}

// Config implements a weight initializer configuration and can be
// used to create the Gorgonia InitWFn it describes
type Config interface {
	Create() G.InitWFn
}

// New returns a new InitWFn of type t described by the argument Config
func New(t Type, c Config) *InitWFn {
	return &InitWFn{initWFn: c.Create(), Type: t, Config: c}
}

// InitWFn returns the wrapped Gorgonia InitWFn
func (w *InitWFn) InitWFn() G.InitWFn {
	return w.initWFn
}

// String implements the fmt.Stringer interface
func (w *InitWFn) String() string {
	return fmt.Sprintf("{%v InitWFn: %+v}", w.Type, w.Config)
}

// GlorotUConfig implements a configuration of the Glorot Uniform
// initialization algorithm
type GlorotUConfig struct {
	Gain float64
}

// NewGlorotU returns a new Glorot Uniform weight initializer
func NewGlorotU(gain float64) *InitWFn {
	return New(GlorotU, GlorotUConfig{Gain: gain})
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (g GlorotUConfig) Create() G.InitWFn {
	return G.GlorotU(g.Gain)
}

// GlorotNConfig implements a configuration of the Glorot Normal
// initialization algorithm
type GlorotNConfig struct {
	Gain float64
}

// NewGlorotN returns a new Glorot Normal weight initializer
func NewGlorotN(gain float64) *InitWFn {
	return New(GlorotN, GlorotNConfig{Gain: gain})
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (g GlorotNConfig) Create() G.InitWFn {
	return G.GlorotN(g.Gain)
}

// ZeroesConfig implements a configuration of a zero weight initializer
type ZeroesConfig struct{}

// NewZeroes returns a new zeroes weight intializer
func NewZeroes() *InitWFn {
	return New(Zeroes, ZeroesConfig{})
}

// Create creates the Gorgonia weight initializer from this
// initializer config
func (z ZeroesConfig) Create() G.InitWFn {
	return G.Zeroes()
}

// OnesConfig implements a configuration of a weight initializer that
// initializes all weights to 1
type OnesConfig struct{}

// NewOnes returns a new ones weight intializer
func NewOnes() *InitWFn {
	return New(Ones, OnesConfig{})
}

// Create creates the Gorgonia weight initializer from this
// initializer config
func (o OnesConfig) Create() G.InitWFn {
	return G.Ones()
}

// GaussianConfig implements a configuration of a Gaussian weight
// initializer
type GaussianConfig struct {
	Mean   float64
	StdDev float64
}

// NewGaussian returns a new Gaussian weight initializer
func NewGaussian(mean, stddev float64) *InitWFn {
	return New(Gaussian, GaussianConfig{Mean: mean, StdDev: stddev})
}

// Create creates the Gorgonia weight initializer from this
// initializer config
func (g GaussianConfig) Create() G.InitWFn {
	return G.Gaussian(g.Mean, g.StdDev)
}
