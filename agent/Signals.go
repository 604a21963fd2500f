package agent

// Diagnostic signal names recorded during training
const (
	AdvantagesSignal     = "Advantages"
	ValuesSignal         = "Values"
	ValueLossSignal      = "Value Loss"
	PolicyLossSignal     = "Policy Loss"
	TotalLossSignal      = "Total Loss"
	KLDivergenceSignal   = "KL Divergence"
	EntropySignal        = "Entropy"
	UnclippedGradsSignal = "Grads (unclipped)"
	ValueTargetsSignal   = "Value Targets"
)

// Sink consumes named diagnostic samples during training. Recording
// is fire and forget; agents never read a sink back.
type Sink interface {
	Record(name string, values ...float64)
}

// NopSink discards every sample
type NopSink struct{}

func (NopSink) Record(string, ...float64) {}

// Recorder is a Sink that keeps every sample it receives, keyed by
// signal name. It is not safe for concurrent use.
type Recorder struct {
	signals map[string][]float64
}

// NewRecorder returns a new empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{signals: make(map[string][]float64)}
}

// Record appends samples to the named signal
func (r *Recorder) Record(name string, values ...float64) {
	r.signals[name] = append(r.signals[name], values...)
}

// Signal returns all samples recorded for a signal, in order
func (r *Recorder) Signal(name string) []float64 {
	return r.signals[name]
}

// Last returns the most recent sample of a signal and whether the
// signal has any samples
func (r *Recorder) Last(name string) (float64, bool) {
	samples := r.signals[name]
	if len(samples) == 0 {
		return 0, false
	}
	return samples[len(samples)-1], true
}
