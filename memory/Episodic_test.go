package memory

import (
	"testing"

	"gonum.org/v1/gonum/mat"
	"sfneuman.com/goppo/timestep"
)

func transition(reward float64, gameOver bool) *timestep.Transition {
	return timestep.NewTransition(
		mat.NewVecDense(1, []float64{reward}),
		mat.NewVecDense(1, []float64{0}),
		reward,
		mat.NewVecDense(1, []float64{reward + 1}),
		gameOver,
	)
}

func TestEpisodicCounts(t *testing.T) {
	pool := NewEpisodic(0)
	if !pool.LastEpisodeEnded() {
		t.Error("expected an empty pool to have no open episode")
	}

	pool.Add(transition(1, false))
	pool.Add(transition(2, true))
	pool.Add(transition(3, false))

	if pool.NumSteps() != 3 {
		t.Errorf("expected 3 steps, got %v", pool.NumSteps())
	}
	if pool.NumCompletedEpisodes() != 1 {
		t.Errorf("expected 1 completed episode, got %v",
			pool.NumCompletedEpisodes())
	}
	if pool.LastEpisodeEnded() {
		t.Error("expected the last episode to still be open")
	}

	pool.Add(transition(4, true))
	if !pool.LastEpisodeEnded() {
		t.Error("expected the last episode to be closed")
	}

	pool.Clean()
	if pool.NumSteps() != 0 || pool.NumCompletedEpisodes() != 0 {
		t.Error("expected an empty pool after cleaning")
	}
}

func TestEpisodicMaxSize(t *testing.T) {
	pool := NewEpisodic(2)
	if err := pool.Add(transition(1, false)); err != nil {
		t.Fatal(err)
	}
	if err := pool.Add(transition(2, false)); err != nil {
		t.Fatal(err)
	}
	if err := pool.Add(transition(3, false)); err == nil {
		t.Error("expected error adding to a full pool")
	}
}
