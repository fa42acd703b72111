package infra

import (
	"fmt"
	"math/rand/v2"
	"time"

	"priority-dispatch/dispatch/domain"
)

// UniformLatency sorteia uma duração uniforme em [0, bound).
//
// Cada tarefa usa o próprio gerador PCG semeado com (seed, index), então não
// existe estado compartilhado entre goroutines e a mesma seed repete os atrasos.
type UniformLatency struct {
	bound time.Duration
	seed  uint64
}

// NewUniformLatency cria a fonte de latência. seed == 0 sorteia uma seed.
func NewUniformLatency(bound time.Duration, seed uint64) (*UniformLatency, error) {
	if bound < 0 {
		return nil, fmt.Errorf("%w: latency bound must be >= 0, got %s", domain.ErrInvalidConfig, bound)
	}
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &UniformLatency{bound: bound, seed: seed}, nil
}

func (l *UniformLatency) Bound() time.Duration { return l.bound }
func (l *UniformLatency) Seed() uint64         { return l.seed }

// ForTask implementa domain.LatencySource.
func (l *UniformLatency) ForTask(index uint64) time.Duration {
	if l.bound <= 0 {
		return 0
	}
	r := rand.New(rand.NewPCG(l.seed, index))
	return time.Duration(r.Int64N(int64(l.bound)))
}
