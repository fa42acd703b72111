package infra

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"priority-dispatch/dispatch/domain"
)

// GateStats são os totais de acquire/release desde a criação do gate.
type GateStats struct {
	Acquired int64
	Released int64
}

// Gate é um semáforo contador com fila FIFO de espera.
//
// Vagas são concedidas na ordem de Reserve. No release, se houver alguém
// esperando, a vaga passa direto para o primeiro da fila (held não muda).
type Gate struct {
	mu       sync.Mutex
	size     int
	held     int
	waiters  list.List // *ticket
	nextSeq  uint64
	acquired int64
	released int64
}

// NewGate cria um gate com capacidade `max`.
func NewGate(max int) (*Gate, error) {
	if max < 1 {
		return nil, fmt.Errorf("%w: gate capacity must be >= 1, got %d", domain.ErrInvalidConfig, max)
	}
	return &Gate{size: max}, nil
}

func (g *Gate) Capacity() int { return g.size }

// InUse retorna quantas vagas estão ocupadas agora.
func (g *Gate) InUse() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}

// Waiting retorna quantas tentativas estão na fila.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiters.Len()
}

func (g *Gate) Stats() GateStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GateStats{Acquired: g.acquired, Released: g.released}
}

// Reserve emite uma tentativa de aquisição sem bloquear.
func (g *Gate) Reserve() domain.Ticket {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := &ticket{gate: g, seq: g.nextSeq, ready: make(chan struct{})}
	g.nextSeq++

	if g.held < g.size && g.waiters.Len() == 0 {
		g.held++
		g.acquired++
		close(t.ready)
		return t
	}
	t.elem = g.waiters.PushBack(t)
	return t
}

// Acquire implementa domain.SlotPool.
func (g *Gate) Acquire(ctx context.Context) (func(), bool) {
	release, err := g.Reserve().Wait(ctx)
	if err != nil {
		return nil, false
	}
	return release, true
}

// releaser devolve o guard da aquisição: chamar duas vezes é bug.
func (g *Gate) releaser(seq uint64) func() {
	var done atomic.Bool
	return func() {
		if !done.CompareAndSwap(false, true) {
			panic(fmt.Errorf("%w: slot of ticket %d released twice", domain.ErrLogic, seq))
		}
		g.release()
	}
}

func (g *Gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.held == 0 {
		panic(fmt.Errorf("%w: release without matching acquire", domain.ErrLogic))
	}
	g.released++

	if front := g.waiters.Front(); front != nil {
		t := g.waiters.Remove(front).(*ticket)
		t.elem = nil
		g.acquired++
		close(t.ready)
		return
	}
	g.held--
}

type ticket struct {
	gate   *Gate
	seq    uint64
	ready  chan struct{} // fechado (sob gate.mu) quando a vaga é concedida
	elem   *list.Element
	waited atomic.Bool
}

func (t *ticket) Seq() uint64 { return t.seq }

// Wait bloqueia até a vaga ser concedida ou o ctx encerrar.
// Se o ctx encerrar, a tentativa sai da fila e nenhuma vaga fica presa.
func (t *ticket) Wait(ctx context.Context) (func(), error) {
	if !t.waited.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: ticket %d waited twice", domain.ErrLogic, t.seq)
	}

	// vaga já concedida tem prioridade sobre ctx encerrado
	select {
	case <-t.ready:
		return t.gate.releaser(t.seq), nil
	default:
	}

	select {
	case <-t.ready:
		return t.gate.releaser(t.seq), nil
	case <-ctx.Done():
	}

	g := t.gate
	g.mu.Lock()
	select {
	case <-t.ready:
		// concedida ao mesmo tempo que o ctx encerrou: devolve
		g.mu.Unlock()
		g.release()
	default:
		g.waiters.Remove(t.elem)
		t.elem = nil
		g.mu.Unlock()
	}
	return nil, ctx.Err()
}
