package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"priority-dispatch/dispatch/application"
	"priority-dispatch/dispatch/domain"
	"priority-dispatch/dispatch/infra"
)

type (
	WorkItem    = domain.WorkItem
	Handler     = domain.Handler
	BatchResult = domain.BatchResult
	Outcome     = domain.Outcome
	BatchError  = domain.BatchError
)

const (
	DefaultMaxConcurrency = 10
	DefaultLatencyBound   = 200 * time.Millisecond
)

type Options struct {
	// MaxConcurrency é o número máximo de handlers executando ao mesmo tempo.
	MaxConcurrency int
	// LatencyBound é o limite (exclusivo) da latência simulada depois do handler.
	// 0 desliga o atraso.
	LatencyBound time.Duration
	// Seed fixa os atrasos sorteados. 0 sorteia uma seed.
	Seed uint64

	// AdmissionTimeout <= 0 espera a vaga indefinidamente.
	AdmissionTimeout time.Duration

	// StartRPS > 0 liga o token bucket no início dos handlers.
	StartRPS   float64
	StartBurst int

	Stats        domain.StatsStore
	Logger       *slog.Logger
	OnTransition func(domain.Transition)
}

// DefaultOptions retorna a configuração de referência: 10 vagas, atraso em [0, 200ms).
func DefaultOptions() Options {
	return Options{
		MaxConcurrency: DefaultMaxConcurrency,
		LatencyBound:   DefaultLatencyBound,
	}
}

// Dispatcher é o processador montado. Pode rodar vários lotes; todos dividem o mesmo gate.
type Dispatcher struct {
	app     *application.Dispatcher
	gate    *infra.Gate
	latency *infra.UniformLatency
}

// New valida as opções e monta o dispatcher. Nenhuma tarefa é criada aqui.
func New(opts Options) (*Dispatcher, error) {
	if opts.MaxConcurrency < 1 {
		return nil, fmt.Errorf("%w: maxConcurrency must be >= 1, got %d", domain.ErrInvalidConfig, opts.MaxConcurrency)
	}
	if opts.StartRPS < 0 {
		return nil, fmt.Errorf("%w: start rps must be >= 0, got %v", domain.ErrInvalidConfig, opts.StartRPS)
	}

	gate, err := infra.NewGate(opts.MaxConcurrency)
	if err != nil {
		return nil, err
	}
	latency, err := infra.NewUniformLatency(opts.LatencyBound, opts.Seed)
	if err != nil {
		return nil, err
	}

	app := &application.Dispatcher{
		Gate:         gate,
		Latency:      latency,
		Stats:        opts.Stats,
		Admission:    application.AdmissionService{Timeout: opts.AdmissionTimeout},
		Logger:       opts.Logger,
		OnTransition: opts.OnTransition,
	}
	if opts.StartRPS > 0 {
		app.Pacer = infra.NewPacer(opts.StartRPS, opts.StartBurst)
	}

	return &Dispatcher{app: app, gate: gate, latency: latency}, nil
}

// RunBatch roda o lote até o fim. Veja application.Dispatcher.RunBatch.
func (d *Dispatcher) RunBatch(ctx context.Context, items []WorkItem, handler Handler) (*BatchResult, error) {
	return d.app.RunBatch(ctx, items, handler)
}

func (d *Dispatcher) MaxConcurrency() int        { return d.gate.Capacity() }
func (d *Dispatcher) InUse() int                 { return d.gate.InUse() }
func (d *Dispatcher) GateStats() infra.GateStats { return d.gate.Stats() }
func (d *Dispatcher) Seed() uint64               { return d.latency.Seed() }

// Run monta um dispatcher com opts e roda um único lote.
func Run(ctx context.Context, items []WorkItem, handler Handler, opts Options) (*BatchResult, error) {
	d, err := New(opts)
	if err != nil {
		return nil, err
	}
	return d.RunBatch(ctx, items, handler)
}
