package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"priority-dispatch/dispatch/domain"

	"github.com/google/uuid"
)

// Dispatcher executa lotes de itens sob o limite de concorrência do Gate.
//
// A capacidade do Gate é o limite global: lotes rodando ao mesmo tempo no
// mesmo Dispatcher dividem as mesmas vagas.
type Dispatcher struct {
	Gate      domain.Gate
	Latency   domain.LatencySource // nil = sem atraso simulado
	Pacer     domain.Pacer         // nil = sem controle de taxa
	Stats     domain.StatsStore    // nil = sem estatísticas
	Admission AdmissionService
	Logger    *slog.Logger

	// OnTransition é chamado a cada mudança de estado de uma tarefa, de várias
	// goroutines ao mesmo tempo.
	OnTransition func(domain.Transition)
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

func (d *Dispatcher) validate(items []domain.WorkItem, handler domain.Handler) error {
	if d.Gate == nil {
		return fmt.Errorf("%w: gate is required", domain.ErrInvalidConfig)
	}
	if c := d.Gate.Capacity(); c < 1 {
		return fmt.Errorf("%w: maxConcurrency must be >= 1, got %d", domain.ErrInvalidConfig, c)
	}
	if handler == nil {
		return fmt.Errorf("%w: handler is required", domain.ErrInvalidConfig)
	}
	for _, it := range items {
		if it.Weight < 0 {
			return fmt.Errorf("%w: item %q has negative weight %d", domain.ErrInvalidConfig, it.Label, it.Weight)
		}
	}
	return nil
}

// RunBatch ordena os itens por peso decrescente, cria uma goroutine por item e
// espera todas terminarem.
//
// As tentativas de aquisição são emitidas aqui, em ordem, antes de cada
// goroutine existir; por isso a ordem de despacho segue o peso mesmo com o
// escalonador reordenando goroutines.
//
// Retorna (nil, err) para configuração inválida. Se algum handler falhar,
// retorna o resultado completo junto com um *domain.BatchError.
func (d *Dispatcher) RunBatch(ctx context.Context, items []domain.WorkItem, handler domain.Handler) (*domain.BatchResult, error) {
	if err := d.validate(items, handler); err != nil {
		return nil, err
	}

	res := &domain.BatchResult{ID: uuid.New()}
	if len(items) == 0 {
		return res, nil
	}

	log := d.logger().With("batch", res.ID.String())
	ordered := SortByWeight(items)
	res.Outcomes = make([]domain.Outcome, len(ordered))

	log.Info("batch started", "items", len(ordered), "max_concurrency", d.Gate.Capacity())
	start := time.Now()

	var wg sync.WaitGroup
	wg.Add(len(ordered))
	for i, item := range ordered {
		t := d.Gate.Reserve()
		d.emit(t.Seq(), item, domain.StateSpawned)
		d.emit(t.Seq(), item, domain.StateWaiting)

		go func() {
			defer wg.Done()
			res.Outcomes[i] = d.runTask(ctx, log, res.ID, uint64(i), item, t, handler)
		}()
	}
	wg.Wait()

	res.Duration = time.Since(start)
	err := res.Err()
	log.Info("batch finished",
		"completed", res.Completed(),
		"failed", res.Failed(),
		"duration", res.Duration,
	)
	return res, err
}

func (d *Dispatcher) runTask(ctx context.Context, log *slog.Logger, batchID uuid.UUID, index uint64,
	item domain.WorkItem, t domain.Ticket, handler domain.Handler) (out domain.Outcome) {

	out = domain.Outcome{Item: item, Seq: t.Seq()}
	start := time.Now()

	defer func() {
		out.Duration = time.Since(start)
		d.emit(out.Seq, item, out.State())
		d.record(ctx, log, batchID, out)
	}()

	release, err := d.Admission.Admit(ctx, t)
	if err != nil {
		d.emit(out.Seq, item, domain.StateReleased)
		out.Err = fmt.Errorf("item %q (seq %d): %w: %w", item.Label, out.Seq, domain.ErrTaskCancelled, err)
		log.Warn("task not admitted", "label", item.Label, "seq", out.Seq, "err", err)
		return out
	}

	defer func() {
		d.emit(out.Seq, item, domain.StateReleased)
		release()
	}()

	if d.Pacer != nil {
		if err := d.Pacer.Wait(ctx); err != nil {
			out.Err = fmt.Errorf("item %q (seq %d): %w: %w", item.Label, out.Seq, domain.ErrTaskCancelled, err)
			return out
		}
	}

	d.emit(out.Seq, item, domain.StateRunning)
	if err := invoke(ctx, handler, item.Label); err != nil {
		out.Err = &domain.HandlerError{Label: item.Label, Seq: out.Seq, Err: err}
		log.Warn("handler failed", "label", item.Label, "seq", out.Seq, "err", err)
		return out
	}

	d.emit(out.Seq, item, domain.StateDelaying)
	if d.Latency != nil {
		sleep(ctx, d.Latency.ForTask(index))
	}
	return out
}

// errHandlerPanic marca falhas vindas de panic no handler.
var errHandlerPanic = errors.New("handler panicked")

func invoke(ctx context.Context, handler domain.Handler, label string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errHandlerPanic, r)
		}
	}()
	return handler(ctx, label)
}

// sleep suspende a goroutine por d ou até o ctx encerrar.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (d *Dispatcher) emit(seq uint64, item domain.WorkItem, state domain.TaskState) {
	if d.OnTransition == nil {
		return
	}
	d.OnTransition(domain.Transition{Seq: seq, Item: item, State: state, At: time.Now()})
}

func (d *Dispatcher) record(ctx context.Context, log *slog.Logger, batchID uuid.UUID, out domain.Outcome) {
	if d.Stats == nil {
		return
	}
	err := d.Stats.Record(context.WithoutCancel(ctx), domain.StatsEvent{
		BatchID:   batchID,
		Label:     out.Item.Label,
		Weight:    out.Item.Weight,
		Seq:       out.Seq,
		Completed: out.Completed(),
		Duration:  out.Duration,
		At:        time.Now(),
	})
	if err != nil {
		log.Debug("stats record failed", "label", out.Item.Label, "err", err)
	}
}
