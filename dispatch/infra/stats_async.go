package infra

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"priority-dispatch/dispatch/domain"

	"golang.org/x/sync/semaphore"
)

// ErrStatsDropped é retornado quando já existem gravações demais em andamento.
var ErrStatsDropped = errors.New("stats event dropped")

// AsyncStatsStore grava eventos em background no store de destino, com um
// limite de gravações simultâneas (semáforo ponderado de x/sync).
//
// Record nunca bloqueia: se não houver vaga, o evento é descartado.
type AsyncStatsStore struct {
	next     domain.StatsStore
	sem      *semaphore.Weighted
	inflight int64
	timeout  time.Duration
	onError  func(error)

	dropped atomic.Int64
	failed  atomic.Int64
}

type AsyncStatsOption func(*AsyncStatsStore)

// WithWriteTimeout limita cada gravação no store de destino.
func WithWriteTimeout(d time.Duration) AsyncStatsOption {
	return func(s *AsyncStatsStore) { s.timeout = d }
}

func WithErrorHandler(fn func(error)) AsyncStatsOption {
	return func(s *AsyncStatsStore) { s.onError = fn }
}

func NewAsyncStatsStore(next domain.StatsStore, maxInFlight int64, opts ...AsyncStatsOption) *AsyncStatsStore {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	s := &AsyncStatsStore{
		next:     next,
		sem:      semaphore.NewWeighted(maxInFlight),
		inflight: maxInFlight,
		timeout:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AsyncStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s.next == nil {
		return nil
	}
	if !s.sem.TryAcquire(1) {
		s.dropped.Add(1)
		return ErrStatsDropped
	}

	// a gravação não morre junto com o ctx da tarefa
	wctx := context.WithoutCancel(ctx)
	go func() {
		defer s.sem.Release(1)

		if s.timeout > 0 {
			var cancel context.CancelFunc
			wctx, cancel = context.WithTimeout(wctx, s.timeout)
			defer cancel()
		}
		if err := s.next.Record(wctx, ev); err != nil {
			s.failed.Add(1)
			if s.onError != nil {
				s.onError(err)
			}
		}
	}()
	return nil
}

// Flush espera todas as gravações em andamento terminarem (ou o ctx encerrar).
func (s *AsyncStatsStore) Flush(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, s.inflight); err != nil {
		return err
	}
	s.sem.Release(s.inflight)
	return nil
}

func (s *AsyncStatsStore) Dropped() int64 { return s.dropped.Load() }
func (s *AsyncStatsStore) Failed() int64  { return s.failed.Load() }
