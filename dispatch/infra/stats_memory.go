package infra

import (
	"context"
	"sync"

	"priority-dispatch/dispatch/domain"
)

type Counters struct {
	Completed int64
	Failed    int64
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byBatch map[string]Counters
	byLabel map[string]Counters

	trackLabels bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackLabels(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackLabels = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byBatch: make(map[string]Counters),
		byLabel: make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	batch := ev.BatchID.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	bump := func(c Counters) Counters {
		if ev.Completed {
			c.Completed++
		} else {
			c.Failed++
		}
		return c
	}

	s.total = bump(s.total)
	s.byBatch[batch] = bump(s.byBatch[batch])
	if s.trackLabels {
		s.byLabel[ev.Label] = bump(s.byLabel[ev.Label])
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByBatch() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byBatch))
	for k, v := range s.byBatch {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByLabel() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byLabel))
	for k, v := range s.byLabel {
		out[k] = v
	}
	return out
}
