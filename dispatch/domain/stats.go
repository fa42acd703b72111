package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StatsEvent representa o fim de uma tarefa do lote.
//
// Observação: cuidado com cardinalidade (ex.: salvar Label sem controle pode
// explodir o número de chaves em uma base como Redis).
type StatsEvent struct {
	BatchID   uuid.UUID
	Label     string
	Weight    int
	Seq       uint64
	Completed bool
	Duration  time.Duration
	At        time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do despacho.
//
// O dispatcher trata erro como best-effort (não derruba a tarefa).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
