package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskState é o estado de uma tarefa do lote.
//
// Spawned -> Waiting -> Running -> Delaying -> Released -> Completed|Failed.
// Nenhuma transição pula Released depois que a vaga foi obtida.
type TaskState int

const (
	StateSpawned TaskState = iota
	StateWaiting
	StateRunning
	StateDelaying
	StateReleased
	StateCompleted
	StateFailed
)

func (s TaskState) String() string {
	switch s {
	case StateSpawned:
		return "spawned"
	case StateWaiting:
		return "waiting"
	case StateRunning:
		return "running"
	case StateDelaying:
		return "delaying"
	case StateReleased:
		return "released"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal indica se o estado é final.
func (s TaskState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Transition é emitida a cada mudança de estado de uma tarefa.
type Transition struct {
	Seq   uint64
	Item  WorkItem
	State TaskState
	At    time.Time
}

// Outcome é o resultado de uma tarefa. Err == nil significa Completed.
type Outcome struct {
	Item     WorkItem
	Seq      uint64
	Err      error
	Duration time.Duration
}

func (o Outcome) Completed() bool { return o.Err == nil }

func (o Outcome) State() TaskState {
	if o.Err == nil {
		return StateCompleted
	}
	return StateFailed
}

// BatchResult agrega os resultados do lote, alinhados com a ordem de despacho.
type BatchResult struct {
	ID       uuid.UUID
	Outcomes []Outcome
	Duration time.Duration
}

func (r *BatchResult) Len() int { return len(r.Outcomes) }

func (r *BatchResult) Completed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Completed() {
			n++
		}
	}
	return n
}

func (r *BatchResult) Failed() int { return len(r.Outcomes) - r.Completed() }

// Failures retorna os erros na ordem de despacho.
func (r *BatchResult) Failures() []error {
	var out []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o.Err)
		}
	}
	return out
}

// Labels retorna os labels na ordem de despacho.
func (r *BatchResult) Labels() []string {
	out := make([]string, len(r.Outcomes))
	for i, o := range r.Outcomes {
		out[i] = o.Item.Label
	}
	return out
}

// Err retorna um *BatchError se algum item falhou, ou nil.
func (r *BatchResult) Err() error {
	failed := r.Failures()
	if len(failed) == 0 {
		return nil
	}
	return &BatchError{Total: len(r.Outcomes), Failed: failed}
}
