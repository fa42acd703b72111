package domain

import "context"

// SlotPool representa um recurso com capacidade finita (ex: execuções simultâneas do handler).
//
// A semântica é: Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// Ao adquirir, retorna uma função de release que deve ser chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}

// Ticket é uma tentativa de aquisição já enfileirada no gate.
//
// Seq é a ordem em que a tentativa foi emitida (ordem de despacho).
type Ticket interface {
	Seq() uint64
	Wait(ctx context.Context) (release func(), err error)
}

// Gate é o portão de admissão: um SlotPool que separa a emissão da tentativa
// (Reserve, não bloqueia) da espera pela vaga (Ticket.Wait).
//
// Vagas são concedidas na ordem de Reserve.
type Gate interface {
	SlotPool
	Reserve() Ticket
	Capacity() int
	InUse() int
}

// Pacer limita a taxa de início de handlers depois da admissão.
//
// Observação: a implementação pode ser token-bucket, leaky-bucket, etc.
type Pacer interface {
	Wait(ctx context.Context) error
}
