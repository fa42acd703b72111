package domain

import "time"

// LatencySource sorteia a latência simulada de cada tarefa.
//
// ForTask deve ser seguro para uso concorrente; a implementação não pode
// compartilhar um gerador pseudo-aleatório sem sincronização.
type LatencySource interface {
	ForTask(index uint64) time.Duration
}
