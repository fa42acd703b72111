// Package application contém os casos de uso do despacho em lote: ordenação por
// prioridade, admissão com timeout e o ciclo de vida de cada tarefa.
//
// Ele depende apenas do pacote domain e não conhece as implementações concretas
// (gate, redis, token bucket).
// Ex.: Dispatcher.RunBatch(ctx, items, handler) retorna um BatchResult.
package application
