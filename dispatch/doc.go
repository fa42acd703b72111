// Package dispatch monta o processador de lotes com prioridade e concorrência limitada.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (WorkItem, Gate, BatchResult, erros)
//   - application: casos de uso (ordenação, admissão com timeout, ciclo de vida da tarefa)
//   - infra: implementações concretas (gate FIFO, latência, token bucket, stats)
//   - dispatch (este pacote): Options + wiring das camadas
//
// Fluxo de um lote:
//
//  1. Ordena os itens por peso decrescente (empates mantêm a ordem de entrada)
//  2. Emite uma tentativa de aquisição por item, nessa ordem, e cria uma goroutine por item
//  3. Cada goroutine espera a vaga, chama o handler, dorme a latência simulada e libera a vaga
//  4. Espera todas terminarem e agrega as falhas em um *BatchError
//
// O binário cmd/dispatch roda a carga de referência (1000 itens, pesos em [0,20)) e
// é configurado por variáveis de ambiente como MAX_CONCURRENCY e LATENCY_BOUND.
package dispatch
