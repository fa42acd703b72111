// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - Gate: portão de admissão FIFO (semáforo contador com fila de espera)
//   - UniformLatency: latência simulada com um gerador por tarefa
//   - Pacer: token bucket para início de handlers usando golang.org/x/time/rate
//   - MemoryStatsStore / RedisStatsStore / AsyncStatsStore: estatísticas por tarefa
package infra
