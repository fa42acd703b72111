// Package domain define contratos e tipos de domínio do despacho em lote com prioridade.
//
// Este pacote não depende de implementações concretas (semáforo, redis, token bucket).
// A intenção é permitir testes de unidade puros e desacoplar a política de despacho
// dos detalhes de infraestrutura.
package domain
