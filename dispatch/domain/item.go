package domain

import "context"

// WorkItem é uma unidade de trabalho independente do lote.
//
// Weight maior = maior prioridade de despacho. Imutável durante a execução do lote.
type WorkItem struct {
	Label  string
	Weight int
}

// Handler executa o trabalho de um item. Pode falhar (erro ou panic); o núcleo
// só observa sucesso/falha.
type Handler func(ctx context.Context, label string) error
