package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"priority-dispatch/dispatch/domain"
)

var errSimulated = errors.New("simulated failure")

// generateItems cria n itens "item-N" com pesos uniformes em [0, maxWeight).
func generateItems(n, maxWeight int, seed uint64) []domain.WorkItem {
	r := rand.New(rand.NewPCG(seed, uint64(n)))
	items := make([]domain.WorkItem, n)
	for i := range items {
		items[i] = domain.WorkItem{
			Label:  fmt.Sprintf("item-%d", i),
			Weight: r.IntN(maxWeight),
		}
	}
	return items
}

// newHandler loga cada item e falha a cada failEvery itens (0 = nunca).
func newHandler(logger *slog.Logger, items []domain.WorkItem, failEvery int) domain.Handler {
	fail := make(map[string]bool)
	if failEvery > 0 {
		for i, it := range items {
			if (i+1)%failEvery == 0 {
				fail[it.Label] = true
			}
		}
	}

	return func(_ context.Context, label string) error {
		if fail[label] {
			return fmt.Errorf("%s: %w", label, errSimulated)
		}
		logger.Debug("processing", "label", label)
		return nil
	}
}
