package application

import (
	"cmp"
	"slices"

	"priority-dispatch/dispatch/domain"
)

// SortByWeight devolve uma cópia ordenada por peso decrescente.
// Empates mantêm a ordem de inserção.
func SortByWeight(items []domain.WorkItem) []domain.WorkItem {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b domain.WorkItem) int {
		return cmp.Compare(b.Weight, a.Weight)
	})
	return out
}
