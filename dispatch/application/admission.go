package application

import (
	"context"
	"time"

	"priority-dispatch/dispatch/domain"
)

// AdmissionService concentra a regra de espera pela vaga com timeout,
// sem saber nada sobre como o gate é implementado.
type AdmissionService struct {
	Timeout time.Duration
}

// Admit espera a vaga do ticket.
// - Se `Timeout <= 0`, espera indefinidamente (até ctx cancelar).
// - Se `Timeout > 0`, espera até o timeout.
// Se err != nil, nenhuma vaga foi adquirida.
func (s AdmissionService) Admit(ctx context.Context, t domain.Ticket) (func(), error) {
	if s.Timeout <= 0 {
		return t.Wait(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	return t.Wait(acqCtx)
}
