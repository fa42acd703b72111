package infra

import (
	"context"

	"golang.org/x/time/rate"
)

// Pacer é um token bucket (x/time/rate) que limita a taxa de início de handlers.
type Pacer struct {
	lim   *rate.Limiter
	rps   rate.Limit
	burst int
}

// NewPacer cria o pacer. burst <= 0 vira 1 (senão Wait nunca libera).
func NewPacer(rps float64, burst int) *Pacer {
	if burst <= 0 {
		burst = 1
	}
	return &Pacer{
		lim:   rate.NewLimiter(rate.Limit(rps), burst),
		rps:   rate.Limit(rps),
		burst: burst,
	}
}

func (p *Pacer) RPS() float64 { return float64(p.rps) }
func (p *Pacer) Burst() int   { return p.burst }

// Wait implementa domain.Pacer.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.lim.Wait(ctx)
}

// Allow consome um token sem esperar.
func (p *Pacer) Allow() bool {
	return p.lim.Allow()
}
