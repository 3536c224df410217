package service

import (
	"context"
	"math/rand"

	"github.com/fcg-cloud/payments-service/internal/domain"
)

// Resolver decides a pending payment's settlement outcome. The default
// implementation is a stand-in for a real gateway integration; swapping it out
// must not change the surrounding contract of exactly one terminal transition
// and one settlement event per payment.
type Resolver interface {
	Resolve(ctx context.Context, p *domain.Payment) (domain.PaymentStatus, error)
}

// RandomResolver settles with a biased coin flip. The rand source is injected
// so tests can pin the sequence; it is only ever called from the worker's
// single loop goroutine.
type RandomResolver struct {
	rnd         *rand.Rand
	successBias float64
}

func NewRandomResolver(rnd *rand.Rand, successBias float64) *RandomResolver {
	return &RandomResolver{rnd: rnd, successBias: successBias}
}

func (r *RandomResolver) Resolve(_ context.Context, _ *domain.Payment) (domain.PaymentStatus, error) {
	if r.rnd.Float64() < r.successBias {
		return domain.PaymentStatusSucceeded, nil
	}
	return domain.PaymentStatusFailed, nil
}
