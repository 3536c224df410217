package service

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fcg-cloud/payments-service/internal/domain"
)

func TestRandomResolver_BiasExtremes(t *testing.T) {
	ctx := context.Background()
	p := &domain.Payment{}

	always := NewRandomResolver(rand.New(rand.NewSource(1)), 1.0)
	never := NewRandomResolver(rand.New(rand.NewSource(1)), 0.0)

	for i := 0; i < 20; i++ {
		got, err := always.Resolve(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusSucceeded, got)

		got, err = never.Resolve(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusFailed, got)
	}
}

func TestRandomResolver_ProducesBothOutcomes(t *testing.T) {
	ctx := context.Background()
	p := &domain.Payment{}
	r := NewRandomResolver(rand.New(rand.NewSource(42)), 0.7)

	var succeeded, failed int
	for i := 0; i < 200; i++ {
		got, err := r.Resolve(ctx, p)
		require.NoError(t, err)
		switch got {
		case domain.PaymentStatusSucceeded:
			succeeded++
		case domain.PaymentStatusFailed:
			failed++
		}
	}

	assert.Positive(t, succeeded)
	assert.Positive(t, failed)
	assert.Greater(t, succeeded, failed)
}
