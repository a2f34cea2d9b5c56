package tx

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	_, ok := From(ctx)
	assert.False(t, ok)

	assert.Equal(t, ctx, WithTx(ctx, nil), "nil tx leaves context untouched")

	sqlTx := &sql.Tx{}
	got, ok := From(WithTx(ctx, sqlTx))
	assert.True(t, ok)
	assert.Same(t, sqlTx, got)
}

func TestRunInTx_ReusesAmbientTransaction(t *testing.T) {
	r := NewRunner(nil, 0)
	sqlTx := &sql.Tx{}
	ctx := WithTx(context.Background(), sqlTx)

	called := false
	err := r.RunInTx(ctx, func(inner context.Context) error {
		called = true
		got, ok := From(inner)
		assert.True(t, ok)
		assert.Same(t, sqlTx, got)
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestRunInTx_CancelledContext(t *testing.T) {
	r := NewRunner(nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.RunInTx(ctx, func(context.Context) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
