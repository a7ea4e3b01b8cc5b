package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/deferred"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/operation"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/promise"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/transaction"
)

func TestMetricsWrapper(t *testing.T) {
	ctx := context.Background()
	engineErr := errors.New("connection reset")
	inner := promise.EngineFunc(func(ctx context.Context, req promise.Request) deferred.Deferred[any] {
		if req.Spec.Action == operation.DeleteOne {
			return deferred.Rejected[any](engineErr)
		}
		return deferred.Resolved[any]("ok")
	})
	w := WithMetrics(inner, "stub")

	t.Run("passes the settlement through", func(t *testing.T) {
		v, err := w.Execute(ctx, promise.Request{Spec: operation.NewSpec("User", operation.FindMany, nil)}).Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, "ok", v)

		_, err = w.Execute(ctx, promise.Request{Spec: operation.NewSpec("User", operation.DeleteOne, nil)}).Await(ctx)
		assert.True(t, err == engineErr)
	})

	t.Run("counts failures", func(t *testing.T) {
		before := testutil.ToFloat64(requestFailures.WithLabelValues("stub", "deleteOne", "itx"))
		_, _ = w.Execute(ctx, promise.Request{
			Spec:        operation.NewSpec("User", operation.DeleteOne, nil),
			Transaction: transaction.Interactive{ID: "itx-1"},
		}).Await(ctx)
		after := testutil.ToFloat64(requestFailures.WithLabelValues("stub", "deleteOne", "itx"))
		assert.Equal(t, before+1, after)
	})

	t.Run("interactive support depends on the wrapped engine", func(t *testing.T) {
		_, err := w.StartTransaction(ctx, transaction.InteractiveOptions{})
		assert.ErrorIs(t, err, ErrInteractiveDisabled)
	})
}

func TestBatchError(t *testing.T) {
	cause := errors.New("duplicate key")
	var err error = &BatchError{Index: 2, Cause: cause}

	assert.ErrorIs(t, err, cause)
	var indexed promise.BatchIndexed
	require.ErrorAs(t, err, &indexed)
	assert.Equal(t, 2, indexed.BatchIndex())
}
