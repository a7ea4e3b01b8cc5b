package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/batch"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/operation"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/promise"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/transaction"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/utils/testutils"
)

func rawEngine(req promise.Request) (any, error) {
	switch req.Spec.Action {
	case operation.ExecuteRaw:
		return int64(1), nil
	case operation.QueryRaw:
		return []map[string]any{{"id": int64(1)}}, nil
	}
	return string(req.Spec.Action), nil
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("typed raw operations", func(t *testing.T) {
		c := New(testutils.NewEngineStub(rawEngine), Options{})

		n, err := c.ExecuteRaw(ctx, "DELETE FROM users WHERE id = $1", 1).Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		rows, err := c.QueryRaw(ctx, "SELECT id FROM users").Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, []map[string]any{{"id": int64(1)}}, rows)
	})

	t.Run("model operation", func(t *testing.T) {
		e := testutils.NewEngineStub(rawEngine)
		c := New(e, Options{})
		p := Op[string](ctx, c, "User", operation.FindMany, map[string]any{"take": 10})
		assert.Empty(t, e.Requests())

		v, err := p.Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, "findMany", v)
		assert.Equal(t, "User", e.Requests()[0].Spec.Model)
	})

	t.Run("batch uses default isolation", func(t *testing.T) {
		e := testutils.NewEngineStub(rawEngine)
		c := New(e, Options{IsolationLevel: transaction.Serializable})

		values, err := c.Batch(ctx, []promise.Operation{
			Op[string](ctx, c, "User", operation.CreateOne, nil),
			c.ExecuteRaw(ctx, "UPDATE users SET name = $1", "bob"),
		})
		require.NoError(t, err)
		assert.Equal(t, []any{"createOne", int64(1)}, values)
		for _, req := range e.Requests() {
			assert.Equal(t, transaction.Serializable, req.Transaction.(transaction.Batch).IsolationLevel)
		}
	})

	t.Run("interactive unsupported", func(t *testing.T) {
		c := New(testutils.NewEngineStub(rawEngine), Options{})
		err := c.Transaction(ctx, func(*Client) error { return nil })
		assert.ErrorIs(t, err, ErrInteractiveUnsupported)
	})
}

func TestTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		e := testutils.NewInteractiveEngineStub(rawEngine)
		c := New(e, Options{Interactive: transaction.InteractiveOptions{Timeout: time.Second}})

		err := c.Transaction(ctx, func(tx *Client) error {
			itx, ok := tx.InTransaction()
			require.True(t, ok)
			assert.Equal(t, "itx-1", itx.ID)

			_, err := tx.ExecuteRaw(ctx, "INSERT INTO users (name) VALUES ($1)", "alice").Await(ctx)
			return err
		}, WithTransactionIsolation(transaction.RepeatableRead))
		require.NoError(t, err)

		assert.Equal(t, []string{"itx-1"}, e.Committed())
		assert.Empty(t, e.RolledBack())
		require.Len(t, e.Started(), 1)
		assert.Equal(t, transaction.InteractiveOptions{
			MaxWait:        transaction.DefaultMaxWait,
			Timeout:        time.Second,
			IsolationLevel: transaction.RepeatableRead,
		}, e.Started()[0])
		assert.Equal(t, transaction.Interactive{ID: "itx-1"}, e.Requests()[0].Transaction)
	})

	t.Run("rollback returns callback error", func(t *testing.T) {
		e := testutils.NewInteractiveEngineStub(rawEngine)
		cbErr := errors.New("insufficient funds")

		err := New(e, Options{}).Transaction(ctx, func(*Client) error { return cbErr })
		assert.Same(t, cbErr, err)
		assert.Equal(t, []string{"itx-1"}, e.RolledBack())
		assert.Empty(t, e.Committed())
	})

	t.Run("start failure", func(t *testing.T) {
		e := testutils.NewInteractiveEngineStub(rawEngine)
		e.StartErr = errors.New("pool exhausted")
		called := false
		err := New(e, Options{}).Transaction(ctx, func(*Client) error { called = true; return nil })
		assert.Same(t, e.StartErr, err)
		assert.False(t, called)
	})

	t.Run("operations inside are not batchable", func(t *testing.T) {
		e := testutils.NewInteractiveEngineStub(rawEngine)
		err := New(e, Options{}).Transaction(ctx, func(tx *Client) error {
			p := Op[string](ctx, tx, "User", operation.UpdateOne, nil)
			_, ok := p.(promise.Batchable)
			assert.False(t, ok)

			values, err := tx.Batch(ctx, []promise.Operation{p, tx.ExecuteRaw(ctx, "DELETE FROM sessions")})
			require.NoError(t, err)
			assert.Equal(t, []any{"updateOne", int64(1)}, values)

			_, err = tx.Batch(ctx, []promise.Operation{Op[string](ctx, tx, "User", operation.CreateOne, nil)}, batch.WithStandaloneFallback(false))
			assert.ErrorIs(t, err, batch.ErrNotBatchable)
			return nil
		})
		require.NoError(t, err)
		for _, req := range e.Requests() {
			assert.Equal(t, transaction.Interactive{ID: "itx-1"}, req.Transaction)
		}
	})

	t.Run("nested", func(t *testing.T) {
		e := testutils.NewInteractiveEngineStub(rawEngine)
		err := New(e, Options{}).Transaction(ctx, func(tx *Client) error {
			return tx.Transaction(ctx, func(*Client) error { return nil })
		})
		assert.ErrorIs(t, err, ErrNestedTransaction)
		assert.Len(t, e.RolledBack(), 1)
	})
}
