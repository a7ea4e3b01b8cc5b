package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/engine"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/operation"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/promise"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/session"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/transaction"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/utils/testutils"
)

var userCompiler = CompilerFunc(func(spec operation.Spec) (Statement, error) {
	switch spec.Action {
	case operation.FindUnique, operation.FindUniqueOrThrow:
		return Statement{Query: "SELECT id, name FROM users WHERE id = $1", Params: []any{1}, Result: ResultRow}, nil
	case operation.FindMany:
		return Statement{Query: "SELECT id, name FROM users", Result: ResultRows}, nil
	case operation.UpdateMany:
		return Statement{Query: "UPDATE users SET active = true", Result: ResultCount}, nil
	}
	return Statement{}, engine.ErrUnsupportedAction
})

func newStubEngine(rows *testutils.RowsStub) (*Engine, *testutils.DbSessionStub) {
	stub := testutils.NewDbSessionStub(rows)
	return NewEngine(testutils.NewSessionPoolStub(stub), WithCompiler(userCompiler)), stub
}

func TestStandaloneExecution(t *testing.T) {
	ctx := context.Background()

	t.Run("execute raw returns rows affected", func(t *testing.T) {
		e, stub := newStubEngine(nil)
		stub.RowsAffected = 3
		spec := operation.NewRawSpec(operation.ExecuteRaw, "UPDATE users SET name = $1", "bob")

		v, err := e.Execute(ctx, promise.Request{Spec: spec}).Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), v)
		assert.Equal(t, []testutils.ExecutedQuery{{Query: "UPDATE users SET name = $1", Params: []any{"bob"}}}, stub.Queries())
	})

	t.Run("query raw returns records", func(t *testing.T) {
		e, _ := newStubEngine(testutils.NewRowsStub([]string{"id", "name"}, []any{1, "alice"}, []any{2, "bob"}))
		v, err := e.Execute(ctx, promise.Request{Spec: operation.NewRawSpec(operation.QueryRaw, "SELECT id, name FROM users")}).Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, []map[string]any{{"id": 1, "name": "alice"}, {"id": 2, "name": "bob"}}, v)
	})

	t.Run("raw action needs a raw statement", func(t *testing.T) {
		e, _ := newStubEngine(nil)
		_, err := e.Execute(ctx, promise.Request{Spec: operation.Spec{Action: operation.ExecuteRaw, Args: "DROP TABLE users"}}).Await(ctx)
		assert.ErrorIs(t, err, engine.ErrInvalidArguments)
	})

	t.Run("model action through compiler", func(t *testing.T) {
		e, _ := newStubEngine(testutils.NewRowsStub([]string{"id", "name"}, []any{1, "alice"}))
		v, err := e.Execute(ctx, promise.Request{Spec: operation.NewSpec("User", operation.FindUnique, nil)}).Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"id": 1, "name": "alice"}, v)
	})

	t.Run("find or throw without rows", func(t *testing.T) {
		e, _ := newStubEngine(testutils.NewRowsStub([]string{"id", "name"}))
		_, err := e.Execute(ctx, promise.Request{Spec: operation.NewSpec("User", operation.FindUniqueOrThrow, nil)}).Await(ctx)
		assert.ErrorIs(t, err, engine.ErrRecordNotFound)

		v, err := e.Execute(ctx, promise.Request{Spec: operation.NewSpec("User", operation.FindUnique, nil)}).Await(ctx)
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("model action without compiler", func(t *testing.T) {
		stub := testutils.NewDbSessionStub(nil)
		e := NewEngine(testutils.NewSessionPoolStub(stub))
		_, err := e.Execute(ctx, promise.Request{Spec: operation.NewSpec("User", operation.CreateOne, nil)}).Await(ctx)
		assert.ErrorIs(t, err, engine.ErrUnsupportedAction)
		assert.Empty(t, stub.Queries())
	})

	t.Run("engine error is passed on", func(t *testing.T) {
		e, stub := newStubEngine(nil)
		dbErr := errors.New("relation \"users\" does not exist")
		stub.Errors["UPDATE users SET active = true"] = dbErr
		_, err := e.Execute(ctx, promise.Request{Spec: operation.NewSpec("User", operation.UpdateMany, nil)}).Await(ctx)
		assert.True(t, err == dbErr)
	})
}

func TestBatchExecution(t *testing.T) {
	ctx := context.Background()

	newBatch := func(e *Engine, level transaction.IsolationLevel, specs ...operation.Spec) (*transaction.Gate, []*promise.BatchablePromiseImp[any]) {
		gate := transaction.NewGate(len(specs))
		ps := make([]*promise.BatchablePromiseImp[any], len(specs))
		for i, spec := range specs {
			ps[i] = promise.New[any](ctx, e, spec)
			_, err := ps[i].RequestTransaction(transaction.Batch{ID: 1, Index: i, IsolationLevel: level, Lock: gate})
			require.NoError(t, err)
		}
		return gate, ps
	}

	t.Run("runs in one transaction with isolation level", func(t *testing.T) {
		e, stub := newStubEngine(nil)
		stub.RowsAffected = 1
		gate, ps := newBatch(e, transaction.Serializable,
			operation.NewRawSpec(operation.ExecuteRaw, "INSERT INTO users (name) VALUES ($1)", "a"),
			operation.NewRawSpec(operation.ExecuteRaw, "INSERT INTO users (name) VALUES ($1)", "b"),
		)
		require.NoError(t, gate.Open())

		for _, p := range ps {
			v, err := p.Await(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), v)
		}
		assert.Equal(t, []session.TxOptions{{IsolationLevel: transaction.Serializable}}, stub.TxOptions())
		assert.Equal(t, 1, stub.Committed())
		queries := stub.Queries()
		require.Len(t, queries, 2)
		assert.Equal(t, []any{"a"}, queries[0].Params)
		assert.Equal(t, []any{"b"}, queries[1].Params)
	})

	t.Run("failure rolls back and rejects every slot", func(t *testing.T) {
		e, stub := newStubEngine(nil)
		dbErr := errors.New("duplicate key value")
		stub.Errors["INSERT INTO users (name) VALUES ('b')"] = dbErr
		gate, ps := newBatch(e, transaction.Unspecified,
			operation.NewRawSpec(operation.ExecuteRaw, "INSERT INTO users (name) VALUES ('a')"),
			operation.NewRawSpec(operation.ExecuteRaw, "INSERT INTO users (name) VALUES ('b')"),
		)
		require.NoError(t, gate.Open())

		for _, p := range ps {
			_, err := p.Await(ctx)
			var batchErr *engine.BatchError
			require.ErrorAs(t, err, &batchErr)
			assert.Equal(t, 1, batchErr.Index)
			assert.ErrorIs(t, err, dbErr)
		}
		assert.Equal(t, 1, stub.RolledBack())
		assert.Equal(t, 0, stub.Committed())
	})
}

func TestInteractiveTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		e, stub := newStubEngine(nil)
		stub.RowsAffected = 1
		itx, err := e.StartTransaction(ctx, transaction.InteractiveOptions{IsolationLevel: transaction.RepeatableRead})
		require.NoError(t, err)
		assert.NotEmpty(t, itx.ID)

		a := promise.NewInTransaction[int64](ctx, e, operation.NewRawSpec(operation.ExecuteRaw, "UPDATE a SET x = 1"), itx)
		b := promise.NewInTransaction[int64](ctx, e, operation.NewRawSpec(operation.ExecuteRaw, "UPDATE b SET x = 1"), itx)
		_, err = a.Await(ctx)
		require.NoError(t, err)
		_, err = b.Await(ctx)
		require.NoError(t, err)

		require.NoError(t, e.CommitTransaction(ctx, itx))
		assert.Equal(t, 1, stub.Committed())
		assert.Equal(t, []session.TxOptions{{IsolationLevel: transaction.RepeatableRead}}, stub.TxOptions())
		queries := stub.Queries()
		require.Len(t, queries, 2)
		assert.Equal(t, "UPDATE a SET x = 1", queries[0].Query)
		assert.Equal(t, "UPDATE b SET x = 1", queries[1].Query)

		late := promise.NewInTransaction[int64](ctx, e, operation.NewRawSpec(operation.ExecuteRaw, "UPDATE c SET x = 1"), itx)
		_, err = late.Await(ctx)
		assert.ErrorIs(t, err, engine.ErrTransactionClosed)
		assert.ErrorIs(t, e.CommitTransaction(ctx, itx), engine.ErrTransactionClosed)
	})

	t.Run("rollback", func(t *testing.T) {
		e, stub := newStubEngine(nil)
		itx, err := e.StartTransaction(ctx, transaction.InteractiveOptions{})
		require.NoError(t, err)
		require.NoError(t, e.RollbackTransaction(ctx, itx))
		assert.Equal(t, 1, stub.RolledBack())
	})

	t.Run("rollback rejects queued operations", func(t *testing.T) {
		e, stub := newStubEngine(nil)
		slow := "UPDATE a SET x = 1"
		release := make(chan struct{})
		stub.Holds[slow] = release
		itx, err := e.StartTransaction(ctx, transaction.InteractiveOptions{})
		require.NoError(t, err)
		sess, found := e.sessions.Load(itx.ID)
		require.True(t, found)

		running, err := promise.NewInTransaction[int64](ctx, e, operation.NewRawSpec(operation.ExecuteRaw, slow), itx).Dispatch(nil)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return len(stub.Queries()) == 1 }, time.Second, 5*time.Millisecond)

		queued, err := promise.NewInTransaction[int64](ctx, e, operation.NewRawSpec(operation.ExecuteRaw, "UPDATE b SET x = 1"), itx).Dispatch(nil)
		require.NoError(t, err)

		rolledBack := make(chan error, 1)
		go func() { rolledBack <- e.RollbackTransaction(ctx, itx) }()
		require.Eventually(t, func() bool { return len(sess.decision) == 1 }, time.Second, 5*time.Millisecond)
		close(release)

		require.NoError(t, <-rolledBack)
		_, err = running.Await(ctx)
		require.NoError(t, err)
		_, err = queued.Await(ctx)
		assert.ErrorIs(t, err, engine.ErrTransactionClosed)
		assert.Len(t, stub.Queries(), 1)
		assert.Equal(t, 1, stub.RolledBack())
	})

	t.Run("expires after timeout", func(t *testing.T) {
		e, stub := newStubEngine(nil)
		itx, err := e.StartTransaction(ctx, transaction.InteractiveOptions{Timeout: 20 * time.Millisecond})
		require.NoError(t, err)

		require.Eventually(t, func() bool { return stub.RolledBack() == 1 }, time.Second, 5*time.Millisecond)
		require.Eventually(t, func() bool {
			return errors.Is(e.CommitTransaction(ctx, itx), engine.ErrTransactionClosed)
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("session not obtained", func(t *testing.T) {
		stub := testutils.NewDbSessionStub(nil)
		pool := testutils.NewSessionPoolStub(stub)
		pool.Err = errors.New("too many connections")
		e := NewEngine(pool)

		_, err := e.StartTransaction(ctx, transaction.InteractiveOptions{MaxWait: 50 * time.Millisecond})
		assert.ErrorIs(t, err, engine.ErrTransactionStart)
	})

	t.Run("unknown isolation level", func(t *testing.T) {
		e, _ := newStubEngine(nil)
		_, err := e.StartTransaction(ctx, transaction.InteractiveOptions{IsolationLevel: "Chaos"})
		assert.ErrorIs(t, err, transaction.ErrUnknownIsolation)
	})
}
