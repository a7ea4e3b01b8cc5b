package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/operation"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/transaction"
)

func TestSetLevel(t *testing.T) {
	defer SetLevel("info")

	SetLevel("DEBUG")
	assert.Equal(t, logrus.DebugLevel, defaultLogger.GetLevel())

	SetLevel("bogus")
	assert.Equal(t, logrus.DebugLevel, defaultLogger.GetLevel())

	SetLevel("warning")
	assert.Equal(t, logrus.WarnLevel, defaultLogger.GetLevel())
}

func TestTransactionEntry(t *testing.T) {
	var buf bytes.Buffer
	out := defaultLogger.Out
	SetOutput(&buf)
	SetOutputFormat("json")
	defer func() {
		SetOutput(out)
		SetOutputFormat("text")
	}()

	spec := operation.NewSpec("User", operation.CreateOne, nil)

	t.Run("batch", func(t *testing.T) {
		buf.Reset()
		tx := transaction.Batch{ID: 7, Index: 1, IsolationLevel: transaction.Serializable, Lock: transaction.NewGate(2)}
		TransactionEntry(OperationEntry(spec), tx).Info("dispatch")

		var fields map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
		assert.Equal(t, "User", fields[ModelFieldKey])
		assert.Equal(t, "createOne", fields[ActionFieldKey])
		assert.Equal(t, "batch", fields[TxKindFieldKey])
		assert.EqualValues(t, 7, fields[TxIDFieldKey])
		assert.EqualValues(t, 1, fields[TxIndexFieldKey])
		assert.Equal(t, "Serializable", fields[IsolationLevelFieldKey])
	})

	t.Run("interactive", func(t *testing.T) {
		buf.Reset()
		TransactionEntry(OperationEntry(spec), transaction.Interactive{ID: "itx-1"}).Info("dispatch")

		var fields map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
		assert.Equal(t, "itx", fields[TxKindFieldKey])
		assert.Equal(t, "itx-1", fields[TxIDFieldKey])
		assert.NotContains(t, fields, TxIndexFieldKey)
	})

	t.Run("standalone", func(t *testing.T) {
		buf.Reset()
		TransactionEntry(OperationEntry(spec), nil).Info("dispatch")

		var fields map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
		assert.Equal(t, "standalone", fields[TxKindFieldKey])
	})
}
