package logging

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/operation"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/transaction"
)

// log field keys
const (
	ModelFieldKey          = "model"
	ActionFieldKey         = "action"
	TxKindFieldKey         = "tx_kind"
	TxIDFieldKey           = "tx_id"
	TxIndexFieldKey        = "tx_index"
	IsolationLevelFieldKey = "isolation_level"
	EngineFieldKey         = "engine"
)

var defaultLogger = logrus.New()

type Fields = logrus.Fields

// SetLevel ignores unknown level names.
func SetLevel(level string) {
	switch strings.ToLower(level) {
	case "trace":
		defaultLogger.SetLevel(logrus.TraceLevel)
	case "debug":
		defaultLogger.SetLevel(logrus.DebugLevel)
	case "info":
		defaultLogger.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		defaultLogger.SetLevel(logrus.WarnLevel)
	case "error":
		defaultLogger.SetLevel(logrus.ErrorLevel)
	case "null", "none":
		defaultLogger.SetLevel(logrus.PanicLevel)
		defaultLogger.SetOutput(io.Discard)
	}
}

func SetOutput(w io.Writer) {
	defaultLogger.SetOutput(w)
}

func SetOutputFormat(format string) {
	switch strings.ToLower(format) {
	case "text":
		defaultLogger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			PadLevelText:     true,
			QuoteEmptyFields: true,
		})
	case "json":
		defaultLogger.SetFormatter(&logrus.JSONFormatter{})
	}
}

func WithFields(fields Fields) *logrus.Entry {
	return defaultLogger.WithFields(fields)
}

// EngineEntry returns a log Entry tagged with the engine type
func EngineEntry(engineType string) *logrus.Entry {
	return defaultLogger.WithField(EngineFieldKey, engineType)
}

// OperationEntry returns a log Entry with the model and action of spec
func OperationEntry(spec operation.Spec) *logrus.Entry {
	entry := defaultLogger.WithField(ActionFieldKey, spec.Action.String())
	if spec.Model != "" {
		entry = entry.WithField(ModelFieldKey, spec.Model)
	}
	return entry
}

// TransactionEntry adds the transaction context fields to entry. A nil tx
// is logged as standalone.
func TransactionEntry(entry *logrus.Entry, tx transaction.Transaction) *logrus.Entry {
	switch t := tx.(type) {
	case nil:
		return entry.WithField(TxKindFieldKey, "standalone")
	case transaction.Batch:
		entry = entry.WithFields(Fields{
			TxKindFieldKey:  string(t.Kind()),
			TxIDFieldKey:    t.ID,
			TxIndexFieldKey: t.Index,
		})
		if t.IsolationLevel.IsSpecified() {
			entry = entry.WithField(IsolationLevelFieldKey, t.IsolationLevel.String())
		}
		return entry
	case transaction.Interactive:
		return entry.WithFields(Fields{
			TxKindFieldKey: string(t.Kind()),
			TxIDFieldKey:   t.ID,
		})
	default:
		return entry.WithField(TxKindFieldKey, "unknown")
	}
}
