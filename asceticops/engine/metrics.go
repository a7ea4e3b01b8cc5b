package engine

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/deferred"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/promise"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/transaction"
)

var requestHistograms = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "asceticops_engine_request_duration_seconds",
		Help:    "time from dispatch to settlement of engine requests",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"type", "action", "kind"})

var requestFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "asceticops_engine_request_failures_total",
		Help: "engine requests that settled with an error",
	},
	[]string{"type", "action", "kind"})

// MetricsWrapper wraps any engine with metrics
type MetricsWrapper struct {
	Engine     promise.Engine
	engineType string
}

func WithMetrics(e promise.Engine, engineType string) *MetricsWrapper {
	return &MetricsWrapper{Engine: e, engineType: engineType}
}

func (w *MetricsWrapper) Execute(ctx context.Context, req promise.Request) deferred.Deferred[any] {
	start := time.Now()
	labels := []string{w.engineType, req.Spec.Action.String(), kindLabel(req.Transaction)}
	d := w.Engine.Execute(ctx, req)
	d.Then(func(any) (any, error) {
		requestHistograms.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		return nil, nil
	}, func(error) (any, error) {
		requestHistograms.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		requestFailures.WithLabelValues(labels...).Inc()
		return nil, nil
	})
	return d
}

// StartTransaction and the other TransactionManager methods are passed
// through when the wrapped engine supports them.
func (w *MetricsWrapper) StartTransaction(ctx context.Context, opts transaction.InteractiveOptions) (transaction.Interactive, error) {
	tm, ok := w.Engine.(TransactionManager)
	if !ok {
		return transaction.Interactive{}, ErrInteractiveDisabled
	}
	return tm.StartTransaction(ctx, opts)
}

func (w *MetricsWrapper) CommitTransaction(ctx context.Context, tx transaction.Interactive) error {
	tm, ok := w.Engine.(TransactionManager)
	if !ok {
		return ErrInteractiveDisabled
	}
	return tm.CommitTransaction(ctx, tx)
}

func (w *MetricsWrapper) RollbackTransaction(ctx context.Context, tx transaction.Interactive) error {
	tm, ok := w.Engine.(TransactionManager)
	if !ok {
		return ErrInteractiveDisabled
	}
	return tm.RollbackTransaction(ctx, tx)
}

func kindLabel(tx transaction.Transaction) string {
	if tx == nil {
		return "standalone"
	}
	return string(tx.Kind())
}
