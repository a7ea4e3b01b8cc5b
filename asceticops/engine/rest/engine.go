package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/deferred"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/engine"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/engine/collector"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/logging"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/promise"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/session"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/signals"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/transaction"
)

const engineType = "rest"

type Option func(*Engine)

// WithTransport sets the round tripper requests are sent with.
func WithTransport(rt http.RoundTripper) Option {
	return func(e *Engine) {
		e.transport = newObservableTransport(rt)
	}
}

// Engine sends operations to a remote query engine as JSON over HTTP.
type Engine struct {
	endpoint  string
	transport *observableTransport
	client    *http.Client
	collector *collector.Collector
	log       *logrus.Entry
}

func NewEngine(endpoint string, opts ...Option) *Engine {
	e := &Engine{
		endpoint:  strings.TrimSuffix(endpoint, "/"),
		transport: newObservableTransport(nil),
		log:       logging.EngineEntry(engineType),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.client = &http.Client{Transport: e.transport}
	e.collector = collector.New(e.runBatch)
	e.transport.onRequestEnded.Attach(e.logRequest, e)
	return e
}

func (e *Engine) OnRequestStarted() signals.Signal[session.RequestStartedEvent] {
	return e.transport.onRequestStarted
}

func (e *Engine) OnRequestEnded() signals.Signal[session.RequestEndedEvent] {
	return e.transport.onRequestEnded
}

func (e *Engine) Execute(ctx context.Context, req promise.Request) deferred.Deferred[any] {
	switch tx := req.Transaction.(type) {
	case nil:
		return e.executeSingle(ctx, req, "")
	case transaction.Batch:
		return e.collector.Add(ctx, req)
	case transaction.Interactive:
		return e.executeSingle(ctx, req, tx.ID)
	default:
		return deferred.Rejected[any](fmt.Errorf("%w: %T", transaction.ErrMalformedTransaction, req.Transaction))
	}
}

func (e *Engine) executeSingle(ctx context.Context, req promise.Request, txID string) deferred.Deferred[any] {
	d := deferred.New[any]()
	go func() {
		var resp response
		status, err := e.post(ctx, "/", txID, newSingleRequest(req.Spec), &resp)
		if err != nil {
			d.Reject(err)
			return
		}
		if err := toRequestError(resp.Errors, status); err != nil {
			d.Reject(err)
			return
		}
		value, err := decodeData(req.Spec.Action, resp.Data)
		if err != nil {
			d.Reject(err)
			return
		}
		d.Resolve(value)
	}()
	return d
}

// runBatch sends the whole batch in one request. The query engine runs it
// in one transaction, so any failed item fails the batch.
func (e *Engine) runBatch(ctx context.Context, level transaction.IsolationLevel, requests []promise.Request) ([]any, error) {
	body := batchRequest{Batch: make([]singleRequest, len(requests))}
	for i, req := range requests {
		body.Batch[i] = newSingleRequest(req.Spec)
	}
	if level.IsSpecified() {
		body.Transaction = &batchTransaction{IsolationLevel: level.String()}
	}

	var resp batchResponse
	status, err := e.post(ctx, "/", "", body, &resp)
	if err != nil {
		return nil, err
	}
	if err := toRequestError(resp.Errors, status); err != nil {
		return nil, err
	}
	if len(resp.BatchResult) != len(requests) {
		return nil, fmt.Errorf("query engine returned %d results for %d requests", len(resp.BatchResult), len(requests))
	}

	values := make([]any, len(requests))
	for i, item := range resp.BatchResult {
		if err := toRequestError(item.Errors, status); err != nil {
			return nil, &engine.BatchError{Index: i, Cause: err}
		}
		value, err := decodeData(requests[i].Spec.Action, item.Data)
		if err != nil {
			return nil, &engine.BatchError{Index: i, Cause: err}
		}
		values[i] = value
	}
	return values, nil
}

func (e *Engine) StartTransaction(ctx context.Context, opts transaction.InteractiveOptions) (transaction.Interactive, error) {
	opts = opts.WithDefaults()
	body := startTransactionRequest{
		MaxWait:        opts.MaxWait.Milliseconds(),
		Timeout:        opts.Timeout.Milliseconds(),
		IsolationLevel: opts.IsolationLevel.String(),
	}
	var resp startTransactionResponse
	status, err := e.post(ctx, "/transaction/start", "", body, &resp)
	if err != nil {
		return transaction.Interactive{}, err
	}
	if err := toRequestError(resp.Errors, status); err != nil {
		return transaction.Interactive{}, fmt.Errorf("%w: %w", engine.ErrTransactionStart, err)
	}
	if resp.ID == "" {
		return transaction.Interactive{}, fmt.Errorf("%w: empty transaction id", engine.ErrTransactionStart)
	}
	return transaction.Interactive{ID: resp.ID}, nil
}

func (e *Engine) CommitTransaction(ctx context.Context, tx transaction.Interactive) error {
	return e.endTransaction(ctx, tx, "commit")
}

func (e *Engine) RollbackTransaction(ctx context.Context, tx transaction.Interactive) error {
	return e.endTransaction(ctx, tx, "rollback")
}

func (e *Engine) endTransaction(ctx context.Context, tx transaction.Interactive, action string) error {
	var resp response
	status, err := e.post(ctx, "/transaction/"+url.PathEscape(tx.ID)+"/"+action, "", struct{}{}, &resp)
	if err != nil {
		return err
	}
	return toRequestError(resp.Errors, status)
}

// post sends body as JSON and decodes the response into out. An error
// status whose body does not report errors itself fails with a RequestError.
func (e *Engine) post(ctx context.Context, path, txID string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, errors.Wrap(err, "unable to encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, uuid.NewString())
	if txID != "" {
		req.Header.Set(transactionIDHeader, txID)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, errors.Wrap(err, "unable to read response")
	}
	decodeErr := decode(data, out)
	if resp.StatusCode >= http.StatusBadRequest {
		if decodeErr == nil && carriesErrors(out) {
			return resp.StatusCode, nil
		}
		return resp.StatusCode, statusError(resp.StatusCode, data)
	}
	if decodeErr != nil {
		return resp.StatusCode, errors.Wrap(decodeErr, "unable to decode response")
	}
	return resp.StatusCode, nil
}

func (e *Engine) logRequest(event session.RequestEndedEvent) error {
	entry := e.log.WithField("request", event.RequestView.String())
	if event.RequestView.ResponseTime != nil {
		entry = entry.WithField("duration", *event.RequestView.ResponseTime)
	}
	entry.Debug("request finished")
	return nil
}
