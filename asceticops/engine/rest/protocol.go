package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/operation"
)

const (
	transactionIDHeader = "X-transaction-id"
	requestIDHeader     = "X-Request-Id"
)

type singleRequest struct {
	ModelName string `json:"modelName,omitempty"`
	Action    string `json:"action"`
	Query     any    `json:"query,omitempty"`
}

type batchTransaction struct {
	IsolationLevel string `json:"isolationLevel,omitempty"`
}

type batchRequest struct {
	Batch       []singleRequest   `json:"batch"`
	Transaction *batchTransaction `json:"transaction,omitempty"`
}

type startTransactionRequest struct {
	MaxWait        int64  `json:"max_wait"`
	Timeout        int64  `json:"timeout"`
	IsolationLevel string `json:"isolation_level,omitempty"`
}

type startTransactionResponse struct {
	ID     string      `json:"id"`
	Errors []wireError `json:"errors,omitempty"`
}

type wireError struct {
	Message string `json:"error"`
	Code    string `json:"code,omitempty"`
}

type response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []wireError     `json:"errors,omitempty"`
}

type batchResponse struct {
	BatchResult []response  `json:"batchResult"`
	Errors      []wireError `json:"errors,omitempty"`
}

func newSingleRequest(spec operation.Spec) singleRequest {
	return singleRequest{
		ModelName: spec.Model,
		Action:    spec.Action.String(),
		Query:     spec.Args,
	}
}

// RequestError is an error reported by the query engine.
type RequestError struct {
	Message string
	Code    string
	Status  int
}

func (e *RequestError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("query engine error %s: %s", e.Code, e.Message)
	}
	return "query engine error: " + e.Message
}

type errorCarrier interface {
	engineErrors() []wireError
}

func (r *response) engineErrors() []wireError                 { return r.Errors }
func (r *batchResponse) engineErrors() []wireError            { return r.Errors }
func (r *startTransactionResponse) engineErrors() []wireError { return r.Errors }

func carriesErrors(out any) bool {
	c, ok := out.(errorCarrier)
	return ok && len(c.engineErrors()) > 0
}

func statusError(status int, body []byte) *RequestError {
	msg := strings.TrimSpace(string(body))
	if msg == "" || msg == "{}" {
		msg = http.StatusText(status)
	}
	return &RequestError{Message: msg, Status: status}
}

// decode keeps numbers as json.Number.
func decode(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}

func toRequestError(errs []wireError, status int) error {
	if len(errs) == 0 {
		return nil
	}
	return &RequestError{Message: errs[0].Message, Code: errs[0].Code, Status: status}
}

// decodeData converts the data of a response. Numbers of executeRaw
// results are returned as int64, rows of queryRaw as []map[string]any.
func decodeData(action operation.Action, data json.RawMessage) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if action == operation.ExecuteRaw {
		var count json.Number
		if err := decode(data, &count); err == nil {
			return count.Int64()
		}
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, err
	}
	if items, ok := value.([]any); ok && action == operation.QueryRaw {
		rows := make([]map[string]any, 0, len(items))
		for _, item := range items {
			row, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("queryRaw returned %T instead of a row", item)
			}
			rows = append(rows, row)
		}
		return rows, nil
	}
	return value, nil
}
