package pg

import (
	"fmt"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/engine"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/operation"
)

type ResultKind int

const (
	// ResultCount executes the statement and returns rows affected as int64.
	ResultCount ResultKind = iota
	// ResultRows returns every row as []map[string]any.
	ResultRows
	// ResultRow returns the first row as map[string]any, or nil.
	ResultRow
)

type Statement struct {
	Query  string
	Params []any
	Result ResultKind
}

// Compiler translates model operations into SQL. Raw actions never reach it.
type Compiler interface {
	Compile(spec operation.Spec) (Statement, error)
}

type CompilerFunc func(spec operation.Spec) (Statement, error)

func (f CompilerFunc) Compile(spec operation.Spec) (Statement, error) {
	return f(spec)
}

func rawStatement(spec operation.Spec) (Statement, error) {
	raw, ok := spec.Args.(operation.Raw)
	if !ok {
		return Statement{}, fmt.Errorf("%w: %s expects operation.Raw, got %T", engine.ErrInvalidArguments, spec.Action, spec.Args)
	}
	kind := ResultCount
	if spec.Action == operation.QueryRaw {
		kind = ResultRows
	}
	return Statement{Query: raw.Query, Params: raw.Parameters, Result: kind}, nil
}
