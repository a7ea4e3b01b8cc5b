package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/session"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/session/result"
)

type ExecutedQuery struct {
	Query  string
	Params []any
}

// NewDbSessionStub returns a session whose queries return rows and whose
// statements report RowsAffected. Errors maps a query to the error it fails with.
// Holds maps a query to a channel it waits on after being recorded.
func NewDbSessionStub(rows *RowsStub) *DbSessionStub {
	stub := &DbSessionStub{
		Rows:   rows,
		Errors: make(map[string]error),
		Holds:  make(map[string]chan struct{}),
	}
	stub.conn = &connectionStub{session: stub}
	return stub
}

type DbSessionStub struct {
	mu           sync.Mutex
	Rows         *RowsStub
	RowsAffected int64
	Errors       map[string]error
	Holds        map[string]chan struct{}
	queries      []ExecutedQuery
	txOptions    []session.TxOptions
	committed    int
	rolledBack   int
	conn         *connectionStub
}

func (s *DbSessionStub) Context() context.Context {
	return context.Background()
}

func (s *DbSessionStub) Atomic(callback session.SessionCallback) error {
	return s.AtomicWith(session.TxOptions{}, callback)
}

func (s *DbSessionStub) AtomicWith(opts session.TxOptions, callback session.SessionCallback) error {
	s.mu.Lock()
	s.txOptions = append(s.txOptions, opts)
	s.mu.Unlock()

	err := callback(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.rolledBack++
	} else {
		s.committed++
	}
	return err
}

func (s *DbSessionStub) Connection() session.DbConnection {
	return s.conn
}

func (s *DbSessionStub) Queries() []ExecutedQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ExecutedQuery(nil), s.queries...)
}

func (s *DbSessionStub) TxOptions() []session.TxOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]session.TxOptions(nil), s.txOptions...)
}

func (s *DbSessionStub) Committed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

func (s *DbSessionStub) RolledBack() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rolledBack
}

func (s *DbSessionStub) record(query string, args []any) error {
	s.mu.Lock()
	s.queries = append(s.queries, ExecutedQuery{Query: query, Params: args})
	hold, err := s.Holds[query], s.Errors[query]
	s.mu.Unlock()
	if hold != nil {
		<-hold
	}
	return err
}

type connectionStub struct {
	session *DbSessionStub
}

func (c *connectionStub) Exec(query string, args ...any) (session.Result, error) {
	if err := c.session.record(query, args); err != nil {
		return nil, err
	}
	return result.NewResult("", c.session.RowsAffected), nil
}

func (c *connectionStub) Query(query string, args ...any) (session.Rows, error) {
	if err := c.session.record(query, args); err != nil {
		return nil, err
	}
	if c.session.Rows == nil {
		return NewRowsStub(nil), nil
	}
	return c.session.Rows.Clone(), nil
}

// SessionPoolStub hands out the same session for every call.
type SessionPoolStub struct {
	Stub *DbSessionStub
	Err  error
}

func NewSessionPoolStub(s *DbSessionStub) *SessionPoolStub {
	return &SessionPoolStub{Stub: s}
}

func (p *SessionPoolStub) Session(ctx context.Context, callback session.SessionPoolCallback) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Err != nil {
		return p.Err
	}
	return callback(p.Stub)
}

func NewRowsStub(columns []string, rows ...[]any) *RowsStub {
	return &RowsStub{
		columns: columns,
		rows:    rows,
		idx:     -1,
	}
}

type RowsStub struct {
	columns []string
	rows    [][]any
	idx     int
	Closed  bool
}

// Clone returns unread rows with the same content.
func (r *RowsStub) Clone() *RowsStub {
	return NewRowsStub(r.columns, r.rows...)
}

func (r *RowsStub) Close() error {
	r.Closed = true
	return nil
}

func (r *RowsStub) Err() error {
	return nil
}

func (r *RowsStub) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *RowsStub) Columns() []string {
	return r.columns
}

func (r *RowsStub) Values() ([]any, error) {
	if r.idx < 0 || r.idx >= len(r.rows) {
		return nil, errors.New("no current row")
	}
	return append([]any(nil), r.rows[r.idx]...), nil
}
