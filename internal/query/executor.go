package query

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies a query failure.
type Kind string

const (
	KindMalformed    Kind = "malformed"
	KindTimeout      Kind = "timeout"
	KindConnectivity Kind = "connectivity"
	KindExecution    Kind = "execution"
)

// QueryError is the typed failure returned by an Executor.
type QueryError struct {
	Kind Kind
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s query error: %v", e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// ErrStop may be returned by a RowFunc to end a stream early without error.
var ErrStop = errors.New("stop streaming")

// Result is a fully materialized statement result.
type Result struct {
	Columns []string
	Rows    []map[string]any
}

// RowFunc receives one row of a stream. values is reused between calls.
type RowFunc func(columns []string, values []any) error

// ColumnsFunc receives the result columns once, before any row, even when
// the statement yields no rows.
type ColumnsFunc func(columns []string) error

// Executor runs opaque statements against the recipient data store.
type Executor interface {
	// Execute runs a statement and returns all of its rows.
	Execute(ctx context.Context, statement string, args ...any) (*Result, error)
	// Stream runs a statement, reports its columns to onColumns (which may be
	// nil) and calls fn for each row, holding only one row in memory at a time.
	Stream(ctx context.Context, statement string, args []any, onColumns ColumnsFunc, fn RowFunc) error
	// Style reports the positional parameter syntax of the underlying driver.
	Style() BindStyle
}

// SQLExecutor is an Executor over database/sql.
type SQLExecutor struct {
	db      *sql.DB
	timeout time.Duration
	style   BindStyle
}

// NewSQLExecutor creates an executor. timeout bounds Execute calls; zero
// means no limit beyond the caller's context.
func NewSQLExecutor(db *sql.DB, timeout time.Duration, style BindStyle) *SQLExecutor {
	return &SQLExecutor{db: db, timeout: timeout, style: style}
}

func (e *SQLExecutor) Style() BindStyle { return e.style }

func (e *SQLExecutor) Execute(ctx context.Context, statement string, args ...any) (*Result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	res := &Result{}
	err := e.stream(ctx, statement, args, nil, func(columns []string, values []any) error {
		if res.Columns == nil {
			res.Columns = append([]string(nil), columns...)
		}
		row := make(map[string]any, len(columns))
		for i, c := range columns {
			row[c] = normalize(values[i])
		}
		res.Rows = append(res.Rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Stream does not apply the executor timeout: a full audience pass runs for
// as long as the caller's context allows.
func (e *SQLExecutor) Stream(ctx context.Context, statement string, args []any, onColumns ColumnsFunc, fn RowFunc) error {
	return e.stream(ctx, statement, args, onColumns, fn)
}

func (e *SQLExecutor) stream(ctx context.Context, statement string, args []any, onColumns ColumnsFunc, fn RowFunc) error {
	if strings.TrimSpace(statement) == "" {
		return &QueryError{Kind: KindMalformed, Err: errors.New("empty statement")}
	}

	rows, err := e.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return classify(ctx, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return classify(ctx, err)
	}
	if onColumns != nil {
		if err := onColumns(columns); err != nil {
			return err
		}
	}

	values := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return classify(ctx, fmt.Errorf("scan row: %w", err))
		}
		for i := range values {
			values[i] = normalize(values[i])
		}
		if err := fn(columns, values); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return classify(ctx, err)
	}
	return nil
}

// normalize converts driver byte slices to strings so values are comparable
// and printable.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func classify(ctx context.Context, err error) error {
	var qe *QueryError
	if errors.As(err, &qe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &QueryError{Kind: KindTimeout, Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "42"):
			return &QueryError{Kind: KindMalformed, Err: err}
		case pgErr.Code == "57014":
			return &QueryError{Kind: KindTimeout, Err: err}
		case strings.HasPrefix(pgErr.Code, "08"):
			return &QueryError{Kind: KindConnectivity, Err: err}
		}
		return &QueryError{Kind: KindExecution, Err: err}
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return &QueryError{Kind: KindConnectivity, Err: err}
	}
	return &QueryError{Kind: KindExecution, Err: err}
}
