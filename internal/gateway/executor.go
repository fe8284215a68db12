// Package gateway executes an accepted, sanitized SQL statement against the
// read-only data database with a per-query timeout and a row cap, and maps
// engine-native failures onto a small typed taxonomy.
package gateway

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

const (
	defaultTimeout = 30 * time.Second
	defaultMaxRows = 500
)

type FailureKind string

const (
	FailureConnection FailureKind = "connection_error"
	FailureTimeout    FailureKind = "timeout_error"
	FailureSyntax     FailureKind = "syntax_or_semantic_error"
	FailurePermission FailureKind = "permission_error"
)

// ExecError carries the engine diagnostic verbatim. That text is the primary
// signal the user has for refining the next attempt, so it is never swallowed.
type ExecError struct {
	Kind   FailureKind
	Detail string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("execution %s: %s", e.Kind, e.Detail)
}

// Result holds an ordered column schema and positional rows. Values are
// normalized to the transport-safe scalar set: nil, bool, int64, float64,
// string.
type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
	Duration  time.Duration
}

type Executor struct {
	DB      *sql.DB
	Driver  Driver
	Timeout time.Duration
	MaxRows int
}

// Execute runs one sanitized statement. On Postgres the query additionally
// runs inside a READ ONLY transaction; DuckDB connections are already opened
// read-only. Results are truncated to MaxRows after fetch, with the flag set,
// since not every engine offers native row limiting. A failure is reported
// exactly once; there is no retry.
func (e *Executor) Execute(ctx context.Context, sanitizedSQL string) (Result, error) {
	if e.DB == nil {
		return Result{}, &ExecError{Kind: FailureConnection, Detail: "no database connection configured"}
	}
	if strings.TrimSpace(sanitizedSQL) == "" {
		return Result{}, &ExecError{Kind: FailureSyntax, Detail: "sql is required"}
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRows := e.MaxRows
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}

	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	rows, finish, err := e.query(queryCtx, sanitizedSQL)
	if err != nil {
		return Result{}, classify(err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		finish()
		return Result{}, classify(err)
	}

	resultRows := make([][]any, 0)
	truncated := false
	for rows.Next() {
		if len(resultRows) == maxRows {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			finish()
			return Result{}, classify(err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		finish()
		return Result{}, classify(err)
	}
	_ = rows.Close()
	if err := finish(); err != nil {
		return Result{}, classify(err)
	}

	return Result{
		Columns:   columns,
		Rows:      resultRows,
		Truncated: truncated,
		Duration:  time.Since(start),
	}, nil
}

// query starts the statement, inside a READ ONLY transaction when the engine
// supports one. The returned finish func settles the transaction.
func (e *Executor) query(ctx context.Context, sanitizedSQL string) (*sql.Rows, func() error, error) {
	if e.Driver == DriverPostgres {
		tx, err := e.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			return nil, nil, err
		}
		rows, err := tx.QueryContext(ctx, sanitizedSQL)
		if err != nil {
			_ = tx.Rollback()
			return nil, nil, err
		}
		return rows, tx.Rollback, nil
	}

	rows, err := e.DB.QueryContext(ctx, sanitizedSQL)
	if err != nil {
		return nil, nil, err
	}
	return rows, func() error { return nil }, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		normalized[i] = normalizeValue(value)
	}
	return normalized
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case nil, bool, int64, float64, string:
		return typed
	case int:
		return int64(typed)
	case int8:
		return int64(typed)
	case int16:
		return int64(typed)
	case int32:
		return int64(typed)
	case uint8:
		return int64(typed)
	case uint16:
		return int64(typed)
	case uint32:
		return int64(typed)
	case uint64:
		return int64(typed)
	case float32:
		return float64(typed)
	case []byte:
		return string(typed)
	case time.Time:
		return typed.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(typed)
	}
}

// Postgres SQLSTATE codes that indicate an engine-level privilege denial.
// 42501 insufficient_privilege, 2F002 modifying_sql_data_not_permitted,
// 25006 read_only_sql_transaction.
var permissionStates = map[string]struct{}{
	"42501": {}, "2F002": {}, "25006": {},
}

func classify(err error) *ExecError {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ExecError{Kind: FailureTimeout, Detail: "query execution timed out"}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := permissionStates[pgErr.Code]; ok {
			return &ExecError{Kind: FailurePermission, Detail: pgErr.Message}
		}
		switch {
		case pgErr.Code == "57014":
			return &ExecError{Kind: FailureTimeout, Detail: pgErr.Message}
		case strings.HasPrefix(pgErr.Code, "08"):
			return &ExecError{Kind: FailureConnection, Detail: pgErr.Message}
		default:
			return &ExecError{Kind: FailureSyntax, Detail: pgErr.Message}
		}
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return &ExecError{Kind: FailureConnection, Detail: err.Error()}
	}

	message := err.Error()
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "read-only") || strings.Contains(lower, "read only"):
		return &ExecError{Kind: FailurePermission, Detail: message}
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection reset"):
		return &ExecError{Kind: FailureConnection, Detail: message}
	default:
		return &ExecError{Kind: FailureSyntax, Detail: message}
	}
}
