package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"insights/internal/core"
	"insights/internal/query"
	"insights/internal/retry"
)

// Execute runs q and returns a fresh table. Each call takes its own pooled
// connection through a transaction that is always rolled back; on MySQL the
// transaction is read-only. Connection failures are retried per the store's
// policy and come back as *core.ConnectionError. Anything else is a
// *core.QueryError.
func (s *Store) Execute(ctx context.Context, q query.Query) (*core.ResultTable, error) {
	var table *core.ResultTable
	err := retry.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
		t, err := s.execute(ctx, q)
		if err != nil {
			return err
		}
		table = t
		return nil
	}, core.IsConnectionError)
	if err != nil {
		return nil, err
	}
	return table, nil
}

func (s *Store) execute(ctx context.Context, q query.Query) (*core.ResultTable, error) {
	if s.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: s.opts.Dialect == MySQL})
	if err != nil {
		return nil, classify(err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	table, err := scanTable(rows)
	if err != nil {
		return nil, classify(err)
	}

	s.logger.DebugContext(ctx, "Query executed",
		"rows", table.Len(),
		"args", len(q.Args),
		"duration_ms", time.Since(start).Milliseconds())
	return table, nil
}

func scanTable(rows *sql.Rows) (*core.ResultTable, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	textual := make([]bool, len(types))
	for i, ct := range types {
		textual[i] = isTextType(ct.DatabaseTypeName())
	}

	table := core.NewResultTable(cols)
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]core.Value, len(cols))
		for i, v := range raw {
			if b, ok := v.([]byte); ok && textual[i] {
				row[i] = string(b)
				continue
			}
			row[i] = core.NormalizeValue(v)
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return table, nil
}

func isTextType(name string) bool {
	switch strings.ToUpper(name) {
	case "VARCHAR", "CHAR", "TEXT", "TINYTEXT", "MEDIUMTEXT", "LONGTEXT", "ENUM", "SET":
		return true
	}
	return false
}

// MySQL server error numbers.
const (
	erAccessDenied      = 1045
	erDBAccessDenied    = 1044
	erBadDB             = 1049
	erTooManyConns      = 1040
	erBadField          = 1054
	erNoSuchTable       = 1146
	erQueryInterrupted  = 1317
	erQueryTimeout      = 3024
	erServerShutdown    = 1053
	erNonUniqError      = 1052
	erWrongFieldGroupBy = 1055
)

// classify maps a driver error into the error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	wrap := func(kind core.QueryErrorKind) error {
		return &core.QueryError{Kind: kind, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return wrap(core.QueryKindTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case erAccessDenied, erDBAccessDenied, erBadDB, erTooManyConns, erServerShutdown:
			return &core.ConnectionError{Op: "query", Err: err}
		case erBadField, erNoSuchTable, erNonUniqError, erWrongFieldGroupBy:
			return wrap(core.QueryKindSchema)
		case erQueryInterrupted, erQueryTimeout:
			return wrap(core.QueryKindTimeout)
		}
		return wrap(core.QueryKindInvalid)
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_AUTH:
			return &core.ConnectionError{Op: "query", Err: err}
		case sqlite3.SQLITE_INTERRUPT:
			return wrap(core.QueryKindTimeout)
		}
		msg := se.Error()
		if strings.Contains(msg, "no such table") || strings.Contains(msg, "no such column") {
			return wrap(core.QueryKindSchema)
		}
		return wrap(core.QueryKindInvalid)
	}

	if isConnectivity(err) {
		return &core.ConnectionError{Op: "query", Err: err}
	}

	return wrap(core.QueryKindInvalid)
}

func isConnectivity(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
