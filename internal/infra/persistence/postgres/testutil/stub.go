// Package testutil provides a stub database driver for postgres medium tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

var stubSeq atomic.Uint64

// StubConn keeps rows per table in memory and records every statement. It
// understands single-table INSERT (with ON CONFLICT upsert on the first
// column), DELETE and SELECT with at most one "col=$1" predicate.
type StubConn struct {
	mu         sync.Mutex
	Execs      []string
	Tables     map[string][]map[string]any
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	FailPing   bool
	RowsErr    error

	pending map[string][]map[string]any
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx. Writes inside the transaction are
// applied to a copy that Commit publishes and Rollback discards.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = cloneTables(c.Tables)
	return &stubTx{conn: c}, nil
}

func (c *StubConn) view() map[string][]map[string]any {
	if c.pending != nil {
		return c.pending
	}
	return c.Tables
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	tables := c.view()
	verb := strings.ToUpper(strings.Fields(strings.TrimSpace(query))[0])
	switch verb {
	case "INSERT":
		table, cols, err := parseInsert(query)
		if err != nil {
			return nil, err
		}
		if len(cols) != len(args) {
			return nil, fmt.Errorf("column/arg mismatch for %s", table)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = args[i].Value
		}
		if strings.Contains(strings.ToUpper(query), "ON CONFLICT") {
			tables[table] = filterRows(tables[table], cols[0], row[cols[0]])
		}
		tables[table] = append(tables[table], row)
		return driver.RowsAffected(1), nil
	case "DELETE":
		table, col, err := parseDelete(query)
		if err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("missing args for delete %s", table)
		}
		before := len(tables[table])
		tables[table] = filterRows(tables[table], col, args[0].Value)
		return driver.RowsAffected(int64(before - len(tables[table]))), nil
	}
	return driver.RowsAffected(0), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	table, cols, where, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	values := make([][]driver.Value, 0)
	for _, row := range c.view()[table] {
		if where != "" {
			if len(args) == 0 {
				return nil, fmt.Errorf("missing args for select %s", table)
			}
			if !equalValues(row[where], args[0].Value) {
				continue
			}
		}
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: cols, rows: values, err: c.RowsErr}, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	if t.conn.FailCommit {
		t.conn.pending = nil
		return fmt.Errorf("commit fail")
	}
	t.conn.Tables = t.conn.pending
	t.conn.pending = nil
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.mu.Lock()
	t.conn.pending = nil
	t.conn.mu.Unlock()
	return nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func cloneTables(in map[string][]map[string]any) map[string][]map[string]any {
	out := make(map[string][]map[string]any, len(in))
	for table, rows := range in {
		cp := make([]map[string]any, len(rows))
		for i, row := range rows {
			r := make(map[string]any, len(row))
			for k, v := range row {
				r[k] = v
			}
			cp[i] = r
		}
		out[table] = cp
	}
	return out
}

func filterRows(rows []map[string]any, col string, target any) []map[string]any {
	var out []map[string]any
	for _, row := range rows {
		if equalValues(row[col], target) {
			continue
		}
		out = append(out, row)
	}
	return out
}

func equalValues(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func parseInsert(query string) (string, []string, error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	if intoIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[intoIdx+len("INTO "):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:open]))
	cols := splitColumns(rest[open+1 : closeIdx])
	return table, cols, nil
}

func parseDelete(query string) (string, string, error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	prefix := "delete from "
	if !strings.HasPrefix(lower, prefix) {
		return "", "", fmt.Errorf("cannot parse delete: %s", query)
	}
	table, col := splitWhere(strings.TrimSpace(lower[len(prefix):]))
	if col == "" {
		return "", "", fmt.Errorf("cannot parse delete predicate: %s", query)
	}
	return table, col, nil
}

func parseSelect(query string) (table string, cols []string, where string, err error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	selectPrefix := "select "
	fromToken := " from "
	if !strings.HasPrefix(lower, selectPrefix) {
		return "", nil, "", fmt.Errorf("cannot parse select: %s", query)
	}
	fromIdx := strings.Index(lower, fromToken)
	if fromIdx == -1 {
		return "", nil, "", fmt.Errorf("cannot parse select: %s", query)
	}
	table, where = splitWhere(strings.TrimSpace(lower[fromIdx+len(fromToken):]))
	if table == "" {
		return "", nil, "", fmt.Errorf("cannot parse select: %s", query)
	}
	return table, splitColumns(lower[len(selectPrefix):fromIdx]), where, nil
}

// splitWhere splits "table [where col=$1]" into the table and predicate column.
func splitWhere(rest string) (string, string) {
	table, pred, found := strings.Cut(rest, " where ")
	table = strings.TrimSpace(table)
	if fields := strings.Fields(table); len(fields) > 0 {
		table = fields[0]
	}
	if !found {
		return table, ""
	}
	col, _, ok := strings.Cut(pred, "=")
	if !ok {
		return table, ""
	}
	return table, strings.TrimSpace(col)
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
