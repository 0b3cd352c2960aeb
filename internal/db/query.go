package db

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrNotReadOnly is returned for statements Query refuses to run.
var ErrNotReadOnly = errors.New("only single read-only statements are allowed")

// MaxQueryRows caps the rows Query returns.
const MaxQueryRows = 1000

var readOnlyVerbs = []string{"select", "with", "from", "describe", "show", "summarize"}

// QueryResult is the outcome of an ad-hoc query.
type QueryResult struct {
	Columns   []string         `json:"columns" doc:"Column names"`
	Rows      []map[string]any `json:"rows" doc:"Query results"`
	Count     int              `json:"count" doc:"Number of rows returned"`
	Truncated bool             `json:"truncated" doc:"Whether more rows were available than returned"`
}

// readOnly trims a trailing semicolon and checks the statement verb.
func readOnly(q string) (string, error) {
	q = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(q), ";"))
	if q == "" || strings.Contains(q, ";") {
		return "", ErrNotReadOnly
	}
	verb := strings.ToLower(strings.Fields(q)[0])
	if slices.Contains(readOnlyVerbs, verb) {
		return q, nil
	}
	return "", fmt.Errorf("%w: %q", ErrNotReadOnly, verb)
}

// Tables lists the tables of the journal database.
func (j *Journal) Tables(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Query runs one read-only statement and returns at most limit rows
// (MaxQueryRows when limit is out of range). The statement runs in a
// transaction that is always rolled back.
func (j *Journal) Query(ctx context.Context, q string, limit int) (QueryResult, error) {
	q, err := readOnly(q)
	if err != nil {
		return QueryResult{}, err
	}
	if limit <= 0 || limit > MaxQueryRows {
		limit = MaxQueryRows
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return QueryResult{}, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, q)
	if err != nil {
		return QueryResult{}, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return QueryResult{}, err
	}

	res := QueryResult{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		if len(res.Rows) == limit {
			res.Truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return QueryResult{}, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
			row[col] = values[i]
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, err
	}
	res.Count = len(res.Rows)
	return res, nil
}
