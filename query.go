package avocet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/multierr"
)

const defaultBatchSize = 100

// Query accumulates the parts of a query against one collection. It is
// consumed once: Execute hands the result set over to a Cursor and the builder
// is discarded.
type Query struct {
	db         *Database
	collection string
	raw        string

	filter    string
	binds     map[string]any
	batchSize int
	limit     int64
	skip      int64
	hasLimit  bool
	hasSkip   bool
	count     bool

	errs error
}

// Filter restricts the result set with a filter expression. Bind parameters
// are referenced as @name.
func (q *Query) Filter(expr string) *Query {
	q.filter = expr
	return q
}

// Bind sets the value of one bind parameter.
func (q *Query) Bind(name string, value any) *Query {
	if name == "" {
		q.errs = multierr.Append(q.errs, fmt.Errorf("bind parameter name must not be empty"))
		return q
	}

	if q.binds == nil {
		q.binds = map[string]any{}
	}
	q.binds[name] = value
	return q
}

// BatchSize sets how many rows the server returns per batch.
func (q *Query) BatchSize(n int) *Query {
	if n <= 0 {
		q.errs = multierr.Append(q.errs, fmt.Errorf("batch size must be positive, got %d", n))
		return q
	}

	q.batchSize = n
	return q
}

// Limit caps the result set.
func (q *Query) Limit(n int64) *Query {
	if n < 0 {
		q.errs = multierr.Append(q.errs, fmt.Errorf("limit must not be negative, got %d", n))
		return q
	}

	q.limit = n
	q.hasLimit = true
	return q
}

// Skip drops the first n rows of the result set.
func (q *Query) Skip(n int64) *Query {
	if n < 0 {
		q.errs = multierr.Append(q.errs, fmt.Errorf("skip must not be negative, got %d", n))
		return q
	}

	q.skip = n
	q.hasSkip = true
	return q
}

// WithCount asks the server to report the full result count alongside the
// first batch.
func (q *Query) WithCount() *Query {
	q.count = true
	return q
}

// String assembles the query text sent to the server.
func (q *Query) String() string {
	if q.raw != "" {
		return q.raw
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "FOR d IN %s", q.collection)

	if q.filter != "" {
		fmt.Fprintf(&sb, " FILTER %s", q.filter)
	}

	if q.hasLimit {
		fmt.Fprintf(&sb, " LIMIT %d, %d", q.skip, q.limit)
	}

	sb.WriteString(" RETURN d")
	return sb.String()
}

// cursorResponse is the wire shape shared by cursor creation and fetch-next.
// A missing hasMore decodes as false so the cursor fails safe.
type cursorResponse struct {
	Result  []json.RawMessage `json:"result"`
	HasMore bool              `json:"hasMore"`
	ID      string            `json:"id"`
	Count   int64             `json:"count"`
}

// Execute sends the query and returns the cursor over its result set.
func (q *Query) Execute(ctx context.Context) (*Cursor, error) {
	if q.raw == "" && q.collection == "" {
		q.errs = multierr.Append(q.errs, fmt.Errorf("query is not bound to a collection"))
	}
	if q.raw != "" && (q.filter != "" || q.hasLimit || q.hasSkip) {
		q.errs = multierr.Append(q.errs, fmt.Errorf("filter, limit and skip do not apply to a raw query"))
	}
	if q.hasSkip && !q.hasLimit {
		q.errs = multierr.Append(q.errs, fmt.Errorf("skip requires a limit"))
	}
	if q.errs != nil {
		return nil, &QueryError{Query: q.String(), Err: q.errs}
	}

	binds := q.binds
	if binds == nil {
		binds = map[string]any{}
	}

	body := map[string]any{
		"query":     q.String(),
		"bindVars":  binds,
		"batchSize": q.batchSize,
		"count":     q.count,
	}

	var res cursorResponse
	if err := q.db.send(ctx, http.MethodPost, "/cursor", nil, body, &res); err != nil {
		return nil, &QueryError{Query: q.String(), Err: fmt.Errorf("failed to execute: %w", err)}
	}

	return newCursor(q.db, res), nil
}

// All executes the query and drains the cursor, batch by batch.
func (q *Query) All(ctx context.Context) ([]Document, error) {
	cursor, err := q.Execute(ctx)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	return cursor.All(ctx)
}
