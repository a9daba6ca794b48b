package avocet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dustin/go-humanize"
)

// Cursor iterates a query result set batch by batch. It is single pass and not
// restartable: every row is produced exactly once, in server order, with at
// most one batch held in memory. A transport failure during a batch fetch is
// terminal for the cursor.
type Cursor struct {
	db *Database

	id      string
	batch   []json.RawMessage
	offset  int
	hasMore bool
	count   int64

	read   int64
	closed bool
	err    error
}

func newCursor(db *Database, res cursorResponse) *Cursor {
	return &Cursor{
		db:      db,
		id:      res.ID,
		batch:   res.Result,
		hasMore: res.HasMore,
		count:   res.Count,
	}
}

// HasMore reports whether another row can be produced, locally buffered or
// still server-side.
func (c *Cursor) HasMore() bool {
	if c.closed || c.err != nil {
		return false
	}
	return c.offset < len(c.batch) || c.hasMore
}

// Count is the full result count, when the query asked for one.
func (c *Cursor) Count() int64 {
	return c.count
}

func (c *Cursor) nextRow(ctx context.Context) (json.RawMessage, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.closed {
		return nil, ErrNoMoreDocuments
	}

	for c.offset >= len(c.batch) {
		if !c.hasMore {
			return nil, ErrNoMoreDocuments
		}
		if err := c.fetchNext(ctx); err != nil {
			return nil, err
		}
	}

	row := c.batch[c.offset]
	c.offset++
	c.read++
	return row, nil
}

// fetchNext pulls the next batch. Only called once the current batch is fully
// consumed.
func (c *Cursor) fetchNext(ctx context.Context) error {
	// more batches promised but no id to fetch them by: the response was
	// malformed and the cursor cannot continue.
	if c.id == "" {
		c.err = &CursorError{Err: fmt.Errorf("server reported more batches without a cursor id")}
		return c.err
	}

	var res cursorResponse
	if err := c.db.send(ctx, http.MethodPut, "/cursor/"+c.id, nil, nil, &res); err != nil {
		c.err = &CursorError{ID: c.id, Err: fmt.Errorf("failed to fetch next batch: %w", err)}
		return c.err
	}

	c.batch = res.Result
	c.offset = 0
	c.hasMore = res.HasMore

	// The id disappears from the terminal batch unless the server still wants
	// an explicit dispose.
	if res.ID != "" {
		c.id = res.ID
	} else if !res.HasMore {
		c.id = ""
	}

	return nil
}

// ReadDocument decodes the next row into result. Returns ErrNoMoreDocuments
// once the cursor is exhausted.
func (c *Cursor) ReadDocument(ctx context.Context, result any) error {
	row, err := c.nextRow(ctx)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(row, result); err != nil {
		return &CursorError{ID: c.id, Err: fmt.Errorf("failed to decode row: %w", err)}
	}

	return nil
}

// Next produces the next row as a document. Rows that are not JSON objects
// need ReadDocument instead.
func (c *Cursor) Next(ctx context.Context) (Document, error) {
	var body map[string]any
	if err := c.ReadDocument(ctx, &body); err != nil {
		return Document{}, err
	}

	return newDocumentFromBody(body), nil
}

// All drains the remaining rows, still fetching batch by batch.
func (c *Cursor) All(ctx context.Context) ([]Document, error) {
	var docs []Document
	for {
		doc, err := c.Next(ctx)
		if err != nil {
			if IsNoMoreDocuments(err) {
				return docs, nil
			}
			return nil, err
		}
		docs = append(docs, doc)
	}
}

// Close releases the cursor. When a server-side cursor id is still held the
// dispose request is sent best effort; the cursor is terminal locally either
// way. Closing twice is a no-op.
func (c *Cursor) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true

	c.db.logger.WithField("rows", humanize.Comma(c.read)).Debug("cursor closed")

	if c.id == "" {
		return nil
	}

	id := c.id
	c.id = ""

	if err := c.db.send(ctx, http.MethodDelete, "/cursor/"+id, nil, nil, nil); err != nil {
		return &CursorError{ID: id, Err: fmt.Errorf("failed to dispose: %w", err)}
	}

	return nil
}
