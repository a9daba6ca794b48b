package avocet

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Collection is a named handle bound to a database. Every operation maps to a
// single request; no state is cached locally beyond id, name and the status
// reported when the handle was obtained.
type Collection struct {
	db     *Database
	id     int64
	name   string
	status Status
}

func (c *Collection) Name() string {
	return c.name
}

func (c *Collection) ID() int64 {
	return c.id
}

func (c *Collection) Status() Status {
	return c.status
}

func (c *Collection) path(parts ...string) string {
	segments := append([]string{"/collection", strconv.FormatInt(c.id, 10)}, parts...)
	return strings.Join(segments, "/")
}

// Rename updates the local name only when the server accepted the new one.
func (c *Collection) Rename(ctx context.Context, newName string) error {
	body := map[string]any{"name": newName}
	if err := c.db.send(ctx, http.MethodPut, c.path("rename"), nil, body, nil); err != nil {
		return &CollectionError{Name: c.name, Err: fmt.Errorf("failed to rename to %q: %w", newName, err)}
	}

	c.name = newName
	return nil
}

func (c *Collection) Count(ctx context.Context) (int64, error) {
	var res struct {
		Count int64 `json:"count"`
	}
	if err := c.db.send(ctx, http.MethodGet, c.path("count"), nil, nil, &res); err != nil {
		return 0, &CollectionError{Name: c.name, Err: fmt.Errorf("failed to count documents: %w", err)}
	}

	return res.Count, nil
}

func (c *Collection) Figures(ctx context.Context) (map[string]any, error) {
	var res struct {
		Figures map[string]any `json:"figures"`
	}
	if err := c.db.send(ctx, http.MethodGet, c.path("figures"), nil, nil, &res); err != nil {
		return nil, &CollectionError{Name: c.name, Err: fmt.Errorf("failed to fetch figures: %w", err)}
	}

	return res.Figures, nil
}

// Figure resolves one named figure, with dots descending into nested groups
// (e.g. "alive.count"). An unknown name is a lookup error, never a zero value.
func (c *Collection) Figure(ctx context.Context, name string) (any, error) {
	figures, err := c.Figures(ctx)
	if err != nil {
		return nil, err
	}

	var value any = figures
	for _, part := range strings.Split(name, ".") {
		group, ok := value.(map[string]any)
		if !ok {
			return nil, &CollectionError{Name: c.name, Err: fmt.Errorf("unknown figure %q", name)}
		}
		value, ok = group[part]
		if !ok {
			return nil, &CollectionError{Name: c.name, Err: fmt.Errorf("unknown figure %q", name)}
		}
	}

	return value, nil
}

// WaitForSync re-fetches the durability property on every call; the value is
// never cached locally.
func (c *Collection) WaitForSync(ctx context.Context) (bool, error) {
	var res struct {
		WaitForSync bool `json:"waitForSync"`
	}
	if err := c.db.send(ctx, http.MethodGet, c.path("properties"), nil, nil, &res); err != nil {
		return false, &CollectionError{Name: c.name, Err: fmt.Errorf("failed to fetch properties: %w", err)}
	}

	return res.WaitForSync, nil
}

func (c *Collection) SetWaitForSync(ctx context.Context, waitForSync bool) error {
	body := map[string]any{"waitForSync": waitForSync}
	if err := c.db.send(ctx, http.MethodPut, c.path("properties"), nil, body, nil); err != nil {
		return &CollectionError{Name: c.name, Err: fmt.Errorf("failed to update properties: %w", err)}
	}

	return nil
}

func (c *Collection) Load(ctx context.Context) error {
	if err := c.db.send(ctx, http.MethodPut, c.path("load"), nil, nil, nil); err != nil {
		return &CollectionError{Name: c.name, Err: fmt.Errorf("failed to load: %w", err)}
	}
	return nil
}

func (c *Collection) Unload(ctx context.Context) error {
	if err := c.db.send(ctx, http.MethodPut, c.path("unload"), nil, nil, nil); err != nil {
		return &CollectionError{Name: c.name, Err: fmt.Errorf("failed to unload: %w", err)}
	}
	return nil
}

func (c *Collection) Truncate(ctx context.Context) error {
	if err := c.db.send(ctx, http.MethodPut, c.path("truncate"), nil, nil, nil); err != nil {
		return &CollectionError{Name: c.name, Err: fmt.Errorf("failed to truncate: %w", err)}
	}
	return nil
}

// Remove drops the collection server-side. The handle is stale afterwards.
func (c *Collection) Remove(ctx context.Context) error {
	if err := c.db.send(ctx, http.MethodDelete, c.path(), nil, nil, nil); err != nil {
		return &CollectionError{Name: c.name, Err: fmt.Errorf("failed to drop: %w", err)}
	}
	return nil
}

func (c *Collection) documentPath(key string) string {
	return "/document/" + strconv.FormatInt(c.id, 10) + "/" + url.PathEscape(key)
}

// ReadDocument fetches one document by key. A missing document surfaces as
// NotFoundError, never as the raw transport error.
func (c *Collection) ReadDocument(ctx context.Context, key string) (Document, error) {
	var body map[string]any
	if err := c.db.send(ctx, http.MethodGet, c.documentPath(key), nil, nil, &body); err != nil {
		return Document{}, notFound("document", key, err)
	}

	return newDocumentFromBody(body), nil
}

func (c *Collection) DocumentExists(ctx context.Context, key string) (bool, error) {
	_, err := c.ReadDocument(ctx, key)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

type CreateDocumentOptions struct {
	Key string
}

type CreateDocumentOptionFunc func(opts *CreateDocumentOptions)

// WithKey asks the server to store the document under the given key instead of
// assigning one.
func WithKey(key string) CreateDocumentOptionFunc {
	return func(opts *CreateDocumentOptions) {
		opts.Key = key
	}
}

// WithGeneratedKey assigns a client-generated key.
func WithGeneratedKey() CreateDocumentOptionFunc {
	return func(opts *CreateDocumentOptions) {
		opts.Key = uuid.NewString()
	}
}

// CreateDocument stores a new document and returns it with the server-assigned
// identity filled in.
func (c *Collection) CreateDocument(ctx context.Context, fields map[string]any, funcs ...CreateDocumentOptionFunc) (Document, error) {
	var opts CreateDocumentOptions
	for _, fn := range funcs {
		fn(&opts)
	}

	doc := NewDocument(fields)
	doc.Meta.Key = opts.Key

	query := url.Values{}
	query.Set("collection", strconv.FormatInt(c.id, 10))

	var meta DocumentMeta
	if err := c.db.send(ctx, http.MethodPost, "/document", query, doc.body(), &meta); err != nil {
		return Document{}, &CollectionError{Name: c.name, Err: fmt.Errorf("failed to create document: %w", err)}
	}

	doc.Meta = meta
	return doc, nil
}

// ReplaceDocument overwrites the document stored under key and returns the new
// metadata.
func (c *Collection) ReplaceDocument(ctx context.Context, key string, fields map[string]any) (DocumentMeta, error) {
	var meta DocumentMeta
	if err := c.db.send(ctx, http.MethodPut, c.documentPath(key), nil, fields, &meta); err != nil {
		return DocumentMeta{}, notFound("document", key, err)
	}

	return meta, nil
}

// ReplaceDocumentIfChanged replaces only when the stored content differs,
// comparing field hashes. Reports whether a write happened.
func (c *Collection) ReplaceDocumentIfChanged(ctx context.Context, key string, fields map[string]any) (bool, error) {
	current, err := c.ReadDocument(ctx, key)
	if err != nil {
		return false, err
	}

	changed, err := NewDocument(fields).ChangedFrom(current)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	if _, err := c.ReplaceDocument(ctx, key, fields); err != nil {
		return false, err
	}

	return true, nil
}

// UpdateDocument patches the stored document with the given fields.
func (c *Collection) UpdateDocument(ctx context.Context, key string, patch map[string]any) (DocumentMeta, error) {
	var meta DocumentMeta
	if err := c.db.send(ctx, http.MethodPatch, c.documentPath(key), nil, patch, &meta); err != nil {
		return DocumentMeta{}, notFound("document", key, err)
	}

	return meta, nil
}

func (c *Collection) RemoveDocument(ctx context.Context, key string) error {
	if err := c.db.send(ctx, http.MethodDelete, c.documentPath(key), nil, nil, nil); err != nil {
		return notFound("document", key, err)
	}
	return nil
}

func (c *Collection) indexPath(id string) string {
	return "/index/" + strconv.FormatInt(c.id, 10) + "/" + url.PathEscape(id)
}

// EnsureIndex creates an index of the given type over the given fields.
func (c *Collection) EnsureIndex(ctx context.Context, typ IndexType, fields []string, opts *IndexOptions) (Index, error) {
	body, err := indexBody(typ, fields, opts)
	if err != nil {
		return Index{}, &IndexError{Collection: c.name, Err: err}
	}

	query := url.Values{}
	query.Set("collection", strconv.FormatInt(c.id, 10))

	var idx Index
	if err := c.db.send(ctx, http.MethodPost, "/index", query, body, &idx); err != nil {
		return Index{}, &IndexError{Collection: c.name, Err: fmt.Errorf("failed to create %s index: %w", typ, err)}
	}

	return idx, nil
}

func (c *Collection) Index(ctx context.Context, id string) (Index, error) {
	var idx Index
	if err := c.db.send(ctx, http.MethodGet, c.indexPath(id), nil, nil, &idx); err != nil {
		return Index{}, notFound("index", id, err)
	}

	return idx, nil
}

func (c *Collection) Indexes(ctx context.Context) ([]Index, error) {
	query := url.Values{}
	query.Set("collection", strconv.FormatInt(c.id, 10))

	var res struct {
		Indexes []Index `json:"indexes"`
	}
	if err := c.db.send(ctx, http.MethodGet, "/index", query, nil, &res); err != nil {
		return nil, &IndexError{Collection: c.name, Err: fmt.Errorf("failed to list indexes: %w", err)}
	}

	return res.Indexes, nil
}

func (c *Collection) RemoveIndex(ctx context.Context, id string) error {
	if err := c.db.send(ctx, http.MethodDelete, c.indexPath(id), nil, nil, nil); err != nil {
		return notFound("index", id, err)
	}
	return nil
}

// Query starts a query builder scoped to this collection.
func (c *Collection) Query() *Query {
	return &Query{db: c.db, collection: c.name, batchSize: defaultBatchSize}
}
