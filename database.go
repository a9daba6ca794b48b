package avocet

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shono-io/avocet/connection"
	"github.com/sirupsen/logrus"
)

// Config is the opaque configuration consumed by NewDatabase. Either an
// Endpoint or a ready Connection must be provided.
type Config struct {
	Endpoint string
	Username string
	Password string

	// Client overrides the HTTP client used by the default connection.
	Client *http.Client

	Logger logrus.FieldLogger

	// Connection replaces the default HTTP transport entirely.
	Connection connection.Connection
}

// Database is the root handle: it owns the connection configuration and is the
// factory for collections and queries. It has no server-side counterpart.
type Database struct {
	conn   connection.Connection
	logger logrus.FieldLogger
}

func NewDatabase(cfg Config) (*Database, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	conn := cfg.Connection
	if conn == nil {
		var err error
		conn, err = connection.NewHTTP(connection.HTTPConfig{
			Endpoint: cfg.Endpoint,
			Username: cfg.Username,
			Password: cfg.Password,
			Client:   cfg.Client,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create connection: %w", err)
		}
	}

	return &Database{conn: conn, logger: logger}, nil
}

func (d *Database) send(ctx context.Context, method, path string, query url.Values, body any, result any) error {
	return d.conn.Do(ctx, connection.Request{
		Method: method,
		Path:   path,
		Query:  query,
		Body:   body,
	}, result)
}

// collectionInfo is the collection payload shared by the create, get and list
// endpoints.
type collectionInfo struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status int    `json:"status"`
}

func (d *Database) newCollection(info collectionInfo) *Collection {
	return &Collection{
		db:     d,
		id:     info.ID,
		name:   info.Name,
		status: ParseStatus(info.Status),
	}
}

type CreateCollectionOptions struct {
	WaitForSync bool
}

func (d *Database) CreateCollection(ctx context.Context, name string, opts *CreateCollectionOptions) (*Collection, error) {
	body := map[string]any{"name": name}
	if opts != nil && opts.WaitForSync {
		body["waitForSync"] = true
	}

	var info collectionInfo
	if err := d.send(ctx, http.MethodPost, "/collection", nil, body, &info); err != nil {
		return nil, &CollectionError{Name: name, Err: fmt.Errorf("failed to create collection: %w", err)}
	}

	return d.newCollection(info), nil
}

func (d *Database) Collection(ctx context.Context, name string) (*Collection, error) {
	var info collectionInfo
	if err := d.send(ctx, http.MethodGet, "/collection/"+url.PathEscape(name), nil, nil, &info); err != nil {
		return nil, notFound("collection", name, err)
	}

	return d.newCollection(info), nil
}

func (d *Database) Collections(ctx context.Context) ([]*Collection, error) {
	var res struct {
		Collections []collectionInfo `json:"collections"`
	}
	if err := d.send(ctx, http.MethodGet, "/collection", nil, nil, &res); err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	collections := make([]*Collection, 0, len(res.Collections))
	for _, info := range res.Collections {
		collections = append(collections, d.newCollection(info))
	}

	return collections, nil
}

// Query starts a raw query, bypassing the per-collection builder. The text is
// sent as-is: Filter, Limit and Skip do not apply to a raw query and are
// rejected at Execute. Bind, BatchSize and WithCount still do.
func (d *Database) Query(text string) *Query {
	return &Query{db: d, raw: text, batchSize: defaultBatchSize}
}

// Version probes the server.
func (d *Database) Version(ctx context.Context) (string, error) {
	var res struct {
		Server  string `json:"server"`
		Version string `json:"version"`
	}
	if err := d.send(ctx, http.MethodGet, "/version", nil, nil, &res); err != nil {
		return "", fmt.Errorf("failed to get server version: %w", err)
	}

	return res.Version, nil
}
