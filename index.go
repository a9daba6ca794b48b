package avocet

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

type IndexType string

const (
	IndexHash     IndexType = "hash"
	IndexSkiplist IndexType = "skiplist"
	IndexGeo      IndexType = "geo"
	IndexCap      IndexType = "cap"
	IndexFulltext IndexType = "fulltext"
	IndexPrimary  IndexType = "primary"
)

// Index is a server-managed lookup structure over one or more document fields.
// Immutable after creation; removal goes through Collection.RemoveIndex.
type Index struct {
	ID     string    `json:"id"`
	Type   IndexType `json:"type"`
	Fields []string  `json:"fields"`

	Unique    bool `json:"unique,omitempty"`
	GeoJSON   bool `json:"geoJson,omitempty"`
	Size      int  `json:"size,omitempty"`
	MinLength int  `json:"minLength,omitempty"`
}

// IndexOptions carries the type-specific knobs of index creation. Zero values
// are left off the wire.
type IndexOptions struct {
	Unique    bool `mapstructure:"unique,omitempty"`
	GeoJSON   bool `mapstructure:"geoJson,omitempty"`
	Size      int  `mapstructure:"size,omitempty"`
	MinLength int  `mapstructure:"minLength,omitempty"`
}

// indexBody assembles the index creation payload from type, fields and options.
func indexBody(typ IndexType, fields []string, opts *IndexOptions) (map[string]any, error) {
	body := map[string]any{
		"type":   string(typ),
		"fields": fields,
	}

	if opts == nil {
		return body, nil
	}

	if err := mapstructure.Decode(opts, &body); err != nil {
		return nil, fmt.Errorf("failed to encode index options: %w", err)
	}

	return body, nil
}
