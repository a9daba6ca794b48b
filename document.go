package avocet

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/mitchellh/mapstructure"
	"github.com/r3labs/diff/v3"
)

const (
	metaKeyID  = "_id"
	metaKeyKey = "_key"
	metaKeyRev = "_rev"
)

// DocumentMeta is the server-assigned identity of a document.
type DocumentMeta struct {
	ID  string `json:"_id,omitempty"`
	Key string `json:"_key,omitempty"`
	Rev string `json:"_rev,omitempty"`
}

// Document is one record of a collection: its metadata plus its fields. Field
// mutations are staged locally and only become durable through an explicit
// write call on the owning collection.
type Document struct {
	Meta   DocumentMeta
	Fields map[string]any
}

// NewDocument stages a document that has not been sent to the server yet.
func NewDocument(fields map[string]any) Document {
	if fields == nil {
		fields = map[string]any{}
	}
	return Document{Fields: fields}
}

// newDocumentFromBody splits a server payload into metadata and fields.
func newDocumentFromBody(body map[string]any) Document {
	doc := Document{Fields: make(map[string]any, len(body))}

	for k, v := range body {
		switch k {
		case metaKeyID:
			doc.Meta.ID = metaString(v)
		case metaKeyKey:
			doc.Meta.Key = metaString(v)
		case metaKeyRev:
			doc.Meta.Rev = metaString(v)
		default:
			doc.Fields[k] = v
		}
	}

	return doc
}

// metaString coerces a metadata value to its string form. Older servers send
// numeric ids and revisions.
func metaString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func (d Document) Get(field string) (any, bool) {
	v, fnd := d.Fields[field]
	return v, fnd
}

func (d *Document) Set(field string, value any) {
	if d.Fields == nil {
		d.Fields = map[string]any{}
	}
	d.Fields[field] = value
}

// As decodes the document fields into the given struct or map.
func (d Document) As(target any) error {
	if err := mapstructure.Decode(d.Fields, target); err != nil {
		return fmt.Errorf("failed to decode document %q: %w", d.Meta.ID, err)
	}
	return nil
}

// Hash is a content hash over the document fields, ignoring metadata. Two
// documents with equal fields hash equally regardless of key or revision.
func (d Document) Hash() (string, error) {
	h, err := hashstructure.Hash(d.Fields, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("failed to hash document: %w", err)
	}
	return strconv.FormatUint(h, 10), nil
}

// ChangedFrom reports whether the document content differs from other,
// comparing field hashes only.
func (d Document) ChangedFrom(other Document) (bool, error) {
	dh, err := d.Hash()
	if err != nil {
		return false, err
	}

	oh, err := other.Hash()
	if err != nil {
		return false, err
	}

	return dh != oh, nil
}

// FieldChange is one entry of a changelog between two documents.
type FieldChange struct {
	Type string
	Path []string
	From any
	To   any
}

// Diff computes the field-level changelog turning this document into other.
func (d Document) Diff(other Document) ([]FieldChange, error) {
	cl, err := diff.Diff(d.Fields, other.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to diff documents: %w", err)
	}

	var changes []FieldChange
	if err := mapstructure.Decode(cl, &changes); err != nil {
		return nil, fmt.Errorf("failed to decode changelog: %w", err)
	}

	return changes, nil
}

// body assembles the wire payload: all fields plus any metadata the client is
// allowed to send (the key, when one is staged).
func (d Document) body() map[string]any {
	body := make(map[string]any, len(d.Fields)+1)
	for k, v := range d.Fields {
		body[k] = v
	}
	if d.Meta.Key != "" {
		body[metaKeyKey] = d.Meta.Key
	}
	return body
}
