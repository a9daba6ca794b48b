package avocet

import (
	"errors"
	"fmt"

	"github.com/shono-io/avocet/connection"
)

// ErrNoMoreDocuments signals an exhausted cursor. It is the normal end of
// iteration, not a failure.
var ErrNoMoreDocuments = errors.New("no more documents")

func IsNoMoreDocuments(err error) bool {
	return errors.Is(err, ErrNoMoreDocuments)
}

// NotFoundError reports that a server-side entity does not exist. It replaces
// the transport's 404 so callers can treat absence as control flow.
type NotFoundError struct {
	Kind string
	Name string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// notFound translates a transport-level 404 into a NotFoundError and leaves
// every other error untouched.
func notFound(kind, name string, err error) error {
	if connection.IsNotFound(err) {
		return &NotFoundError{Kind: kind, Name: name, Err: err}
	}
	return err
}

type CollectionError struct {
	Name string
	Err  error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collection %q: %s", e.Name, e.Err)
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}

type IndexError struct {
	Collection string
	Err        error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index on %q: %s", e.Collection, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %s", e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// CursorError is terminal for the cursor that raised it.
type CursorError struct {
	ID  string
	Err error
}

func (e *CursorError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("cursor %s: %s", e.ID, e.Err)
	}
	return fmt.Sprintf("cursor: %s", e.Err)
}

func (e *CursorError) Unwrap() error {
	return e.Err
}
