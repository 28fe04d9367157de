// Package docstore is a small hierarchical document store abstraction.
//
// Paths follow the collection/document/collection/... convention, so
// "users/u1/batches" is a collection and "users/u1/batches/b7" a document
// inside it. Backends: Memory for development and tests, Mongo and Postgres
// for deployments.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a document path does not exist.
var ErrNotFound = errors.New("docstore: document not found")

// Op is a filter comparison operator.
type Op string

const (
	Eq  Op = "=="
	Lt  Op = "<"
	Lte Op = "<="
	Gt  Op = ">"
	Gte Op = ">="
)

// Filter restricts a query to documents whose Field compares to Value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where builds a Filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Fields is the payload of a document.
type Fields map[string]any

type serverTimestamp struct{}

// ServerTimestamp is a field value the backend replaces with its own clock
// at write time.
var ServerTimestamp any = serverTimestamp{}

// Store is implemented by every backend. Query results are ordered by
// document id so callers iterate deterministically.
type Store interface {
	Get(ctx context.Context, path string) (Document, error)
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	Add(ctx context.Context, collection string, data Fields) (string, error)
	Update(ctx context.Context, path string, data Fields) error
}

// Document is a single stored record.
type Document struct {
	ID   string
	Path string
	Data Fields
}

// String returns the string value of key, or fallback when absent or empty.
func (d Document) String(key, fallback string) string {
	if v, ok := d.Data[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// Bool returns the boolean value of key.
func (d Document) Bool(key string) bool {
	v, _ := d.Data[key].(bool)
	return v
}

// Time returns the timestamp stored under key. JSON backends hand back
// RFC3339 strings, which are parsed here.
func (d Document) Time(key string) (time.Time, bool) {
	switch v := d.Data[key].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Split separates a document path into its collection path and id.
func Split(path string) (collection, id string, err error) {
	i := strings.LastIndex(path, "/")
	if i <= 0 || i == len(path)-1 {
		return "", "", fmt.Errorf("docstore: invalid document path %q", path)
	}
	return path[:i], path[i+1:], nil
}

// parentOf separates a collection path into its parent document path and
// leaf collection name. Top-level collections have an empty parent.
func parentOf(collection string) (parent, name string) {
	i := strings.LastIndex(collection, "/")
	if i < 0 {
		return "", collection
	}
	return collection[:i], collection[i+1:]
}

// resolve replaces ServerTimestamp sentinels with now.
func resolve(data Fields, now time.Time) Fields {
	out := make(Fields, len(data))
	for k, v := range data {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = now
			continue
		}
		out[k] = v
	}
	return out
}
