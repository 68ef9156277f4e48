// Package store defines the read boundary to the live document database.
//
// A Backend opens Listeners over queries or single documents. Each Listener
// delivers full snapshots of its result set until stopped; consumers never
// see partial results or diffs.
package store

import (
	"context"
	"fmt"
	"strings"
)

// Op is a filter comparison operator.
type Op string

// Supported filter operators.
const (
	Equal        Op = "=="
	NotEqual     Op = "!="
	Less         Op = "<"
	LessEqual    Op = "<="
	Greater      Op = ">"
	GreaterEqual Op = ">="
)

// Filter restricts a query to documents whose Field compares true against Value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Order sorts a query by Field.
type Order struct {
	Field string
	Desc  bool
}

// Query describes a live query over one collection, or over every
// collection sharing an id when Group is set.
type Query struct {
	Collection string
	Group      bool
	Filters    []Filter
	Orders     []Order
	Max        int
}

// Collection starts a query over the collection at path.
func Collection(path string) Query {
	return Query{Collection: path}
}

// CollectionGroup starts a query over every collection named id.
func CollectionGroup(id string) Query {
	return Query{Collection: id, Group: true}
}

// Where returns a copy of q with an extra filter.
func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

// OrderBy returns a copy of q with an extra sort key.
func (q Query) OrderBy(field string, desc bool) Query {
	q.Orders = append(append([]Order(nil), q.Orders...), Order{Field: field, Desc: desc})
	return q
}

// Limit returns a copy of q capped at n results.
func (q Query) Limit(n int) Query {
	q.Max = n
	return q
}

func (q Query) String() string {
	var b strings.Builder
	if q.Group {
		b.WriteString("group:")
	}
	b.WriteString(q.Collection)
	for _, f := range q.Filters {
		fmt.Fprintf(&b, " where %s %s %v", f.Field, f.Op, f.Value)
	}
	for _, o := range q.Orders {
		dir := "asc"
		if o.Desc {
			dir = "desc"
		}
		fmt.Fprintf(&b, " order %s %s", o.Field, dir)
	}
	if q.Max > 0 {
		fmt.Fprintf(&b, " limit %d", q.Max)
	}
	return b.String()
}

// Document is one record of a snapshot.
type Document struct {
	// ID is the last path segment.
	ID string
	// ParentID is the id of the document owning this document's collection,
	// empty for top-level collections.
	ParentID string
	// Path is the slash-separated path relative to the database root.
	Path string

	decode func(any) error
}

// NewDocument builds a Document at path whose fields are decoded by decode.
func NewDocument(path string, decode func(any) error) Document {
	segs := strings.Split(path, "/")
	d := Document{ID: segs[len(segs)-1], Path: path, decode: decode}
	if len(segs) >= 4 {
		d.ParentID = segs[len(segs)-3]
	}
	return d
}

// DataTo decodes the document fields into v, which must be a pointer to a struct.
func (d Document) DataTo(v any) error {
	if d.decode == nil {
		return fmt.Errorf("%s: no data", d.Path)
	}
	return d.decode(v)
}

// Snapshot is the full result of a listener at one point in time.
// For document listeners Exists reports whether the document is present.
type Snapshot struct {
	Documents []Document
	Exists    bool
}

// Listener delivers snapshots for one query or document.
type Listener interface {
	// Next blocks until the next snapshot. The first call returns the
	// initial result. After Stop, Next returns ErrStopped.
	Next() (Snapshot, error)

	// Stop releases the listener. It is safe to call more than once and
	// concurrently with Next.
	Stop()
}

// Backend opens live listeners.
type Backend interface {
	// Listen opens a listener over q. It stops when ctx is done.
	Listen(ctx context.Context, q Query) (Listener, error)

	// ListenDocument opens a listener over the document at path.
	ListenDocument(ctx context.Context, path string) (Listener, error)
}

// SplitDocumentPath validates a document path and returns its collection path and id.
func SplitDocumentPath(path string) (collection, id string, err error) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs)%2 != 0 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for _, s := range segs {
		if s == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return strings.Join(segs[:len(segs)-1], "/"), segs[len(segs)-1], nil
}

// ValidCollectionPath reports whether path names a collection.
func ValidCollectionPath(path string) bool {
	segs := strings.Split(path, "/")
	if len(segs)%2 != 1 {
		return false
	}
	for _, s := range segs {
		if s == "" {
			return false
		}
	}
	return true
}

// Doc joins path segments into a document path.
func Doc(segments ...string) string {
	return strings.Join(segments, "/")
}
