package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is matched by every backend's missing-document error
	ErrNotFound = errors.New("document not found")

	// ErrMergeField rejects a MergeFields option naming a field the data lacks
	ErrMergeField = errors.New("merge field not present in data")
)

// Document represents a document in the database
type Document map[string]interface{}

// Clone returns a shallow copy of the document
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Matches reports whether every filter field is present in the document with
// an equal printed value. Numbers decoded from JSON compare equal to ints.
func (d Document) Matches(filter map[string]interface{}) bool {
	for key, expected := range filter {
		actual, exists := d[key]
		if !exists {
			return false
		}
		if fmt.Sprint(actual) != fmt.Sprint(expected) {
			return false
		}
	}
	return true
}

// DocumentRef identifies a single document within a collection
type DocumentRef struct {
	Collection string `json:"collection" msgpack:"collection"`
	ID         string `json:"id" msgpack:"id"`
}

// Ref builds a DocumentRef
func Ref(collection, id string) DocumentRef {
	return DocumentRef{Collection: collection, ID: id}
}

// Valid reports whether both the collection and the id are set
func (r DocumentRef) Valid() bool {
	return r.Collection != "" && r.ID != ""
}

func (r DocumentRef) String() string {
	return fmt.Sprintf("%s/%s", r.Collection, r.ID)
}

// SetOption changes how a Set combines data with an existing document.
// A Set issued with no options overwrites the document.
type SetOption struct {
	MergeAll bool     `json:"merge_all,omitempty"`
	Fields   []string `json:"fields,omitempty"`
}

// MergeAll merges every top-level field of the data into the existing document
func MergeAll() SetOption {
	return SetOption{MergeAll: true}
}

// MergeFields copies only the named top-level fields from the data
func MergeFields(fields ...string) SetOption {
	return SetOption{Fields: fields}
}

// ApplySet returns the document a Set of data leaves behind on existing,
// which may be nil. No options overwrites, MergeAll merges every top-level
// field and MergeFields copies only the named fields. Neither input is
// modified.
func ApplySet(existing, data Document, opts []SetOption) (Document, error) {
	if len(opts) == 0 {
		return data.Clone(), nil
	}

	next := existing.Clone()
	for _, opt := range opts {
		if opt.MergeAll {
			for k, v := range data {
				next[k] = v
			}
			continue
		}
		for _, field := range opt.Fields {
			v, ok := data[field]
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrMergeField, field)
			}
			next[field] = v
		}
	}
	return next, nil
}

// WriteResult is the outcome of one committed operation
type WriteResult struct {
	Ref        DocumentRef `json:"ref"`
	UpdateTime time.Time   `json:"update_time"`
}
