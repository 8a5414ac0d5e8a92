package storage

import (
	"context"
	"errors"
	"reflect"
	"sort"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict.
var ErrAlreadyExists = errors.New("record already exists")

// Document is a schemaless record. Its id, when present, is an opaque string under "_id".
type Document map[string]any

// ID returns the document id.
func (d Document) ID() string {
	id, _ := d[models.FieldID].(string)
	return id
}

// String returns a string field and whether it was present as a string.
func (d Document) String(field string) (string, bool) {
	v, ok := d[field].(string)
	return v, ok
}

// Has reports whether field is present and not null.
func (d Document) Has(field string) bool {
	v, ok := d[field]
	return ok && v != nil
}

// Without returns a shallow copy of d minus the given fields.
func (d Document) Without(fields ...string) Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	for _, f := range fields {
		delete(out, f)
	}
	return out
}

// Filter selects documents by field equality. A value of type Ne selects documents
// whose field differs. The "_id" key matches document ids.
type Filter map[string]any

// Ne matches a field that is not equal to Value.
type Ne struct {
	Value any
}

// Keys returns the filter keys in a stable order.
func (f Filter) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equalities returns the plain equality terms, excluding the id. Upserts seed new documents from them.
func (f Filter) Equalities() Document {
	out := Document{}
	for k, v := range f {
		if _, ne := v.(Ne); ne || k == models.FieldID {
			continue
		}
		out[k] = v
	}
	return out
}

// Matches evaluates the filter against a document.
func (f Filter) Matches(doc Document) bool {
	for k, want := range f {
		got, present := doc[k]
		if ne, ok := want.(Ne); ok {
			if present && reflect.DeepEqual(got, ne.Value) {
				return false
			}
			continue
		}
		if !present || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// UpdateResult reports the outcome of UpdateOne.
type UpdateResult struct {
	Matched    int64
	Modified   int64
	UpsertedID string
}

// Collection captures the document operations the application needs.
type Collection interface {
	InsertOne(ctx context.Context, doc Document) (string, error)
	InsertMany(ctx context.Context, docs []Document) ([]string, error)
	FindOne(ctx context.Context, filter Filter) (Document, error)
	FindMany(ctx context.Context, filter Filter) ([]Document, error)
	// UpdateOne merges set into the first match. With upsert and no match, it inserts
	// the filter's equality terms merged with set.
	UpdateOne(ctx context.Context, filter Filter, set Document, upsert bool) (UpdateResult, error)
	DeleteOne(ctx context.Context, filter Filter) (int64, error)
}

// Store hands out collections by name.
type Store interface {
	Collection(name string) Collection
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// UniqueFields lists, per collection, the fields backends enforce as unique when they can.
var UniqueFields = map[string][]string{
	models.CollectionUsers:    {models.FieldEmail},
	models.CollectionTeachers: {models.FieldEmail, models.FieldEmployeeID},
	models.CollectionStudents: {models.FieldEmail, models.FieldEnrollmentNumber},
}
