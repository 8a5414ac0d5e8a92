package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterMatches(t *testing.T) {
	doc := Document{"_id": "1", "email": "a@x.com", "employeeID": "E1"}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "empty filter", filter: Filter{}, want: true},
		{name: "equality", filter: Filter{"email": "a@x.com"}, want: true},
		{name: "equality mismatch", filter: Filter{"email": "b@x.com"}, want: false},
		{name: "missing field", filter: Filter{"department": "cs"}, want: false},
		{name: "id", filter: Filter{"_id": "1"}, want: true},
		{name: "ne excludes self", filter: Filter{"employeeID": "E1", "_id": Ne{Value: "1"}}, want: false},
		{name: "ne other", filter: Filter{"employeeID": "E1", "_id": Ne{Value: "2"}}, want: true},
		{name: "ne missing field", filter: Filter{"classCode": Ne{Value: "X"}}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(doc))
		})
	}
}

func TestFilterEqualities(t *testing.T) {
	f := Filter{"email": "a@x.com", "_id": "1", "employeeID": Ne{Value: "E1"}}
	assert.Equal(t, Document{"email": "a@x.com"}, f.Equalities())
	assert.Equal(t, []string{"_id", "email", "employeeID"}, f.Keys())
}

func TestDocumentHelpers(t *testing.T) {
	doc := Document{"_id": "abc", "name": "A", "classCode": nil}
	assert.Equal(t, "abc", doc.ID())
	name, ok := doc.String("name")
	assert.True(t, ok)
	assert.Equal(t, "A", name)
	assert.False(t, doc.Has("classCode"))
	assert.Equal(t, Document{"name": "A", "classCode": nil}, doc.Without("_id"))
	assert.Equal(t, "abc", doc.ID(), "Without must not mutate the receiver")
}

func TestConnectRetries(t *testing.T) {
	calls := 0
	store, err := Connect(context.Background(), 3, func(context.Context) (Store, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("connection refused")
		}
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, store)
	assert.Equal(t, 2, calls)
}

func TestConnectGivesUp(t *testing.T) {
	calls := 0
	_, err := Connect(context.Background(), 2, func(context.Context) (Store, error) {
		calls++
		return nil, errors.New("connection refused")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}
