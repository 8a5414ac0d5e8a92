package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/storage"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/storage/memory"
)

func TestClassMembershipValidator(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	studentID := seed(t, store, models.CollectionStudents, storage.Document{"email": "s@x.com", "enrollmentNumber": "N1"})
	v := NewClassMembershipValidator(store)

	assert.ErrorIs(t, v.Validate(ctx, "CODE-X"), ErrNotFound)
	assert.ErrorIs(t, v.Validate(ctx, " "), ErrMalformed)
	assert.ErrorIs(t, v.AssignClass(ctx, studentID, "CODE-X"), ErrNotFound)

	doc, err := store.Collection(models.CollectionStudents).FindOne(ctx, storage.Filter{"_id": studentID})
	require.NoError(t, err)
	assert.False(t, doc.Has("classCode"), "nothing persisted on failure")

	seed(t, store, models.CollectionLearningPaths, storage.Document{"classCode": "CODE-X", "title": "Go"})
	assert.NoError(t, v.Validate(ctx, "CODE-X"))
	require.NoError(t, v.AssignClass(ctx, studentID, "CODE-X"))

	doc, err = store.Collection(models.CollectionStudents).FindOne(ctx, storage.Filter{"_id": studentID})
	require.NoError(t, err)
	assert.Equal(t, "CODE-X", doc["classCode"])

	assert.ErrorIs(t, v.AssignClass(ctx, "missing", "CODE-X"), ErrNotFound)
}
