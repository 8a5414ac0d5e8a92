package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/storage"
)

// UniquenessGuard checks candidate keys against existing records before a write.
// Check and write are separate store calls, so two concurrent writers can both pass;
// the postgres and mongo backends back it with unique indexes.
type UniquenessGuard struct {
	store storage.Store
}

// NewUniquenessGuard creates a guard over store.
func NewUniquenessGuard(store storage.Store) *UniquenessGuard {
	return &UniquenessGuard{store: store}
}

// CheckEmailUnique returns a *ConflictError when another record in collection uses email.
// excludeID, when set, names the record being updated.
func (g *UniquenessGuard) CheckEmailUnique(ctx context.Context, collection, email, excludeID string) error {
	return g.check(ctx, collection, models.FieldEmail, email, excludeID)
}

// CheckRoleKeyUnique checks the employeeID of teachers or the enrollmentNumber of students.
func (g *UniquenessGuard) CheckRoleKeyUnique(ctx context.Context, role models.Role, key, excludeID string) error {
	switch role {
	case models.RoleTeacher:
		return g.check(ctx, models.CollectionTeachers, models.FieldEmployeeID, key, excludeID)
	case models.RoleStudent:
		return g.check(ctx, models.CollectionStudents, models.FieldEnrollmentNumber, key, excludeID)
	default:
		return oops.Code("AUTH_NO_ROLE_KEY").With("role", role).Wrapf(ErrMalformed, "role %q has no unique key", role)
	}
}

func (g *UniquenessGuard) check(ctx context.Context, collection, field, value, excludeID string) error {
	filter := storage.Filter{field: value}
	if excludeID != "" {
		filter[models.FieldID] = storage.Ne{Value: excludeID}
	}
	existing, err := g.store.Collection(collection).FindOne(ctx, filter)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil
	case err != nil:
		return oops.Code("STORE_QUERY_FAILED").With("collection", collection).Wrapf(err, "check %s", field)
	}
	return &ConflictError{Collection: collection, Field: field, Value: value, Existing: existing}
}
