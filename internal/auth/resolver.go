package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/oops"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/storage"
)

// RawRecord is a credential document together with the collection it came from.
type RawRecord struct {
	Collection string
	Doc        storage.Document
}

// IdentityResolver finds credential records across the identity collections.
type IdentityResolver struct {
	store storage.Store
}

// NewIdentityResolver creates a resolver over store.
func NewIdentityResolver(store storage.Store) *IdentityResolver {
	return &IdentityResolver{store: store}
}

// FindByEmail searches users, then teachers, then students and returns the first match.
func (r *IdentityResolver) FindByEmail(ctx context.Context, email string) (RawRecord, error) {
	return r.find(ctx, storage.Filter{models.FieldEmail: email})
}

// FindByID searches the identity collections in the same order by document id.
func (r *IdentityResolver) FindByID(ctx context.Context, id string) (RawRecord, error) {
	return r.find(ctx, storage.Filter{models.FieldID: id})
}

// Resolve finds and classifies the identity holding email.
func (r *IdentityResolver) Resolve(ctx context.Context, email string) (models.Identity, error) {
	rec, err := r.FindByEmail(ctx, email)
	if err != nil {
		return models.Identity{}, err
	}
	return Classify(rec.Doc)
}

func (r *IdentityResolver) find(ctx context.Context, filter storage.Filter) (RawRecord, error) {
	for _, name := range models.IdentityCollections {
		doc, err := r.store.Collection(name).FindOne(ctx, filter)
		switch {
		case err == nil:
			return RawRecord{Collection: name, Doc: doc}, nil
		case errors.Is(err, storage.ErrNotFound):
			continue
		default:
			return RawRecord{}, oops.Code("STORE_QUERY_FAILED").With("collection", name).Wrapf(err, "find identity")
		}
	}
	return RawRecord{}, ErrNotFound
}

// Classify turns a raw record into a role-tagged identity by the role-specific fields it
// carries. A record with both an employeeID and an enrollmentNumber classifies as a teacher.
func Classify(doc storage.Document) (models.Identity, error) {
	id := models.Identity{ID: doc.ID()}
	var missing []string
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{models.FieldName, &id.Name},
		{models.FieldEmail, &id.Email},
		{models.FieldPassword, &id.PasswordHash},
	} {
		v, ok := doc.String(f.name)
		if !ok || v == "" {
			missing = append(missing, f.name)
			continue
		}
		*f.dst = v
	}
	if len(missing) > 0 {
		return models.Identity{}, oops.Code("AUTH_MALFORMED_RECORD").
			With("id", id.ID).
			Wrapf(ErrMalformed, "record missing %v", missing)
	}

	switch {
	case doc.Has(models.FieldEmployeeID):
		id.Role = models.RoleTeacher
		id.Teacher = &models.TeacherProfile{EmployeeID: text(doc[models.FieldEmployeeID])}
	case doc.Has(models.FieldEnrollmentNumber):
		id.Role = models.RoleStudent
		id.Student = &models.StudentProfile{
			EnrollmentNumber: text(doc[models.FieldEnrollmentNumber]),
			Department:       text(doc[models.FieldDepartment]),
		}
		if doc.Has(models.FieldClassCode) {
			code := text(doc[models.FieldClassCode])
			id.Student.ClassCode = &code
		}
	default:
		id.Role = models.RoleGeneric
	}
	return id, nil
}

// text renders legacy non-string identifiers, such as numeric employee ids, as strings.
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprint(t)
	}
}
