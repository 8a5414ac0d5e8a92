package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/oops"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/storage"
)

// ClassMembershipValidator checks class codes against learning-path documents.
type ClassMembershipValidator struct {
	store storage.Store
}

// NewClassMembershipValidator creates a validator over store.
func NewClassMembershipValidator(store storage.Store) *ClassMembershipValidator {
	return &ClassMembershipValidator{store: store}
}

// Validate returns ErrNotFound unless a learning path has classCode.
func (v *ClassMembershipValidator) Validate(ctx context.Context, classCode string) error {
	if strings.TrimSpace(classCode) == "" {
		return oops.Code("AUTH_EMPTY_CLASS_CODE").Wrapf(ErrMalformed, "class code is required")
	}
	_, err := v.store.Collection(models.CollectionLearningPaths).FindOne(ctx, storage.Filter{models.FieldClassCode: classCode})
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return oops.Code("AUTH_CLASS_NOT_FOUND").With("class_code", classCode).Wrapf(ErrNotFound, "class code %q", classCode)
	case err != nil:
		return oops.Code("STORE_QUERY_FAILED").Wrapf(err, "find learning path")
	}
	return nil
}

// AssignClass validates classCode and stores it on the student. A learning path deleted
// between the two steps leaves a stale reference.
func (v *ClassMembershipValidator) AssignClass(ctx context.Context, studentID, classCode string) error {
	if err := v.Validate(ctx, classCode); err != nil {
		return err
	}
	res, err := v.store.Collection(models.CollectionStudents).UpdateOne(ctx,
		storage.Filter{models.FieldID: studentID},
		storage.Document{models.FieldClassCode: classCode},
		false,
	)
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").Wrapf(err, "assign class")
	}
	if res.Matched == 0 {
		return oops.Code("AUTH_STUDENT_NOT_FOUND").With("student_id", studentID).Wrapf(ErrNotFound, "student %s", studentID)
	}
	return nil
}
