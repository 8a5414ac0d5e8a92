package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/oops"
	"go.uber.org/zap"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/logger"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/storage"
)

// UserInput registers a generic user.
type UserInput struct {
	Name     string
	Email    string
	Password string
}

// TeacherInput registers or updates a teacher.
type TeacherInput struct {
	Name       string
	Email      string
	Password   string
	EmployeeID string
}

// StudentInput registers or updates a student. A nil ClassCode leaves the stored class untouched.
type StudentInput struct {
	Name             string
	Email            string
	Password         string
	EnrollmentNumber string
	Department       string
	ClassCode        *string
}

// RegisterUser creates or replaces the generic user holding in.Email.
func (s *Service) RegisterUser(ctx context.Context, in UserInput) (models.Identity, error) {
	id := models.Identity{Role: models.RoleGeneric, Name: in.Name, Email: in.Email}
	return s.register(ctx, id, in.Password, "")
}

// RegisterTeacher creates or updates the teacher holding in.Email. The employeeID must not
// belong to a different teacher. Updating an existing record needs an actor on ctx that
// may modify it.
func (s *Service) RegisterTeacher(ctx context.Context, in TeacherInput) (models.Identity, error) {
	id := models.Identity{
		Role:    models.RoleTeacher,
		Name:    in.Name,
		Email:   in.Email,
		Teacher: &models.TeacherProfile{EmployeeID: strings.TrimSpace(in.EmployeeID)},
	}
	return s.register(ctx, id, in.Password, id.Teacher.EmployeeID)
}

// RegisterStudent creates or updates the student holding in.Email. A supplied class code
// must name an existing learning path.
func (s *Service) RegisterStudent(ctx context.Context, in StudentInput) (models.Identity, error) {
	id := models.Identity{
		Role:  models.RoleStudent,
		Name:  in.Name,
		Email: in.Email,
		Student: &models.StudentProfile{
			EnrollmentNumber: strings.TrimSpace(in.EnrollmentNumber),
			Department:       strings.TrimSpace(in.Department),
			ClassCode:        in.ClassCode,
		},
	}
	return s.register(ctx, id, in.Password, id.Student.EnrollmentNumber)
}

func (s *Service) register(ctx context.Context, id models.Identity, password, roleKey string) (models.Identity, error) {
	id.Name = strings.TrimSpace(id.Name)
	id.Email = strings.TrimSpace(id.Email)
	if err := requireFields(id, password, roleKey); err != nil {
		return models.Identity{}, err
	}
	collection := id.Role.Collection()

	if err := s.checkEmailElsewhere(ctx, collection, id.Email); err != nil {
		return models.Identity{}, err
	}
	existing, err := s.store.Collection(collection).FindOne(ctx, storage.Filter{models.FieldEmail: id.Email})
	switch {
	case errors.Is(err, storage.ErrNotFound):
		existing = nil
	case err != nil:
		return models.Identity{}, oops.Code("STORE_QUERY_FAILED").Wrapf(err, "find %s", collection)
	}
	if existing != nil {
		if err := authorizeOverwrite(ctx, existing); err != nil {
			return models.Identity{}, err
		}
	}
	if id.Role != models.RoleGeneric {
		if err := s.guard.CheckRoleKeyUnique(ctx, id.Role, roleKey, existing.ID()); err != nil {
			return models.Identity{}, s.conflict(ctx, err)
		}
	}
	if id.Student != nil && id.Student.ClassCode != nil {
		if err := s.classes.Validate(ctx, *id.Student.ClassCode); err != nil {
			return models.Identity{}, err
		}
	}

	if id.PasswordHash, err = s.hasher.Prepare(password); err != nil {
		return models.Identity{}, err
	}
	res, err := s.store.Collection(collection).UpdateOne(ctx,
		storage.Filter{models.FieldEmail: id.Email},
		storage.Document(id.Document()),
		true,
	)
	if err != nil {
		return models.Identity{}, storeWriteErr(err, collection)
	}
	docID := res.UpsertedID
	if docID == "" {
		docID = existing.ID()
	}
	logger.From(ctx).Info("identity registered",
		logger.SubjectID(docID),
		zap.String("role", string(id.Role)),
		zap.Bool("created", res.UpsertedID != ""),
	)
	return s.load(ctx, collection, storage.Filter{models.FieldID: docID})
}

// UpdateTeacher changes the teacher holding email. Empty fields keep their stored values.
func (s *Service) UpdateTeacher(ctx context.Context, email string, in TeacherInput) (models.Identity, error) {
	set := storage.Document{}
	if v := strings.TrimSpace(in.EmployeeID); v != "" {
		set[models.FieldEmployeeID] = v
	}
	return s.update(ctx, models.RoleTeacher, email, in.Name, in.Email, in.Password, set)
}

// UpdateStudent changes the student holding email. Empty fields keep their stored values and
// the class code is only touched when supplied.
func (s *Service) UpdateStudent(ctx context.Context, email string, in StudentInput) (models.Identity, error) {
	set := storage.Document{}
	if v := strings.TrimSpace(in.EnrollmentNumber); v != "" {
		set[models.FieldEnrollmentNumber] = v
	}
	if v := strings.TrimSpace(in.Department); v != "" {
		set[models.FieldDepartment] = v
	}
	if in.ClassCode != nil {
		if err := s.classes.Validate(ctx, *in.ClassCode); err != nil {
			return models.Identity{}, err
		}
		set[models.FieldClassCode] = *in.ClassCode
	}
	return s.update(ctx, models.RoleStudent, email, in.Name, in.Email, in.Password, set)
}

func (s *Service) update(ctx context.Context, role models.Role, email, name, newEmail, password string, set storage.Document) (models.Identity, error) {
	collection := role.Collection()
	current, err := s.findIn(ctx, collection, strings.TrimSpace(email))
	if err != nil {
		return models.Identity{}, err
	}
	selfID := current.ID()

	if v := strings.TrimSpace(name); v != "" {
		set[models.FieldName] = v
	}
	if v := strings.TrimSpace(newEmail); v != "" && v != current[models.FieldEmail] {
		if err := s.guard.CheckEmailUnique(ctx, collection, v, selfID); err != nil {
			return models.Identity{}, s.conflict(ctx, err)
		}
		if err := s.checkEmailElsewhere(ctx, collection, v); err != nil {
			return models.Identity{}, err
		}
		set[models.FieldEmail] = v
	}
	if key, ok := set[roleKeyField(role)].(string); ok {
		if err := s.guard.CheckRoleKeyUnique(ctx, role, key, selfID); err != nil {
			return models.Identity{}, s.conflict(ctx, err)
		}
	}
	if password != "" {
		hash, err := s.hasher.Prepare(password)
		if err != nil {
			return models.Identity{}, err
		}
		set[models.FieldPassword] = hash
	}

	if len(set) > 0 {
		_, err = s.store.Collection(collection).UpdateOne(ctx, storage.Filter{models.FieldID: selfID}, set, false)
		if err != nil {
			return models.Identity{}, storeWriteErr(err, collection)
		}
	}
	return s.load(ctx, collection, storage.Filter{models.FieldID: selfID})
}

// Get returns the identity with email from the collection of role.
func (s *Service) Get(ctx context.Context, role models.Role, email string) (models.Identity, error) {
	return s.load(ctx, role.Collection(), storage.Filter{models.FieldEmail: strings.TrimSpace(email)})
}

// List returns every identity in the collection of role. Records that cannot be classified are skipped.
func (s *Service) List(ctx context.Context, role models.Role) ([]models.Identity, error) {
	docs, err := s.store.Collection(role.Collection()).FindMany(ctx, storage.Filter{})
	if err != nil {
		return nil, oops.Code("STORE_QUERY_FAILED").Wrapf(err, "list %s", role.Collection())
	}
	out := make([]models.Identity, 0, len(docs))
	for _, doc := range docs {
		id, err := Classify(doc)
		if err != nil {
			logger.From(ctx).Warn("skipping unusable record", logger.SubjectID(doc.ID()), zap.Error(err))
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// Delete removes the identity with email from the collection of role.
func (s *Service) Delete(ctx context.Context, role models.Role, email string) error {
	n, err := s.store.Collection(role.Collection()).DeleteOne(ctx, storage.Filter{models.FieldEmail: strings.TrimSpace(email)})
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").Wrapf(err, "delete from %s", role.Collection())
	}
	if n == 0 {
		return oops.Code("AUTH_IDENTITY_NOT_FOUND").With("email", email).Wrapf(ErrNotFound, "%s %s", role, email)
	}
	return nil
}

// authorizeOverwrite lets re-registration of an existing email through only for the
// holder of that identity or a teacher.
func authorizeOverwrite(ctx context.Context, existing storage.Document) error {
	email, _ := existing.String(models.FieldEmail)
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return oops.Code("AUTH_OVERWRITE_DENIED").With("subject_id", existing.ID()).
			Wrapf(ErrUnauthorized, "%s is already registered", email)
	}
	if !actor.CanModify(email, existing.ID()) {
		logger.From(ctx).Warn("re-registration refused", logger.SubjectID(existing.ID()), zap.String("actor", actor.Subject))
		return oops.Code("AUTH_OVERWRITE_DENIED").With("subject_id", existing.ID()).
			Wrapf(ErrForbidden, "%s is already registered", email)
	}
	return nil
}

// checkEmailElsewhere rejects an email already held by an identity in another collection,
// since login resolves emails across all of them.
func (s *Service) checkEmailElsewhere(ctx context.Context, own, email string) error {
	for _, name := range models.IdentityCollections {
		if name == own {
			continue
		}
		if err := s.guard.CheckEmailUnique(ctx, name, email, ""); err != nil {
			return s.conflict(ctx, err)
		}
	}
	return nil
}

func (s *Service) conflict(ctx context.Context, err error) error {
	var ce *ConflictError
	if errors.As(err, &ce) {
		logger.From(ctx).Info("registration conflict",
			zap.String("collection", ce.Collection),
			zap.String("field", ce.Field),
			logger.SubjectID(ce.Existing.ID()),
		)
	}
	return err
}

func (s *Service) findIn(ctx context.Context, collection, email string) (storage.Document, error) {
	doc, err := s.store.Collection(collection).FindOne(ctx, storage.Filter{models.FieldEmail: email})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, oops.Code("AUTH_IDENTITY_NOT_FOUND").With("email", email).Wrapf(ErrNotFound, "%s in %s", email, collection)
	}
	if err != nil {
		return nil, oops.Code("STORE_QUERY_FAILED").Wrapf(err, "find %s", collection)
	}
	return doc, nil
}

func (s *Service) load(ctx context.Context, collection string, filter storage.Filter) (models.Identity, error) {
	doc, err := s.store.Collection(collection).FindOne(ctx, filter)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Identity{}, oops.Code("AUTH_IDENTITY_NOT_FOUND").Wrapf(ErrNotFound, "identity in %s", collection)
	}
	if err != nil {
		return models.Identity{}, oops.Code("STORE_QUERY_FAILED").Wrapf(err, "find %s", collection)
	}
	return Classify(doc)
}

func requireFields(id models.Identity, password, roleKey string) error {
	var missing []string
	if id.Name == "" {
		missing = append(missing, models.FieldName)
	}
	if id.Email == "" {
		missing = append(missing, models.FieldEmail)
	}
	if password == "" {
		missing = append(missing, models.FieldPassword)
	}
	if id.Role != models.RoleGeneric && roleKey == "" {
		missing = append(missing, roleKeyField(id.Role))
	}
	if len(missing) > 0 {
		return oops.Code("AUTH_MISSING_FIELDS").With("fields", missing).
			Wrapf(ErrMalformed, "missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func roleKeyField(role models.Role) string {
	switch role {
	case models.RoleTeacher:
		return models.FieldEmployeeID
	case models.RoleStudent:
		return models.FieldEnrollmentNumber
	}
	return ""
}

// storeWriteErr turns a store-level unique violation into ErrConflict.
func storeWriteErr(err error, collection string) error {
	if errors.Is(err, storage.ErrAlreadyExists) {
		return oops.Code("AUTH_CONFLICT").With("collection", collection).Wrapf(ErrConflict, "%v", err)
	}
	return oops.Code("STORE_WRITE_FAILED").With("collection", collection).Wrapf(err, "write %s", collection)
}
