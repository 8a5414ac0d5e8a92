package models

// Document field names shared by every identity collection.
const (
	FieldID               = "_id"
	FieldRole             = "role"
	FieldName             = "name"
	FieldEmail            = "email"
	FieldPassword         = "password"
	FieldEmployeeID       = "employeeID"
	FieldEnrollmentNumber = "enrollmentNumber"
	FieldDepartment       = "department"
	FieldClassCode        = "classCode"
)

// Identity is the resolved, role-tagged view of a credential record. Exactly one
// of Teacher and Student is set for the matching role; both are nil for generic users.
type Identity struct {
	ID           string          `json:"id"`
	Role         Role            `json:"role"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	PasswordHash string          `json:"-"`
	Teacher      *TeacherProfile `json:"teacher,omitempty"`
	Student      *StudentProfile `json:"student,omitempty"`
}

// TeacherProfile holds teacher-only fields.
type TeacherProfile struct {
	EmployeeID string `json:"employeeID"`
}

// StudentProfile holds student-only fields.
type StudentProfile struct {
	EnrollmentNumber string  `json:"enrollmentNumber"`
	Department       string  `json:"department"`
	ClassCode        *string `json:"classCode"`
}

// Document renders the identity as it is persisted in its collection, without the id.
func (i Identity) Document() map[string]any {
	doc := map[string]any{
		FieldRole:     string(i.Role),
		FieldName:     i.Name,
		FieldEmail:    i.Email,
		FieldPassword: i.PasswordHash,
	}
	switch {
	case i.Teacher != nil:
		doc[FieldEmployeeID] = i.Teacher.EmployeeID
	case i.Student != nil:
		doc[FieldEnrollmentNumber] = i.Student.EnrollmentNumber
		doc[FieldDepartment] = i.Student.Department
		if i.Student.ClassCode != nil {
			doc[FieldClassCode] = *i.Student.ClassCode
		}
	}
	return doc
}

// Profile returns the role-specific fields, or nil for generic users.
func (i Identity) Profile() map[string]any {
	switch {
	case i.Teacher != nil:
		return map[string]any{FieldEmployeeID: i.Teacher.EmployeeID}
	case i.Student != nil:
		out := map[string]any{
			FieldEnrollmentNumber: i.Student.EnrollmentNumber,
			FieldDepartment:       i.Student.Department,
		}
		if i.Student.ClassCode != nil {
			out[FieldClassCode] = *i.Student.ClassCode
		}
		return out
	}
	return nil
}
