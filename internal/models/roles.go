package models

// Role tags which identity collection a credential record belongs to.
type Role string

const (
	RoleGeneric Role = "generic"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleGeneric, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// Collection names of the document store.
const (
	CollectionUsers         = "users"
	CollectionTeachers      = "teachers"
	CollectionStudents      = "students"
	CollectionLearningPaths = "learning_paths"
)

// Collection returns the collection holding identities of role r.
func (r Role) Collection() string {
	switch r {
	case RoleTeacher:
		return CollectionTeachers
	case RoleStudent:
		return CollectionStudents
	default:
		return CollectionUsers
	}
}

// IdentityCollections lists identity collections in resolution order.
var IdentityCollections = []string{CollectionUsers, CollectionTeachers, CollectionStudents}
