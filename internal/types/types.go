// Package types holds the models shared by the handlers, the local store,
// the directory client and the reconciliation service.
package types

// Student represents a student record as the API exposes it.
//
// A Student is owned by whichever store produced it: the local SQLite
// database or the external user directory. Courses is only ever populated
// for local records; enrollment is a local-only relationship, so students
// derived from the directory always carry an empty list.
//
// The validate tags are checked when a student arrives in a request body.
type Student struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"  validate:"required,max=100"`
	Email   string   `json:"email" validate:"required,email,max=100"`
	Courses []Course `json:"courses"`
}

// Course is a locally owned course a student can be enrolled in.
type Course struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"           validate:"required,max=100"`
	Description   string `json:"description"    validate:"max=255"`
	DurationHours int    `json:"duration_hours" validate:"required,min=1"`
}

// RemoteUser is a user entry as served by the external directory service.
//
// The JSON names are the directory's own wire names and must not be
// changed: they are what the remote service sends and expects.
type RemoteUser struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"telefono,omitempty"`
	Role     string `json:"rol,omitempty"`
	City     string `json:"ciudad,omitempty"`
	Active   bool   `json:"activo"`
	Password string `json:"userPassword,omitempty"`
}

// RoleStudent is the directory role assigned to users pushed from here.
const RoleStudent = "STUDENT"
