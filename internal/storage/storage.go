// Package storage declares what the service needs from its local database.
//
// The reconciliation service depends on StudentStore only; the course
// handlers and the seeder use CourseStore. internal/storage/sqlite
// implements both.
package storage

import (
	"context"
	"errors"

	"github.com/aanand-mishra/students-api/internal/types"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a write violates a uniqueness
	// constraint (for students: the email column).
	ErrConflict = errors.New("record conflicts with an existing one")
)

// StudentStore is the local persistent collection of student records.
type StudentStore interface {
	// FindAllStudents returns every local student, ordered by id.
	// Returns an empty slice (not nil) if there are none.
	FindAllStudents(ctx context.Context) ([]types.Student, error)

	// FindStudentByID returns ErrNotFound if no row matches.
	FindStudentByID(ctx context.Context, id int64) (types.Student, error)

	// FindStudentByEmail returns ErrNotFound if no row matches.
	FindStudentByEmail(ctx context.Context, email string) (types.Student, error)

	ExistsStudentByEmail(ctx context.Context, email string) (bool, error)
	ExistsStudentByID(ctx context.Context, id int64) (bool, error)

	// SaveStudent inserts the student when ID is zero (a new id is
	// generated) and inserts-or-replaces it under the given ID otherwise.
	// Returns ErrConflict if the email is taken by another row.
	SaveStudent(ctx context.Context, student types.Student) (types.Student, error)

	// DeleteStudentByID returns ErrNotFound if no row was removed.
	DeleteStudentByID(ctx context.Context, id int64) error

	CountStudents(ctx context.Context) (int64, error)
}

// CourseStore holds courses and the student–course enrollment relation.
type CourseStore interface {
	CreateCourse(ctx context.Context, course types.Course) (int64, error)
	GetCourseByID(ctx context.Context, id int64) (types.Course, error)
	GetCourses(ctx context.Context) ([]types.Course, error)
	UpdateCourse(ctx context.Context, id int64, course types.Course) (types.Course, error)
	DeleteCourse(ctx context.Context, id int64) error
	CountCourses(ctx context.Context) (int64, error)

	// Enroll links a local student to a course. Enrolling twice is a no-op.
	Enroll(ctx context.Context, courseID, studentID int64) error
	Unenroll(ctx context.Context, courseID, studentID int64) error
	GetCourseStudents(ctx context.Context, courseID int64) ([]types.Student, error)
}

// Storage is the full database contract.
// Any concrete type that implements ALL of these methods automatically
// satisfies this interface.
type Storage interface {
	StudentStore
	CourseStore
}
