package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/students-api/internal/config"
	"github.com/aanand-mishra/students-api/internal/storage"
	"github.com/aanand-mishra/students-api/internal/types"
)

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := New(&config.Config{StoragePath: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSaveStudent_InsertAndFind(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	saved, err := db.SaveStudent(ctx, types.Student{Name: "Carlos", Email: "c@x.com"})
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)
	assert.Equal(t, "Carlos", saved.Name)
	assert.NotNil(t, saved.Courses)

	byID, err := db.FindStudentByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved, byID)

	byEmail, err := db.FindStudentByEmail(ctx, "C@X.COM")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, byEmail.ID)

	exists, err := db.ExistsStudentByEmail(ctx, "c@x.com")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = db.ExistsStudentByID(ctx, saved.ID+100)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSaveStudent_UpsertUnderGivenID(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	// row does not exist yet: inserted under id 42
	saved, err := db.SaveStudent(ctx, types.Student{ID: 42, Name: "Ana", Email: "ana@x.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), saved.ID)

	// row exists: replaced in place
	saved, err = db.SaveStudent(ctx, types.Student{ID: 42, Name: "Ana María", Email: "ana.maria@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "Ana María", saved.Name)
	assert.Equal(t, "ana.maria@x.com", saved.Email)

	n, err := db.CountStudents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSaveStudent_DuplicateEmailIsConflict(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.SaveStudent(ctx, types.Student{Name: "A", Email: "dup@x.com"})
	require.NoError(t, err)

	_, err = db.SaveStudent(ctx, types.Student{Name: "B", Email: "DUP@x.com"})
	require.ErrorIs(t, err, storage.ErrConflict)

	_, err = db.SaveStudent(ctx, types.Student{ID: 9, Name: "C", Email: "dup@x.com"})
	require.ErrorIs(t, err, storage.ErrConflict)
}

func TestFindStudent_NotFound(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.FindStudentByID(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = db.FindStudentByEmail(ctx, "none@x.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteStudentByID(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	saved, err := db.SaveStudent(ctx, types.Student{Name: "A", Email: "a@x.com"})
	require.NoError(t, err)

	require.NoError(t, db.DeleteStudentByID(ctx, saved.ID))
	assert.ErrorIs(t, db.DeleteStudentByID(ctx, saved.ID), storage.ErrNotFound)
}

func TestFindAllStudents_EmptyIsNotNil(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	students, err := db.FindAllStudents(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, students)
	assert.Empty(t, students)
}

func TestCourses_CRUD(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.CreateCourse(ctx, types.Course{Name: "Algoritmos", Description: "intro", DurationHours: 40})
	require.NoError(t, err)

	course, err := db.GetCourseByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Algoritmos", course.Name)

	updated, err := db.UpdateCourse(ctx, id, types.Course{Name: "Algoritmos II", DurationHours: 60})
	require.NoError(t, err)
	assert.Equal(t, "Algoritmos II", updated.Name)
	assert.Equal(t, 60, updated.DurationHours)

	_, err = db.UpdateCourse(ctx, id+1, types.Course{Name: "x", DurationHours: 1})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	courses, err := db.GetCourses(ctx)
	require.NoError(t, err)
	assert.Len(t, courses, 1)

	require.NoError(t, db.DeleteCourse(ctx, id))
	assert.ErrorIs(t, db.DeleteCourse(ctx, id), storage.ErrNotFound)

	n, err := db.CountCourses(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEnrollment(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	courseID, err := db.CreateCourse(ctx, types.Course{Name: "DevOps", DurationHours: 30})
	require.NoError(t, err)
	student, err := db.SaveStudent(ctx, types.Student{Name: "Ana", Email: "ana@x.com"})
	require.NoError(t, err)

	require.NoError(t, db.Enroll(ctx, courseID, student.ID))
	require.NoError(t, db.Enroll(ctx, courseID, student.ID), "enrolling twice is a no-op")

	assert.ErrorIs(t, db.Enroll(ctx, courseID, student.ID+1), storage.ErrNotFound)
	assert.ErrorIs(t, db.Enroll(ctx, courseID+1, student.ID), storage.ErrNotFound)

	enrolled, err := db.GetCourseStudents(ctx, courseID)
	require.NoError(t, err)
	require.Len(t, enrolled, 1)
	assert.Equal(t, student.ID, enrolled[0].ID)

	withCourses, err := db.FindStudentByID(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, withCourses.Courses, 1)
	assert.Equal(t, "DevOps", withCourses.Courses[0].Name)

	all, err := db.FindAllStudents(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Len(t, all[0].Courses, 1)

	require.NoError(t, db.Unenroll(ctx, courseID, student.ID))
	assert.ErrorIs(t, db.Unenroll(ctx, courseID, student.ID), storage.ErrNotFound)
}

func TestDeleteCourse_CascadesEnrollments(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	courseID, err := db.CreateCourse(ctx, types.Course{Name: "DevOps", DurationHours: 30})
	require.NoError(t, err)
	student, err := db.SaveStudent(ctx, types.Student{Name: "Ana", Email: "ana@x.com"})
	require.NoError(t, err)
	require.NoError(t, db.Enroll(ctx, courseID, student.ID))

	require.NoError(t, db.DeleteCourse(ctx, courseID))

	got, err := db.FindStudentByID(ctx, student.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Courses)
}
