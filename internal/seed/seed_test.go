package seed

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/mail"
	"path/filepath"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/students-api/internal/config"
	"github.com/aanand-mishra/students-api/internal/storage/sqlite"
	"github.com/aanand-mishra/students-api/internal/types"
)

type probe bool

func (p probe) IsExternalAvailable(context.Context) bool { return bool(p) }

func newStore(t *testing.T) *sqlite.SQLite {
	t.Helper()
	db, err := sqlite.New(&config.Config{StoragePath: filepath.Join(t.TempDir(), "seed.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newSeeder(db *sqlite.SQLite, available bool) *Seeder {
	return New(db, probe(available),
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func TestRun_DirectoryDownEmptyDatabase(t *testing.T) {
	t.Parallel()
	db := newStore(t)
	ctx := context.Background()

	res, err := newSeeder(db, false).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, len(subjects), res.Courses)
	assert.Equal(t, studentCount, res.Students)
	assert.GreaterOrEqual(t, res.Enrollments, studentCount)
	assert.LessOrEqual(t, res.Enrollments, 4*studentCount)

	students, err := db.FindAllStudents(ctx)
	require.NoError(t, err)
	require.Len(t, students, studentCount)

	validate := validator.New()
	for _, s := range students {
		assert.NoError(t, validate.Struct(s), s.Email)
		_, err := mail.ParseAddress(s.Email)
		assert.NoError(t, err)
		assert.NotEmpty(t, s.Courses, "every student takes at least one course")
	}

	courses, err := db.GetCourses(ctx)
	require.NoError(t, err)
	for _, c := range courses {
		assert.NoError(t, validate.Struct(c), c.Name)
	}
}

func TestRun_DirectoryUpLoadsCoursesOnly(t *testing.T) {
	t.Parallel()
	db := newStore(t)
	ctx := context.Background()

	res, err := newSeeder(db, true).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Courses: len(subjects)}, res)

	n, err := db.CountStudents(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRun_NothingToDo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		available bool
		prepare   func(t *testing.T, db *sqlite.SQLite)
	}{
		{
			name:      "directory down, students present",
			available: false,
			prepare: func(t *testing.T, db *sqlite.SQLite) {
				_, err := db.SaveStudent(context.Background(), types.Student{Name: "Ana", Email: "ana@x.com"})
				require.NoError(t, err)
			},
		},
		{
			name:      "directory down, courses present",
			available: false,
			prepare: func(t *testing.T, db *sqlite.SQLite) {
				_, err := db.CreateCourse(context.Background(), types.Course{Name: "Go", DurationHours: 1})
				require.NoError(t, err)
			},
		},
		{
			name:      "directory up, courses present",
			available: true,
			prepare: func(t *testing.T, db *sqlite.SQLite) {
				_, err := db.CreateCourse(context.Background(), types.Course{Name: "Go", DurationHours: 1})
				require.NoError(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			db := newStore(t)
			tt.prepare(t, db)

			res, err := newSeeder(db, tt.available).Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, Result{}, res)
		})
	}
}

func TestRun_IsIdempotent(t *testing.T) {
	t.Parallel()
	db := newStore(t)
	ctx := context.Background()

	_, err := newSeeder(db, false).Run(ctx)
	require.NoError(t, err)

	res, err := newSeeder(db, false).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestRun_SameSourceSameData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var runs [2][]types.Student
	for i := range runs {
		db := newStore(t)
		_, err := newSeeder(db, false).Run(ctx)
		require.NoError(t, err)

		runs[i], err = db.FindAllStudents(ctx)
		require.NoError(t, err)
	}

	require.Len(t, runs[0], studentCount)
	for i := range runs[0] {
		assert.Equal(t, runs[0][i].Name, runs[1][i].Name)
		assert.Equal(t, runs[0][i].Email, runs[1][i].Email)
		assert.Equal(t, len(runs[0][i].Courses), len(runs[1][i].Courses))
	}
}

func TestEmailPart(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Lucia":     "lucia",
		"O'Connell": "oconnell",
		"Mary-Jane": "maryjane",
		"Muñoz":     "muoz",
		"Ñ":         "student",
	}
	for in, want := range tests {
		assert.Equal(t, want, emailPart(in), in)
	}
}
