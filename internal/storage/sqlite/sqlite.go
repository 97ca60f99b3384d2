// Package sqlite is the single-file local store: students, courses and
// their enrollments.
//
// github.com/mattn/go-sqlite3 registers the "sqlite3" driver with
// database/sql; its Error type is also used to recognise unique-constraint
// violations.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/aanand-mishra/students-api/internal/config"
	"github.com/aanand-mishra/students-api/internal/storage"
	"github.com/aanand-mishra/students-api/internal/types"
)

// SQLite implements storage.Storage over a pooled *sql.DB.
type SQLite struct {
	Db *sql.DB
}

var _ storage.Storage = (*SQLite)(nil)

// schema is idempotent — safe to run on every startup.
//
//	students    — email is unique, compared case-insensitively
//	courses     — duration is in hours
//	enrollments — many-to-many link, removed with either side
const schema = `
	CREATE TABLE IF NOT EXISTS students (
		id    INTEGER PRIMARY KEY AUTOINCREMENT,
		name  TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE
	);

	CREATE TABLE IF NOT EXISTS courses (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		name           TEXT    NOT NULL,
		description    TEXT    NOT NULL DEFAULT '',
		duration_hours INTEGER NOT NULL CHECK (duration_hours >= 1)
	);

	CREATE TABLE IF NOT EXISTS enrollments (
		course_id  INTEGER NOT NULL REFERENCES courses(id)  ON DELETE CASCADE,
		student_id INTEGER NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		PRIMARY KEY (course_id, student_id)
	);
`

// New opens cfg.StoragePath and applies the schema.
func New(cfg *config.Config) (*SQLite, error) {
	// _foreign_keys turns on ON DELETE CASCADE for every pooled connection,
	// _busy_timeout makes concurrent writers wait instead of failing.
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", cfg.StoragePath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.New: create tables: %w", err)
	}

	return &SQLite{Db: db}, nil
}

// Close releases the connection pool.
func (s *SQLite) Close() error {
	return s.Db.Close()
}

// isUniqueViolation reports whether err is SQLite's UNIQUE constraint error.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// ─────────────────────────────────────────────────────────────────────────────
// Students
// ─────────────────────────────────────────────────────────────────────────────

// FindAllStudents returns all student rows, each with its enrolled courses.
//
// Courses are loaded with a single extra query and grouped in memory, so
// listing N students costs two round trips instead of N+1.
func (s *SQLite) FindAllStudents(ctx context.Context) ([]types.Student, error) {
	rows, err := s.Db.QueryContext(ctx, "SELECT id, name, email FROM students ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("FindAllStudents: query: %w", err)
	}
	defer rows.Close()

	// Returning [] instead of null in JSON is better API behaviour.
	students := make([]types.Student, 0)
	for rows.Next() {
		student := types.Student{Courses: []types.Course{}}
		if err := rows.Scan(&student.ID, &student.Name, &student.Email); err != nil {
			return nil, fmt.Errorf("FindAllStudents: scan row: %w", err)
		}
		students = append(students, student)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("FindAllStudents: rows iteration: %w", err)
	}

	byStudent, err := s.enrolledCourses(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("FindAllStudents: %w", err)
	}
	for i := range students {
		if courses, ok := byStudent[students[i].ID]; ok {
			students[i].Courses = courses
		}
	}

	return students, nil
}

// enrolledCourses maps student id → enrolled courses. An empty filter
// loads every enrollment; otherwise filter is a WHERE clause on e.student_id.
func (s *SQLite) enrolledCourses(ctx context.Context, filter string, args ...any) (map[int64][]types.Course, error) {
	query := `
		SELECT e.student_id, c.id, c.name, c.description, c.duration_hours
		FROM enrollments e
		JOIN courses c ON c.id = e.course_id`
	if filter != "" {
		query += " WHERE " + filter
	}
	query += " ORDER BY c.id"

	rows, err := s.Db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("enrolled courses: query: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]types.Course)
	for rows.Next() {
		var studentID int64
		var course types.Course
		if err := rows.Scan(&studentID, &course.ID, &course.Name, &course.Description, &course.DurationHours); err != nil {
			return nil, fmt.Errorf("enrolled courses: scan row: %w", err)
		}
		out[studentID] = append(out[studentID], course)
	}

	return out, rows.Err()
}

// FindStudentByID fetches exactly one student row matched by primary key.
func (s *SQLite) FindStudentByID(ctx context.Context, id int64) (types.Student, error) {
	return s.findStudent(ctx, "FindStudentByID", "id = ?", id)
}

// FindStudentByEmail matches the email case-insensitively (the column is
// declared COLLATE NOCASE).
func (s *SQLite) FindStudentByEmail(ctx context.Context, email string) (types.Student, error) {
	return s.findStudent(ctx, "FindStudentByEmail", "email = ?", email)
}

func (s *SQLite) findStudent(ctx context.Context, op, where string, arg any) (types.Student, error) {
	stmt, err := s.Db.PrepareContext(ctx,
		"SELECT id, name, email FROM students WHERE "+where+" LIMIT 1",
	)
	if err != nil {
		return types.Student{}, fmt.Errorf("%s: prepare: %w", op, err)
	}
	defer stmt.Close()

	student := types.Student{Courses: []types.Course{}}

	// QueryRow returns exactly one row. If the query finds no match the
	// error surfaces only when we call Scan.
	err = stmt.QueryRowContext(ctx, arg).Scan(&student.ID, &student.Name, &student.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Student{}, fmt.Errorf("%s: %v: %w", op, arg, storage.ErrNotFound)
		}
		return types.Student{}, fmt.Errorf("%s: scan: %w", op, err)
	}

	courses, err := s.enrolledCourses(ctx, "e.student_id = ?", student.ID)
	if err != nil {
		return types.Student{}, fmt.Errorf("%s: %w", op, err)
	}
	if c, ok := courses[student.ID]; ok {
		student.Courses = c
	}

	return student, nil
}

func (s *SQLite) ExistsStudentByEmail(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, "SELECT EXISTS(SELECT 1 FROM students WHERE email = ?)", email)
}

func (s *SQLite) ExistsStudentByID(ctx context.Context, id int64) (bool, error) {
	return s.exists(ctx, "SELECT EXISTS(SELECT 1 FROM students WHERE id = ?)", id)
}

func (s *SQLite) exists(ctx context.Context, query string, arg any) (bool, error) {
	var found bool
	if err := s.Db.QueryRowContext(ctx, query, arg).Scan(&found); err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return found, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// SaveStudent inserts or replaces a student row.
//
//   - ID == 0: plain INSERT, SQLite generates the primary key.
//   - ID != 0: UPSERT under that key. This is how a record returned by the
//     external directory is mirrored locally: the row may or may not exist
//     yet, and either way it ends up holding the given values.
//
// A clash on the UNIQUE email column is reported as storage.ErrConflict.
// ─────────────────────────────────────────────────────────────────────────────
func (s *SQLite) SaveStudent(ctx context.Context, student types.Student) (types.Student, error) {
	if student.ID == 0 {
		result, err := s.Db.ExecContext(ctx,
			"INSERT INTO students (name, email) VALUES (?, ?)",
			student.Name, student.Email,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return types.Student{}, fmt.Errorf("SaveStudent: email %q: %w", student.Email, storage.ErrConflict)
			}
			return types.Student{}, fmt.Errorf("SaveStudent: insert: %w", err)
		}

		lastID, err := result.LastInsertId()
		if err != nil {
			return types.Student{}, fmt.Errorf("SaveStudent: last insert id: %w", err)
		}

		return types.Student{ID: lastID, Name: student.Name, Email: student.Email, Courses: []types.Course{}}, nil
	}

	_, err := s.Db.ExecContext(ctx, `
		INSERT INTO students (id, name, email) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email`,
		student.ID, student.Name, student.Email,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.Student{}, fmt.Errorf("SaveStudent: email %q: %w", student.Email, storage.ErrConflict)
		}
		return types.Student{}, fmt.Errorf("SaveStudent: upsert: %w", err)
	}

	// Re-fetch so we return exactly what is stored, enrollments included.
	return s.FindStudentByID(ctx, student.ID)
}

// DeleteStudentByID removes a student row by primary key. Its enrollments
// go with it (ON DELETE CASCADE).
func (s *SQLite) DeleteStudentByID(ctx context.Context, id int64) error {
	stmt, err := s.Db.PrepareContext(ctx, "DELETE FROM students WHERE id = ?")
	if err != nil {
		return fmt.Errorf("DeleteStudentByID: prepare: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("DeleteStudentByID: exec: %w", err)
	}

	return requireAffected(result, fmt.Sprintf("DeleteStudentByID: %d", id))
}

func (s *SQLite) CountStudents(ctx context.Context) (int64, error) {
	var n int64
	if err := s.Db.QueryRowContext(ctx, "SELECT COUNT(*) FROM students").Scan(&n); err != nil {
		return 0, fmt.Errorf("CountStudents: %w", err)
	}
	return n, nil
}

// requireAffected turns "zero rows touched" into storage.ErrNotFound.
func requireAffected(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}
