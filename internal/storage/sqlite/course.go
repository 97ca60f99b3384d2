package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aanand-mishra/students-api/internal/storage"
	"github.com/aanand-mishra/students-api/internal/types"
)

func (s *SQLite) CreateCourse(ctx context.Context, course types.Course) (int64, error) {
	stmt, err := s.Db.PrepareContext(ctx,
		"INSERT INTO courses (name, description, duration_hours) VALUES (?, ?, ?)",
	)
	if err != nil {
		return 0, fmt.Errorf("CreateCourse: prepare: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, course.Name, course.Description, course.DurationHours)
	if err != nil {
		return 0, fmt.Errorf("CreateCourse: exec: %w", err)
	}

	lastID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("CreateCourse: last insert id: %w", err)
	}

	return lastID, nil
}

func (s *SQLite) GetCourseByID(ctx context.Context, id int64) (types.Course, error) {
	var course types.Course
	err := s.Db.QueryRowContext(ctx,
		"SELECT id, name, description, duration_hours FROM courses WHERE id = ? LIMIT 1", id,
	).Scan(&course.ID, &course.Name, &course.Description, &course.DurationHours)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Course{}, fmt.Errorf("GetCourseByID: %d: %w", id, storage.ErrNotFound)
		}
		return types.Course{}, fmt.Errorf("GetCourseByID: scan: %w", err)
	}

	return course, nil
}

func (s *SQLite) GetCourses(ctx context.Context) ([]types.Course, error) {
	rows, err := s.Db.QueryContext(ctx,
		"SELECT id, name, description, duration_hours FROM courses ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("GetCourses: query: %w", err)
	}
	defer rows.Close()

	courses := make([]types.Course, 0)
	for rows.Next() {
		var course types.Course
		if err := rows.Scan(&course.ID, &course.Name, &course.Description, &course.DurationHours); err != nil {
			return nil, fmt.Errorf("GetCourses: scan row: %w", err)
		}
		courses = append(courses, course)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetCourses: rows iteration: %w", err)
	}

	return courses, nil
}

func (s *SQLite) UpdateCourse(ctx context.Context, id int64, course types.Course) (types.Course, error) {
	result, err := s.Db.ExecContext(ctx,
		"UPDATE courses SET name = ?, description = ?, duration_hours = ? WHERE id = ?",
		course.Name, course.Description, course.DurationHours, id,
	)
	if err != nil {
		return types.Course{}, fmt.Errorf("UpdateCourse: exec: %w", err)
	}
	if err := requireAffected(result, fmt.Sprintf("UpdateCourse: %d", id)); err != nil {
		return types.Course{}, err
	}

	return s.GetCourseByID(ctx, id)
}

func (s *SQLite) DeleteCourse(ctx context.Context, id int64) error {
	result, err := s.Db.ExecContext(ctx, "DELETE FROM courses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("DeleteCourse: exec: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("DeleteCourse: %d", id))
}

func (s *SQLite) CountCourses(ctx context.Context) (int64, error) {
	var n int64
	if err := s.Db.QueryRowContext(ctx, "SELECT COUNT(*) FROM courses").Scan(&n); err != nil {
		return 0, fmt.Errorf("CountCourses: %w", err)
	}
	return n, nil
}

// Enroll links a local student to a course. Both must exist locally;
// students that only live in the external directory cannot be enrolled.
func (s *SQLite) Enroll(ctx context.Context, courseID, studentID int64) error {
	if _, err := s.GetCourseByID(ctx, courseID); err != nil {
		return fmt.Errorf("Enroll: %w", err)
	}

	ok, err := s.ExistsStudentByID(ctx, studentID)
	if err != nil {
		return fmt.Errorf("Enroll: %w", err)
	}
	if !ok {
		return fmt.Errorf("Enroll: student %d: %w", studentID, storage.ErrNotFound)
	}

	_, err = s.Db.ExecContext(ctx,
		"INSERT OR IGNORE INTO enrollments (course_id, student_id) VALUES (?, ?)",
		courseID, studentID,
	)
	if err != nil {
		return fmt.Errorf("Enroll: exec: %w", err)
	}

	return nil
}

func (s *SQLite) Unenroll(ctx context.Context, courseID, studentID int64) error {
	result, err := s.Db.ExecContext(ctx,
		"DELETE FROM enrollments WHERE course_id = ? AND student_id = ?",
		courseID, studentID,
	)
	if err != nil {
		return fmt.Errorf("Unenroll: exec: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("Unenroll: course %d student %d", courseID, studentID))
}

// GetCourseStudents lists the students enrolled in a course. The Courses
// field of the returned students is left empty.
func (s *SQLite) GetCourseStudents(ctx context.Context, courseID int64) ([]types.Student, error) {
	if _, err := s.GetCourseByID(ctx, courseID); err != nil {
		return nil, fmt.Errorf("GetCourseStudents: %w", err)
	}

	rows, err := s.Db.QueryContext(ctx, `
		SELECT s.id, s.name, s.email
		FROM enrollments e
		JOIN students s ON s.id = e.student_id
		WHERE e.course_id = ?
		ORDER BY s.id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("GetCourseStudents: query: %w", err)
	}
	defer rows.Close()

	students := make([]types.Student, 0)
	for rows.Next() {
		student := types.Student{Courses: []types.Course{}}
		if err := rows.Scan(&student.ID, &student.Name, &student.Email); err != nil {
			return nil, fmt.Errorf("GetCourseStudents: scan row: %w", err)
		}
		students = append(students, student)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetCourseStudents: rows iteration: %w", err)
	}

	return students, nil
}
