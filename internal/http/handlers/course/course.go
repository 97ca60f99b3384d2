// Package course contains the HTTP handlers for courses and enrollments.
//
// Courses live only in the local store, so these handlers use
// storage.CourseStore directly.
package course

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aanand-mishra/students-api/internal/storage"
	"github.com/aanand-mishra/students-api/internal/types"
	"github.com/aanand-mishra/students-api/internal/utils/request"
	"github.com/aanand-mishra/students-api/internal/utils/response"
)

const collectionPath = "/api/courses"

// Resource is a course with its hypermedia links.
type Resource struct {
	types.Course
	Links response.Links `json:"_links"`
}

func toResource(c types.Course) Resource {
	self := selfPath(c.ID)
	return Resource{
		Course: c,
		Links: response.Links{}.
			Add("self", self).
			Add("update", self).
			Add("delete", self).
			Add("students", self+"/students").
			Add("collection", collectionPath),
	}
}

func selfPath(id int64) string {
	return collectionPath + "/" + strconv.FormatInt(id, 10)
}

// ─────────────────────────────────────────────────────────────────────────────
// New handles POST /api/courses
//
// Request body (JSON):
//
//	{ "name": "Databases", "description": "SQL basics", "duration_hours": 40 }
//
// Success response (201 Created) — the stored course with its links.
// ─────────────────────────────────────────────────────────────────────────────
func New(store storage.CourseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.InfoContext(r.Context(), "creating a course")

		var course types.Course
		if !request.DecodeJSON(w, r, &course) {
			return
		}

		id, err := store.CreateCourse(r.Context(), course)
		if err != nil {
			writeError(w, r, "error creating course", err)
			return
		}
		course.ID = id

		slog.InfoContext(r.Context(), "course created", slog.Int64("id", id))

		w.Header().Set("Location", selfPath(id))
		response.WriteJSON(w, http.StatusCreated, toResource(course))
	}
}

// GetList handles GET /api/courses
func GetList(store storage.CourseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.InfoContext(r.Context(), "getting all courses")

		courses, err := store.GetCourses(r.Context())
		if err != nil {
			writeError(w, r, "error getting courses", err)
			return
		}

		out := make([]Resource, 0, len(courses))
		for _, c := range courses {
			out = append(out, toResource(c))
		}
		response.WriteJSON(w, http.StatusOK, out)
	}
}

// GetByID handles GET /api/courses/{id}
func GetByID(store storage.CourseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := request.PathID(w, r, "id")
		if !ok {
			return
		}
		slog.InfoContext(r.Context(), "getting a course", slog.Int64("id", id))

		course, err := store.GetCourseByID(r.Context(), id)
		if err != nil {
			writeError(w, r, "error getting course", err)
			return
		}

		response.WriteJSON(w, http.StatusOK, toResource(course))
	}
}

// Update handles PUT /api/courses/{id}
func Update(store storage.CourseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := request.PathID(w, r, "id")
		if !ok {
			return
		}
		slog.InfoContext(r.Context(), "updating a course", slog.Int64("id", id))

		var course types.Course
		if !request.DecodeJSON(w, r, &course) {
			return
		}

		updated, err := store.UpdateCourse(r.Context(), id, course)
		if err != nil {
			writeError(w, r, "error updating course", err)
			return
		}

		response.WriteJSON(w, http.StatusOK, toResource(updated))
	}
}

// Delete handles DELETE /api/courses/{id}. Enrollments go with the course.
func Delete(store storage.CourseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := request.PathID(w, r, "id")
		if !ok {
			return
		}
		slog.InfoContext(r.Context(), "deleting a course", slog.Int64("id", id))

		if err := store.DeleteCourse(r.Context(), id); err != nil {
			writeError(w, r, "error deleting course", err)
			return
		}

		response.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Enrollment
//
//	GET    /api/courses/{id}/students               students in the course
//	PUT    /api/courses/{id}/students/{studentID}   enroll (idempotent)
//	DELETE /api/courses/{id}/students/{studentID}   unenroll
//
// Only local students can be enrolled.
// ─────────────────────────────────────────────────────────────────────────────

// GetStudents handles GET /api/courses/{id}/students
func GetStudents(store storage.CourseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := request.PathID(w, r, "id")
		if !ok {
			return
		}

		students, err := store.GetCourseStudents(r.Context(), id)
		if err != nil {
			writeError(w, r, "error getting course students", err)
			return
		}

		response.WriteJSON(w, http.StatusOK, students)
	}
}

// Enroll handles PUT /api/courses/{id}/students/{studentID}
func Enroll(store storage.CourseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID, ok := request.PathID(w, r, "id")
		if !ok {
			return
		}
		studentID, ok := request.PathID(w, r, "studentID")
		if !ok {
			return
		}
		slog.InfoContext(r.Context(), "enrolling student",
			slog.Int64("course_id", courseID), slog.Int64("student_id", studentID))

		if err := store.Enroll(r.Context(), courseID, studentID); err != nil {
			writeError(w, r, "error enrolling student", err)
			return
		}

		response.WriteJSON(w, http.StatusOK, map[string]string{"status": "enrolled"})
	}
}

// Unenroll handles DELETE /api/courses/{id}/students/{studentID}
func Unenroll(store storage.CourseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID, ok := request.PathID(w, r, "id")
		if !ok {
			return
		}
		studentID, ok := request.PathID(w, r, "studentID")
		if !ok {
			return
		}
		slog.InfoContext(r.Context(), "unenrolling student",
			slog.Int64("course_id", courseID), slog.Int64("student_id", studentID))

		if err := store.Unenroll(r.Context(), courseID, studentID); err != nil {
			writeError(w, r, "error unenrolling student", err)
			return
		}

		response.WriteJSON(w, http.StatusOK, map[string]string{"status": "unenrolled"})
	}
}

func writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(r.Context(), msg, slog.String("error", err.Error()))
		response.WriteJSON(w, http.StatusNotFound, response.GeneralError(err))
		return
	}

	slog.ErrorContext(r.Context(), msg, slog.String("error", err.Error()))
	response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
}
