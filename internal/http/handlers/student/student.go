// Package student holds the /api/students handlers.
//
// Each exported function is a factory: it is called once while routes are
// registered, captures the Service, and returns the http.HandlerFunc that
// serves every request:
//
//	mux.HandleFunc("POST /api/students", student.New(svc))
//
// Where a student actually lives (the external directory or the local
// database) is the Service's business, never the handler's.
package student

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aanand-mishra/students-api/internal/reconcile"
	"github.com/aanand-mishra/students-api/internal/types"
	"github.com/aanand-mishra/students-api/internal/utils/request"
	"github.com/aanand-mishra/students-api/internal/utils/response"
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks . Service

// Service is what the student handlers need from the reconciliation layer.
type Service interface {
	GetAll(ctx context.Context) ([]types.Student, error)
	GetByID(ctx context.Context, id int64) (types.Student, error)
	GetByEmail(ctx context.Context, email string) (types.Student, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, student types.Student) (types.Student, error)
	Update(ctx context.Context, id int64, student types.Student) (types.Student, error)
	Delete(ctx context.Context, id int64) error
}

const collectionPath = "/api/students"

// Resource is a student as rendered by the API: the student fields plus
// hypermedia links.
//
//	{ "id": 1, "name": "Ana", "email": "ana@x.com", "courses": [],
//	  "_links": { "self": {"href": "/api/students/1"}, "collection": {...} } }
type Resource struct {
	types.Student
	Links response.Links `json:"_links"`
}

func toResource(s types.Student) Resource {
	if s.Courses == nil {
		s.Courses = []types.Course{}
	}
	return Resource{
		Student: s,
		Links: response.Links{}.
			Add("self", selfPath(s.ID)).
			Add("collection", collectionPath),
	}
}

func selfPath(id int64) string {
	return collectionPath + "/" + strconv.FormatInt(id, 10)
}

// ─────────────────────────────────────────────────────────────────────────────
// New handles POST /api/students
// Creates a new local student from the JSON request body.
//
// Request body (JSON):
//
//	{ "name": "Carlos", "email": "carlos@example.com" }
//
// Success response (201 Created) — the stored student, with its new id.
//
// Error responses:
//
//	400 Bad Request  — empty body, malformed JSON, or failed validation
//	409 Conflict     — the email is already used locally or in the directory
//	500 Internal     — database error
//
// ─────────────────────────────────────────────────────────────────────────────
func New(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.InfoContext(r.Context(), "creating a student")

		var student types.Student
		if !request.DecodeJSON(w, r, &student) {
			return
		}

		created, err := svc.Create(r.Context(), student)
		if err != nil {
			writeError(r.Context(), w, "error creating student", err)
			return
		}

		slog.InfoContext(r.Context(), "student created", slog.Int64("id", created.ID))

		w.Header().Set("Location", selfPath(created.ID))
		response.WriteJSON(w, http.StatusCreated, toResource(created))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GetByID handles GET /api/students/{id}
//
// Error responses:
//
//	400 Bad Request  — id is not a positive integer
//	404 Not Found    — neither the directory nor the local store has it
//
// ─────────────────────────────────────────────────────────────────────────────
func GetByID(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := request.PathID(w, r, "id")
		if !ok {
			return
		}
		slog.InfoContext(r.Context(), "getting a student", slog.Int64("id", id))

		student, err := svc.GetByID(r.Context(), id)
		if err != nil {
			writeError(r.Context(), w, "error getting student", err)
			return
		}

		response.WriteJSON(w, http.StatusOK, toResource(student))
	}
}

// GetByEmail handles GET /api/students/email/{email}
func GetByEmail(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.PathValue("email")
		slog.InfoContext(r.Context(), "getting a student by email", slog.String("email", email))

		student, err := svc.GetByEmail(r.Context(), email)
		if err != nil {
			writeError(r.Context(), w, "error getting student by email", err)
			return
		}

		response.WriteJSON(w, http.StatusOK, toResource(student))
	}
}

// EmailTaken is the body of the email existence check.
type EmailTaken struct {
	Email  string `json:"email"`
	Exists bool   `json:"exists"`
}

// ExistsByEmail handles GET /api/students/email/{email}/exists
//
// Answers 200 either way; inactive directory users count as taken, so a
// client can check an address before POSTing a new student.
func ExistsByEmail(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.PathValue("email")

		exists, err := svc.ExistsByEmail(r.Context(), email)
		if err != nil {
			writeError(r.Context(), w, "error checking email", err)
			return
		}

		response.WriteJSON(w, http.StatusOK, EmailTaken{Email: email, Exists: exists})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GetList handles GET /api/students
//
// Returns the active directory users when the directory has any,
// otherwise the local students. Always a JSON array, [] when empty.
// ─────────────────────────────────────────────────────────────────────────────
func GetList(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.InfoContext(r.Context(), "getting all students")

		students, err := svc.GetAll(r.Context())
		if err != nil {
			writeError(r.Context(), w, "error getting students", err)
			return
		}

		out := make([]Resource, 0, len(students))
		for _, s := range students {
			out = append(out, toResource(s))
		}
		response.WriteJSON(w, http.StatusOK, out)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Update handles PUT /api/students/{id}
//
// Request body (JSON) — all fields required for a PUT:
//
//	{ "name": "Juan Pérez", "email": "juan@example.com" }
//
// Success response (200 OK) — the updated student. When the directory
// accepted the change this is the directory's own representation.
//
// Error responses:
//
//	400 Bad Request  — invalid id, empty body, or validation failure
//	404 Not Found    — neither store has the id
//	409 Conflict     — the new email is taken by another local student
//
// ─────────────────────────────────────────────────────────────────────────────
func Update(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := request.PathID(w, r, "id")
		if !ok {
			return
		}
		slog.InfoContext(r.Context(), "updating a student", slog.Int64("id", id))

		var student types.Student
		if !request.DecodeJSON(w, r, &student) {
			return
		}

		updated, err := svc.Update(r.Context(), id, student)
		if err != nil {
			writeError(r.Context(), w, "error updating student", err)
			return
		}

		slog.InfoContext(r.Context(), "student updated", slog.Int64("id", id))
		response.WriteJSON(w, http.StatusOK, toResource(updated))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Delete handles DELETE /api/students/{id}
// Removes the student from the directory and from the local store.
//
// Success response (200 OK):
//
//	{ "status": "deleted" }
//
// Error responses:
//
//	400 Bad Request  — invalid id
//	404 Not Found    — neither store had the id
//
// ─────────────────────────────────────────────────────────────────────────────
func Delete(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := request.PathID(w, r, "id")
		if !ok {
			return
		}
		slog.InfoContext(r.Context(), "deleting a student", slog.Int64("id", id))

		if err := svc.Delete(r.Context(), id); err != nil {
			writeError(r.Context(), w, "error deleting student", err)
			return
		}

		slog.InfoContext(r.Context(), "student deleted", slog.Int64("id", id))
		response.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// writeError maps service errors to HTTP statuses.
func writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, reconcile.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, reconcile.ErrDuplicateEmail):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(ctx, msg, slog.String("error", err.Error()))
	} else {
		slog.WarnContext(ctx, msg, slog.String("error", err.Error()))
	}
	response.WriteJSON(w, status, response.GeneralError(err))
}
