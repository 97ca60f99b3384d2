// Package router builds the application's HTTP handler: every route on a
// standard library ServeMux, wrapped in the request middlewares.
//
// Route table:
//
//	GET    /api/students                           list students
//	POST   /api/students                           create a local student
//	GET    /api/students/{id}                      get a student by id
//	PUT    /api/students/{id}                      update a student
//	DELETE /api/students/{id}                      delete a student
//	GET    /api/students/email/{email}             get a student by email
//	GET    /api/students/email/{email}/exists      is the email already registered?
//	GET    /api/students/status/external           is the directory reachable?
//	GET    /api/courses                            list courses
//	POST   /api/courses                            create a course
//	GET    /api/courses/{id}                       get a course
//	PUT    /api/courses/{id}                       update a course
//	DELETE /api/courses/{id}                       delete a course
//	GET    /api/courses/{id}/students              students enrolled in a course
//	PUT    /api/courses/{id}/students/{studentID}  enroll
//	DELETE /api/courses/{id}/students/{studentID}  unenroll
//	DELETE /api/cache                              clear the result cache
//	GET    /metrics                                Prometheus metrics
package router

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aanand-mishra/students-api/internal/http/handlers/course"
	"github.com/aanand-mishra/students-api/internal/http/handlers/status"
	"github.com/aanand-mishra/students-api/internal/http/handlers/student"
	"github.com/aanand-mishra/students-api/internal/http/middleware"
	"github.com/aanand-mishra/students-api/internal/storage"
)

// StudentService is everything the student and status routes need.
type StudentService interface {
	student.Service
	status.Prober
	status.CacheClearer
}

// Deps are the collaborators the routes are built from.
type Deps struct {
	Students StudentService
	Courses  storage.CourseStore
	// Gatherer serves /metrics; the route is omitted when nil.
	Gatherer prometheus.Gatherer
	Log      *slog.Logger
}

// New returns the fully wired handler.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/students", student.GetList(d.Students))
	mux.HandleFunc("POST /api/students", student.New(d.Students))
	mux.HandleFunc("GET /api/students/{id}", student.GetByID(d.Students))
	mux.HandleFunc("PUT /api/students/{id}", student.Update(d.Students))
	mux.HandleFunc("DELETE /api/students/{id}", student.Delete(d.Students))
	mux.HandleFunc("GET /api/students/email/{email}", student.GetByEmail(d.Students))
	mux.HandleFunc("GET /api/students/email/{email}/exists", student.ExistsByEmail(d.Students))
	mux.HandleFunc("GET /api/students/status/external", status.External(d.Students))

	mux.HandleFunc("GET /api/courses", course.GetList(d.Courses))
	mux.HandleFunc("POST /api/courses", course.New(d.Courses))
	mux.HandleFunc("GET /api/courses/{id}", course.GetByID(d.Courses))
	mux.HandleFunc("PUT /api/courses/{id}", course.Update(d.Courses))
	mux.HandleFunc("DELETE /api/courses/{id}", course.Delete(d.Courses))
	mux.HandleFunc("GET /api/courses/{id}/students", course.GetStudents(d.Courses))
	mux.HandleFunc("PUT /api/courses/{id}/students/{studentID}", course.Enroll(d.Courses))
	mux.HandleFunc("DELETE /api/courses/{id}/students/{studentID}", course.Unenroll(d.Courses))

	mux.HandleFunc("DELETE /api/cache", status.ClearCache(d.Students))

	if d.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.Logger(log),
		middleware.Recoverer,
	)
}
