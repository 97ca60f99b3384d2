// Package reconcile presents one student API over two stores: the external
// user directory and the local SQLite database.
//
// READ POLICY:
//
//	directory first; if it has nothing usable, the local store.
//
// "Nothing usable" covers an empty listing, an unknown id, an inactive
// user and every kind of directory failure. Inactive directory users are
// never returned as students.
//
// WRITE POLICY (no transaction spans both stores):
//
//	create  local only, after checking the email is free in both stores
//	update  directory first; on success mirror its answer locally,
//	        otherwise update the local row
//	delete  both stores; succeeds if either one held the id
//
// Reads go through a ResultCache. Writes leave it alone unless the service
// was built with invalidation on write, so cached reads can lag behind a
// write until the cache is cleared.
package reconcile

//go:generate mockgen -destination=mocks/mock_directory.go -package=mocks . Directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aanand-mishra/students-api/internal/cache"
	"github.com/aanand-mishra/students-api/internal/directory"
	"github.com/aanand-mishra/students-api/internal/storage"
	"github.com/aanand-mishra/students-api/internal/types"
)

var (
	// ErrNotFound means neither store holds the requested student.
	ErrNotFound = errors.New("student not found")

	// ErrDuplicateEmail means the email is already used in either store.
	ErrDuplicateEmail = errors.New("email already registered")
)

// Directory is the part of the directory client the service relies on.
type Directory interface {
	ListAll(ctx context.Context) []types.RemoteUser
	GetByID(ctx context.Context, id int64) (types.RemoteUser, directory.Outcome)
	GetByEmail(ctx context.Context, email string) (types.RemoteUser, directory.Outcome)
	Update(ctx context.Context, id int64, user types.RemoteUser) (types.RemoteUser, directory.Outcome)
	Delete(ctx context.Context, id int64) directory.Outcome
	IsAvailable(ctx context.Context) bool
}

// Service is the reconciliation service.
type Service struct {
	remote            Directory
	local             storage.StudentStore
	cache             *cache.ResultCache
	invalidateOnWrite bool
	log               *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithInvalidateOnWrite clears the whole result cache after every
// successful create, update and delete.
func WithInvalidateOnWrite() Option {
	return func(s *Service) { s.invalidateOnWrite = true }
}

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// New wires the service. results may be shared with other services.
func New(remote Directory, local storage.StudentStore, results *cache.ResultCache, opts ...Option) *Service {
	s := &Service{
		remote: remote,
		local:  local,
		cache:  results,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "reconcile"))
	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// GetAll returns the active directory users, in directory order, when the
// directory listing is non-empty; otherwise every local student.
func (s *Service) GetAll(ctx context.Context) ([]types.Student, error) {
	return cache.Remember(ctx, s.cache, cache.KeyAll, s.getAll)
}

func (s *Service) getAll(ctx context.Context) ([]types.Student, error) {
	users := s.remote.ListAll(ctx)
	if len(users) > 0 {
		students := make([]types.Student, 0, len(users))
		for _, u := range users {
			if u.Active {
				students = append(students, fromRemote(u))
			}
		}
		s.log.InfoContext(ctx, "serving students from directory",
			slog.Int("listed", len(users)), slog.Int("active", len(students)))
		return students, nil
	}

	s.log.WarnContext(ctx, "directory listing empty, serving local students")
	students, err := s.local.FindAllStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetAll: %w", err)
	}
	return students, nil
}

// GetByID prefers an active directory user and falls back to the local
// store. Returns ErrNotFound when neither has it.
func (s *Service) GetByID(ctx context.Context, id int64) (types.Student, error) {
	return cache.Remember(ctx, s.cache, cache.KeyID(id), func(ctx context.Context) (types.Student, error) {
		if u, outcome := s.remote.GetByID(ctx, id); outcome == directory.Found && u.Active {
			return fromRemote(u), nil
		}

		s.log.DebugContext(ctx, "student not in directory, trying local store", slog.Int64("id", id))
		student, err := s.local.FindStudentByID(ctx, id)
		return student, localReadErr("GetByID", err)
	})
}

// GetByEmail is GetByID keyed by email.
func (s *Service) GetByEmail(ctx context.Context, email string) (types.Student, error) {
	return cache.Remember(ctx, s.cache, cache.KeyEmail(email), func(ctx context.Context) (types.Student, error) {
		if u, outcome := s.remote.GetByEmail(ctx, email); outcome == directory.Found && u.Active {
			return fromRemote(u), nil
		}

		s.log.DebugContext(ctx, "student not in directory, trying local store", slog.String("email", email))
		student, err := s.local.FindStudentByEmail(ctx, email)
		return student, localReadErr("GetByEmail", err)
	})
}

func localReadErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// ExistsByEmail reports whether either store knows the email. Inactive
// directory users count.
func (s *Service) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if _, outcome := s.remote.GetByEmail(ctx, email); outcome == directory.Found {
		return true, nil
	}

	ok, err := s.local.ExistsStudentByEmail(ctx, email)
	if err != nil {
		return false, fmt.Errorf("ExistsByEmail: %w", err)
	}
	return ok, nil
}

// IsExternalAvailable probes the directory.
func (s *Service) IsExternalAvailable(ctx context.Context) bool {
	return s.remote.IsAvailable(ctx)
}

// ClearCache drops every cached read.
func (s *Service) ClearCache(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// Create stores a new student locally. The directory is only consulted to
// reject an email it already knows; nothing is written to it.
//
// The check and the insert are not atomic: a directory user created with
// the same email in between is not detected. A concurrent local insert is
// caught by the UNIQUE constraint and reported as ErrDuplicateEmail.
func (s *Service) Create(ctx context.Context, student types.Student) (types.Student, error) {
	if _, outcome := s.remote.GetByEmail(ctx, student.Email); outcome == directory.Found {
		s.log.WarnContext(ctx, "email already used in directory", slog.String("email", student.Email))
		return types.Student{}, fmt.Errorf("Create: %q in directory: %w", student.Email, ErrDuplicateEmail)
	}

	taken, err := s.local.ExistsStudentByEmail(ctx, student.Email)
	if err != nil {
		return types.Student{}, fmt.Errorf("Create: %w", err)
	}
	if taken {
		s.log.WarnContext(ctx, "email already used locally", slog.String("email", student.Email))
		return types.Student{}, fmt.Errorf("Create: %q in local store: %w", student.Email, ErrDuplicateEmail)
	}

	saved, err := s.local.SaveStudent(ctx, types.Student{Name: student.Name, Email: student.Email})
	if err != nil {
		return types.Student{}, writeErr("Create", err)
	}

	s.log.InfoContext(ctx, "student created locally", slog.Int64("id", saved.ID))
	s.afterWrite(ctx)
	return saved, nil
}

// Update pushes the change to the directory first. When the directory
// accepts it, its answer is canonical: it is mirrored into the local store
// (a failed mirror is only logged) and returned. Otherwise the local row
// is updated, and ErrNotFound is returned if there is none.
func (s *Service) Update(ctx context.Context, id int64, student types.Student) (types.Student, error) {
	if u, outcome := s.remote.Update(ctx, id, toRemote(id, student)); outcome == directory.Found {
		updated := fromRemote(u)
		if updated.ID == 0 {
			updated.ID = id
		}

		mirrored, err := s.local.SaveStudent(ctx, types.Student{ID: updated.ID, Name: updated.Name, Email: updated.Email})
		if err != nil {
			s.log.WarnContext(ctx, "cannot mirror directory update locally",
				slog.Int64("id", updated.ID), slog.String("error", err.Error()))
		} else {
			updated.Courses = mirrored.Courses
		}

		s.log.InfoContext(ctx, "student updated in directory", slog.Int64("id", updated.ID))
		s.afterWrite(ctx)
		return updated, nil
	}

	exists, err := s.local.ExistsStudentByID(ctx, id)
	if err != nil {
		return types.Student{}, fmt.Errorf("Update: %w", err)
	}
	if !exists {
		s.log.WarnContext(ctx, "student to update not found in either store", slog.Int64("id", id))
		return types.Student{}, fmt.Errorf("Update: %d: %w", id, ErrNotFound)
	}

	saved, err := s.local.SaveStudent(ctx, types.Student{ID: id, Name: student.Name, Email: student.Email})
	if err != nil {
		return types.Student{}, writeErr("Update", err)
	}

	s.log.InfoContext(ctx, "student updated locally", slog.Int64("id", id))
	s.afterWrite(ctx)
	return saved, nil
}

// Delete removes the student from both stores. It succeeds if at least one
// of them held the id and fails with ErrNotFound only if neither did.
// Nothing is rolled back if only one side succeeds.
func (s *Service) Delete(ctx context.Context, id int64) error {
	remoteDeleted := s.remote.Delete(ctx, id) == directory.Found

	localErr := s.local.DeleteStudentByID(ctx, id)
	localDeleted := localErr == nil

	if localErr != nil && !errors.Is(localErr, storage.ErrNotFound) {
		s.log.ErrorContext(ctx, "local delete failed", slog.Int64("id", id), slog.String("error", localErr.Error()))
		if !remoteDeleted {
			return fmt.Errorf("Delete: %w", localErr)
		}
	}

	if !remoteDeleted && !localDeleted {
		s.log.WarnContext(ctx, "student to delete not found in either store", slog.Int64("id", id))
		return fmt.Errorf("Delete: %d: %w", id, ErrNotFound)
	}

	s.log.InfoContext(ctx, "student deleted",
		slog.Int64("id", id), slog.Bool("directory", remoteDeleted), slog.Bool("local", localDeleted))
	s.afterWrite(ctx)
	return nil
}

func writeErr(op string, err error) error {
	if errors.Is(err, storage.ErrConflict) {
		return fmt.Errorf("%s: %w", op, ErrDuplicateEmail)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Service) afterWrite(ctx context.Context) {
	if !s.invalidateOnWrite {
		return
	}
	if err := s.cache.Clear(ctx); err != nil {
		s.log.WarnContext(ctx, "cannot invalidate cache after write", slog.String("error", err.Error()))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Mapping
// ─────────────────────────────────────────────────────────────────────────────

func fromRemote(u types.RemoteUser) types.Student {
	return types.Student{
		ID:      u.ID,
		Name:    u.Name,
		Email:   u.Email,
		Courses: []types.Course{},
	}
}

func toRemote(id int64, s types.Student) types.RemoteUser {
	return types.RemoteUser{
		ID:     id,
		Name:   s.Name,
		Email:  s.Email,
		Role:   types.RoleStudent,
		Active: true,
	}
}
