// Package seed fills an empty local database with sample data for
// development and testing.
//
// What gets loaded depends on the directory:
//
//	directory down, database empty    courses, students and enrollments
//	directory up, no courses yet      courses only (students come from the directory)
//	anything else                     nothing
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/aanand-mishra/students-api/internal/storage"
	"github.com/aanand-mishra/students-api/internal/types"
)

// Prober reports whether the external directory answers.
type Prober interface {
	IsExternalAvailable(ctx context.Context) bool
}

// Result counts what Run inserted.
type Result struct {
	Courses     int
	Students    int
	Enrollments int
}

var subjects = []string{
	"Java Programming", "Web Development", "Databases",
	"Algorithms", "Data Structures", "Mobile Development",
	"Machine Learning", "Cybersecurity", "DevOps", "Cloud Computing",
}

const studentCount = 25

// Seeder loads the sample data.
type Seeder struct {
	store storage.Storage
	probe Prober
	fake  *gofakeit.Faker
	log   *slog.Logger
}

// Option customises a Seeder.
type Option func(*Seeder)

// WithRand drives the fake data from r, which makes it reproducible.
func WithRand(r *rand.Rand) Option {
	return func(s *Seeder) { s.fake = gofakeit.NewFaker(r, false) }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Seeder) { s.log = l }
}

func New(store storage.Storage, probe Prober, opts ...Option) *Seeder {
	s := &Seeder{
		store: store,
		probe: probe,
		fake:  gofakeit.New(0),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run inspects the stores and loads whatever is missing.
func (s *Seeder) Run(ctx context.Context) (Result, error) {
	available := s.probe.IsExternalAvailable(ctx)

	students, err := s.store.CountStudents(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("seed: %w", err)
	}
	courses, err := s.store.CountCourses(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("seed: %w", err)
	}

	switch {
	case !available && students == 0 && courses == 0:
		s.log.InfoContext(ctx, "directory unavailable, loading local sample data")
		return s.loadAll(ctx)
	case available && courses == 0:
		s.log.InfoContext(ctx, "directory available, loading sample courses only")
		ids, err := s.loadCourses(ctx)
		return Result{Courses: len(ids)}, err
	default:
		s.log.InfoContext(ctx, "sample data not needed",
			slog.Bool("directory_available", available),
			slog.Int64("students", students),
			slog.Int64("courses", courses))
		return Result{}, nil
	}
}

func (s *Seeder) loadAll(ctx context.Context) (Result, error) {
	courseIDs, err := s.loadCourses(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Result{Courses: len(courseIDs)}

	for i := range studentCount {
		student, err := s.store.SaveStudent(ctx, s.fakeStudent(i))
		if err != nil {
			return res, fmt.Errorf("seed: student %d: %w", i, err)
		}
		res.Students++

		// each student takes 1 to 4 distinct courses
		n := s.fake.IntRange(1, 4)
		for _, idx := range s.pick(len(courseIDs))[:n] {
			if err := s.store.Enroll(ctx, courseIDs[idx], student.ID); err != nil {
				return res, fmt.Errorf("seed: enroll: %w", err)
			}
			res.Enrollments++
		}
	}

	s.log.InfoContext(ctx, "sample data loaded",
		slog.Int("courses", res.Courses),
		slog.Int("students", res.Students),
		slog.Int("enrollments", res.Enrollments))
	return res, nil
}

func (s *Seeder) loadCourses(ctx context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(subjects))
	for _, subject := range subjects {
		id, err := s.store.CreateCourse(ctx, types.Course{
			Name:          subject,
			Description:   s.fake.Sentence(s.fake.IntRange(8, 12)),
			DurationHours: s.fake.IntRange(20, 119),
		})
		if err != nil {
			return ids, fmt.Errorf("seed: course %q: %w", subject, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// fakeStudent builds a student whose email is unique thanks to i.
func (s *Seeder) fakeStudent(i int) types.Student {
	first, last := s.fake.FirstName(), s.fake.LastName()
	return types.Student{
		Name:  first + " " + last,
		Email: fmt.Sprintf("%s.%s%d@example.com", emailPart(first), emailPart(last), i+1),
	}
}

// pick returns the indexes 0..n-1 in random order.
func (s *Seeder) pick(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	s.fake.ShuffleInts(idx)
	return idx
}

// emailPart lower-cases name and keeps only ASCII letters and digits
// ("O'Connell" becomes "oconnell").
func emailPart(name string) string {
	part := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return -1
		}
	}, strings.ToLower(name))
	if part == "" {
		return "student"
	}
	return part
}
