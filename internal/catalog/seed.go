package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/course-registration-api/internal/models"
	"github.com/noah-isme/course-registration-api/internal/repository"
)

// Seed is the on-disk catalog: degrees, courses, faculty and optional
// starting allocations.
type Seed struct {
	Degrees     []models.Degree  `yaml:"degrees"`
	Courses     []SeedCourse     `yaml:"courses"`
	Faculty     []models.Faculty `yaml:"faculty"`
	Allocations []SeedAllocation `yaml:"allocations"`
}

// SeedCourse is a course entry. MaxEnroll falls back to models.DefaultMaxEnroll when omitted.
type SeedCourse struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	DegreeID   string `yaml:"degree_id"`
	Year       int    `yaml:"year"`
	Semester   int    `yaml:"semester"`
	Credits    int    `yaml:"credits"`
	MaxEnroll  *int   `yaml:"max_enroll"`
	Department string `yaml:"department"`
}

// Course converts the entry into a catalog course.
func (c SeedCourse) Course() models.Course {
	maxEnroll := models.DefaultMaxEnroll
	if c.MaxEnroll != nil {
		maxEnroll = *c.MaxEnroll
	}
	return models.Course{
		ID:         c.ID,
		Name:       c.Name,
		DegreeID:   c.DegreeID,
		Year:       c.Year,
		Semester:   c.Semester,
		Credits:    c.Credits,
		MaxEnroll:  maxEnroll,
		Department: c.Department,
	}
}

// SeedAllocation assigns a faculty member to a course. Capacity defaults to the course limit.
type SeedAllocation struct {
	CourseID  string `yaml:"course_id"`
	FacultyID string `yaml:"faculty_id"`
	Capacity  *int   `yaml:"capacity"`
}

// Store receives seeded records.
type Store interface {
	UpsertDegree(ctx context.Context, degree models.Degree) error
	UpsertCourse(ctx context.Context, course models.Course) error
	UpsertFaculty(ctx context.Context, faculty models.Faculty) error
	CreateAllocation(ctx context.Context, allocation *models.Allocation) error
}

// ParseSeed decodes and validates a seed document.
func ParseSeed(data []byte) (*Seed, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("catalog: seed payload is empty")
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("catalog: decode seed: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// LoadSeed reads and validates the seed file at path.
func LoadSeed(path string) (*Seed, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	seed, err := ParseSeed(content)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return seed, nil
}

// Validate checks ids are unique and every reference resolves.
func (s *Seed) Validate() error {
	degrees := make(map[string]struct{}, len(s.Degrees))
	for _, d := range s.Degrees {
		if d.ID == "" {
			return fmt.Errorf("catalog: degree without id")
		}
		if !d.Type.Valid() {
			return fmt.Errorf("catalog: degree %s has unknown type %q", d.ID, d.Type)
		}
		if _, dup := degrees[d.ID]; dup {
			return fmt.Errorf("catalog: duplicate degree %s", d.ID)
		}
		degrees[d.ID] = struct{}{}
	}

	courses := make(map[string]models.Course, len(s.Courses))
	for _, entry := range s.Courses {
		c := entry.Course()
		if c.ID == "" {
			return fmt.Errorf("catalog: course without id")
		}
		if _, dup := courses[c.ID]; dup {
			return fmt.Errorf("catalog: duplicate course %s", c.ID)
		}
		if _, ok := degrees[c.DegreeID]; !ok {
			return fmt.Errorf("catalog: course %s references unknown degree %s", c.ID, c.DegreeID)
		}
		if c.Credits <= 0 {
			return fmt.Errorf("catalog: course %s must carry positive credits", c.ID)
		}
		if c.MaxEnroll < 0 {
			return fmt.Errorf("catalog: course %s has negative max_enroll", c.ID)
		}
		courses[c.ID] = c
	}

	faculty := make(map[string]struct{}, len(s.Faculty))
	for _, f := range s.Faculty {
		if f.ID == "" {
			return fmt.Errorf("catalog: faculty without id")
		}
		if _, dup := faculty[f.ID]; dup {
			return fmt.Errorf("catalog: duplicate faculty %s", f.ID)
		}
		faculty[f.ID] = struct{}{}
	}

	for _, a := range s.Allocations {
		if _, ok := courses[a.CourseID]; !ok {
			return fmt.Errorf("catalog: allocation references unknown course %s", a.CourseID)
		}
		if _, ok := faculty[a.FacultyID]; !ok {
			return fmt.Errorf("catalog: allocation references unknown faculty %s", a.FacultyID)
		}
		if a.Capacity != nil && *a.Capacity < 0 {
			return fmt.Errorf("catalog: allocation %s/%s has negative capacity", a.CourseID, a.FacultyID)
		}
	}
	return nil
}

// Apply writes the seed into store. Existing allocations are left untouched.
func (s *Seed) Apply(ctx context.Context, store Store) error {
	for _, d := range s.Degrees {
		if err := store.UpsertDegree(ctx, d); err != nil {
			return err
		}
	}
	limits := make(map[string]int, len(s.Courses))
	for _, entry := range s.Courses {
		c := entry.Course()
		if err := store.UpsertCourse(ctx, c); err != nil {
			return err
		}
		limits[c.ID] = c.MaxEnroll
	}
	for _, f := range s.Faculty {
		if err := store.UpsertFaculty(ctx, f); err != nil {
			return err
		}
	}
	for _, a := range s.Allocations {
		capacity := limits[a.CourseID]
		if a.Capacity != nil {
			capacity = *a.Capacity
		}
		allocation := &models.Allocation{CourseID: a.CourseID, FacultyID: a.FacultyID, Capacity: capacity}
		if err := store.CreateAllocation(ctx, allocation); err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("catalog: seed allocation %s/%s: %w", a.CourseID, a.FacultyID, err)
		}
	}
	return nil
}
