package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-registration-api/internal/models"
)

const courseColumns = "id, name, degree_id, year, semester, credits, max_enroll, department"

// CatalogRepository reads and seeds degrees, courses and faculty.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// GetDegree returns a degree by ID.
func (r *CatalogRepository) GetDegree(ctx context.Context, id string) (*models.Degree, error) {
	var degree models.Degree
	if err := r.db.GetContext(ctx, &degree, `SELECT id, name, type FROM degrees WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &degree, nil
}

// ListDegrees returns degrees ordered by ID, optionally filtered by type.
func (r *CatalogRepository) ListDegrees(ctx context.Context, degreeType models.DegreeType) ([]models.Degree, error) {
	query := `SELECT id, name, type FROM degrees`
	args := []interface{}{}
	if degreeType != "" {
		query += ` WHERE type = $1`
		args = append(args, degreeType)
	}
	query += ` ORDER BY id`

	var degrees []models.Degree
	if err := r.db.SelectContext(ctx, &degrees, query, args...); err != nil {
		return nil, fmt.Errorf("list degrees: %w", err)
	}
	return degrees, nil
}

// GetCourse returns a course by ID.
func (r *CatalogRepository) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	if err := r.db.GetContext(ctx, &course, "SELECT "+courseColumns+" FROM courses WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &course, nil
}

// GetDegreeCourses returns the courses of a degree in semester order.
func (r *CatalogRepository) GetDegreeCourses(ctx context.Context, degreeID string) ([]models.Course, error) {
	query := "SELECT " + courseColumns + " FROM courses WHERE degree_id = $1 ORDER BY semester, id"
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, degreeID); err != nil {
		return nil, fmt.Errorf("list degree courses: %w", err)
	}
	return courses, nil
}

// ListCourses returns every course ordered by degree, semester and ID.
func (r *CatalogRepository) ListCourses(ctx context.Context) ([]models.Course, error) {
	query := "SELECT " + courseColumns + " FROM courses ORDER BY degree_id, semester, id"
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// GetFaculty returns a faculty member by ID.
func (r *CatalogRepository) GetFaculty(ctx context.Context, id string) (*models.Faculty, error) {
	var faculty models.Faculty
	if err := r.db.GetContext(ctx, &faculty, `SELECT id, name, department, designation FROM faculty WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &faculty, nil
}

// ListFaculty returns faculty ordered by ID.
func (r *CatalogRepository) ListFaculty(ctx context.Context) ([]models.Faculty, error) {
	var faculty []models.Faculty
	if err := r.db.SelectContext(ctx, &faculty, `SELECT id, name, department, designation FROM faculty ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list faculty: %w", err)
	}
	return faculty, nil
}

// UpdateCourseLimits changes credits and seat limit of a course.
func (r *CatalogRepository) UpdateCourseLimits(ctx context.Context, id string, limits models.CourseLimits) error {
	result, err := r.db.ExecContext(ctx, `UPDATE courses SET credits = $2, max_enroll = $3 WHERE id = $1`, id, limits.Credits, limits.MaxEnroll)
	if err != nil {
		return fmt.Errorf("update course limits: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update course limits rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpsertDegree inserts or replaces a degree.
func (r *CatalogRepository) UpsertDegree(ctx context.Context, degree models.Degree) error {
	const query = `INSERT INTO degrees (id, name, type) VALUES (:id, :name, :type)
        ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type`
	if _, err := r.db.NamedExecContext(ctx, query, degree); err != nil {
		return fmt.Errorf("upsert degree %s: %w", degree.ID, err)
	}
	return nil
}

// UpsertCourse inserts or replaces a course.
func (r *CatalogRepository) UpsertCourse(ctx context.Context, course models.Course) error {
	const query = `INSERT INTO courses (id, name, degree_id, year, semester, credits, max_enroll, department)
        VALUES (:id, :name, :degree_id, :year, :semester, :credits, :max_enroll, :department)
        ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, degree_id = EXCLUDED.degree_id, year = EXCLUDED.year,
            semester = EXCLUDED.semester, credits = EXCLUDED.credits, max_enroll = EXCLUDED.max_enroll, department = EXCLUDED.department`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("upsert course %s: %w", course.ID, err)
	}
	return nil
}

// UpsertFaculty inserts or replaces a faculty member.
func (r *CatalogRepository) UpsertFaculty(ctx context.Context, faculty models.Faculty) error {
	const query = `INSERT INTO faculty (id, name, department, designation) VALUES (:id, :name, :department, :designation)
        ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, department = EXCLUDED.department, designation = EXCLUDED.designation`
	if _, err := r.db.NamedExecContext(ctx, query, faculty); err != nil {
		return fmt.Errorf("upsert faculty %s: %w", faculty.ID, err)
	}
	return nil
}

// Ping checks database connectivity for readiness probes.
func (r *CatalogRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
