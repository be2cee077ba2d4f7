package repository

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/course-registration-api/internal/models"
)

// Sentinel errors shared by the Postgres and in-memory stores.
var (
	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("duplicate record")
	// ErrLockTimeout is returned when locks could not be taken within the configured timeout.
	ErrLockTimeout = errors.New("lock wait timed out")
	// ErrConflict is returned when a concurrent writer invalidated the transaction.
	ErrConflict = errors.New("concurrent write conflict")
)

// LedgerTx exposes registration state inside a critical section opened by
// WithLocks. Reads observe writes made earlier in the same section; nothing
// is visible to other callers until the section commits.
type LedgerTx interface {
	Allocation(ctx context.Context, key models.SectionKey) (*models.Allocation, error)
	CountActive(ctx context.Context, key models.SectionKey) (int, error)
	HasActive(ctx context.Context, studentID, courseID string) (bool, error)
	FindEnrollment(ctx context.Context, id string) (*models.Enrollment, error)
	InsertEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	GradeEnrollment(ctx context.Context, id string, status models.EnrollmentStatus, grade float64, gradedAt time.Time) error
	DeleteEnrollment(ctx context.Context, id string) error
	InsertAllocation(ctx context.Context, allocation *models.Allocation) error
	DeleteAllocation(ctx context.Context, key models.SectionKey) error
}
