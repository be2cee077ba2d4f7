package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-api/internal/models"
	"github.com/noah-isme/course-registration-api/internal/repository"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
)

// Ledger is the enrollment store: locked critical sections plus unlocked reads.
type Ledger interface {
	WithLocks(ctx context.Context, scope models.LockScope, fn func(repository.LedgerTx) error) error
	FindEnrollment(ctx context.Context, id string) (*models.Enrollment, error)
	ListEnrollments(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error)
}

// lockedRunner executes critical sections, retrying lost races.
type lockedRunner struct {
	ledger     Ledger
	metrics    *MetricsService
	logger     *zap.Logger
	maxRetries int
}

// run executes fn under the locks in scope. A ConcurrencyConflict is retried
// up to maxRetries times; each attempt re-runs every check in fn.
func (r lockedRunner) run(ctx context.Context, operation string, scope models.LockScope, fn func(repository.LedgerTx) error) error {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		entered := false
		err := r.ledger.WithLocks(ctx, scope, func(tx repository.LedgerTx) error {
			if !entered {
				entered = true
				r.metrics.ObserveLockWait(operation, time.Since(start))
			}
			return fn(tx)
		})
		err = translateLedgerError(err)
		if err != nil && errors.Is(err, appErrors.ErrConcurrencyConflict) && attempt < r.maxRetries {
			r.metrics.RecordRetry(operation)
			r.logger.Info("retrying after concurrency conflict", zap.String("operation", operation), zap.Int("attempt", attempt+1))
			continue
		}
		return err
	}
}

// translateLedgerError maps store-level failures into the error taxonomy.
// Domain errors raised inside a critical section pass through unchanged.
func translateLedgerError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, repository.ErrLockTimeout):
		return appErrors.Wrap(err, appErrors.ErrBusy.Code, appErrors.ErrBusy.Status, appErrors.ErrBusy.Message)
	case errors.Is(err, repository.ErrConflict):
		return appErrors.Wrap(err, appErrors.ErrConcurrencyConflict.Code, appErrors.ErrConcurrencyConflict.Status, appErrors.ErrConcurrencyConflict.Message)
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return appErrors.Wrap(err, appErrors.ErrBusy.Code, appErrors.ErrBusy.Status, "request deadline exceeded while waiting for locks")
	}
	if errors.Is(err, context.Canceled) {
		return appErrors.Wrap(err, appErrors.ErrRequestCanceled.Code, appErrors.ErrRequestCanceled.Status, appErrors.ErrRequestCanceled.Message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "registration store failure")
}

func outcomeLabel(err error) string {
	if err == nil {
		return outcomeOK
	}
	return appErrors.FromError(err).Code
}

// logOutcome logs a finished operation: rejections at info, lifecycle and
// contention problems at warn, infrastructure failures at error.
func logOutcome(logger *zap.Logger, operation string, err error, fields ...zap.Field) {
	if err == nil {
		logger.Debug(operation+" succeeded", fields...)
		return
	}
	appErr := appErrors.FromError(err)
	fields = append(fields, zap.String("code", appErr.Code), zap.Error(err))
	switch {
	case appErr.Status >= 500 && appErr.Code != appErrors.ErrBusy.Code:
		logger.Error(operation+" failed", fields...)
	case appErr.Code == appErrors.ErrInvalidTransition.Code,
		appErr.Code == appErrors.ErrBusy.Code,
		appErr.Code == appErrors.ErrRequestCanceled.Code,
		appErr.Code == appErrors.ErrConcurrencyConflict.Code:
		logger.Warn(operation+" rejected", fields...)
	default:
		logger.Info(operation+" rejected", fields...)
	}
}
