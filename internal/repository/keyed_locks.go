package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/noah-isme/course-registration-api/internal/models"
)

// keyedLocks hands out one exclusive semaphore per lock name. Semaphores are
// created lazily and kept for the life of the process.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*semaphore.Weighted)}
}

func (k *keyedLocks) get(name string) *semaphore.Weighted {
	k.mu.Lock()
	defer k.mu.Unlock()
	sem, ok := k.locks[name]
	if !ok {
		sem = semaphore.NewWeighted(1)
		k.locks[name] = sem
	}
	return sem
}

// acquire takes every named lock in the given order. Each wait is bounded by
// timeout; on failure the locks already held are released. The returned func
// releases everything in reverse order.
func (k *keyedLocks) acquire(ctx context.Context, names []string, timeout time.Duration) (func(), error) {
	held := make([]*semaphore.Weighted, 0, len(names))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Release(1)
		}
	}

	for _, name := range names {
		sem := k.get(name)
		waitCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			waitCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		err := sem.Acquire(waitCtx, 1)
		cancel()
		if err != nil {
			release()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, ErrLockTimeout
			}
			return nil, err
		}
		held = append(held, sem)
	}
	return release, nil
}

// lockNames converts a normalised scope into lock names: sections first, then
// student-course slots, each already sorted.
func lockNames(scope models.LockScope) []string {
	names := make([]string, 0, len(scope.Sections)+len(scope.Students))
	for _, k := range scope.Sections {
		names = append(names, "section:"+k.String())
	}
	for _, k := range scope.Students {
		names = append(names, "student:"+k.StudentID+"/"+k.CourseID)
	}
	return names
}
