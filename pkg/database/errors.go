package database

import (
	"errors"

	"github.com/lib/pq"
)

// SQLSTATE codes the registration engine reacts to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
)

func pgCode(err error) (string, string) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint
	}
	return "", ""
}

// IsUniqueViolation reports a unique_violation, optionally for a specific constraint.
func IsUniqueViolation(err error, constraint string) bool {
	code, name := pgCode(err)
	if code != codeUniqueViolation {
		return false
	}
	return constraint == "" || name == constraint
}

// IsRetryable reports serialization failures and detected deadlocks, which
// are safe to retry as a whole transaction.
func IsRetryable(err error) bool {
	code, _ := pgCode(err)
	return code == codeSerializationFailure || code == codeDeadlockDetected
}

// IsLockTimeout reports that lock_timeout fired.
func IsLockTimeout(err error) bool {
	code, _ := pgCode(err)
	return code == codeLockNotAvailable
}

// IsQueryCanceled reports a query_canceled error, raised when the client
// cancels a running statement.
func IsQueryCanceled(err error) bool {
	code, _ := pgCode(err)
	return code == codeQueryCanceled
}
