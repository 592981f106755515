package db

import (
	"errors"
	"strings"

	pgconnv1 "github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
)

const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// IsUniqueViolation reports whether the provided error references a unique
// constraint violation. When constraintName is provided, the helper looks
// for the constraint (or column) text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	unique := sqlState(err) == pgUniqueViolation ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
	if !unique {
		return false
	}
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return true
}

// IsCheckViolation reports whether a CHECK constraint rejected the write.
func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	return sqlState(err) == pgCheckViolation || strings.Contains(err.Error(), "CHECK constraint failed")
}

// IsForeignKeyViolation reports a write that referenced a missing row.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return sqlState(err) == pgForeignKeyViolation || strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// IsLockContention reports lock timeouts, serialization failures and deadlocks.
func IsLockContention(err error) bool {
	if err == nil {
		return false
	}
	switch sqlState(err) {
	case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected:
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "lock timeout")
}

// Classify maps a raw database error into the shared error taxonomy.
// Errors already carrying a code pass through untouched.
func Classify(err error, message string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, message)
	case IsForeignKeyViolation(err):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, message+": referenced record not found")
	case IsLockContention(err):
		return pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, message)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
	}
}

// promoteContention upgrades dependency errors caused by lock contention so
// callers see a retryable conflict instead of a generic outage.
func promoteContention(err error) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		if IsLockContention(err) {
			return pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, "transaction aborted by lock contention")
		}
		return err
	}
	if typed.Code() == pkgerrors.CodeDependency && IsLockContention(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, typed.Message())
	}
	return err
}

func sqlState(err error) string {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code
	}
	var legacyErr *pgconnv1.PgError
	if errors.As(err, &legacyErr) {
		return legacyErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
