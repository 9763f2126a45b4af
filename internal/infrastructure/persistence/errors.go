package persistence

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQL error codes relevant to tenant provisioning and routing
const (
	pgDuplicateDatabase = "42P04"
	pgInvalidCatalog    = "3D000"
	pgUniqueViolation   = "23505"
)

// IsDuplicateDatabase reports whether err is a CREATE DATABASE conflict
func IsDuplicateDatabase(err error) bool {
	return hasPGCode(err, pgDuplicateDatabase)
}

// IsDatabaseNotExist reports whether err means the target database has
// not been created yet
func IsDatabaseNotExist(err error) bool {
	return hasPGCode(err, pgInvalidCatalog)
}

// IsUniqueViolation reports whether err is a unique constraint violation
func IsUniqueViolation(err error) bool {
	return hasPGCode(err, pgUniqueViolation)
}

// UniqueConstraint returns the name of the violated unique constraint,
// or "" when err is not a unique violation
func UniqueConstraint(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
		return pqErr.Constraint
	}
	return ""
}

func hasPGCode(err error, code string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == code
	}
	return false
}
