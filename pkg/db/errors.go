package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
)

// IsUniqueViolation reports whether err is a unique constraint failure on
// Postgres or SQLite. A non-empty constraintName must appear in the index
// name (Postgres) or column list (SQLite), e.g. "order_items.order_id".
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	dump := pkgerrors.Dump(err)
	unique := dump.UniqueViolation ||
		errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(dump.TopMessage, "duplicate key value")
	if !unique {
		return false
	}
	if constraintName == "" {
		return true
	}
	return strings.Contains(dump.PGConstraint, constraintName) ||
		strings.Contains(dump.TopMessage, constraintName)
}

// IsForeignKeyViolation reports a missing referenced row.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return pkgerrors.Dump(err).ForeignKeyViolation || errors.Is(err, gorm.ErrForeignKeyViolated)
}

// IsNotFound reports gorm's record-not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
