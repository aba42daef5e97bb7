package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/pavitra93/go-simulation-admin/shared/models"
)

var (
	// ErrNotFound is returned when a record is absent or not visible under the
	// active-tenant filter. It is an expected outcome.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a uniqueness or referential constraint rejects a write.
	ErrConflict = errors.New("constraint conflict")
	// ErrScopeViolation is returned when an operation lacks a tenant reference or
	// reaches outside its tenant.
	ErrScopeViolation = errors.New("tenant scope violation")
	// ErrInvalidField is returned for unknown or non-searchable columns.
	ErrInvalidField = errors.New("invalid field")
	// ErrTransient marks connection and timeout failures the caller may retry.
	ErrTransient = errors.New("transient storage failure")
)

// ConflictError describes a rejected write.
type ConflictError struct {
	Table      string
	Constraint string
	Err        error
}

func (e *ConflictError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("%s: conflict on %s: %v", e.Table, e.Constraint, e.Err)
	}
	return fmt.Sprintf("%s: conflict: %v", e.Table, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// SQLSTATE codes returned by PostgreSQL.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgSerialization       = "40001"
	pgDeadlock            = "40P01"
	pgConnectionClass     = "08"
)

// SQLite result codes for constraint failures, primary and extended.
const (
	sqliteConstraint           = 19
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
	sqliteConstraintForeignKey = 787
)

// translateError maps engine errors onto the repository taxonomy. Errors that
// do not match a category are returned wrapped but otherwise untouched.
func translateError(table string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, models.ErrMissingTenant):
		return fmt.Errorf("%s: %w: %w", table, ErrScopeViolation, err)
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrForeignKeyViolated):
		return &ConflictError{Table: table, Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation, pgErr.Code == pgForeignKeyViolation:
			return &ConflictError{Table: table, Constraint: pgErr.ConstraintName, Err: err}
		case pgErr.Code == pgSerialization, pgErr.Code == pgDeadlock,
			len(pgErr.Code) == 5 && pgErr.Code[:2] == pgConnectionClass:
			return fmt.Errorf("%s: %w: %w", table, ErrTransient, err)
		}
	}

	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		switch coded.Code() {
		case sqliteConstraint, sqliteConstraintPrimaryKey, sqliteConstraintUnique, sqliteConstraintForeignKey:
			return &ConflictError{Table: table, Err: err}
		}
	}

	if isTransient(err) {
		return fmt.Errorf("%s: %w: %w", table, ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", table, err)
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}

// IsConflict reports whether err is a constraint conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsNotFound reports whether err is a not-found outcome.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }
