package repository

import (
	"errors"

	"requisition-backend/pkg/apperror"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
	sqlStateCheckViolation      = "23514"
)

// notFound turns gorm's missing-row error into a typed NotFound for entity/id.
func notFound(err error, entity string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(entity, id)
	}
	return translate(err)
}

// translate maps constraint violations to typed errors and leaves everything else as is.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case sqlStateUniqueViolation:
		return &apperror.Error{
			Kind:    apperror.KindConflict,
			Message: "a record with the same unique value already exists",
			Fields:  map[string]any{"constraint": pgErr.ConstraintName},
			Err:     err,
		}
	case sqlStateForeignKeyViolation:
		return &apperror.Error{
			Kind:    apperror.KindValidation,
			Message: "referenced record does not exist or is still in use",
			Fields:  map[string]any{"constraint": pgErr.ConstraintName},
			Err:     err,
		}
	case sqlStateCheckViolation:
		return &apperror.Error{
			Kind:    apperror.KindValidation,
			Message: "value violates a table constraint",
			Fields:  map[string]any{"constraint": pgErr.ConstraintName},
			Err:     err,
		}
	}
	return err
}
