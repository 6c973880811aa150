package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrConstraintViolation - база отклонила запись по CHECK или UNIQUE ограничению
var ErrConstraintViolation = errors.New("constraint violation")

const (
	pqUniqueViolation = "23505"
	pqCheckViolation  = "23514"
)

// MapConstraintError помечает ошибки ограничений Postgres как ErrConstraintViolation.
func MapConstraintError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation, pqCheckViolation:
			return fmt.Errorf("%w (%s): %w", ErrConstraintViolation, pqErr.Constraint, err)
		}
	}
	return err
}
