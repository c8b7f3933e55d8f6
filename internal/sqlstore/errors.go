package sqlstore

import (
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/jonanatree/visapay/visa/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// translate maps constraint violations onto the model errors and leaves
// anything else untouched.
func translate(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %v", models.ErrConflict, err)
	case isForeignKeyViolation(err):
		return fmt.Errorf("card %w: %v", models.ErrNotFound, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == pgUniqueViolation || sqliteCode(err) == sqlite3.ErrConstraintUnique ||
		sqliteCode(err) == sqlite3.ErrConstraintPrimaryKey
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == pgForeignKeyViolation || sqliteCode(err) == sqlite3.ErrConstraintForeignKey
}

func pgCode(err error) string {
	var pe *pq.Error
	if errors.As(err, &pe) {
		return string(pe.Code)
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) {
		return pgerr.Code
	}
	return ""
}

func sqliteCode(err error) sqlite3.ErrNoExtended {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return se.ExtendedCode
	}
	return -1
}
