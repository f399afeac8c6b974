package utils

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// IsPGForeignKeyViolation reports whether err is a PostgreSQL foreign
// key violation, e.g. a task row pointing at a deleted user.
func IsPGForeignKeyViolation(err error) bool {
	var pge *pgconn.PgError
	if errors.As(err, &pge) {
		return pge.Code == pgerrcode.ForeignKeyViolation
	}
	return false
}
