package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

const (
	pqUniqueViolation           = "23505"
	pqInvalidTextRepresentation = "22P02"
)

// noRowsOnMalformedID reports a lookup by an id Postgres cannot parse as a
// uuid the same way as a lookup that matched nothing.
func noRowsOnMalformedID(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqInvalidTextRepresentation {
		return sql.ErrNoRows
	}
	return err
}
