package sqldb

import (
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"secure-relay/internal/observability"
)

const pqUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation from
// either backend. A non-empty constraint narrows the PostgreSQL match to that
// constraint name.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if string(pqErr.Code) != pqUniqueViolation {
			return false
		}
		return constraint == "" || pqErr.Constraint == constraint
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func observe(operation, table string, start time.Time) {
	observability.DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}
